package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/external"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/monitoring"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/service"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

type PaymentController struct {
	paymentService service.PaymentService
	blobStore      external.BlobStore
	metrics        monitoring.MetricsService
}

func NewPaymentController(paymentService service.PaymentService, blobStore external.BlobStore, metrics monitoring.MetricsService) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		blobStore:      blobStore,
		metrics:        metrics,
	}
}

type registerPaymentRequest struct {
	AuctionID       string    `json:"auction_id" binding:"required"`
	Monto           string    `json:"monto" binding:"required,decimal2"`
	NumeroOperacion string    `json:"numero_operacion" binding:"required"`
	FechaPago       time.Time `json:"fecha_pago" binding:"required"`
	ComprobanteURL  string    `json:"comprobante_url"`
}

type rejectPaymentRequest struct {
	Motivo  string `json:"motivo" binding:"required"`
	Detalle string `json:"detalle"`
}

func (ctl *PaymentController) RegisterPayment(c *gin.Context) {
	var req registerPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	auctionID, err := primitive.ObjectIDFromHex(req.AuctionID)
	if err != nil {
		handleError(c, apierrors.NewValidation("auction_id invalido", nil))
		return
	}
	monto, _ := decimal.NewFromString(req.Monto)

	resp, err := ctl.paymentService.RegisterPayment(c.Request.Context(), callerFrom(c), &service.RegisterPaymentRequest{
		AuctionID:       auctionID,
		Monto:           monto,
		NumeroOperacion: req.NumeroOperacion,
		FechaPago:       req.FechaPago,
		ComprobanteURL:  req.ComprobanteURL,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	ctl.metrics.RecordMovement(string(resp.Movement.Tipo), string(resp.Movement.Estado), resp.Movement.Monto.InexactFloat64())
	c.JSON(http.StatusCreated, resp)
}

func (ctl *PaymentController) UploadVoucher(c *gin.Context) {
	file, header, err := c.Request.FormFile("comprobante")
	if err != nil {
		handleError(c, apierrors.NewValidation("archivo comprobante requerido", nil))
		return
	}
	defer file.Close()

	url, err := ctl.blobStore.Save(c.Request.Context(), header.Filename, file, header.Size)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"comprobante_url": url})
}

func (ctl *PaymentController) ApprovePayment(c *gin.Context) {
	movementID, ok := parseObjectID(c, "id")
	if !ok {
		return
	}

	resp, err := ctl.paymentService.ApprovePayment(c.Request.Context(), callerFrom(c), movementID)
	if err != nil {
		handleError(c, err)
		return
	}

	ctl.metrics.RecordMovement(string(resp.Movement.Tipo), string(resp.Movement.Estado), resp.Movement.Monto.InexactFloat64())
	ctl.metrics.RecordAuctionTransition(string(resp.Auction.Estado))
	c.JSON(http.StatusOK, resp)
}

func (ctl *PaymentController) RejectPayment(c *gin.Context) {
	movementID, ok := parseObjectID(c, "id")
	if !ok {
		return
	}

	var req rejectPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := ctl.paymentService.RejectPayment(c.Request.Context(), callerFrom(c), movementID, &service.RejectPaymentRequest{
		Motivo:  models.RejectionReason(req.Motivo),
		Detalle: req.Detalle,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	ctl.metrics.RecordMovement(string(resp.Movement.Tipo), string(resp.Movement.Estado), resp.Movement.Monto.InexactFloat64())
	c.JSON(http.StatusOK, resp)
}

func (ctl *PaymentController) GetMovement(c *gin.Context) {
	movementID, ok := parseObjectID(c, "id")
	if !ok {
		return
	}

	movement, err := ctl.paymentService.GetMovement(c.Request.Context(), callerFrom(c), movementID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, movement)
}

func (ctl *PaymentController) ListMovements(c *gin.Context) {
	req := &service.ListMovementsRequest{
		Tipo:   models.MovementKind(c.Query("tipo")),
		Estado: models.MovementState(c.Query("estado")),
	}

	if v := c.Query("user_id"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			handleError(c, apierrors.NewValidation("user_id invalido", nil))
			return
		}
		req.UserID = &id
	}
	if v := c.Query("auction_id"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			handleError(c, apierrors.NewValidation("auction_id invalido", nil))
			return
		}
		req.AuctionID = &id
	}
	req.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	req.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	resp, err := ctl.paymentService.ListMovements(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
