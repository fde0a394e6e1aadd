package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/monitoring"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/service"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

type RefundController struct {
	refundService service.RefundService
	metrics       monitoring.MetricsService
}

func NewRefundController(refundService service.RefundService, metrics monitoring.MetricsService) *RefundController {
	return &RefundController{
		refundService: refundService,
		metrics:       metrics,
	}
}

type createRefundRequest struct {
	UserID    string `json:"user_id"`
	Monto     string `json:"monto" binding:"required,decimal2"`
	Tipo      string `json:"tipo" binding:"required"`
	Motivo    string `json:"motivo"`
	AuctionID string `json:"auction_id"`
}

type manageRefundRequest struct {
	Accion string `json:"accion" binding:"required"`
	Motivo string `json:"motivo"`
}

type processRefundRequest struct {
	NumeroTransferencia string `json:"numero_transferencia"`
	ComprobanteURL      string `json:"comprobante_url"`
}

func (ctl *RefundController) CreateRefund(c *gin.Context) {
	var req createRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	monto, _ := decimal.NewFromString(req.Monto)

	serviceReq := &service.CreateRefundRequest{
		Monto:  monto,
		Tipo:   models.RefundType(req.Tipo),
		Motivo: req.Motivo,
	}

	if req.UserID != "" {
		id, err := primitive.ObjectIDFromHex(req.UserID)
		if err != nil {
			handleError(c, apierrors.NewValidation("user_id invalido", nil))
			return
		}
		serviceReq.UserID = id
	}
	if req.AuctionID != "" {
		id, err := primitive.ObjectIDFromHex(req.AuctionID)
		if err != nil {
			handleError(c, apierrors.NewValidation("auction_id invalido", nil))
			return
		}
		serviceReq.AuctionID = &id
	}

	resp, err := ctl.refundService.CreateRefund(c.Request.Context(), callerFrom(c), serviceReq)
	if err != nil {
		handleError(c, err)
		return
	}

	ctl.metrics.RecordRefund(string(resp.Refund.Estado))
	c.JSON(http.StatusCreated, resp)
}

func (ctl *RefundController) ManageRefund(c *gin.Context) {
	refundID, ok := parseObjectID(c, "id")
	if !ok {
		return
	}

	var req manageRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := ctl.refundService.ManageRefund(c.Request.Context(), callerFrom(c), refundID, &service.ManageRefundRequest{
		Accion: req.Accion,
		Motivo: req.Motivo,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	ctl.metrics.RecordRefund(string(resp.Refund.Estado))
	c.JSON(http.StatusOK, resp)
}

func (ctl *RefundController) ProcessRefund(c *gin.Context) {
	refundID, ok := parseObjectID(c, "id")
	if !ok {
		return
	}

	var req processRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := ctl.refundService.ProcessRefund(c.Request.Context(), callerFrom(c), refundID, &service.ProcessRefundRequest{
		NumeroTransferencia: req.NumeroTransferencia,
		ComprobanteURL:      req.ComprobanteURL,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	ctl.metrics.RecordRefund(string(resp.Refund.Estado))
	if resp.Movement != nil {
		ctl.metrics.RecordMovement(string(resp.Movement.Tipo), string(resp.Movement.Estado), resp.Movement.Monto.InexactFloat64())
	}
	c.JSON(http.StatusOK, resp)
}

func (ctl *RefundController) CancelRefund(c *gin.Context) {
	refundID, ok := parseObjectID(c, "id")
	if !ok {
		return
	}

	resp, err := ctl.refundService.CancelRefund(c.Request.Context(), callerFrom(c), refundID)
	if err != nil {
		handleError(c, err)
		return
	}

	ctl.metrics.RecordRefund(string(resp.Refund.Estado))
	c.JSON(http.StatusOK, resp)
}

func (ctl *RefundController) GetRefund(c *gin.Context) {
	refundID, ok := parseObjectID(c, "id")
	if !ok {
		return
	}

	refund, err := ctl.refundService.GetRefund(c.Request.Context(), callerFrom(c), refundID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, refund)
}

func (ctl *RefundController) ListRefunds(c *gin.Context) {
	req := &service.ListRefundsRequest{
		Estado: models.RefundState(c.Query("estado")),
	}

	if v := c.Query("user_id"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			handleError(c, apierrors.NewValidation("user_id invalido", nil))
			return
		}
		req.UserID = &id
	}
	req.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	req.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	resp, err := ctl.refundService.ListRefunds(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
