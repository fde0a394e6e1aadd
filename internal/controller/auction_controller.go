package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/jobs"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/monitoring"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/service"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

type AuctionController struct {
	winnerService service.WinnerService
	scheduler     *jobs.Scheduler
	metrics       monitoring.MetricsService
}

func NewAuctionController(winnerService service.WinnerService, scheduler *jobs.Scheduler, metrics monitoring.MetricsService) *AuctionController {
	return &AuctionController{
		winnerService: winnerService,
		scheduler:     scheduler,
		metrics:       metrics,
	}
}

type createAuctionRequest struct {
	DescripcionBien string `json:"descripcion_bien" binding:"required"`
	PlacaBien       string `json:"placa_bien"`
}

type assignWinnerRequest struct {
	UserID          string     `json:"user_id" binding:"required"`
	MontoOferta     string     `json:"monto_oferta" binding:"required,decimal2"`
	FechaLimitePago *time.Time `json:"fecha_limite_pago"`
}

type reassignWinnerRequest struct {
	UserID          string     `json:"user_id" binding:"required"`
	MontoOferta     string     `json:"monto_oferta" binding:"required,decimal2"`
	Motivo          string     `json:"motivo" binding:"required"`
	FechaLimitePago *time.Time `json:"fecha_limite_pago"`
}

type competitionResultRequest struct {
	Resultado string `json:"resultado" binding:"required"`
}

func (ctl *AuctionController) CreateAuction(c *gin.Context) {
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	auction, err := ctl.winnerService.CreateAuction(c.Request.Context(), callerFrom(c), &service.CreateAuctionRequest{
		DescripcionBien: req.DescripcionBien,
		PlacaBien:       req.PlacaBien,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, auction)
}

func (ctl *AuctionController) GetAuction(c *gin.Context) {
	auctionID, ok := parseObjectID(c, "id")
	if !ok {
		return
	}

	resp, err := ctl.winnerService.GetAuction(c.Request.Context(), callerFrom(c), auctionID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (ctl *AuctionController) AssignWinner(c *gin.Context) {
	auctionID, ok := parseObjectID(c, "id")
	if !ok {
		return
	}

	var req assignWinnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	userID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		handleError(c, apierrors.NewValidation("user_id invalido", nil))
		return
	}
	monto, _ := decimal.NewFromString(req.MontoOferta)

	resp, err := ctl.winnerService.AssignWinner(c.Request.Context(), callerFrom(c), &service.AssignWinnerRequest{
		AuctionID:       auctionID,
		UserID:          userID,
		MontoOferta:     monto,
		FechaLimitePago: req.FechaLimitePago,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	ctl.metrics.RecordAuctionTransition(string(resp.Auction.Estado))
	c.JSON(http.StatusCreated, resp)
}

func (ctl *AuctionController) ReassignWinner(c *gin.Context) {
	auctionID, ok := parseObjectID(c, "id")
	if !ok {
		return
	}

	var req reassignWinnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	userID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		handleError(c, apierrors.NewValidation("user_id invalido", nil))
		return
	}
	monto, _ := decimal.NewFromString(req.MontoOferta)

	resp, err := ctl.winnerService.ReassignWinner(c.Request.Context(), callerFrom(c), auctionID, &service.ReassignWinnerRequest{
		UserID:          userID,
		MontoOferta:     monto,
		Motivo:          req.Motivo,
		FechaLimitePago: req.FechaLimitePago,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (ctl *AuctionController) RecordResult(c *gin.Context) {
	auctionID, ok := parseObjectID(c, "id")
	if !ok {
		return
	}

	var req competitionResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := ctl.winnerService.RecordCompetitionResult(c.Request.Context(), callerFrom(c), auctionID, &service.CompetitionResultRequest{
		Resultado: models.AuctionState(req.Resultado),
	})
	if err != nil {
		handleError(c, err)
		return
	}

	ctl.metrics.RecordAuctionTransition(string(resp.Auction.Estado))
	if resp.Movement != nil {
		ctl.metrics.RecordMovement(string(resp.Movement.Tipo), string(resp.Movement.Estado), resp.Movement.Monto.InexactFloat64())
	}
	c.JSON(http.StatusOK, resp)
}

// RunSweep triggers the expiration sweep on demand
func (ctl *AuctionController) RunSweep(c *gin.Context) {
	if !callerFrom(c).IsAdmin() {
		handleError(c, apierrors.NewForbidden("la operacion requiere rol de administrador"))
		return
	}

	result, err := ctl.scheduler.RunSweepNow(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}

	ctl.metrics.RecordSweep(result.Processed, result.Errored)
	c.JSON(http.StatusOK, result)
}
