package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/service"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

type AccountController struct {
	accountService service.AccountService
	billingService service.BillingService
}

func NewAccountController(accountService service.AccountService, billingService service.BillingService) *AccountController {
	return &AccountController{
		accountService: accountService,
		billingService: billingService,
	}
}

type createUserRequest struct {
	Nombre string `json:"nombre" binding:"required"`
	Email  string `json:"email" binding:"required,email"`
	Rol    string `json:"rol" binding:"required"`
}

type createAdjustmentRequest struct {
	Direccion string `json:"direccion" binding:"required"`
	Monto     string `json:"monto" binding:"required,decimal2"`
	Concepto  string `json:"concepto" binding:"required"`
}

type createBillingRequest struct {
	AuctionID         string `json:"auction_id" binding:"required"`
	TipoDocumento     string `json:"tipo_documento" binding:"required"`
	NumeroDocumento   string `json:"numero_documento" binding:"required"`
	NombreFacturacion string `json:"nombre_facturacion" binding:"required"`
}

func (ctl *AccountController) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := ctl.accountService.CreateUser(c.Request.Context(), callerFrom(c), &service.CreateUserRequest{
		Nombre: req.Nombre,
		Email:  req.Email,
		Rol:    req.Rol,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (ctl *AccountController) GetUser(c *gin.Context) {
	userID, ok := parseObjectID(c, "id")
	if !ok {
		return
	}

	user, err := ctl.accountService.GetUser(c.Request.Context(), callerFrom(c), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func (ctl *AccountController) GetBalance(c *gin.Context) {
	userID, ok := parseObjectID(c, "id")
	if !ok {
		return
	}

	snapshot, err := ctl.accountService.GetBalance(c.Request.Context(), callerFrom(c), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (ctl *AccountController) ReconcileBalance(c *gin.Context) {
	userID, ok := parseObjectID(c, "id")
	if !ok {
		return
	}

	snapshot, err := ctl.accountService.ReconcileBalance(c.Request.Context(), callerFrom(c), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (ctl *AccountController) CreateAdjustment(c *gin.Context) {
	userID, ok := parseObjectID(c, "id")
	if !ok {
		return
	}

	var req createAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	monto, _ := decimal.NewFromString(req.Monto)

	resp, err := ctl.accountService.CreateAdjustment(c.Request.Context(), callerFrom(c), userID, &service.CreateAdjustmentRequest{
		Direccion: models.MovementDirection(req.Direccion),
		Monto:     monto,
		Concepto:  req.Concepto,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (ctl *AccountController) CreateBilling(c *gin.Context) {
	var req createBillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	auctionID, err := primitive.ObjectIDFromHex(req.AuctionID)
	if err != nil {
		handleError(c, apierrors.NewValidation("auction_id invalido", nil))
		return
	}

	resp, err := ctl.billingService.CreateBilling(c.Request.Context(), callerFrom(c), &service.CreateBillingRequest{
		AuctionID:         auctionID,
		TipoDocumento:     req.TipoDocumento,
		NumeroDocumento:   req.NumeroDocumento,
		NombreFacturacion: req.NombreFacturacion,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (ctl *AccountController) ListBillings(c *gin.Context) {
	var userID primitive.ObjectID
	if v := c.Query("user_id"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			handleError(c, apierrors.NewValidation("user_id invalido", nil))
			return
		}
		userID = id
	}

	billings, err := ctl.billingService.ListBillings(c.Request.Context(), callerFrom(c), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"billings": billings})
}
