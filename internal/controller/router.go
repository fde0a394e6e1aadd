package controller

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/config"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/monitoring"
)

// RegisterValidations installs the custom request validators on gin's binding
// engine. decimal2 accepts a positive decimal string with at most 2 decimals.
func RegisterValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	v.RegisterValidation("decimal2", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		return d.IsPositive() && d.Exponent() >= -2
	})
}

// SetupRouter wires middleware and routes
func SetupRouter(
	cfg *config.Config,
	metrics monitoring.MetricsService,
	health *monitoring.HealthChecker,
	paymentCtl *PaymentController,
	auctionCtl *AuctionController,
	refundCtl *RefundController,
	accountCtl *AccountController,
) *gin.Engine {
	RegisterValidations()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggingMiddleware())

	if cfg.Monitoring.EnableMetrics {
		router.Use(MetricsMiddleware(metrics))
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	if cfg.Monitoring.EnableHealthCheck {
		router.GET(cfg.Monitoring.HealthCheckPath, health.Handler())
	}

	router.Static("/vouchers", cfg.Storage.BasePath)

	api := router.Group("/api")
	api.Use(CallerMiddleware())
	{
		users := api.Group("/users")
		{
			users.POST("", accountCtl.CreateUser)
			users.GET("/:id", accountCtl.GetUser)
			users.GET("/:id/saldo", accountCtl.GetBalance)
			users.POST("/:id/reconciliar", accountCtl.ReconcileBalance)
			users.POST("/:id/ajustes", accountCtl.CreateAdjustment)
		}

		auctions := api.Group("/subastas")
		{
			auctions.POST("", auctionCtl.CreateAuction)
			auctions.GET("/:id", auctionCtl.GetAuction)
			auctions.POST("/:id/ganador", auctionCtl.AssignWinner)
			auctions.PATCH("/:id/ganador", auctionCtl.ReassignWinner)
			auctions.POST("/:id/resultado", auctionCtl.RecordResult)
		}

		movements := api.Group("/movimientos")
		{
			movements.POST("", paymentCtl.RegisterPayment)
			movements.GET("", paymentCtl.ListMovements)
			movements.GET("/:id", paymentCtl.GetMovement)
			movements.PATCH("/:id/aprobar", paymentCtl.ApprovePayment)
			movements.PATCH("/:id/rechazar", paymentCtl.RejectPayment)
		}

		api.POST("/comprobantes", paymentCtl.UploadVoucher)

		refunds := api.Group("/reembolsos")
		{
			refunds.POST("", refundCtl.CreateRefund)
			refunds.GET("", refundCtl.ListRefunds)
			refunds.GET("/:id", refundCtl.GetRefund)
			refunds.PATCH("/:id/gestionar", refundCtl.ManageRefund)
			refunds.PATCH("/:id/procesar", refundCtl.ProcessRefund)
			refunds.DELETE("/:id", refundCtl.CancelRefund)
		}

		billings := api.Group("/facturacion")
		{
			billings.POST("", accountCtl.CreateBilling)
			billings.GET("", accountCtl.ListBillings)
		}

		api.POST("/jobs/vencimientos", auctionCtl.RunSweep)
	}

	return router
}
