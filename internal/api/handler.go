package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"marketplace-core/internal/models"
	"marketplace-core/internal/service"
	"marketplace-core/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	splitter  *service.CartSplitter
	engine    *service.CommissionEngine
	router    *service.FulfillmentRouter
	scheduler *service.PayoutScheduler
}

// NewHandler creates a new HTTP handler
func NewHandler(
	splitter *service.CartSplitter,
	engine *service.CommissionEngine,
	router *service.FulfillmentRouter,
	scheduler *service.PayoutScheduler,
) *Handler {
	return &Handler{
		splitter:  splitter,
		engine:    engine,
		router:    router,
		scheduler: scheduler,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/cart/split", h.splitCart)

		v1.POST("/routing/simulate", h.simulateRouting)
		v1.POST("/routing/assign", h.assignRouting)

		v1.POST("/commissions", h.recordCommission)
		v1.POST("/commissions/:orderId/collect", h.collectCommission)
		v1.GET("/reports/commissions", h.commissionReport)

		v1.GET("/vendors/:id/commissions", h.vendorCommissions)
		v1.GET("/vendors/:id/next-payout", h.nextPayout)
		v1.POST("/vendors/:id/payment-account", h.setupPaymentAccount)
		v1.GET("/vendors/:id/balance", h.vendorBalance)

		v1.GET("/locations/:code", h.locationStatus)

		v1.POST("/payouts", h.createPayout)
		v1.GET("/payouts", h.listPayouts)
		v1.GET("/payouts/:id", h.getPayout)
		v1.POST("/payouts/:id/process", h.processPayout)
		v1.POST("/payouts/batch", h.batchPayouts)

		v1.POST("/webhooks/payment", h.paymentWebhook)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// splitCart previews a multi-vendor cart split
func (h *Handler) splitCart(c *gin.Context) {
	var req service.SplitOrder
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	drafts, err := h.splitter.Split(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id": req.OrderID,
		"drafts":   drafts,
	})
}

// simulateRouting scores candidate locations without side effects
func (h *Handler) simulateRouting(c *gin.Context) {
	h.route(c, false)
}

// assignRouting routes an order and counts it against location capacity
func (h *Handler) assignRouting(c *gin.Context) {
	h.route(c, true)
}

func (h *Handler) route(c *gin.Context, commit bool) {
	var req service.RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	req.Commit = commit

	result, err := h.router.Route(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type recordCommissionRequest struct {
	OrderID    string `json:"order_id" binding:"required"`
	VendorID   string `json:"vendor_id" binding:"required"`
	OrderTotal int64  `json:"order_total" binding:"required,min=1"`
}

// recordCommission records a commission for a placed order
func (h *Handler) recordCommission(c *gin.Context) {
	var req recordCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	rec, err := h.engine.RecordCommission(c.Request.Context(), req.OrderID, req.VendorID, req.OrderTotal)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rec)
}

// collectCommission marks an order's commission collected on delivery
func (h *Handler) collectCommission(c *gin.Context) {
	orderID := c.Param("orderId")

	if err := h.engine.MarkCollected(c.Request.Context(), orderID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "status": models.CommissionStatusCollected})
}

// commissionReport aggregates commissions by status over a date range
func (h *Handler) commissionReport(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.engine.Report(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "totals": report})
}

// vendorCommissions lists one vendor's commission records
func (h *Handler) vendorCommissions(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := h.engine.VendorReport(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"vendor_id": c.Param("id"), "records": records})
}

// nextPayout previews a vendor's next payout without side effects
func (h *Handler) nextPayout(c *gin.Context) {
	preview, err := h.scheduler.CalculateNextPayout(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, preview)
}

// setupPaymentAccount provisions a gateway account for a vendor
func (h *Handler) setupPaymentAccount(c *gin.Context) {
	setup, err := h.scheduler.SetupPaymentAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, setup)
}

// vendorBalance reports a vendor's gateway account balance
func (h *Handler) vendorBalance(c *gin.Context) {
	balance, err := h.scheduler.AccountBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"vendor_id": c.Param("id"), "available": balance})
}

// locationStatus reports a fulfillment location's remaining daily capacity
func (h *Handler) locationStatus(c *gin.Context) {
	status, err := h.router.Status(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

type createPayoutRequest struct {
	VendorID string `json:"vendor_id" binding:"required"`
	service.CreatePayoutOptions
}

// createPayout creates a payout from a vendor's collected commissions
func (h *Handler) createPayout(c *gin.Context) {
	var req createPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	payout, err := h.scheduler.CreatePayout(c.Request.Context(), req.VendorID, req.CreatePayoutOptions)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, payout)
}

// listPayouts lists a vendor's payouts
func (h *Handler) listPayouts(c *gin.Context) {
	vendorID := c.Query("vendor_id")
	if vendorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vendor_id is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	payouts, err := h.scheduler.ListPayouts(c.Request.Context(), vendorID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"vendor_id": vendorID, "payouts": payouts})
}

// getPayout retrieves a payout with its adjustments
func (h *Handler) getPayout(c *gin.Context) {
	detail, err := h.scheduler.GetPayoutDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// processPayout submits a pending payout to the payment gateway
func (h *Handler) processPayout(c *gin.Context) {
	payout, err := h.scheduler.ProcessPayout(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, payout)
}

// batchPayouts runs payout creation across many vendors
func (h *Handler) batchPayouts(c *gin.Context) {
	var req service.BatchPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.scheduler.CreateBatchPayouts(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// paymentWebhook ingests gateway webhook events over HTTP
func (h *Handler) paymentWebhook(c *gin.Context) {
	var event models.GatewayWebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid webhook payload",
			"details": err.Error(),
		})
		return
	}

	if err := h.scheduler.HandleTransferWebhook(c.Request.Context(), &event); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// dateRange parses from/to query params, defaulting to the last 30 days
func dateRange(c *gin.Context) (time.Time, time.Time, error) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)

	if s := c.Query("from"); s != "" {
		parsed, err := parseDate(s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if s := c.Query("to"); s != "" {
		parsed, err := parseDate(s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
	}

	return from, to, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// respondError maps the service error taxonomy to HTTP status codes
func respondError(c *gin.Context, err error) {
	var (
		validationErr    *service.ValidationError
		notFoundErr      *service.NotFoundError
		invalidStateErr  *service.InvalidStateError
		noCommissionsErr *service.NoUnpaidCommissionsError
		gatewayErr       *service.GatewayError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &invalidStateErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &noCommissionsErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNoFulfillableLocation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &gatewayErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
