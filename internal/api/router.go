package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"exam-reservation-backend/internal/mw"
)

// RouterConfig carries the shared middleware state. Cache is flushed by the
// caller whenever the ledger changes.
type RouterConfig struct {
	Limiter  *mw.KeyedRateLimiter
	Cache    *cache.Cache
	CacheTTL time.Duration
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), mw.RequestID())

	if cfg.Cache == nil {
		cfg.Cache = cache.New(5*time.Minute, 10*time.Minute)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	caching := mw.Cache(cfg.Cache, cfg.CacheTTL)

	var throttle gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.Limiter != nil {
		throttle = mw.RateLimiter(cfg.Limiter)
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api/v1")

	// Public endpoints are throttled per IP.
	public := api.Group("")
	public.Use(throttle)
	{
		public.POST("/users/signup", h.Signup)
		public.POST("/users/login", h.Login)
		public.POST("/users/refresh", h.Refresh)
		public.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	// Everything else is throttled per user.
	private := api.Group("")
	private.Use(mw.Authenticate(h.auth), throttle)
	{
		private.GET("/slots/available", caching, h.ListAvailableSlots)

		private.POST("/reservations", h.CreateReservation)
		private.GET("/reservations", h.ListMyReservations)
		private.PATCH("/reservations/:id", h.UpdateReservation)
		private.DELETE("/reservations/:id", h.DeleteReservation)

		private.GET("/subscriptions", h.GetSubscriptions)
		private.PUT("/subscriptions", h.PutSubscription)
		private.DELETE("/subscriptions", h.DeleteSubscription)
	}

	admin := private.Group("/admin")
	admin.Use(mw.RequireAdmin())
	{
		admin.GET("/reservations", h.ListReservations)
		admin.PATCH("/reservations/:id/confirm", h.ConfirmReservation)
		admin.DELETE("/reservations/:id", h.DeleteReservation)
		admin.GET("/ledger/audit", h.AuditLedger)
		admin.GET("/stats", h.GetStats)
	}

	return r
}
