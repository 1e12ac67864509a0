package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/campuswell/wellbeing-api/internal/handler/health"
	promhandler "github.com/campuswell/wellbeing-api/internal/handler/prometheus"
	"github.com/campuswell/wellbeing-api/internal/middleware"
	"github.com/campuswell/wellbeing-api/internal/model"
)

// Handler registers a route group.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// AdminHandler additionally registers staff-only routes.
type AdminHandler interface {
	Handler
	RegisterAdminRoutes(*gin.RouterGroup)
}

type Config struct {
	RateLimit  rate.Limit
	RateBurst  int
	CORSConfig middleware.CORSConfig
}

type Router struct {
	engine       *gin.Engine
	auth         *middleware.AuthMiddleware
	healthH      *health.Handler
	promH        *promhandler.Handler
	intakeH      Handler
	appointmentH AdminHandler
	messageH     AdminHandler
	notifH       Handler
	chatH        Handler
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	healthH *health.Handler,
	promH *promhandler.Handler,
	intakeH Handler,
	appointmentH AdminHandler,
	messageH AdminHandler,
	notifH Handler,
	chatH Handler,
	cfg Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		promH.Middleware(),
		middleware.Timeout(middleware.DefaultTimeoutConfig()),
		middleware.CORS(cfg.CORSConfig),
	)

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  cfg.RateLimit,
		Burst: cfg.RateBurst,
	})
	engine.Use(limiter.RateLimit())

	return &Router{
		engine:       engine,
		auth:         auth,
		healthH:      healthH,
		promH:        promH,
		intakeH:      intakeH,
		appointmentH: appointmentH,
		messageH:     messageH,
		notifH:       notifH,
		chatH:        chatH,
	}
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	r.healthH.RegisterRoutes(api)
	api.GET("/metrics", r.promH.Handler())

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	{
		r.intakeH.RegisterRoutes(protected)
		r.appointmentH.RegisterRoutes(protected)
		r.messageH.RegisterRoutes(protected)
		r.notifH.RegisterRoutes(protected)
		r.chatH.RegisterRoutes(protected)
	}

	admin := protected.Group("")
	admin.Use(r.auth.RequireRole(model.RoleAdmin))
	{
		r.appointmentH.RegisterAdminRoutes(admin)
		r.messageH.RegisterAdminRoutes(admin)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
