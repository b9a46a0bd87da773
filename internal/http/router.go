package http

import (
	"log/slog"
	"net/http"

	"github.com/geocoder89/eventpass/internal/domain/user"
	"github.com/geocoder89/eventpass/internal/http/handlers"
	"github.com/geocoder89/eventpass/internal/http/middlewares"
	"github.com/geocoder89/eventpass/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// multipart framing on top of the file itself
const uploadOverhead = 64 << 10

type Tokens interface {
	middlewares.TokenVerifier
	handlers.TokenIssuer
}

// Deps is everything the API router mounts. Jobs and Limiter are optional.
type Deps struct {
	Log         *slog.Logger
	Env         string
	ServiceName string

	Prom     *observability.Prom
	Gatherer prometheus.Gatherer

	Tokens        Tokens
	Users         handlers.UserStore
	Events        handlers.EventStore
	EventCache    handlers.EventCache
	Purger        handlers.RegistrationPurger
	Registrations handlers.Registrations
	Blobs         handlers.BlobStore
	Jobs          handlers.JobsAdmin
	Checks        map[string]handlers.Check

	Limiter        *middlewares.RateLimiter
	CORSOrigins    []string
	MaxBodyBytes   int64
	MaxUploadBytes int64
}

func NewRouter(d Deps) *gin.Engine {
	if d.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.ServiceName == "" {
		d.ServiceName = "eventpass-api"
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(d.ServiceName))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.CORSOrigins))

	health := handlers.NewHealthHandler(d.Checks)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	r.GET("/metrics", gin.WrapH(metricsHandler(d.Gatherer)))
	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	authMW := middlewares.NewAuthMiddleware(d.Tokens)
	limit := func(key middlewares.KeySelector) gin.HandlerFunc {
		if d.Limiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return d.Limiter.Middleware(key)
	}

	authH := handlers.NewAuthHandler(d.Users, d.Tokens)
	eventsH := handlers.NewEventsHandler(d.Events, d.EventCache, d.Purger)
	regsH := handlers.NewRegistrationHandler(d.Registrations)

	api := r.Group("/")
	api.Use(middlewares.MaxBodyBytes(d.MaxBodyBytes))
	api.Use(middlewares.RequireJSON())

	authGroup := api.Group("/auth")
	authGroup.POST("/signup", limit(middlewares.KeyByIP), authH.SignUp)
	authGroup.POST("/login", limit(middlewares.KeyByIP), authH.Login)
	authGroup.GET("/me", authMW.RequireAuth(), authH.Me)

	api.GET("/events", eventsH.ListEvents)
	api.GET("/events/:id", eventsH.GetEventByID)

	authed := api.Group("/")
	authed.Use(authMW.RequireAuth())

	organizers := authed.Group("/")
	organizers.Use(authMW.RequireRole(user.RoleCoordinator, user.RoleAdmin))
	organizers.POST("/events", eventsH.CreateEvent)
	organizers.PUT("/events/:id", eventsH.UpdateEvent)
	organizers.DELETE("/events/:id", eventsH.DeleteEvent)
	organizers.GET("/events/:id/registrations", regsH.ListForEvent)
	organizers.DELETE("/events/:id/registrations/:registrationId", regsH.DeleteForEvent)

	authed.POST("/events/:id/registrations", limit(middlewares.KeyByUserOrIP), regsH.Register)
	authed.GET("/me/registrations", regsH.ListMine)
	authed.GET("/registrations/:id", regsH.Get)
	authed.PATCH("/registrations/:id", regsH.Update)
	authed.DELETE("/registrations/:id", regsH.Cancel)
	authed.POST("/registrations/:id/payment", regsH.Payment)

	if d.Jobs != nil {
		jobsH := handlers.NewAdminJobsHandler(d.Jobs)
		adminGroup := authed.Group("/admin")
		adminGroup.Use(authMW.RequireRole(user.RoleAdmin))
		adminGroup.GET("/jobs/dead", jobsH.ListDead)
		adminGroup.POST("/jobs/dead/:id/requeue", jobsH.Requeue)
		adminGroup.GET("/jobs/stats", jobsH.Stats)
	}

	if d.Blobs != nil {
		uploadsH := handlers.NewUploadsHandler(d.Blobs, d.Registrations)
		authed.GET("/registrations/:id/payment-proof", uploadsH.RegistrationProof)
		r.POST("/uploads/payment-proof",
			middlewares.MaxBodyBytes(d.MaxUploadBytes+uploadOverhead),
			authMW.RequireAuth(),
			limit(middlewares.KeyByUserOrIP),
			uploadsH.PaymentProof,
		)
	}

	return r
}

func metricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
