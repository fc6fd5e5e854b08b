package main

import (
	"context"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/handler"
	"github.com/noah-isme/campus-events-api/internal/middleware"
	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/service"
	"github.com/noah-isme/campus-events-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-events-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-events-api/pkg/middleware/requestid"
)

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

type principalResolver interface {
	Resolve(ctx context.Context, principalID string) (*models.Principal, error)
}

// routerDeps is everything the HTTP surface needs.
type routerDeps struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool

	Logger     *zap.Logger
	Metrics    *service.MetricsService
	Tokens     tokenValidator
	Principals principalResolver

	Intents *handler.IntentHandler
	Queries *handler.QueryHandler
	Exports *handler.ExportHandler
	System  *handler.MetricsHandler
}

func newRouter(deps routerDeps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(deps.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", deps.System.Health)
	r.GET("/ready", deps.System.Ready)
	r.GET("/metrics", deps.System.Prometheus)
	if deps.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(deps.APIPrefix)
	api.Use(middleware.JWT(deps.Tokens), middleware.AuditContext())

	api.GET("/me", deps.Queries.Me)
	api.POST("/intents", deps.Intents.Apply)

	events := api.Group("/events")
	events.GET("", deps.Queries.ListEvents)
	events.POST("", deps.Intents.CreateEvent)
	events.GET("/:id", deps.Queries.GetEvent)
	events.PATCH("/:id", deps.Intents.EditEvent)
	events.POST("/:id/transitions", deps.Intents.TransitionEvent)
	events.GET("/:id/sub-events", deps.Queries.ListSubEvents)
	events.POST("/:id/sub-events", deps.Intents.CreateSubEvent)
	events.GET("/:id/roster", deps.Exports.Roster)

	subEvents := api.Group("/sub-events")
	subEvents.GET("/:id", deps.Queries.GetSubEvent)
	subEvents.PATCH("/:id", deps.Intents.EditSubEvent)
	subEvents.DELETE("/:id", deps.Intents.CancelSubEvent)

	registrations := api.Group("/registrations")
	registrations.GET("", deps.Queries.ListRegistrations)
	registrations.POST("", deps.Intents.Register)
	registrations.GET("/:id", deps.Queries.GetRegistration)
	registrations.DELETE("/:id", deps.Intents.CancelRegistration)

	api.PUT("/principals/:id/role",
		middleware.RequireCapability(deps.Principals, models.CapOverrideRole),
		deps.Intents.OverrideRole)
	api.GET("/system/metrics",
		middleware.RequireCapability(deps.Principals, models.CapEditAny),
		deps.System.Summary)

	return r
}
