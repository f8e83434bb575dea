package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/conversation-orchestrator/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health        *handlers.HealthHandler
	Conversations *handlers.ConversationsHandler
	Decisions     *handlers.DecisionsHandler
	Routing       *handlers.RoutingHandler
	SLA           *handlers.SLAHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	conversations := app.Group("/conversations")
	conversations.Post("/", cfg.Conversations.Create)
	conversations.Get("/:id", cfg.Conversations.Get)
	conversations.Get("/:id/audit", cfg.Conversations.ListAudit)
	conversations.Get("/:id/sla", cfg.SLA.Status)
	conversations.Get("/:id/transitions/:name", cfg.Conversations.CheckTransition)
	conversations.Post("/:id/transitions/:name", cfg.Conversations.ApplyTransition)

	app.Post("/decisions/evaluate", cfg.Decisions.Evaluate)
	app.Post("/routing/resolve", cfg.Routing.Resolve)
	app.Post("/queues/cache/invalidate", cfg.Routing.InvalidateCatalog)

	slaGroup := app.Group("/sla")
	slaGroup.Get("/at-risk", cfg.SLA.AtRisk)
	slaGroup.Post("/sweep", cfg.SLA.Sweep)
}
