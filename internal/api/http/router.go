package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/change-service/internal/api/http/handlers"
	"github.com/spec-kit/change-service/internal/auth"
	"github.com/spec-kit/change-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Staff          *handlers.StaffHandler
	Changes        *handlers.ChangesHandler
	Approvals      *handlers.ApprovalsHandler
	Routing        *handlers.RoutingHandler
	Products       *handlers.ProductsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/users/login", cfg.Users.Login)

	authGroup.Post("/staff/login", cfg.Staff.Login)
	authGroup.Post("/password/reset/request", cfg.Staff.RequestPasswordReset)
	authGroup.Post("/password/reset/confirm", cfg.Staff.ConfirmPasswordReset)

	protectedAuth := authGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	protectedAuth.Post("/password/change", cfg.Staff.ChangePassword)

	// Product catalog, readable by any authenticated caller.
	products := app.Group("/products", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	products.Get("/", cfg.Products.ListProducts)
	products.Get("/groups", cfg.Products.ListGroups)

	// Change requests. Creation and revision are end-user operations;
	// listing and reads are shared, scoped inside the service.
	changes := app.Group("/changes", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	changes.Post("/", auth.RequireUser(), cfg.Changes.CreateChange)
	changes.Get("/", cfg.Changes.ListChanges)
	changes.Get("/:id", cfg.Changes.GetChange)
	changes.Get("/:id/approvals", cfg.Changes.ListApprovals)
	changes.Get("/:id/history", cfg.Changes.ListHistory)
	changes.Post("/:id/revise", auth.RequireUser(), cfg.Changes.ReviseChange)
	changes.Post("/:id/transition", cfg.Changes.TransitionChange)

	staff := app.Group("/staff", cfg.AuthMiddleware.Handle, auth.RequireStaffRole())
	staff.Get("/approvals/pending", cfg.Approvals.ListPending)
	staff.Post("/changes/:id/decision", cfg.Approvals.SubmitDecision)
	staff.Get("/changes/:id/approval-state", cfg.Approvals.WorkflowState)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireStaffRole(domain.StaffRoleAdmin))
	admin.Get("/routing-rules", cfg.Routing.ListRules)
	admin.Post("/routing-rules", cfg.Routing.CreateRule)
	admin.Put("/routing-rules/:id", cfg.Routing.UpdateRule)
	admin.Delete("/routing-rules/:id", cfg.Routing.DeleteRule)

	admin.Post("/products", cfg.Products.CreateProduct)
	admin.Put("/products/:id", cfg.Products.UpdateProduct)
	admin.Post("/products/groups", cfg.Products.CreateGroup)

	admin.Post("/staff", cfg.Staff.CreateStaff)
	admin.Get("/staff", cfg.Staff.ListStaff)
	admin.Put("/staff/:id", cfg.Staff.UpdateStaff)

	admin.Get("/metrics", cfg.Health.Metrics)
}
