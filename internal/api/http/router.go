package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/bug-tracker/internal/api/http/handlers"
	"github.com/spec-kit/bug-tracker/internal/auth"
	"github.com/spec-kit/bug-tracker/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Bugs           *handlers.BugsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	requireSession := cfg.AuthMiddleware.Handle

	authGroup := app.Group("/auth")
	authGroup.Get("/login", cfg.Users.LoginForm)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Get("/logout", requireSession, cfg.Users.Logout)
	authGroup.Post("/logout", requireSession, cfg.Users.Logout)
	authGroup.Get("/me", requireSession, cfg.Users.Me)

	users := app.Group("/users", requireSession, auth.RequireRole(handlers.BugListPath, domain.RoleManager))
	users.Get("/", cfg.Users.ListUsers)

	bugs := app.Group("/bugs", requireSession)
	bugs.Get("/", cfg.Bugs.ListBugs)
	bugs.Post("/", cfg.Bugs.CreateBug)
	bugs.Get("/new", cfg.Bugs.NewBugForm)
	bugs.Get("/:id", cfg.Bugs.GetBug)
	bugs.Put("/:id", cfg.Bugs.UpdateBug)
	bugs.Delete("/:id", cfg.Bugs.DeleteBug)
	bugs.Get("/:id/edit", cfg.Bugs.EditBugForm)
	bugs.Get("/:id/close", cfg.Bugs.CloseConfirm)
	bugs.Post("/:id/close", cfg.Bugs.CloseBug)
	bugs.Get("/:id/delete", cfg.Bugs.DeleteConfirm)
	bugs.Post("/:id/delete", cfg.Bugs.DeleteBug)
}
