package http

import (
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/metrics"
	"github.com/sakashimaa/ravolux/internal/transport/http/handler"
	"github.com/sakashimaa/ravolux/internal/transport/http/middleware"
	"github.com/sakashimaa/ravolux/pkg/config"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth       *handler.AuthHandler
	Product    *handler.ProductHandler
	Cart       *handler.CartHandler
	Order      *handler.OrderHandler
	Newsletter *handler.NewsletterHandler
	Contact    *handler.ContactHandler
	Email      *handler.EmailHandler
	Admin      *handler.AdminHandler
	Health     *handler.HealthHandler
}

func NewApp(httpCfg config.HTTP, limiterCfg config.Limiter, m *metrics.Metrics, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             httpCfg.BodyLimit,
		ErrorHandler:          handler.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(otelfiber.Middleware())
	app.Use(middleware.NewMetricsMiddleware(m))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))

	app.Use(limiter.New(limiter.Config{
		Max:        limiterCfg.RPS,
		Expiration: limiterCfg.TTL,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":      "too_many_requests",
				"message":    "Too many requests. Try again later.",
				"statusCode": fiber.StatusTooManyRequests,
			})
		},
	}))

	return app
}

func RegisterRoutes(app *fiber.App, h *Handlers, validator middleware.TokenValidator, store *session.Store, logger *zap.Logger) {
	app.Get("/health", h.Health.Check)

	adminOnly := middleware.RequireRole(domain.RoleAdmin)

	api := app.Group("/api", middleware.NewOptionalAuthMiddleware(validator))

	auth := api.Group("/auth")
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Post("/forgot-password", h.Auth.ForgotPassword)
	auth.Post("/reset-password", h.Auth.ResetPassword)
	auth.Get("/me", middleware.RequireUser(), h.Auth.Me)

	product := api.Group("/products")
	product.Get("", h.Product.List)
	product.Get("/:id", h.Product.Get)
	product.Post("", adminOnly, h.Product.Create)
	product.Put("/:id", adminOnly, h.Product.Update)
	product.Delete("/:id", adminOnly, h.Product.Delete)

	cart := api.Group("/carts")
	cart.Post("", h.Cart.GetOrCreate)
	cart.Put("/items/:id", h.Cart.UpdateItem)
	cart.Delete("/items/:id", h.Cart.RemoveItem)
	cart.Get("/:id", h.Cart.Get)
	cart.Post("/:id/items", h.Cart.AddItem)

	order := api.Group("/orders")
	order.Post("", h.Order.Create)
	order.Get("", middleware.RequireUser(), h.Order.List)
	order.Get("/:id", h.Order.Get)
	order.Patch("/:id", adminOnly, h.Order.UpdateStatus)

	api.Post("/contact", h.Contact.Create)

	newsletter := api.Group("/newsletter")
	newsletter.Post("", h.Newsletter.Subscribe)
	newsletter.Get("", adminOnly, h.Newsletter.List)
	newsletter.Patch("/:id", adminOnly, h.Newsletter.Update)
	newsletter.Delete("/:id", adminOnly, h.Newsletter.Delete)

	api.Post("/email", adminOnly, h.Email.Send)

	app.Post("/admin/login", h.Admin.Login)
	app.Post("/admin/logout", h.Admin.Logout)

	admin := app.Group("/admin", middleware.NewAdminSessionMiddleware(store, logger))

	admin.Get("/products", h.Product.List)
	admin.Get("/products/:id", h.Product.Get)
	admin.Post("/products", h.Product.Create)
	admin.Put("/products/:id", h.Product.Update)
	admin.Delete("/products/:id", h.Product.Delete)

	admin.Get("/orders", h.Order.List)
	admin.Get("/orders/:id", h.Order.Get)
	admin.Patch("/orders/:id", h.Order.UpdateStatus)

	admin.Get("/customers", h.Admin.ListCustomers)
	admin.Delete("/customers/:id", h.Admin.DeleteCustomer)

	admin.Get("/newsletter", h.Newsletter.List)
	admin.Patch("/newsletter/:id", h.Newsletter.Update)
	admin.Delete("/newsletter/:id", h.Newsletter.Delete)

	admin.Get("/contact", h.Contact.List)
	admin.Patch("/contact/:id", h.Contact.UpdateStatus)
	admin.Delete("/contact/:id", h.Contact.Delete)

	admin.Post("/email", h.Email.Send)
}
