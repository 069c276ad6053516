package handler

import (
	"github.com/gofiber/fiber/v2"

	"thumbapi/internal/http/middleware"
	"thumbapi/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app. db may be nil
// when no database backs the service.
func RegisterRoutes(app *fiber.App, db Pinger, images service.ImageService, status service.StatusService) {
	app.Get("/health", Health(db))
	app.Get("/healthz", Liveness)

	h := NewImageHandler(images, status)

	g := app.Group("/images", middleware.Owner())
	g.Post("/", h.Upload)
	g.Get("/", h.List)
	g.Get("/:id", h.Get)
	g.Delete("/:id", h.Delete)
	g.Get("/:id/thumbnails", h.Thumbnails)
	g.Get("/:id/thumbnails/:size", h.Thumbnail)
	g.Get("/:id/thumbnails/:size/file", h.ThumbnailFile)
	g.Post("/:id/thumbnails/:size/retry", h.RetryThumbnail)
}
