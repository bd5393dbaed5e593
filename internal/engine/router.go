package engine

import "github.com/gofiber/fiber/v2"

// RegisterRoutes mounts the admin surface under the handler's base
// path. The create routes are registered before the id routes so
// "create" never parses as an identifier.
func RegisterRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	group := app.Group(h.basePath)
	for _, mw := range middleware {
		group.Use(mw)
	}

	group.Get("/", h.Tables)
	group.Get("/:table", h.List)
	group.Get("/:table/create", h.CreateForm)
	group.Post("/:table/create", h.Create)
	group.Get("/:table/:id", h.Details)
	group.Get("/:table/:id/edit", h.Details)
	group.Post("/:table/:id/edit", h.Update)
}
