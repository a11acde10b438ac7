package handler

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the kernel API.
//
// Evaluation and resolution are read paths available to any authenticated
// principal; the admin surface mutates hierarchy, overrides and flags and is
// gated by the caller's role upstream.
func RegisterRoutes(r chi.Router, access *AccessHandler, admin *AdminHandler, flags *FlagHandler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/authorize", access.Authorize)

		r.Route("/permissions", func(r chi.Router) {
			r.Post("/resolve", access.Resolve)
			r.Get("/effective", access.EffectivePermissions)
		})

		r.Route("/hierarchy", func(r chi.Router) {
			r.Post("/nodes", admin.CreateNode)
			r.Get("/nodes/{id}", admin.GetNode)
			r.Delete("/nodes/{id}", admin.DeactivateNode)
			r.Post("/nodes/{id}/roles", admin.AssignRole)
			r.Post("/nodes/{id}/users", admin.AssignUser)
		})

		r.Route("/overrides", func(r chi.Router) {
			r.Post("/", admin.GrantOverride)
			r.Post("/revoke", admin.RevokeOverride)
		})

		r.Route("/flags", func(r chi.Router) {
			r.Get("/{key}/evaluate", flags.Evaluate)
			r.Get("/{key}", flags.Get)
			r.Post("/", flags.Create)
			r.Put("/{key}", flags.Update)
			r.Delete("/{key}", flags.Deprecate)
			r.Post("/{key}/overrides", flags.SetOverride)
		})
	})
}
