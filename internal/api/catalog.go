package api

import (
	"net/http"

	"github.com/dunamismax/pixelgrade/internal/domain"
)

type categoryView struct {
	Slug  string `json:"slug"`
	Label string `json:"label"`
	domain.CategoryProfile
}

type formatView struct {
	Key          string `json:"key"`
	CanvasWidth  int    `json:"canvas_width"`
	CanvasHeight int    `json:"canvas_height"`
	Overlay      string `json:"overlay"`
	Default      bool   `json:"default,omitempty"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	categories := make([]categoryView, 0, len(domain.Categories()))
	for _, c := range domain.Categories() {
		profile, _ := c.Profile()
		categories = append(categories, categoryView{Slug: c.String(), Label: c.Label(), CategoryProfile: profile})
	}

	formats := make([]formatView, 0, len(domain.Formats()))
	for _, f := range domain.Formats() {
		spec := f.Spec()
		formats = append(formats, formatView{
			Key:          f.String(),
			CanvasWidth:  spec.CanvasWidth,
			CanvasHeight: spec.CanvasHeight,
			Overlay:      spec.Overlay.String(),
			Default:      f == domain.DefaultFormat,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"categories": categories,
		"formats":    formats,
	})
}
