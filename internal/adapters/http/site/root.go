// Package site serves the embedded dashboard page.
package site

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes served by Register.
const (
	RouteDashboard = "/dashboard"
	routeAssets    = "/dashboard/*"
	indexFile      = "index.html"
)

// Register attaches the dashboard routes to r.
func Register(r chi.Router) {
	if r == nil {
		panic("router is nil")
	}
	h := NewDashboardHandler()
	r.Get(RouteDashboard, h.HandleIndex)
	r.Get(routeAssets, h.HandleAsset)
}

// DashboardHandler serves the page and its assets from the embedded FS.
type DashboardHandler struct {
	files http.Handler
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler() *DashboardHandler {
	return &DashboardHandler{
		files: http.StripPrefix(RouteDashboard+"/", http.FileServer(FS())),
	}
}

// HandleIndex handles GET /dashboard.
func (h *DashboardHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := staticFS.ReadFile("static/" + indexFile)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// HandleAsset handles GET /dashboard/{file}.
func (h *DashboardHandler) HandleAsset(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "*") == "" {
		http.Redirect(w, r, RouteDashboard, http.StatusMovedPermanently)
		return
	}
	h.files.ServeHTTP(w, r)
}
