// Package frontdoor mounts the HTTP entry points of the pipeline.
//
// Each front door lists its routes as HandlerRegistrations; the runtime mounts
// them on the shared chi router under a base path.
package frontdoor

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// HandlerRegistration represents a registered HTTP handler.
type HandlerRegistration struct {
	Path    string
	Method  string
	Handler http.HandlerFunc
}

// Frontdoor exposes a set of routes.
type Frontdoor interface {
	Handlers() []HandlerRegistration
}

// Mount registers every front door's routes under basePath.
func Mount(r chi.Router, basePath string, frontdoors ...Frontdoor) {
	basePath = strings.TrimSuffix(basePath, "/")
	for _, fd := range frontdoors {
		for _, reg := range fd.Handlers() {
			r.Method(reg.Method, basePath+reg.Path, reg.Handler)
		}
	}
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
