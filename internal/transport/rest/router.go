package rest

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/swaggo/swag"

	_ "jamsync/internal/docs"
	"jamsync/internal/service"
	"jamsync/internal/transport/rest/handler"
	"jamsync/internal/transport/rest/middleware"
	"jamsync/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService *service.AuthService
	JamService  *service.JamService
	// WSHandler is nil when the relay runs in its own process. Only its
	// sockets are mounted; the API pushes to the hub in-process.
	WSHandler   *ws.Handler
	CORSOrigins []string
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	jamHandler := handler.NewJamHandler(c.JamService)
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	r.Use(corsMiddleware(c.CORSOrigins))

	r.HandleFunc("/health", healthHandler).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/docs/doc.json", docsHandler).Methods("GET")

	jams := v1.PathPrefix("/jams").Subrouter()
	jams.Use(authMW.RequireUser)

	jams.HandleFunc("", jamHandler.Create).Methods("POST", "OPTIONS")
	jams.HandleFunc("/{id}", jamHandler.Get).Methods("GET", "OPTIONS")
	jams.HandleFunc("/{id}/join", jamHandler.Join).Methods("POST", "OPTIONS")
	jams.HandleFunc("/{id}/controls", jamHandler.UpdateControls).Methods("PATCH", "OPTIONS")
	jams.HandleFunc("/{id}/queue", jamHandler.ReplaceQueue).Methods("POST", "OPTIONS")
	jams.HandleFunc("/{id}/queue/add", jamHandler.AppendQueue).Methods("POST", "OPTIONS")
	jams.HandleFunc("/{id}/queue/remove", jamHandler.RemoveFromQueue).Methods("POST", "OPTIONS")
	jams.HandleFunc("/{id}/playback", jamHandler.UpdatePlayback).Methods("POST", "OPTIONS")

	if c.WSHandler != nil {
		c.WSHandler.RegisterSockets(r)
	}

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func docsHandler(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		http.Error(w, `{"error":"docs unavailable"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(doc))
}

func corsMiddleware(origins []string) mux.MiddlewareFunc {
	allowed := strings.Join(origins, ", ")
	if allowed == "" {
		allowed = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin(allowed, origins, r.Header.Get("Origin")))
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allowOrigin echoes the request origin when it is on the allow list, since
// browsers accept a single origin per response.
func allowOrigin(allowed string, origins []string, origin string) string {
	if allowed == "*" || origin == "" {
		return allowed
	}
	for _, o := range origins {
		if o == origin {
			return origin
		}
	}
	return origins[0]
}
