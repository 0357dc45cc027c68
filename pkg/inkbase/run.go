package inkbase

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Handler builds the HTTP routing table. It is separate from Run so
// tests can mount the full router on an httptest server.
func (a *App) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", a.handleHealth).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()

	// Auth routes
	api.HandleFunc("/auth/register", a.handleRegister).Methods("POST")
	api.HandleFunc("/auth/login", a.handleLogin).Methods("POST")
	api.HandleFunc("/auth/me", a.requireUser(a.handleCurrentUser)).Methods("GET")

	// Blog routes. The static my-blogs path is registered before the
	// {id} routes so it never parses as a post id.
	api.HandleFunc("/blogs", a.handleListPublished).Methods("GET")
	api.HandleFunc("/blogs", a.requireUser(a.handleCreatePost)).Methods("POST")
	api.HandleFunc("/blogs/user/my-blogs", a.requireUser(a.handleListMyPosts)).Methods("GET")
	api.HandleFunc("/blogs/{id}", a.handleGetPost).Methods("GET")
	api.HandleFunc("/blogs/{id}", a.requireUser(a.handleUpdatePost)).Methods("PUT")
	api.HandleFunc("/blogs/{id}", a.requireUser(a.handleDeletePost)).Methods("DELETE")

	// Open CORS policy for browser clients.
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "If-Match"}),
	)

	return a.loggingMiddleware(cors(router))
}

// Run starts the HTTP server and blocks until the context is
// cancelled or the server fails, draining in-flight requests for up
// to five seconds on shutdown.
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	a.logger.Info().Str("addr", addr).Msg("starting inkbase server")

	server := &http.Server{
		Addr:    addr,
		Handler: a.Handler(),
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *App) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("req")
	})
}
