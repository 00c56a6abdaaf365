package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"chat-relay-backend/internal/handlers"
	"chat-relay-backend/internal/metrics"
	"chat-relay-backend/internal/middleware"
)

func New(
	chatHandler *handlers.ChatHandler,
	pageHandler *handlers.PageHandler,
	recorder *metrics.Recorder,
	logger logrus.FieldLogger,
	allowedOrigin string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(allowedOrigin))

	r.Get("/", pageHandler.Index)
	r.Post("/chat", chatHandler.Chat)

	r.Get("/health", handlers.Health)
	r.Method(http.MethodGet, "/metrics", recorder.Handler())

	return r
}
