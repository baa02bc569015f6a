package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/support-desk/client/internal/handler/chat"
	middlewarePkg "github.com/zhouzirui/support-desk/client/internal/middleware"
	chatService "github.com/zhouzirui/support-desk/client/internal/service/chat"
	"github.com/zhouzirui/support-desk/client/pkg/utils"
)

// HealthFunc reports whether the support backend is reachable.
type HealthFunc func(ctx context.Context) error

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service, health HealthFunc) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(chatSvc)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health == nil {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := health(ctx); err != nil {
			log.Printf("[health] backend unreachable: %v", err)
			utils.RespondJSON(w, http.StatusBadGateway, map[string]string{"status": "backend unreachable"})
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"workspaces": chatSvc.Count(),
		})
	})

	return r
}
