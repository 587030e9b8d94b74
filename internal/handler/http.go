package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/paint-and-guess/internal/domain"
	"github.com/paint-and-guess/internal/game"
	"github.com/paint-and-guess/internal/websocket"
)

// Service is the read side the HTTP API exposes
type Service interface {
	GetLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	GetPlayerStanding(ctx context.Context, name string) (*domain.PlayerStanding, error)
	GetStats(ctx context.Context) (*domain.LeaderboardStats, error)
	ListRooms(ctx context.Context) []domain.RoomSummary
	GetRoom(ctx context.Context, roomID string) (domain.RoomSummary, error)
	RecentRounds(ctx context.Context, roomID string, limit int) ([]domain.RoundRecord, error)
	Ready(ctx context.Context) error
}

// Handler provides HTTP handlers for the game API
type Handler struct {
	service Service
	hub     *websocket.Hub
	rooms   *game.Manager
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service Service, hub *websocket.Hub, rooms *game.Manager, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		rooms:   rooms,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint, ?room= selects the room
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/leaderboard", func(r chi.Router) {
			r.Use(middleware.Compress(5))
			r.Get("/", h.GetLeaderboard)
			r.Get("/stats", h.GetStats)
			r.Get("/{name}", h.GetPlayerStanding)
		})

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", h.ListRooms)
			r.Get("/{roomID}", h.GetRoom)
		})

		r.Get("/rounds", h.ListRounds)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Debug("failed to write response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

func queryInt(r *http.Request, name string) int {
	if s := r.URL.Query().Get(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.rooms, r.URL.Query().Get("room"), h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]int{
		"total_connections": h.hub.GetTotalConnections(),
		"rooms":             h.hub.GetRoomCount(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports whether the backing stores are reachable
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ready(r.Context()); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrStoreUnavailable)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// GetLeaderboard returns the top players
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.GetLeaderboard(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.logger.Error("failed to get leaderboard", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entries)
}

// GetStats returns leaderboard statistics
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, stats)
}

// GetPlayerStanding returns a player's rank and score
func (h *Handler) GetPlayerStanding(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	standing, err := h.service.GetPlayerStanding(r.Context(), name)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get player standing", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, standing)
}

// ListRooms returns every live room
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.service.ListRooms(r.Context()))
}

// GetRoom returns one live room
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	summary, err := h.service.GetRoom(r.Context(), roomID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get room", "room", roomID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, summary)
}

// ListRounds returns recently finished rounds, optionally for ?room=
func (h *Handler) ListRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.service.RecentRounds(r.Context(), r.URL.Query().Get("room"), queryInt(r, "limit"))
	if err != nil {
		if errors.Is(err, domain.ErrHistoryDisabled) {
			h.writeError(w, http.StatusNotImplemented, err)
			return
		}
		h.logger.Error("failed to list rounds", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, rounds)
}
