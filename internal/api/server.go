package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"social-campaign-engine/internal/config"
	"social-campaign-engine/internal/models"
	"social-campaign-engine/internal/oauth"
	"social-campaign-engine/internal/store"
	"social-campaign-engine/internal/telemetry"
)

// Server wires the producer HTTP surface: job enqueue, the OAuth pair, and
// scheduled-post management.
type Server struct {
	cfg    config.Config
	store  *store.Store
	flow   *oauth.Flow
	logger *log.Logger
}

// New constructs the API server.
func New(cfg config.Config, st *store.Store, flow *oauth.Flow, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{cfg: cfg, store: st, flow: flow, logger: logger}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	// The callback is reached by a browser redirect from the platform and
	// carries no bearer token; ownership is proven by the signed state.
	r.Get("/api/social/callback/x", s.handleCallback)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(s.cfg.JWTSecret))

		r.Post("/api/jobs", s.handleEnqueue)
		r.Get("/api/jobs/{id}", s.handleGetJob)

		r.Get("/api/social/connect/x", s.handleConnect)
		r.Get("/api/social/connections", s.handleListConnections)
		r.Delete("/api/social/connections/{id}", s.handleDisconnect)

		r.Post("/api/social/posts", s.handleSchedulePost)
		r.Get("/api/social/posts", s.handleListPosts)
		r.Post("/api/social/posts/{id}/cancel", s.handleCancelPost)

		r.Post("/api/analytics/refresh", s.handleAnalyticsRefresh)
	})

	return r
}

type enqueueRequest struct {
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	MaxAttempts int            `json:"max_attempts"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		http.Error(w, "type is required", http.StatusBadRequest)
		return
	}
	if req.MaxAttempts == 0 {
		req.MaxAttempts = s.cfg.MaxAttempts
	}

	job, err := s.store.CreateJob(r.Context(), store.CreateJobParams{
		Type:        req.Type,
		Payload:     req.Payload,
		MaxAttempts: req.MaxAttempts,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	telemetry.JobsEnqueued.Inc()
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	authURL, err := s.flow.Connect(r.Context(), userID)
	if err != nil {
		var cfgErr *models.ConfigError
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		case errors.As(err, &cfgErr):
			http.Error(w, cfgErr.Error(), http.StatusInternalServerError)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authUrl": authURL})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	location := s.flow.Callback(r.Context(), code, state)
	telemetry.OAuthCallbacks.Inc()
	http.Redirect(w, r, location, http.StatusFound)
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	conns, err := s.store.ListConnections(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": conns})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	deleted, err := s.store.DeleteConnection(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "connection not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type schedulePostRequest struct {
	AssetID      string   `json:"assetId"`
	ConnectionID string   `json:"connectionId"`
	ScheduledFor string   `json:"scheduledFor"`
	Content      string   `json:"content"`
	MediaURLs    []string `json:"mediaUrls"`
}

func (s *Server) handleSchedulePost(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req schedulePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.AssetID == "" || req.ConnectionID == "" || req.Content == "" {
		http.Error(w, "assetId, connectionId and content are required", http.StatusBadRequest)
		return
	}
	scheduledFor, err := time.Parse(time.RFC3339, req.ScheduledFor)
	if err != nil {
		http.Error(w, "scheduledFor must be RFC3339", http.StatusBadRequest)
		return
	}

	conn, err := s.store.GetConnection(r.Context(), req.ConnectionID)
	if errors.Is(err, models.ErrNotFound) || (err == nil && conn.UserID != userID) {
		http.Error(w, "connection not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	post, err := s.store.CreateScheduledPost(r.Context(), models.ScheduledPost{
		UserID:             userID,
		AssetID:            req.AssetID,
		SocialConnectionID: conn.ID,
		Platform:           conn.Platform,
		Content:            req.Content,
		MediaURLs:          req.MediaURLs,
		ScheduledFor:       scheduledFor,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"scheduledPost": post})
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	posts, err := s.store.ListScheduledPosts(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (s *Server) handleCancelPost(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	cancelled, err := s.store.CancelScheduledPost(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !cancelled {
		http.Error(w, "post not found or already processed", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleAnalyticsRefresh creates one collect_metrics job per published post
// owned by the caller.
func (s *Server) handleAnalyticsRefresh(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	posts, err := s.store.ListPostedPosts(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	created := 0
	for _, post := range posts {
		_, err := s.store.CreateJob(r.Context(), store.CreateJobParams{
			Type:    "collect_metrics",
			Payload: map[string]any{"scheduledPostId": post.ID},
		})
		if err != nil {
			s.logger.Printf("create collect_metrics job for post %s: %v", post.ID, err)
			continue
		}
		telemetry.JobsEnqueued.Inc()
		created++
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"jobsCreated": created})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
