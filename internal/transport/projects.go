package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/domain/activity"
	"github.com/rpggio/dsheet/internal/domain/project"
)

type createProjectRequest struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.List(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	proj, err := s.projects.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	proj, err := s.projects.Create(r.Context(), project.CreateRequest{Key: req.Key, Name: req.Name})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, proj)
}

func (s *Server) handleDropProject(w http.ResponseWriter, r *http.Request) {
	if err := s.items.DropProject(r.Context(), chi.URLParam(r, "key")); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	opts := activity.ListOptions{ProjectKey: chi.URLParam(r, "key")}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, s.logger, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest))
			return
		}
		opts.Limit = limit
	}
	if v := r.URL.Query().Get("item_id"); v != "" {
		opts.ItemID = &v
	}
	entries, err := s.activity.GetRecentActivity(r.Context(), opts)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type issueTokenRequest struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
	// TTL is a Go duration string; empty uses the server default.
	TTL string `json:"ttl,omitempty"`
}

type issueTokenResponse struct {
	Token   string          `json:"token"`
	Session *access.Session `json:"session"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	if req.Subject == "" {
		writeError(w, s.logger, fmt.Errorf("%w: subject is required", errBadRequest))
		return
	}
	role, err := access.ParseRole(req.Role)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	ttl := s.tokenTTL
	if req.TTL != "" {
		ttl, err = time.ParseDuration(req.TTL)
		if err != nil || ttl <= 0 {
			writeError(w, s.logger, fmt.Errorf("%w: invalid ttl %q", errBadRequest, req.TTL))
			return
		}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	token, sess, err := s.tokens.Issue(r.Context(), req.Subject, role, ttl)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, issueTokenResponse{Token: token, Session: sess})
}
