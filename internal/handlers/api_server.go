// internal/handlers/api_server.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codebreak/internal/auth"
	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/middleware"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/jason-s-yu/codebreak/internal/room"
	"github.com/jason-s-yu/codebreak/internal/session"
	"github.com/sirupsen/logrus"
)

// InventoryLister reports a player's item stock.
type InventoryLister interface {
	Inventory(ctx context.Context, playerID string) ([]models.InventoryItem, error)
}

// APIServer exposes room creation, lookup and the room sockets over HTTP.
type APIServer struct {
	sessions  *session.Handler
	registry  *room.Registry
	issuer    *auth.Issuer
	inventory InventoryLister
	logger    *logrus.Logger
	origins   []string
}

type ServerOption func(*APIServer)

// WithInventoryLister enables GET /inventory.
func WithInventoryLister(l InventoryLister) ServerOption {
	return func(s *APIServer) { s.inventory = l }
}

// WithOriginPatterns restricts which origins may open room sockets.
func WithOriginPatterns(patterns ...string) ServerOption {
	return func(s *APIServer) {
		if len(patterns) > 0 {
			s.origins = patterns
		}
	}
}

// NewAPIServer wires HTTP handlers to the session handler. issuer may be
// nil, in which case identity always comes from the query string.
func NewAPIServer(sessions *session.Handler, issuer *auth.Issuer, logger *logrus.Logger, opts ...ServerOption) *APIServer {
	s := &APIServer{
		sessions: sessions,
		registry: sessions.Registry(),
		issuer:   issuer,
		logger:   logger,
		origins:  []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the request-logged mux.
func (s *APIServer) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("POST /session", s.createSession)
	mux.HandleFunc("GET /inventory", s.listInventory)

	// rooms
	mux.HandleFunc("POST /rooms/duel", s.createDuel)
	mux.HandleFunc("POST /rooms/free", s.createFree)
	mux.HandleFunc("GET /rooms/free", s.listFree)

	// room sockets
	mux.HandleFunc("GET /ws/duel/{roomId}", s.duelSocket)
	mux.HandleFunc("GET /ws/free/{roomId}", s.freeSocket)

	return middleware.LogMiddleware(s.logger)(mux)
}

func (s *APIServer) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"rooms":  s.registry.Len(),
	})
}

// createSession hands out a guest identity cookie, reusing the caller's
// identity when its cookie still verifies.
func (s *APIServer) createSession(w http.ResponseWriter, r *http.Request) {
	if s.issuer == nil {
		writeError(w, http.StatusNotImplemented, "sessions are disabled")
		return
	}
	playerID, err := s.cookieIdentity(r)
	if err != nil || playerID == "" {
		playerID = uuid.NewString()
	}

	token, err := s.issuer.Issue(playerID)
	if err != nil {
		s.logger.WithError(err).Error("failed to issue identity token")
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"playerId": playerID})
}

func (s *APIServer) listInventory(w http.ResponseWriter, r *http.Request) {
	if s.inventory == nil {
		writeError(w, http.StatusNotImplemented, "inventory is disabled")
		return
	}
	playerID, err := s.cookieIdentity(r)
	if err != nil || playerID == "" {
		writeError(w, http.StatusUnauthorized, "missing or invalid auth_token")
		return
	}
	items, err := s.inventory.Inventory(r.Context(), playerID)
	if err != nil {
		s.logger.WithError(err).WithField("player", playerID).Error("failed to load inventory")
		writeError(w, http.StatusInternalServerError, "could not load inventory")
		return
	}
	if items == nil {
		items = []models.InventoryItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

type createDuelRequest struct {
	Rule string `json:"rule"`
}

func (s *APIServer) createDuel(w http.ResponseWriter, r *http.Request) {
	var req createDuelRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad room request payload")
		return
	}
	rule, err := game.ParseCodeRule(req.Rule)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := s.registry.CreateDuel(rule)
	if err != nil {
		s.writeCreateError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"roomId": d.ID,
		"rule":   d.Rule,
		"wsPath": "/ws/duel/" + d.ID,
	})
}

type createFreeRequest struct {
	Name       string `json:"name"`
	Password   string `json:"password"`
	GuessLimit int    `json:"guessLimit"`
}

func (s *APIServer) createFree(w http.ResponseWriter, r *http.Request) {
	var req createFreeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad room request payload")
		return
	}

	f, err := s.registry.CreateFree(strings.TrimSpace(req.Name), req.Password, req.GuessLimit)
	if err != nil {
		s.writeCreateError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"roomId":     f.ID,
		"name":       f.Name,
		"guessLimit": f.GuessLimit,
		"wsPath":     "/ws/free/" + f.ID,
	})
}

func (s *APIServer) writeCreateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrEmptyBank):
		writeError(w, http.StatusServiceUnavailable, "no trivia subjects available")
	case errors.Is(err, room.ErrIDSpaceExhausted):
		writeError(w, http.StatusServiceUnavailable, "too many rooms, try again later")
	default:
		s.logger.WithError(err).Error("failed to create room")
		writeError(w, http.StatusInternalServerError, "could not create room")
	}
}

func (s *APIServer) listFree(w http.ResponseWriter, _ *http.Request) {
	rooms := s.registry.ListFree()
	if rooms == nil {
		rooms = []room.Summary{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

// cookieIdentity returns the auth_token subject, "" when there is no
// cookie, or an error when the cookie does not verify.
func (s *APIServer) cookieIdentity(r *http.Request) (string, error) {
	token := extractCookieToken(r, authCookieName)
	if token == "" || s.issuer == nil {
		return "", nil
	}
	return s.issuer.Authenticate(token)
}
