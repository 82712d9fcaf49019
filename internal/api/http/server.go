package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	appChat "github.com/turnhub/turnhub/internal/application/chat"
	appRead "github.com/turnhub/turnhub/internal/application/readmodel"
	appResponder "github.com/turnhub/turnhub/internal/application/responder"
	"github.com/turnhub/turnhub/internal/domain/conversation"
	"github.com/turnhub/turnhub/internal/domain/lock"
	"github.com/turnhub/turnhub/internal/domain/turn"
	"github.com/turnhub/turnhub/internal/infrastructure/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	chatSvc      *appChat.Service
	readSvc      *appRead.Service
	responderSvc *appResponder.Service
	sseHub       *sse.Hub
}

func NewServer(
	chatSvc *appChat.Service,
	readSvc *appRead.Service,
	responderSvc *appResponder.Service,
	sseHub *sse.Hub,
) *Server {
	return &Server{
		chatSvc:      chatSvc,
		readSvc:      readSvc,
		responderSvc: responderSvc,
		sseHub:       sseHub,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/conversations", func(r chi.Router) {
			// The stream endpoint is long-lived and a forced generation
			// can run for the full provider timeout; neither sits behind
			// the request timeout.
			r.Get("/{conversationId}/stream", s.streamEndpoint)
			r.Post("/{conversationId}/respond", s.forceRespond)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(30 * time.Second))

				r.Post("/", s.createConversation)
				r.Route("/{conversationId}", func(r chi.Router) {
					r.Get("/", s.getConversation)
					r.Get("/participants", s.listParticipants)
					r.Post("/join", s.acceptInvite)

					r.Post("/messages", s.postMessage)
					r.Get("/events", s.listEvents)

					r.Get("/turn", s.getTurnState)
					r.Post("/turn/rebuild", s.rebuildTurnState)
					r.Post("/done", s.signalDone)
					r.Post("/recover", s.forceRecover)

					r.Get("/typing", s.listTyping)
					r.Post("/read", s.markRead)
					r.Get("/unread", s.unread)
				})
			})
		})
	})

	return r
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondDomainError maps domain sentinel errors onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, conversation.ErrNotParticipant):
		respondError(w, http.StatusForbidden, "NOT_PARTICIPANT", err.Error())
	case errors.Is(err, turn.ErrNotYourTurn):
		respondError(w, http.StatusForbidden, "NOT_YOUR_TURN", err.Error())
	case errors.Is(err, conversation.ErrInviteInvalid):
		respondError(w, http.StatusForbidden, "INVITE_INVALID", err.Error())
	case errors.Is(err, conversation.ErrCompleted):
		respondError(w, http.StatusConflict, "COMPLETED", err.Error())
	case errors.Is(err, lock.ErrLocked):
		respondError(w, http.StatusLocked, "GENERATION_IN_PROGRESS", err.Error())
	case errors.Is(err, conversation.ErrPersistence):
		respondError(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", err.Error())
	default:
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
	}
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

func parseKinds(r *http.Request) []conversation.EventKind {
	raw := r.URL.Query()["kind"]
	if len(raw) == 0 {
		return nil
	}
	kinds := make([]conversation.EventKind, 0, len(raw))
	for _, k := range raw {
		kinds = append(kinds, conversation.EventKind(k))
	}
	return kinds
}
