package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	appChat "github.com/turnhub/turnhub/internal/application/chat"
	"github.com/turnhub/turnhub/internal/domain/realtime"
)

type conversationCreateRequest struct {
	Title       string   `json:"title"`
	Policy      string   `json:"policy"`
	CreatorRef  string   `json:"creator_ref"`
	MemberRefs  []string `json:"member_refs,omitempty"`
	InviteCodes []string `json:"invite_codes,omitempty"`
}

type messageRequest struct {
	ActorID string `json:"actor_id"`
	Text    string `json:"text"`
}

type joinRequest struct {
	Code string `json:"code"`
	Ref  string `json:"ref"`
}

type doneRequest struct {
	ActorID string `json:"actor_id"`
}

type readRequest struct {
	ParticipantID string `json:"participant_id"`
	Seq           int64  `json:"seq"`
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	conv, err := s.chatSvc.CreateConversation(r.Context(), appChat.CreateConversationInput{
		Title:       req.Title,
		Policy:      req.Policy,
		CreatorRef:  req.CreatorRef,
		MemberRefs:  req.MemberRefs,
		InviteCodes: req.InviteCodes,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, conv)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "conversationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid conversationId")
		return
	}
	conv, err := s.chatSvc.GetConversation(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if conv == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "conversation not found")
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (s *Server) listParticipants(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "conversationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid conversationId")
		return
	}
	parts, err := s.chatSvc.ListParticipants(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"participants": parts})
}

func (s *Server) acceptInvite(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "conversationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid conversationId")
		return
	}
	var req joinRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	p, err := s.chatSvc.AcceptInvite(r.Context(), id, req.Code, req.Ref)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "conversationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid conversationId")
		return
	}
	var req messageRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	actorID, err := uuid.Parse(req.ActorID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid actor_id")
		return
	}
	result, err := s.chatSvc.OnParticipantMessage(r.Context(), id, actorID, req.Text)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if !result.Accepted {
		// A policy denial is a well-formed outcome, not a server fault.
		respondJSON(w, http.StatusForbidden, result)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "conversationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid conversationId")
		return
	}
	limit := parseLimit(r, 100, 500)
	events, err := s.chatSvc.ListEvents(r.Context(), id, parseKinds(r), limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) getTurnState(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "conversationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid conversationId")
		return
	}
	st, err := s.chatSvc.GetTurnState(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) rebuildTurnState(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "conversationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid conversationId")
		return
	}
	st, err := s.chatSvc.RebuildTurnState(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// forceRespond runs one generation attempt synchronously. Useful for
// operators and tests; regular traffic goes through the queue.
func (s *Server) forceRespond(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "conversationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid conversationId")
		return
	}
	var req struct {
		TriggerSeq int64 `json:"trigger_seq"`
	}
	_ = decodeBody(r, &req)
	reply, err := s.responderSvc.Respond(r.Context(), id, req.TriggerSeq, 0)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if reply == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"generated": false})
		return
	}
	respondJSON(w, http.StatusOK, reply)
}

func (s *Server) signalDone(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "conversationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid conversationId")
		return
	}
	var req doneRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	actorID, err := uuid.Parse(req.ActorID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid actor_id")
		return
	}
	if err := s.chatSvc.SignalDone(r.Context(), id, actorID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"conversation_id": id, "done": true})
}

func (s *Server) forceRecover(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "conversationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid conversationId")
		return
	}
	if err := s.chatSvc.ForceRecover(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"conversation_id": id, "recovered": true})
}

func (s *Server) listTyping(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "conversationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid conversationId")
		return
	}
	typing, err := s.chatSvc.ListTyping(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"typing": typing})
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "conversationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid conversationId")
		return
	}
	var req readRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	participantID, err := uuid.Parse(req.ParticipantID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid participant_id")
		return
	}
	if err := s.readSvc.MarkRead(r.Context(), id, participantID, req.Seq); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"conversation_id": id, "seq": req.Seq})
}

func (s *Server) unread(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "conversationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid conversationId")
		return
	}
	participantID, err := uuid.Parse(r.URL.Query().Get("participant_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid participant_id")
		return
	}
	count, err := s.readSvc.Unread(r.Context(), id, participantID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"unread": count})
}

func (s *Server) streamEndpoint(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "conversationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid conversationId")
		return
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	client := realtime.NewClient(clientID, []string{realtime.ConversationChannel(id)})
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(clientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}
	// Send an initial comment to flush headers and keep the connection alive.
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case msg := <-client.MessageChan:
			if msg == nil {
				return
			}
			payload, _ := json.Marshal(msg)
			_, _ = w.Write([]byte("event: "))
			_, _ = w.Write([]byte(msg.Event))
			_, _ = w.Write([]byte("\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
