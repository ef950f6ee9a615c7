package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/bingwa/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/bingwa/agent/contract"
)

const (
	maxChatBodyBytes = 1 << 20
	ndjsonType       = "application/x-ndjson"

	eventTurn  = "turn"
	eventDone  = "done"
	eventError = "error"
)

type chatEvent struct {
	Type      string                    `json:"type"`
	SessionID string                    `json:"sessionId,omitempty"`
	Turn      *contractx.Turn           `json:"turn,omitempty"`
	Reply     string                    `json:"reply,omitempty"`
	Error     *contractx.OperationError `json:"error,omitempty"`
}

// ndjsonStream writes one event per line. The status line is sent with the
// first event so early failures can still carry a non-200 status.
type ndjsonStream struct {
	mu        sync.Mutex
	w         http.ResponseWriter
	enc       *json.Encoder
	sessionID string
	started   bool
}

func newNDJSONStream(w http.ResponseWriter, sessionID string) *ndjsonStream {
	return &ndjsonStream{w: w, enc: json.NewEncoder(w), sessionID: sessionID}
}

func (s *ndjsonStream) send(status int, evt chatEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.w.Header().Set("Content-Type", ndjsonType)
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("X-Session-Id", s.sessionID)
		s.w.WriteHeader(status)
		s.started = true
	}
	if err := s.enc.Encode(evt); err != nil {
		log.Debug().Err(err).Str("component", "server").Msg("client went away mid-stream")
		return
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *ndjsonStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func handleChat(orch contractx.Orchestrator, newSessionID func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contractx.ChatRequest
		dec := json.NewDecoder(io.LimitReader(r.Body, maxChatBodyBytes))
		if err := dec.Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_body", "request body must be a JSON chat request")
			return
		}

		req.SessionID = strings.TrimSpace(req.SessionID)
		if req.SessionID == "" {
			req.SessionID = newSessionID()
		}

		stream := newNDJSONStream(w, req.SessionID)
		sink := func(turn contractx.Turn) {
			t := turn
			stream.send(http.StatusOK, chatEvent{Type: eventTurn, SessionID: req.SessionID, Turn: &t})
		}

		resp, err := orch.Handle(r.Context(), req, sink)
		if err != nil {
			status, opErr := classifyChatError(err)
			log.Warn().Err(err).Str("component", "server").Str("session_id", req.SessionID).
				Str("request_id", chimw.GetReqID(r.Context())).Msg("chat turn failed")
			if stream.Started() {
				status = http.StatusOK
			}
			stream.send(status, chatEvent{Type: eventError, SessionID: req.SessionID, Error: opErr})
			return
		}

		stream.send(http.StatusOK, chatEvent{
			Type:      eventDone,
			SessionID: resp.SessionID,
			Reply:     resp.Reply,
			Error:     resp.Error,
		})
	}
}

func classifyChatError(err error) (int, *contractx.OperationError) {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidSession),
		errors.Is(err, orchestrator.ErrInvalidMessage),
		errors.Is(err, orchestrator.ErrInvalidTurn),
		errors.Is(err, contractx.ErrValidation):
		return http.StatusBadRequest, &contractx.OperationError{
			Kind:    contractx.KindInvalidArguments,
			Message: err.Error(),
		}
	default:
		return http.StatusServiceUnavailable, &contractx.OperationError{
			Kind:    contractx.KindUpstreamUnavailable,
			Message: "the booking assistant is unavailable right now",
		}
	}
}
