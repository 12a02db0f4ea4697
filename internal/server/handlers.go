package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ppiankov/hookwarden/internal/audit"
	"github.com/ppiankov/hookwarden/internal/hooks"
)

// maxBodyBytes bounds hook and console request bodies.
const maxBodyBytes = 1 << 20

// ConsoleRequest is the body of POST /v1/console.
type ConsoleRequest struct {
	SessionID string `json:"session_id"`
	Command   string `json:"command"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into v, answering 400 or 413 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleMessageReceived(w http.ResponseWriter, r *http.Request) {
	var ev hooks.MessageReceived
	if !decode(w, r, &ev) {
		return
	}
	s.rt.Engine.OnMessageReceived(r.Context(), ev)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBeforeAgentStart(w http.ResponseWriter, r *http.Request) {
	var ev hooks.BeforeAgentStart
	if !decode(w, r, &ev) {
		return
	}
	res := s.rt.Engine.OnBeforeAgentStart(r.Context(), ev)
	if res == nil {
		res = &hooks.AgentStartResult{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMessageSending(w http.ResponseWriter, r *http.Request) {
	var ev hooks.MessageSending
	if !decode(w, r, &ev) {
		return
	}
	res := s.rt.Engine.OnMessageSending(r.Context(), ev)
	if res == nil {
		res = &hooks.SendingResult{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBeforeToolCall(w http.ResponseWriter, r *http.Request) {
	var ev hooks.BeforeToolCall
	if !decode(w, r, &ev) {
		return
	}
	res := s.rt.Engine.OnBeforeToolCall(r.Context(), ev)
	if res == nil {
		res = &hooks.ToolCallResult{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAgentEnd(w http.ResponseWriter, r *http.Request) {
	var ev hooks.AgentEnd
	if !decode(w, r, &ev) {
		return
	}
	rep := s.rt.Engine.OnAgentEnd(r.Context(), ev)
	if rep == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	var req ConsoleRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.console.Execute(r.Context(), req.SessionID, req.Command))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rt.Engine.Status(r.URL.Query().Get("session_id")))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries := s.rt.Engine.Audit().Query(f)
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAuditStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.rt.Engine.Audit().Stats())
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	m := s.rt.Engine.Alerts()
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": m.Enabled(),
		"stats":   m.Stats(),
		"history": m.History(n),
	})
}

func parseFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{
		Event:     audit.Event(q.Get("event")),
		SessionID: q.Get("session_id"),
	}
	if v := q.Get("outcome"); v != "" {
		o, ok := audit.ParseOutcome(v)
		if !ok {
			return f, errors.New("unknown outcome " + strconv.Quote(v))
		}
		f.Outcome = o
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("since must be RFC3339")
		}
		f.Since = since
	}
	return f, nil
}
