package api

import (
	"encoding/json"
	"net/http"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/assistantproxy"
)

// marshalSSE frames one event as a "data: <json>\n\n" SSE record.
func marshalSSE(ev assistantproxy.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data)+8)
	out = append(out, []byte("data: ")...)
	out = append(out, data...)
	out = append(out, []byte("\n\n")...)
	return out, nil
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request, id string) {
	sessions, err := s.proxy.ListSessions(r.Context(), id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, projectID, sessionID string) {
	messages, err := s.proxy.ListMessages(r.Context(), projectID, sessionID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, messages)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, projectID, sessionID string) {
	var req struct {
		Parts []assistantproxy.MessagePart `json:"parts"`
	}
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := s.proxy.SendMessage(r.Context(), projectID, sessionID, req.Parts)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, msg)
}

// handleListOrReadFiles handles both the directory listing and single-file
// read forms of the files endpoint: ?path=<dir> lists, ?path=<file>&content=1 reads.
func (s *Server) handleListOrReadFiles(w http.ResponseWriter, r *http.Request, id string) {
	path := r.URL.Query().Get("path")
	if r.URL.Query().Get("content") == "1" {
		content, err := s.proxy.ReadFile(r.Context(), id, path)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]string{"content": content})
		return
	}
	entries, err := s.proxy.ListFiles(r.Context(), id, path)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleFindInFiles(w http.ResponseWriter, r *http.Request, id string) {
	query := r.URL.Query().Get("q")
	entries, err := s.proxy.FindInFiles(r.Context(), id, query)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetAppInfo(w http.ResponseWriter, r *http.Request, id string) {
	info, err := s.proxy.GetAppInfo(r.Context(), id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleGetEventStreamURL(w http.ResponseWriter, r *http.Request, id string) {
	url, err := s.proxy.GetEventStreamURL(r.Context(), id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// handleSubscribeEvents streams the project's assistant events back to the
// caller as server-sent events, proxying assistantproxy.SubscribeToEvents'
// channel onto the response body.
func (s *Server) handleSubscribeEvents(w http.ResponseWriter, r *http.Request, id string) {
	events, err := s.proxy.SubscribeToEvents(r.Context(), id)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		if err := s.writeSSE(w, ev); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) writeSSE(w http.ResponseWriter, ev assistantproxy.Event) error {
	body, err := marshalSSE(ev)
	if err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
