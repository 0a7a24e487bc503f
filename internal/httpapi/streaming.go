package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/bus"
)

// handleSSE streams session events via Server-Sent Events.
// GET /stream/sse?session_id=<id>
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, `{"error":"session_id required"}`, http.StatusBadRequest)
		return
	}
	topicFilter := parseTopics(r.URL.Query().Get("topics"))

	// Last-Event-ID header or query param to replay from
	var lastID uint64
	if lei := r.Header.Get("Last-Event-ID"); lei != "" {
		if n, err := strconv.ParseUint(lei, 10, 64); err == nil {
			lastID = n
		}
	}
	if q := r.URL.Query().Get("last_event_id"); q != "" && lastID == 0 {
		if n, err := strconv.ParseUint(q, 10, 64); err == nil {
			lastID = n
		}
	}

	// CORS (dev-friendly)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch := s.events.Subscribe(sessionID, 256)
	defer s.events.Unsubscribe(sessionID, ch)

	fmt.Fprintf(w, ": connected to session %s\n\n", sessionID)
	flusher.Flush()

	// Replay backlog since lastID (best-effort)
	if lastID > 0 {
		for _, msg := range s.events.ReplaySince(sessionID, lastID) {
			writeSSE(w, msg, topicFilter)
		}
		flusher.Flush()
	}

	hb := time.NewTicker(15 * time.Second)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SSE client disconnected", zap.String("session_id", sessionID))
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, msg, topicFilter)
			flusher.Flush()
		case <-hb.C:
			// Heartbeat to keep connections alive through proxies
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, msg bus.Message, topicFilter map[string]struct{}) {
	if len(topicFilter) > 0 {
		if _, ok := topicFilter[msg.Topic]; !ok {
			return
		}
	}
	if msg.Seq > 0 {
		fmt.Fprintf(w, "id: %d\n", msg.Seq)
	}
	if msg.Topic != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Topic)
	}
	fmt.Fprintf(w, "data: %s\n\n", string(msg.Marshal()))
}

func parseTopics(s string) map[string]struct{} {
	filter := map[string]struct{}{}
	if s == "" {
		return filter
	}
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			filter[t] = struct{}{}
		}
	}
	return filter
}
