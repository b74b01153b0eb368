package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lucasnoah/droidscope/internal/bus"
	"github.com/lucasnoah/droidscope/internal/exploration"
)

// sseSetup prepares a response for Server-Sent Events. Returns the flusher,
// or nil after writing an error if the connection cannot stream.
func sseSetup(w http.ResponseWriter) http.Flusher {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return nil
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if present
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher
}

// sendEvent writes one SSE message with a JSON payload.
func sendEvent(w http.ResponseWriter, flusher http.Flusher, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
	return nil
}

// handleProgressStream streams progress events. The stream closes itself
// after the terminal event (100 or negative percentage); keepalive events
// pass through without ending it.
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	flusher := sseSetup(w)
	if flusher == nil {
		return
	}
	sub := s.bus.Progress.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-sub.Events():
			if err := sendEvent(w, flusher, ev); err != nil {
				return
			}
			if ev.Terminal() {
				return
			}
		}
	}
}

// handleLogStream streams log events until the client disconnects.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	flusher := sseSetup(w)
	if flusher == nil {
		return
	}
	sub := s.bus.Logs.Subscribe()
	defer sub.Close()
	streamForever(w, r, flusher, sub)
}

// handleStageStream streams stage status events until the client disconnects.
func (s *Server) handleStageStream(w http.ResponseWriter, r *http.Request) {
	flusher := sseSetup(w)
	if flusher == nil {
		return
	}
	sub := s.bus.Stages.Subscribe()
	defer sub.Close()
	streamForever(w, r, flusher, sub)
}

func streamForever[T exploration.LogEvent | exploration.StageStatusEvent](w http.ResponseWriter, r *http.Request, flusher http.Flusher, sub *bus.Subscriber[T]) {
	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-sub.Events():
			if err := sendEvent(w, flusher, ev); err != nil {
				return
			}
		}
	}
}
