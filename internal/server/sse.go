package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/agentmx/agentmx/internal/audit"
	"github.com/agentmx/agentmx/internal/memory"
)

// SSEWriter helps write Server-Sent Events.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares the response for event streaming.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends one SSE event with a JSON payload.
func (s *SSEWriter) WriteEvent(event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// tailPollInterval is how often the log tail re-reads the file for appends.
const tailPollInterval = 500 * time.Millisecond

// handleRunLog streams a run's audit log as SSE events: first everything
// already written, then live appends until the run reaches a terminal status
// or the client disconnects.
func (s *Server) handleRunLog(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	logPath := filepath.Join(s.cfg.WorkDir(runID), audit.FileName)

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	var offset int64
	for {
		offset, err = s.streamFrom(sse, logPath, offset)
		if err != nil {
			return
		}

		run, err := s.store.GetRun(r.Context(), runID)
		terminal := err == nil && run.Status != memory.RunStatusRunning
		if terminal {
			// Flush anything the final status write raced past.
			if _, err := s.streamFrom(sse, logPath, offset); err == nil {
				sse.WriteEvent("complete", map[string]string{
					"run_id": runID,
					"status": run.Status,
				})
			}
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-time.After(tailPollInterval):
		}
	}
}

// streamFrom emits every full line at or after offset as a "record" event
// and returns the new offset. A missing file is simply nothing to stream
// yet.
func (s *Server) streamFrom(sse *SSEWriter, path string, offset int64) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return offset, nil
		}
		return offset, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// A partial line stays buffered on disk for the next poll.
			return offset, nil
		}
		offset += int64(len(line))

		var record json.RawMessage
		if json.Unmarshal([]byte(line), &record) != nil {
			continue
		}
		if err := sse.WriteEvent("record", record); err != nil {
			return offset, err
		}
	}
}
