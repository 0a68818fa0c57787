package respond

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// EventStream writes Server-Sent Events.
type EventStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewEventStream sets the SSE headers and flushes them.
func NewEventStream(w http.ResponseWriter) (*EventStream, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	es := &EventStream{w: w, rc: http.NewResponseController(w)}
	if err := es.rc.Flush(); err != nil {
		return nil, fmt.Errorf("streaming not supported: %w", err)
	}
	return es, nil
}

// Send writes one named event with v as JSON data.
func (es *EventStream) Send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(es.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return es.rc.Flush()
}

// Comment writes an SSE comment line, used as a keepalive.
func (es *EventStream) Comment(text string) error {
	if _, err := fmt.Fprintf(es.w, ": %s\n\n", text); err != nil {
		return err
	}
	return es.rc.Flush()
}
