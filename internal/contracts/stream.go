package contracts

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"
)

type EventType string

const (
	EventTypeCatalogLoaded       EventType = "catalog_loaded"
	EventTypeCatalogReloadFailed EventType = "catalog_reload_failed"
	EventTypeCatalogSaved        EventType = "catalog_saved"
	EventTypeQueryServed         EventType = "query_served"
)

type Event struct {
	Type      EventType
	TaskID    string
	Source    string
	Version   uint64
	Message   string
	Metadata  map[string]string
	Timestamp time.Time
}

type eventPayload struct {
	Type     EventType         `json:"type"`
	TaskID   string            `json:"task_id,omitempty"`
	Source   string            `json:"source,omitempty"`
	Version  uint64            `json:"version,omitempty"`
	Message  string            `json:"message,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	TS       string            `json:"ts"`
}

func MarshalEventJSONL(event Event) (string, error) {
	data, err := json.Marshal(eventPayload{
		Type:     event.Type,
		TaskID:   event.TaskID,
		Source:   event.Source,
		Version:  event.Version,
		Message:  event.Message,
		Metadata: event.Metadata,
		TS:       event.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

func ParseEventJSONLLine(line []byte) (Event, error) {
	var payload eventPayload
	if err := json.Unmarshal(line, &payload); err != nil {
		return Event{}, err
	}
	timestamp := time.Time{}
	if payload.TS != "" {
		parsed, err := time.Parse(time.RFC3339, payload.TS)
		if err != nil {
			return Event{}, err
		}
		timestamp = parsed
	}
	return Event{
		Type:      payload.Type,
		TaskID:    payload.TaskID,
		Source:    payload.Source,
		Version:   payload.Version,
		Message:   payload.Message,
		Metadata:  payload.Metadata,
		Timestamp: timestamp,
	}, nil
}

// EventStream writes events as JSON lines. It is safe for concurrent use.
type EventStream struct {
	mu sync.Mutex
	w  io.Writer
}

func NewEventStream(writer io.Writer) *EventStream {
	return &EventStream{w: writer}
}

func (s *EventStream) Write(event Event) error {
	if s == nil || s.w == nil {
		return nil
	}
	line, err := MarshalEventJSONL(event)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = io.WriteString(s.w, line)
	return err
}

func (s *EventStream) Emit(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return s.Write(event)
}

type EventDecoder struct {
	scanner *bufio.Scanner
}

func NewEventDecoder(reader io.Reader) *EventDecoder {
	if reader == nil {
		return &EventDecoder{}
	}
	return &EventDecoder{scanner: bufio.NewScanner(reader)}
}

func (d *EventDecoder) Next() (Event, error) {
	if d == nil || d.scanner == nil {
		return Event{}, io.EOF
	}
	if !d.scanner.Scan() {
		if err := d.scanner.Err(); err != nil {
			return Event{}, err
		}
		return Event{}, io.EOF
	}
	return ParseEventJSONLLine(d.scanner.Bytes())
}

// MultiSink fans an event out to every non-nil sink and joins their errors.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
