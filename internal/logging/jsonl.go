package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/egv/autotask/internal/contracts"
)

// JSONLSink appends events to a file, one JSON object per line.
type JSONLSink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	stream *contracts.EventStream
}

var _ contracts.EventSink = (*JSONLSink)(nil)

func NewJSONLSink(path string) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create event log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &JSONLSink{path: path, file: file, stream: contracts.NewEventStream(file)}, nil
}

func (s *JSONLSink) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *JSONLSink) Emit(ctx context.Context, event contracts.Event) error {
	if s == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("event log %s is closed", s.path)
	}
	return s.stream.Emit(ctx, event)
}

func (s *JSONLSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ReadEvents decodes every event in a JSONL event log.
func ReadEvents(path string) ([]contracts.Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := contracts.NewEventDecoder(file)
	events := []contracts.Event{}
	for {
		event, err := decoder.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		events = append(events, event)
	}
}
