package contracts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestEventStreamRoundTripNDJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	stream := NewEventStream(buf)

	event := Event{
		Type:      EventTypeCatalogLoaded,
		Source:    "sample",
		Version:   3,
		Message:   "12 tasks, 15 relations",
		Metadata:  map[string]string{"tasks": "12"},
		Timestamp: time.Date(2026, 2, 10, 2, 0, 0, 0, time.UTC),
	}
	if err := stream.Write(event); err != nil {
		t.Fatalf("write event: %v", err)
	}

	decoder := NewEventDecoder(bytes.NewReader(buf.Bytes()))
	decoded, err := decoder.Next()
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if decoded.Type != event.Type || decoded.Source != event.Source || decoded.Version != event.Version {
		t.Fatalf("unexpected decoded event: %#v", decoded)
	}
	if !decoded.Timestamp.Equal(event.Timestamp) {
		t.Fatalf("Timestamp = %v, want %v", decoded.Timestamp, event.Timestamp)
	}
	if decoded.Metadata["tasks"] != "12" {
		t.Fatalf("Metadata = %#v, want tasks=12", decoded.Metadata)
	}
	if _, err := decoder.Next(); err != io.EOF {
		t.Fatalf("expected EOF after one event, got %v", err)
	}
}

func TestMarshalEventJSONLOmitsEmptyFields(t *testing.T) {
	line, err := MarshalEventJSONL(Event{Type: EventTypeQueryServed, TaskID: "6", Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("MarshalEventJSONL() error = %v", err)
	}
	want := `{"type":"query_served","task_id":"6","ts":"2026-01-01T00:00:00Z"}` + "\n"
	if line != want {
		t.Fatalf("MarshalEventJSONL() = %q, want %q", line, want)
	}
}

func TestEventStreamEmitStampsMissingTimestamp(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := NewEventStream(buf).Emit(context.Background(), Event{Type: EventTypeCatalogSaved}); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	decoded, err := ParseEventJSONLLine(bytes.TrimSpace(buf.Bytes()))
	if err != nil {
		t.Fatalf("ParseEventJSONLLine() error = %v", err)
	}
	if decoded.Timestamp.IsZero() {
		t.Fatalf("expected Emit to stamp a timestamp")
	}
}

func TestNilEventStreamAndDecoderAreNoops(t *testing.T) {
	var stream *EventStream
	if err := stream.Write(Event{Type: EventTypeCatalogLoaded}); err != nil {
		t.Fatalf("nil stream Write() error = %v", err)
	}
	if _, err := NewEventDecoder(nil).Next(); err != io.EOF {
		t.Fatalf("nil reader Next() error = %v, want EOF", err)
	}
}

func TestEventDecoderReportsMalformedLine(t *testing.T) {
	decoder := NewEventDecoder(strings.NewReader("{not json}\n"))
	if _, err := decoder.Next(); err == nil {
		t.Fatalf("expected decode error for malformed line")
	}
}

type recordingSink struct {
	events []Event
	err    error
}

func (s *recordingSink) Emit(_ context.Context, event Event) error {
	s.events = append(s.events, event)
	return s.err
}

func TestMultiSinkFansOutAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	first := &recordingSink{}
	second := &recordingSink{err: boom}
	sink := MultiSink{first, nil, second}

	err := sink.Emit(context.Background(), Event{Type: EventTypeCatalogLoaded})
	if !errors.Is(err, boom) {
		t.Fatalf("Emit() error = %v, want %v", err, boom)
	}
	if len(first.events) != 1 || len(second.events) != 1 {
		t.Fatalf("expected both sinks to receive the event, got %d and %d", len(first.events), len(second.events))
	}
}
