package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/egv/autotask/internal/contracts"
)

const DefaultSubject = "autotask.catalog.changed"

// flushTimeout bounds Publish when the caller's context has no deadline.
const flushTimeout = 5 * time.Second

// Notice announces that a catalog was saved to a store. Subscribers reload
// their source when they receive one.
type Notice struct {
	Source    string    `json:"source"`
	Version   uint64    `json:"version,omitempty"`
	Tasks     int       `json:"tasks"`
	Relations int       `json:"relations"`
	At        time.Time `json:"at"`
}

func Connect(url string, name string) (*nats.Conn, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return conn, nil
}

type Publisher struct {
	conn    *nats.Conn
	subject string
}

var _ contracts.EventSink = (*Publisher)(nil)

func NewPublisher(conn *nats.Conn, subject string) *Publisher {
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: conn, subject: subject}
}

func (p *Publisher) Subject() string {
	return p.subject
}

// Publish sends the notice and waits until the server has received it.
func (p *Publisher) Publish(ctx context.Context, notice Notice) error {
	if p == nil || p.conn == nil {
		return fmt.Errorf("nats publisher is nil")
	}
	if notice.At.IsZero() {
		notice.At = time.Now().UTC()
	}
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", p.subject, err)
	}
	return nil
}

// Emit turns catalog_saved events into notices and ignores every other type.
func (p *Publisher) Emit(ctx context.Context, event contracts.Event) error {
	if event.Type != contracts.EventTypeCatalogSaved {
		return nil
	}
	notice := Notice{
		Source:  event.Source,
		Version: event.Version,
		At:      event.Timestamp,
	}
	notice.Tasks, _ = strconv.Atoi(event.Metadata["tasks"])
	notice.Relations, _ = strconv.Atoi(event.Metadata["relations"])
	return p.Publish(ctx, notice)
}

// Subscribe calls handle for every well-formed notice on subject. Malformed
// payloads are passed to onError when it is non-nil.
func Subscribe(conn *nats.Conn, subject string, handle func(Notice), onError func(error)) (*nats.Subscription, error) {
	if conn == nil {
		return nil, fmt.Errorf("nats connection is nil")
	}
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}
	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		var notice Notice
		if err := json.Unmarshal(msg.Data, &notice); err != nil {
			if onError != nil {
				onError(fmt.Errorf("decode notice on %s: %w", msg.Subject, err))
			}
			return
		}
		handle(notice)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}
