package natsbridge

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/marcus-ai/marcus/internal/events"
)

// subjectPrefix namespaces every subject this bridge publishes or
// subscribes to, so a shared NATS deployment can host more than one
// coordination instance.
const subjectPrefix = "marcus"

// Bridge republishes coordination events onto NATS subjects and passes
// externally-observed board-change notifications to a caller-supplied
// handler (they are not republished onto the event bus), so a process outside the control protocol can both watch and nudge
// coordination (spec §4.1's optional "push" board notification path).
type Bridge struct {
	conn *natsgo.Conn
	bus  *events.Bus
	log  *log.Logger
	subs []*natsgo.Subscription
}

// Connect dials url with indefinite reconnect, mirroring the teacher's
// connection posture for a long-lived sidecar process.
func Connect(url string, bus *events.Bus) (*Bridge, error) {
	logger := log.New(os.Stderr, "[NATSBRIDGE] ", log.LstdFlags)

	opts := []natsgo.Option{
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.MaxReconnects(-1),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Printf("disconnected: %v", err)
			}
		}),
		natsgo.ReconnectHandler(func(c *natsgo.Conn) {
			logger.Printf("reconnected to %s", c.ConnectedUrl())
		}),
	}

	conn, err := natsgo.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("natsbridge: connect: %w", err)
	}
	return &Bridge{conn: conn, bus: bus, log: logger}, nil
}

// Close unsubscribes every subscription and closes the connection.
func (b *Bridge) Close() {
	for _, s := range b.subs {
		s.Unsubscribe()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}

// PublishEvents subscribes to target on the bus and republishes every event
// onto "marcus.events.<project_id>.<type>".
func (b *Bridge) PublishEvents(target string, types []events.Type) {
	ch := b.bus.Subscribe(target, types)
	go func() {
		for evt := range ch {
			subject := fmt.Sprintf("%s.events.%s.%s", subjectPrefix, evt.ProjectID, evt.Type)
			data, err := json.Marshal(evt)
			if err != nil {
				b.log.Printf("failed to marshal event %s: %v", evt.ID, err)
				continue
			}
			if err := b.conn.Publish(subject, data); err != nil {
				b.log.Printf("failed to publish event %s to %s: %v", evt.ID, subject, err)
			}
		}
	}()
}

// BoardChangeHandler is invoked when an external system announces that a
// project's board changed out of band, so the coordinator can be nudged to
// refresh its cached snapshot instead of waiting out a request.
type BoardChangeHandler func(projectID string)

// SubscribeBoardChanges listens on "marcus.board.changed.<project_id>" for
// every project and invokes handler on receipt.
func (b *Bridge) SubscribeBoardChanges(handler BoardChangeHandler) error {
	subject := subjectPrefix + ".board.changed.*"
	sub, err := b.conn.Subscribe(subject, func(msg *natsgo.Msg) {
		var payload struct {
			ProjectID string `json:"project_id"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			b.log.Printf("malformed board-changed payload on %s: %v", msg.Subject, err)
			return
		}
		if payload.ProjectID == "" {
			return
		}
		handler(payload.ProjectID)
	})
	if err != nil {
		return fmt.Errorf("natsbridge: subscribe %s: %w", subject, err)
	}
	b.subs = append(b.subs, sub)
	return nil
}

// AnnounceBoardChange publishes a board-changed notification for projectID,
// for use by adapters or external tooling that observe board mutations
// directly.
func (b *Bridge) AnnounceBoardChange(projectID string) error {
	subject := fmt.Sprintf("%s.board.changed.%s", subjectPrefix, projectID)
	data, err := json.Marshal(map[string]string{"project_id": projectID})
	if err != nil {
		return err
	}
	return b.conn.Publish(subject, data)
}
