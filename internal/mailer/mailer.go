// Package mailer delivers account emails through a pluggable transport.
package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Message is one outgoing email.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Mailer dispatches messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of delivering them.
type LogMailer struct{}

// Send logs the message.
func (LogMailer) Send(_ context.Context, msg Message) error {
	log.WithFields(log.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Infof("mail dispatched:\n%s", msg.Body)
	return nil
}

// Publisher is the part of a NATS connection used to hand off mail jobs.
type Publisher interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
}

// NATSMailer publishes messages as JSON jobs on a subject consumed by a delivery worker.
type NATSMailer struct {
	conn    Publisher
	subject string
	timeout time.Duration
}

// NewNATSMailer builds a NATSMailer over an existing publisher.
func NewNATSMailer(conn Publisher, subject string) (*NATSMailer, error) {
	if conn == nil {
		return nil, errors.New("mailer: nil nats connection")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, errors.New("mailer: empty subject")
	}
	return &NATSMailer{conn: conn, subject: subject, timeout: 5 * time.Second}, nil
}

// DialNATS connects to the NATS server at url.
func DialNATS(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("dnastore-mailer"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, errDisconnect error) {
			if errDisconnect != nil {
				log.WithError(errDisconnect).Warn("mailer: nats disconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("mailer: connect nats: %w", err)
	}
	return nc, nil
}

// Send publishes the message and waits for the server to acknowledge the flush.
func (m *NATSMailer) Send(ctx context.Context, msg Message) error {
	payload, errMarshal := json.Marshal(msg)
	if errMarshal != nil {
		return fmt.Errorf("mailer: encode message: %w", errMarshal)
	}
	if errPublish := m.conn.Publish(m.subject, payload); errPublish != nil {
		return fmt.Errorf("mailer: publish: %w", errPublish)
	}
	timeout := m.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if errFlush := m.conn.FlushTimeout(timeout); errFlush != nil {
		return fmt.Errorf("mailer: flush: %w", errFlush)
	}
	return nil
}

// Outbox records messages in memory; tests use it to read back tokens.
type Outbox struct {
	mu       sync.Mutex
	messages []Message
	Err      error // returned from Send when set
}

// Send records the message, or returns Err.
func (o *Outbox) Send(_ context.Context, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.messages = append(o.messages, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// Last returns the most recent message.
func (o *Outbox) Last() (Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.messages) == 0 {
		return Message{}, false
	}
	return o.messages[len(o.messages)-1], true
}
