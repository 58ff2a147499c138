// Package transport delivers composed outreach emails. The Sender
// interface hides the wire protocol from the scheduler; the production
// implementation speaks SMTP with rate limiting and a circuit breaker.
package transport

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrTimeout marks a send that did not complete within the per-send
// deadline. Retryable: the attempt outcome becomes failed, not bounced.
var ErrTimeout = eris.New("transport: send timed out")

// ErrRejected marks a permanent recipient rejection from the remote MTA.
// Terminal for the contact: the attempt outcome becomes bounced.
var ErrRejected = eris.New("transport: recipient rejected")

// Message is one composed email ready to send.
type Message struct {
	To      string
	Subject string
	Body    string
}

// SendResult reports a completed delivery.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers messages. Implementations must be safe for concurrent
// use; the scheduler fans out sends across workers.
type Sender interface {
	Send(ctx context.Context, msg Message) (*SendResult, error)
}

// DryRunSender logs sends without touching the network. Selected by
// transport.dry_run; used for rehearsing a campaign against real data.
type DryRunSender struct{}

func (DryRunSender) Send(_ context.Context, msg Message) (*SendResult, error) {
	id := uuid.New().String()
	zap.L().Info("dry-run send",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("message_id", id))
	return &SendResult{MessageID: id, SentAt: time.Now().UTC()}, nil
}
