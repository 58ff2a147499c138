package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sbiradar/outreach-cli/internal/config"
	"github.com/sbiradar/outreach-cli/internal/resilience"
)

// sendMailFunc matches smtp.SendMail; injectable for tests.
type sendMailFunc func(addr string, auth sasl.Client, from string, to []string, r io.Reader) error

// SMTPSender sends over SMTP with a global rate limit, a per-send
// deadline, in-run retries for transient deferrals, and a circuit
// breaker that fails the rest of the batch fast when the relay is down.
type SMTPSender struct {
	cfg      config.TransportConfig
	limiter  *rate.Limiter
	breaker  *resilience.CircuitBreaker
	retryCfg resilience.RetryConfig
	sendMail sendMailFunc
}

// NewSMTPSender builds the production sender from config.
func NewSMTPSender(cfg config.TransportConfig) *SMTPSender {
	maxRate := cfg.MaxSendRate
	if maxRate <= 0 {
		maxRate = 10
	}
	retryCfg := resilience.FromRetryConfig(cfg.InRunRetries+1, cfg.RetryBackoffMs, cfg.RetryMaxBackMs)
	retryCfg.OnRetry = resilience.RetryLogger("smtp", "send")

	breakerCfg := resilience.FromCircuitConfig(cfg.BreakerFailures, cfg.BreakerResetSec)
	// Recipient rejections are the recipient's problem, not the relay's;
	// only transient relay failures trip the breaker.
	breakerCfg.ShouldTrip = resilience.IsTransient

	return &SMTPSender{
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(maxRate), 1),
		breaker:  resilience.NewCircuitBreaker(breakerCfg),
		retryCfg: retryCfg,
		sendMail: smtp.SendMail,
	}
}

// Send delivers one message. Error mapping: deadline exceeded -> ErrTimeout,
// 5xx recipient rejection -> ErrRejected, anything else bubbles up wrapped.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (*SendResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "transport: rate limit wait")
	}

	timeout := time.Duration(s.cfg.SendTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	messageID := uuid.New().String()
	raw := s.buildMessage(msg, messageID)

	err := resilience.Do(sendCtx, s.retryCfg, func(ctx context.Context) error {
		return s.breaker.Execute(ctx, func(ctx context.Context) error {
			return s.dispatch(ctx, msg.To, raw)
		})
	})
	if err != nil {
		return nil, classifySendError(sendCtx, err)
	}

	zap.L().Info("email sent",
		zap.String("to", msg.To),
		zap.String("message_id", messageID))
	return &SendResult{MessageID: messageID, SentAt: time.Now().UTC()}, nil
}

// dispatch runs the blocking SMTP transaction in a goroutine so the
// per-send deadline can cut it short.
func (s *SMTPSender) dispatch(ctx context.Context, to, raw string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)

	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(addr, auth, s.cfg.FromEmail, []string{to}, strings.NewReader(raw))
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (s *SMTPSender) buildMessage(msg Message, messageID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.FromEmail)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Message-ID: <%s@outreach>\r\n", messageID)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return b.String()
}

func classifySendError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return ErrTimeout
	}
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) && smtpErr.Code >= 500 {
		return eris.Wrapf(ErrRejected, "code %d: %s", smtpErr.Code, smtpErr.Message)
	}
	return eris.Wrap(err, "transport: send")
}
