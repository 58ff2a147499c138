// Package signals applies reply and bounce classifications to the ledger.
package signals

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sbiradar/outreach-cli/internal/guard"
	"github.com/sbiradar/outreach-cli/internal/model"
	"github.com/sbiradar/outreach-cli/internal/retryresolve"
	"github.com/sbiradar/outreach-cli/internal/store"
)

// Processor updates attempt state from classifier signals. A reply closes
// the attempt and cancels pending follow-ups; a bounce closes the key and
// tries to line up an alternate contact for the next run.
type Processor struct {
	store    store.Store
	guard    *guard.Guard
	resolver *retryresolve.Resolver
}

// New creates a signal processor.
func New(st store.Store, g *guard.Guard, r *retryresolve.Resolver) *Processor {
	return &Processor{store: st, guard: g, resolver: r}
}

// Apply folds one signal into the ledger. It returns an interview alert
// when the signal reports an interview, nil otherwise. Signals for unknown
// attempts are ignored.
func (p *Processor) Apply(ctx context.Context, sig model.ReplySignal) (*model.InterviewAlert, error) {
	if sig.Classification == model.ClassNoSignal {
		return nil, nil
	}

	key := model.NewAttemptKey(sig.ContactEmail, sig.JobTitle)
	attempt, err := p.store.GetAttemptByKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("signal for unknown attempt",
				zap.String("contact", sig.ContactEmail),
				zap.String("job_title", sig.JobTitle))
			return nil, nil
		}
		return nil, eris.Wrap(err, "signals: load attempt")
	}

	switch sig.Classification {
	case model.ClassReplied:
		return p.applyReply(ctx, attempt, sig)
	case model.ClassBounced:
		return nil, p.applyBounce(ctx, attempt)
	default:
		return nil, eris.Errorf("signals: unknown classification %q", sig.Classification)
	}
}

func (p *Processor) applyReply(ctx context.Context, attempt *model.SendAttempt, sig model.ReplySignal) (*model.InterviewAlert, error) {
	if err := p.store.UpdateAttemptOutcome(ctx, attempt.ID, model.AttemptReplied, attempt.MessageID, ""); err != nil {
		return nil, eris.Wrap(err, "signals: mark replied")
	}
	if err := p.store.MarkAttemptDone(ctx, attempt.ID, "replied"); err != nil {
		return nil, eris.Wrap(err, "signals: close attempt")
	}
	if err := p.store.CancelFollowUpsForAttempt(ctx, attempt.ID); err != nil {
		return nil, eris.Wrap(err, "signals: cancel follow-ups")
	}
	zap.L().Info("reply received",
		zap.String("company", attempt.Company),
		zap.String("contact", attempt.ContactEmail))

	if !sig.Interview {
		return nil, nil
	}

	// An interview suppresses all further outreach to the company.
	if err := p.guard.Exclude(ctx, attempt.Company, "", model.ReasonInterviewed); err != nil {
		return nil, eris.Wrap(err, "signals: exclude interviewed company")
	}
	return &model.InterviewAlert{
		Company:      attempt.Company,
		JobTitle:     attempt.JobTitle,
		ContactEmail: attempt.ContactEmail,
	}, nil
}

func (p *Processor) applyBounce(ctx context.Context, attempt *model.SendAttempt) error {
	if err := p.store.UpdateAttemptOutcome(ctx, attempt.ID, model.AttemptBounced, attempt.MessageID, "bounce signal"); err != nil {
		return eris.Wrap(err, "signals: mark bounced")
	}
	if err := p.store.CancelFollowUpsForAttempt(ctx, attempt.ID); err != nil {
		return eris.Wrap(err, "signals: cancel follow-ups")
	}

	attempt.Outcome = model.AttemptBounced
	// Verify an alternate now so the next run can pick it up; the run
	// itself claims the new key through the ledger.
	if _, err := p.resolver.Resolve(ctx, attempt); err != nil {
		return eris.Wrap(err, "signals: resolve alternate")
	}
	return nil
}
