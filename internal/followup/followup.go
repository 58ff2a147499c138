// Package followup plans and fires the staged follow-up sequence for
// attempts that were sent and never answered.
package followup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sbiradar/outreach-cli/internal/config"
	"github.com/sbiradar/outreach-cli/internal/guard"
	"github.com/sbiradar/outreach-cli/internal/model"
	"github.com/sbiradar/outreach-cli/internal/store"
)

// Sender delivers one follow-up message for an attempt. The scheduler
// provides an implementation that composes and sends through the transport.
type Sender interface {
	SendStage(ctx context.Context, attempt *model.SendAttempt, stage model.Stage) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, attempt *model.SendAttempt, stage model.Stage) error

func (f SenderFunc) SendStage(ctx context.Context, attempt *model.SendAttempt, stage model.Stage) error {
	return f(ctx, attempt, stage)
}

// Planner owns the follow-up queue: it schedules the next stage after each
// successful send and fires due tasks, re-checking exclusions at fire time.
type Planner struct {
	store store.Store
	guard *guard.Guard
	cfg   config.FollowUpConfig
}

// New creates a follow-up planner.
func New(st store.Store, g *guard.Guard, cfg config.FollowUpConfig) *Planner {
	return &Planner{store: st, guard: g, cfg: cfg}
}

// offsetDays returns the stage's due offset in days from the initial send.
func (p *Planner) offsetDays(stage model.Stage) int {
	switch stage {
	case model.StageDay3:
		return p.cfg.Day3Offset
	case model.StageDay7:
		return p.cfg.Day7Offset
	case model.StageDay14:
		return p.cfg.Day14Offset
	default:
		return 0
	}
}

// ScheduleNext enqueues the follow-up stage after the attempt's current
// one. All due dates are anchored to the initial send time, so a late day3
// does not push day7 later. After day14 the sequence is complete and the
// attempt is closed instead.
func (p *Planner) ScheduleNext(ctx context.Context, attempt *model.SendAttempt, now time.Time) error {
	next := attempt.Stage.Next()
	if next == "" {
		return p.store.MarkAttemptDone(ctx, attempt.ID, "followup sequence complete")
	}

	anchor := attempt.CreatedAt
	if anchor.IsZero() {
		anchor = now
	}
	task := &model.FollowUpTask{
		ID:        uuid.NewString(),
		AttemptID: attempt.ID,
		Stage:     next,
		DueAt:     anchor.AddDate(0, 0, p.offsetDays(next)),
		CreatedAt: now,
	}
	if err := p.store.CreateFollowUp(ctx, task); err != nil {
		return eris.Wrap(err, "followup: schedule next stage")
	}
	zap.L().Debug("follow-up scheduled",
		zap.String("attempt_id", attempt.ID),
		zap.String("stage", string(next)),
		zap.Time("due_at", task.DueAt))
	return nil
}

// RunDue fires every task due at now and returns the number of follow-ups
// actually sent. A task whose send fails stays queued for the next run;
// every other disposition completes the task. Task failures are isolated,
// one bad task never aborts the sweep.
func (p *Planner) RunDue(ctx context.Context, now time.Time, sender Sender) (int, error) {
	tasks, err := p.store.DueFollowUps(ctx, now)
	if err != nil {
		return 0, eris.Wrap(err, "followup: list due tasks")
	}

	fired := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			return fired, eris.Wrap(ctx.Err(), "followup: cancelled")
		}
		sent, err := p.fire(ctx, task, sender)
		if err != nil {
			zap.L().Warn("follow-up task failed",
				zap.String("task_id", task.ID),
				zap.String("attempt_id", task.AttemptID),
				zap.Error(err))
			continue
		}
		if sent {
			fired++
		}
	}
	return fired, nil
}

// fire processes one due task. Returns true when a message went out.
func (p *Planner) fire(ctx context.Context, task model.FollowUpTask, sender Sender) (bool, error) {
	attempt, err := p.store.GetAttempt(ctx, task.AttemptID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, p.store.CompleteFollowUp(ctx, task.ID)
		}
		return false, eris.Wrap(err, "followup: load attempt")
	}

	// A closed or answered attempt has no follow-up left to send.
	if attempt.Done || attempt.Outcome.Terminal() {
		return false, p.store.CompleteFollowUp(ctx, task.ID)
	}

	// Exclusions recorded after scheduling win: the task is discarded,
	// never deferred.
	allowed, entry, err := p.guard.Allowed(ctx, attempt.Company, attempt.ContactEmail)
	if err != nil {
		return false, eris.Wrap(err, "followup: exclusion check")
	}
	if !allowed {
		if err := p.store.CompleteFollowUp(ctx, task.ID); err != nil {
			return false, err
		}
		reason := fmt.Sprintf("excluded: %s", entry.Reason)
		return false, p.store.MarkAttemptDone(ctx, attempt.ID, reason)
	}

	if err := p.store.AdvanceAttemptStage(ctx, attempt.ID, task.Stage); err != nil {
		if errors.Is(err, store.ErrStageRegression) {
			if attempt.Stage == task.Stage {
				// Re-entry: a previous run advanced the stage but died
				// before sending. Retry the send at the same stage.
			} else {
				// The attempt has moved past this task; stale, drop it.
				return false, p.store.CompleteFollowUp(ctx, task.ID)
			}
		} else {
			return false, eris.Wrap(err, "followup: advance stage")
		}
	}

	if err := sender.SendStage(ctx, attempt, task.Stage); err != nil {
		// Leave the task queued; the next sweep retries it.
		return false, eris.Wrap(err, "followup: send")
	}

	if err := p.store.CompleteFollowUp(ctx, task.ID); err != nil {
		return true, err
	}

	attempt.Stage = task.Stage
	if err := p.ScheduleNext(ctx, attempt, time.Now().UTC()); err != nil {
		return true, err
	}
	return true, nil
}
