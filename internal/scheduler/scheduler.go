// Package scheduler drives a campaign run: it assembles lead/contact
// pairs, orders them by priority, and walks each pair through exclusion,
// verification, the dedup ledger, composition, and the transport.
package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sbiradar/outreach-cli/internal/compose"
	"github.com/sbiradar/outreach-cli/internal/config"
	"github.com/sbiradar/outreach-cli/internal/followup"
	"github.com/sbiradar/outreach-cli/internal/guard"
	"github.com/sbiradar/outreach-cli/internal/model"
	"github.com/sbiradar/outreach-cli/internal/notify"
	"github.com/sbiradar/outreach-cli/internal/ranker"
	"github.com/sbiradar/outreach-cli/internal/retryresolve"
	"github.com/sbiradar/outreach-cli/internal/store"
	"github.com/sbiradar/outreach-cli/internal/transport"
	"github.com/sbiradar/outreach-cli/internal/verifier"
)

// ErrRunInProgress is returned when another process holds the run lock.
var ErrRunInProgress = eris.New("scheduler: another run is in progress")

// Deps collects the scheduler's collaborators.
type Deps struct {
	Store    store.Store
	Guard    *guard.Guard
	Verifier *verifier.Verifier
	Ranker   *ranker.Ranker
	Composer *compose.Composer
	Sender   transport.Sender
	Planner  *followup.Planner
	Resolver *retryresolve.Resolver
	Notifier *notify.Notifier
	Profile  ranker.Profile
}

// Scheduler runs outreach campaigns. The dedup ledger is the single
// serialization point: every send is preceded by a RecordAttempt that
// either claims the pair or loses to a previous claim.
type Scheduler struct {
	deps Deps
	cfg  config.SchedulerConfig

	mu     sync.Mutex
	budget int

	// claimMu serializes ceiling check + ledger claim.
	claimMu sync.Mutex
}

// New creates a campaign scheduler.
func New(deps Deps, cfg config.SchedulerConfig) *Scheduler {
	if cfg.MaxSendsPerRun <= 0 {
		cfg.MaxSendsPerRun = 25
	}
	if cfg.WorkerLimit <= 0 {
		cfg.WorkerLimit = 4
	}
	if cfg.LockPath == "" {
		cfg.LockPath = filepath.Join(os.TempDir(), "outreach-run.lock")
	}
	return &Scheduler{deps: deps, cfg: cfg}
}

// Run executes one campaign run and returns its summary. Runs are
// idempotent: re-running after a crash skips everything the ledger
// already claimed. Cancelling the context stops new work; pairs already
// in flight finish and the summary is still persisted.
func (s *Scheduler) Run(ctx context.Context) (*model.RunSummary, error) {
	lock := flock.New(s.cfg.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: acquire run lock")
	}
	if !locked {
		return nil, ErrRunInProgress
	}
	defer lock.Unlock() //nolint:errcheck

	now := time.Now().UTC()
	summary := &model.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: now,
	}
	s.mu.Lock()
	s.budget = s.cfg.MaxSendsPerRun
	s.mu.Unlock()

	zap.L().Info("campaign run started",
		zap.String("run_id", summary.RunID),
		zap.Int("max_sends", s.cfg.MaxSendsPerRun),
		zap.Int("workers", s.cfg.WorkerLimit))

	// Due follow-ups go out before any new first-touch sends.
	fired, err := s.deps.Planner.RunDue(ctx, now, followup.SenderFunc(s.sendFollowUp))
	summary.FollowUpsFired = fired
	if err != nil {
		if ctx.Err() != nil {
			return s.finish(ctx, summary)
		}
		zap.L().Warn("follow-up sweep incomplete", zap.Error(err))
	}

	candidates, err := s.assemble(ctx, now)
	if err != nil {
		return nil, err
	}
	s.deps.Ranker.Rank(candidates, s.deps.Profile, now)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.WorkerLimit)
	for _, cand := range candidates {
		if gctx.Err() != nil {
			break
		}
		cand := cand
		g.Go(func() error {
			s.processPair(gctx, cand, summary)
			return nil
		})
	}
	_ = g.Wait()

	return s.finish(ctx, summary)
}

func (s *Scheduler) finish(ctx context.Context, summary *model.RunSummary) (*model.RunSummary, error) {
	summary.FinishedAt = time.Now().UTC()

	// Persist the summary even on a cancelled run; use a fresh context so
	// the write itself is not cut off.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	// Replies land between runs via signals; the summary reports the
	// ledger's replied attempts as of this run, flagging the interviewed
	// ones.
	if replied, err := s.deps.Store.ListRepliedAttempts(saveCtx); err != nil {
		zap.L().Warn("listing replied attempts failed", zap.Error(err))
	} else {
		summary.Replies = len(replied)
		for _, a := range replied {
			entry, ferr := s.deps.Store.FindExclusion(saveCtx, model.CompanyKey(a.Company), "")
			if ferr != nil {
				zap.L().Warn("exclusion lookup failed", zap.String("company", a.Company), zap.Error(ferr))
				continue
			}
			if entry != nil && entry.Reason == model.ReasonInterviewed {
				summary.InterviewAlerts = append(summary.InterviewAlerts, model.InterviewAlert{
					Company:      a.Company,
					JobTitle:     a.JobTitle,
					ContactEmail: a.ContactEmail,
				})
			}
		}
	}

	if err := s.deps.Store.SaveRunSummary(saveCtx, summary); err != nil {
		return summary, eris.Wrap(err, "scheduler: save run summary")
	}
	if s.deps.Notifier != nil {
		s.deps.Notifier.RunFinished(saveCtx, summary)
	}

	zap.L().Info("campaign run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("sent", summary.Sent),
		zap.Int("bounced", summary.Bounced),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped_duplicate", summary.SkippedDuplicate),
		zap.Int("skipped_excluded", summary.SkippedExcluded),
		zap.Int("followups_fired", summary.FollowUpsFired))
	return summary, nil
}

// assemble builds the candidate list: every ingested lead crossed with
// every contact at that lead's company, minus contacts already known to
// be undeliverable.
func (s *Scheduler) assemble(ctx context.Context, now time.Time) ([]ranker.Candidate, error) {
	leads, err := s.deps.Store.ListLeads(ctx, 0)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: list leads")
	}

	var candidates []ranker.Candidate
	for _, lead := range leads {
		contacts, err := s.deps.Store.ListContactsByCompany(ctx, lead.Company)
		if err != nil {
			return nil, eris.Wrap(err, "scheduler: list contacts")
		}
		for _, contact := range contacts {
			if contact.Outcome == model.OutcomeRejected {
				continue
			}
			candidates = append(candidates, ranker.Candidate{
				Lead:    lead,
				Contact: contact,
				Score:   s.deps.Ranker.Score(lead, contact, s.deps.Profile, now),
			})
		}
	}
	return candidates, nil
}

// errContactCeiling rejects a claim that would put a company past its
// distinct-contact ceiling.
var errContactCeiling = eris.New("scheduler: company contact ceiling reached")

// claimAttempt records the attempt after checking the company's
// distinct-contact ceiling. Check and insert run under claimMu so
// concurrent workers cannot over-admit a company; the run lock already
// keeps other processes out. A contact the ledger has seen stays
// claimable: retrying a freed key adds no new address.
func (s *Scheduler) claimAttempt(ctx context.Context, attempt *model.SendAttempt) error {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	n, err := s.deps.Store.CountContactsTried(ctx, attempt.Company)
	if err != nil {
		return eris.Wrap(err, "scheduler: count contacts tried")
	}
	if n >= s.deps.Resolver.MaxContacts() {
		tried, err := s.deps.Store.ListTriedEmails(ctx, attempt.Company)
		if err != nil {
			return eris.Wrap(err, "scheduler: list tried emails")
		}
		seen := false
		for _, t := range tried {
			if strings.EqualFold(t, attempt.ContactEmail) {
				seen = true
				break
			}
		}
		if !seen {
			return errContactCeiling
		}
	}
	return s.deps.Store.RecordAttempt(ctx, attempt)
}

// reserveBudget claims one send slot, returning false when the run's
// budget is spent.
func (s *Scheduler) reserveBudget() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.budget <= 0 {
		return false
	}
	s.budget--
	return true
}

func (s *Scheduler) releaseBudget() {
	s.mu.Lock()
	s.budget++
	s.mu.Unlock()
}

func (s *Scheduler) bump(counter *int) {
	s.mu.Lock()
	*counter++
	s.mu.Unlock()
}

// processPair walks one (lead, contact) pair through the full gate
// sequence. Failures are confined to the pair; the rest of the run
// continues.
func (s *Scheduler) processPair(ctx context.Context, cand ranker.Candidate, summary *model.RunSummary) {
	if ctx.Err() != nil {
		return
	}
	logger := zap.L().With(
		zap.String("company", cand.Lead.Company),
		zap.String("job_title", cand.Lead.Title),
		zap.String("contact", cand.Contact.Email))

	// Cheap pre-check; RecordAttempt below is the authoritative gate.
	exists, err := s.deps.Store.AttemptExists(ctx, model.NewAttemptKey(cand.Contact.Email, cand.Lead.Title))
	if err != nil {
		logger.Error("dedup pre-check failed", zap.Error(err))
		return
	}
	if exists {
		s.bump(&summary.SkippedDuplicate)
		return
	}

	allowed, entry, err := s.deps.Guard.Allowed(ctx, cand.Lead.Company, cand.Contact.Email)
	if err != nil {
		logger.Error("exclusion check failed", zap.Error(err))
		return
	}
	if !allowed {
		s.bump(&summary.SkippedExcluded)
		logger.Info("pair excluded", zap.String("reason", string(entry.Reason)))
		return
	}

	contact := cand.Contact
	if contact.Outcome != model.OutcomeVerified {
		res := s.deps.Verifier.Verify(ctx, contact)
		if err := s.deps.Store.UpdateContactVerification(ctx, contact.Email, res.Score, res.Outcome); err != nil {
			logger.Warn("saving verification verdict failed", zap.Error(err))
		}
		if res.Outcome != model.OutcomeVerified {
			s.bump(&summary.VerificationRejected)
			logger.Info("contact rejected by verifier",
				zap.Int("score", res.Score),
				zap.String("reason", res.Reason))
			return
		}
		contact.VerificationScore = res.Score
		contact.Outcome = res.Outcome
	}

	if !s.reserveBudget() {
		return
	}

	attempt := &model.SendAttempt{
		ID:           uuid.NewString(),
		ContactEmail: contact.Email,
		Company:      cand.Lead.Company,
		JobTitle:     cand.Lead.Title,
		Stage:        model.StageInitial,
		Outcome:      model.AttemptPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.claimAttempt(ctx, attempt); err != nil {
		s.releaseBudget()
		switch {
		case errors.Is(err, store.ErrDuplicateAttempt):
			s.bump(&summary.SkippedDuplicate)
		case errors.Is(err, errContactCeiling):
			s.bump(&summary.SkippedExcluded)
			logger.Info("company contact ceiling reached")
		default:
			logger.Error("recording attempt failed", zap.Error(err))
		}
		return
	}
	s.bump(&summary.Attempted)

	subject, body, err := s.deps.Composer.Compose(ctx, cand.Lead, model.StageInitial)
	if err != nil {
		s.failAttempt(ctx, attempt.ID, err, summary, logger)
		return
	}

	result, err := s.deps.Sender.Send(ctx, transport.Message{
		To:      contact.Email,
		Subject: subject,
		Body:    body,
	})
	switch {
	case err == nil:
		if uerr := s.deps.Store.UpdateAttemptOutcome(ctx, attempt.ID, model.AttemptSent, result.MessageID, ""); uerr != nil {
			logger.Error("marking attempt sent failed", zap.Error(uerr))
		}
		s.bump(&summary.Sent)
		attempt.Outcome = model.AttemptSent
		if perr := s.deps.Planner.ScheduleNext(ctx, attempt, time.Now().UTC()); perr != nil {
			logger.Warn("scheduling follow-up failed", zap.Error(perr))
		}
		logger.Info("sent", zap.String("message_id", result.MessageID))

	case errors.Is(err, transport.ErrRejected):
		if uerr := s.deps.Store.UpdateAttemptOutcome(ctx, attempt.ID, model.AttemptBounced, "", err.Error()); uerr != nil {
			logger.Error("marking attempt bounced failed", zap.Error(uerr))
		}
		s.bump(&summary.Bounced)
		attempt.Outcome = model.AttemptBounced
		logger.Info("recipient rejected, resolving alternate", zap.Error(err))

		alt, rerr := s.deps.Resolver.Resolve(ctx, attempt)
		if rerr != nil {
			logger.Warn("bounce resolution failed", zap.Error(rerr))
			return
		}
		if alt != nil {
			s.processPair(ctx, ranker.Candidate{Lead: cand.Lead, Contact: *alt}, summary)
		}

	default:
		// Timeouts, open breaker, relay outages: the key is freed and the
		// pair is eligible again next run.
		s.failAttempt(ctx, attempt.ID, err, summary, logger)
	}
}

func (s *Scheduler) failAttempt(ctx context.Context, attemptID string, cause error, summary *model.RunSummary, logger *zap.Logger) {
	if err := s.deps.Store.UpdateAttemptOutcome(ctx, attemptID, model.AttemptFailed, "", cause.Error()); err != nil {
		logger.Error("marking attempt failed failed", zap.Error(err))
	}
	s.bump(&summary.Failed)
	logger.Warn("send failed, key freed for next run", zap.Error(cause))
}

// sendFollowUp composes and delivers one follow-up stage for an attempt.
func (s *Scheduler) sendFollowUp(ctx context.Context, attempt *model.SendAttempt, stage model.Stage) error {
	lead := model.JobLead{Company: attempt.Company, Title: attempt.JobTitle}
	subject, body, err := s.deps.Composer.Compose(ctx, lead, stage)
	if err != nil {
		return eris.Wrap(err, "scheduler: compose follow-up")
	}

	result, err := s.deps.Sender.Send(ctx, transport.Message{
		To:      attempt.ContactEmail,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		if errors.Is(err, transport.ErrRejected) {
			// The address went bad between stages. Record it; the next
			// sweep sees the terminal outcome and drops the task.
			if uerr := s.deps.Store.UpdateAttemptOutcome(ctx, attempt.ID, model.AttemptBounced, "", err.Error()); uerr != nil {
				zap.L().Error("marking follow-up bounce failed", zap.Error(uerr))
			}
		}
		return eris.Wrap(err, "scheduler: send follow-up")
	}

	if err := s.deps.Store.UpdateAttemptOutcome(ctx, attempt.ID, model.AttemptSent, result.MessageID, ""); err != nil {
		zap.L().Error("marking follow-up sent failed", zap.Error(err))
	}
	return nil
}
