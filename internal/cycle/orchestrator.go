package cycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/civicnet/weeklymatch/internal/cache"
	apperrors "github.com/civicnet/weeklymatch/internal/errors"
	"github.com/civicnet/weeklymatch/internal/history"
	"github.com/civicnet/weeklymatch/internal/matching"
	"github.com/civicnet/weeklymatch/internal/meeting"
	"github.com/civicnet/weeklymatch/internal/monitoring"
	"github.com/civicnet/weeklymatch/internal/notification"
	"github.com/civicnet/weeklymatch/internal/profile"
	"github.com/civicnet/weeklymatch/internal/telemetry"
)

// Options are the per-run knobs of a cycle
type Options struct {
	ExcludeRecentMatches  bool
	MinDaysSinceLastMatch int
	MaxMatchesPerWeek     int
	CreateMeetings        bool
	// Force skips the cadence gate.
	Force bool
	// DryRun selects and assembles but provisions, sends and records nothing.
	DryRun bool
	// Now overrides the clock; zero means time.Now.
	Now time.Time
}

// PairDispatcher notifies both members of a pair and records the match
type PairDispatcher interface {
	DispatchPair(ctx context.Context, pair matching.ScoredPair, details *meeting.Details, at time.Time) notification.PairOutcome
}

// Locker guards against two cycles running at once
type Locker interface {
	AcquireLock(ctx context.Context, ttl time.Duration) (*cache.Lock, error)
}

// SummaryStore keeps the last summary for the status endpoint
type SummaryStore interface {
	SaveLastSummary(ctx context.Context, summary interface{}) error
}

// Config holds the orchestrator's collaborators and fixed settings. Provisioner, Locker,
// Summaries and Metrics are optional.
type Config struct {
	Profiles    profile.Reader
	History     history.Store
	Dispatcher  PairDispatcher
	Provisioner meeting.Provisioner
	Locker      Locker
	Summaries   SummaryStore
	Metrics     *monitoring.CycleMetrics

	Weights           matching.Weights
	Cadence           string
	InactiveAfterDays int
	LockTTL           time.Duration
}

// Orchestrator runs matching cycles. Cycles are sequential; Run must not be called
// concurrently on one Orchestrator.
type Orchestrator struct {
	cfg Config
	now func() time.Time
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &Orchestrator{cfg: cfg, now: time.Now}
}

// run carries the mutable state of one cycle
type run struct {
	summary *Summary
	span    trace.Span
	logger  *telemetry.ContextualLogger
}

func (r *run) transition(state State) {
	r.summary.State = state
	r.span.AddEvent("state", trace.WithAttributes(attribute.String("cycle.state", string(state))))
	r.logger.WithField("state", state).Info("Cycle state changed")
}

func (r *run) fail(err error, message string) *Summary {
	r.summary.Success = false
	r.summary.Error = err.Error()
	r.summary.Reason = message
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, message)
	r.logger.WithError(err).Error(message)
	r.transition(StateFailed)
	return r.summary
}

// Run executes one cycle and always returns a summary. Configuration and selection
// failures end the run with Success false; everything after assembly is isolated per pair.
func (o *Orchestrator) Run(ctx context.Context, opts Options) *Summary {
	now := opts.Now
	if now.IsZero() {
		now = o.now()
	}

	cycleID := uuid.New().String()
	ctx = telemetry.WithCycleID(ctx, cycleID)
	if telemetry.GetCorrelationID(ctx) == "" {
		ctx = telemetry.WithCorrelationID(ctx, cycleID)
	}
	ctx, span := telemetry.Tracer().Start(ctx, "cycle.run", trace.WithAttributes(
		attribute.String("cycle.id", cycleID),
		attribute.Bool("cycle.dry_run", opts.DryRun),
		attribute.Bool("cycle.force", opts.Force),
	))
	defer span.End()

	r := &run{
		summary: &Summary{
			Results:   []notification.DispatchResult{},
			State:     StateIdle,
			CycleID:   cycleID,
			StartedAt: now,
			DryRun:    opts.DryRun,
		},
		span: span,
		logger: telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
			"operation": "match_cycle",
			"cycle_id":  cycleID,
			"dry_run":   opts.DryRun,
		}),
	}

	summary := o.execute(ctx, r, opts, now)
	summary.FinishedAt = o.now()
	if summary.FinishedAt.Before(summary.StartedAt) {
		summary.FinishedAt = summary.StartedAt
	}

	o.cfg.Metrics.RecordCycle(ctx, summary.outcome(), summary.FinishedAt.Sub(summary.StartedAt))
	span.SetAttributes(
		attribute.Bool("cycle.success", summary.Success),
		attribute.Int("cycle.total_matches", summary.TotalMatches),
		attribute.Int("cycle.sent", summary.Sent),
		attribute.Int("cycle.failed", summary.Failed),
	)

	if !opts.DryRun && o.cfg.Summaries != nil {
		if err := o.cfg.Summaries.SaveLastSummary(ctx, summary); err != nil {
			r.logger.WithError(err).Warn("Failed to store cycle summary")
		}
	}

	r.logger.WithFields(map[string]interface{}{
		"success":       summary.Success,
		"skipped":       summary.Skipped,
		"total_matches": summary.TotalMatches,
		"sent":          summary.Sent,
		"failed":        summary.Failed,
		"state":         summary.State,
	}).Info("Cycle finished")
	return summary
}

func (o *Orchestrator) execute(ctx context.Context, r *run, opts Options, now time.Time) *Summary {
	r.transition(StateGated)

	if opts.MinDaysSinceLastMatch < 0 {
		return r.fail(apperrors.NewConfigurationError("MIN_DAYS_SINCE_LAST_MATCH", "minimum days since last match cannot be negative"),
			"invalid cycle options")
	}
	if o.cfg.Profiles == nil || o.cfg.History == nil || (o.cfg.Dispatcher == nil && !opts.DryRun) {
		return r.fail(apperrors.NewConfigurationError("orchestrator", "profile store, history store and dispatcher are required"),
			"orchestrator is not configured")
	}
	scorer, err := matching.NewScorer(o.cfg.Weights)
	if err != nil {
		return r.fail(err, "invalid scoring weights")
	}

	if !opts.Force {
		shouldRun, reason, err := RunGate(o.cfg.Cadence, now)
		if err != nil {
			return r.fail(err, "invalid cadence")
		}
		if !shouldRun {
			r.summary.Success = true
			r.summary.Skipped = true
			r.summary.Reason = reason
			r.logger.WithField("reason", reason).Info("Cycle skipped by run gate")
			r.transition(StateDone)
			return r.summary
		}
	}

	if o.cfg.Locker != nil && !opts.DryRun {
		lock, err := o.cfg.Locker.AcquireLock(ctx, o.cfg.LockTTL)
		switch {
		case errors.Is(err, cache.ErrLockHeld):
			r.summary.Success = true
			r.summary.Skipped = true
			r.summary.Reason = "another cycle is already running"
			r.logger.Warn("Cycle skipped: lock held by another run")
			r.transition(StateDone)
			return r.summary
		case err != nil:
			r.logger.WithError(err).Warn("Cycle lock unavailable; continuing without it")
		default:
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					r.logger.WithError(err).Warn("Failed to release cycle lock")
				}
			}()
		}
	}

	r.transition(StateSelecting)
	eligible, lookup, err := o.selectEligible(ctx, opts, now)
	if err != nil {
		return r.fail(err, "could not load eligibility data")
	}
	r.logger.WithField("eligible", len(eligible)).Info("Eligible profiles selected")

	r.transition(StateAssembling)
	pairs := matching.Assemble(eligible, scorer, lookup, matching.AssembleOptions{
		MaxMatchesPerWeek:     opts.MaxMatchesPerWeek,
		MinDaysSinceLastMatch: opts.MinDaysSinceLastMatch,
		ExcludeRecentMatches:  opts.ExcludeRecentMatches,
	}, now)
	r.summary.TotalMatches = len(pairs)
	r.span.SetAttributes(attribute.Int("cycle.eligible", len(eligible)))

	if opts.DryRun {
		r.summary.Pairs = make([]PairPreview, 0, len(pairs))
		for _, p := range pairs {
			r.summary.Pairs = append(r.summary.Pairs, previewOf(p))
		}
		r.summary.Success = true
		r.transition(StateDone)
		return r.summary
	}

	r.transition(StateDispatching)
	for _, pair := range pairs {
		o.cfg.Metrics.RecordMatch(ctx, pair.Score)

		var details *meeting.Details
		if opts.CreateMeetings {
			var status MeetingStatus
			details, status = o.provision(ctx, pair)
			r.summary.Meetings = append(r.summary.Meetings, status)
		}

		outcome := o.cfg.Dispatcher.DispatchPair(ctx, pair, details, now)
		for _, res := range outcome.Results {
			o.cfg.Metrics.RecordNotification(res.Success)
			if res.Success {
				r.summary.Sent++
			} else {
				r.summary.Failed++
			}
		}
		r.summary.Results = append(r.summary.Results, outcome.Results...)
		if outcome.HistoryErr != nil {
			o.cfg.Metrics.RecordHistoryFailure()
			r.summary.HistoryFailures = append(r.summary.HistoryFailures,
				notification.HistoryFailure{Pair: pair.Key(), Error: outcome.HistoryErr.Error()})
		}
	}

	r.transition(StateSummarizing)
	r.summary.Success = true
	r.transition(StateDone)
	return r.summary
}

func (o *Orchestrator) selectEligible(ctx context.Context, opts Options, now time.Time) ([]*profile.Profile, history.Lookup, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "cycle.select")
	defer span.End()

	filter := profile.Filter{ExcludeOptedOut: true}
	if o.cfg.InactiveAfterDays > 0 {
		since := now.AddDate(0, 0, -o.cfg.InactiveAfterDays)
		filter.ActiveSince = &since
	}

	profiles, err := o.cfg.Profiles.GetEligibleProfiles(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, nil, apperrors.NewSelectionError("get_eligible_profiles", err)
	}

	lookup := history.Snapshot{}
	if opts.ExcludeRecentMatches && opts.MinDaysSinceLastMatch > 0 {
		since := now.Add(-time.Duration(opts.MinDaysSinceLastMatch) * 24 * time.Hour)
		lookup, err = history.LoadSnapshot(ctx, o.cfg.History, since)
		if err != nil {
			span.RecordError(err)
			return nil, nil, apperrors.NewSelectionError("list_match_history", err)
		}
	}

	eligible := matching.SelectEligible(profiles, matching.EligibilityOptions{InactiveAfterDays: o.cfg.InactiveAfterDays}, now)
	span.SetAttributes(attribute.Int("profiles.read", len(profiles)), attribute.Int("profiles.eligible", len(eligible)))
	return eligible, lookup, nil
}

// provision never fails the cycle; a failed meeting means the pair is notified without one.
func (o *Orchestrator) provision(ctx context.Context, pair matching.ScoredPair) (*meeting.Details, MeetingStatus) {
	status := MeetingStatus{Pair: pair.Key()}
	if o.cfg.Provisioner == nil {
		status.Status = MeetingUnavailable
		o.cfg.Metrics.RecordMeeting(monitoring.MeetingDisabled)
		return nil, status
	}

	details, err := o.cfg.Provisioner.CreateMeeting(ctx, pair.A, pair.B)
	if err != nil || details == nil {
		if err == nil {
			err = errors.New("provisioner returned no meeting")
		}
		status.Status = MeetingFailed
		status.Error = err.Error()
		o.cfg.Metrics.RecordMeeting(monitoring.MeetingFailed)
		telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
			"operation": "create_meeting",
			"pair":      pair.Key(),
		}).WithError(err).Warn("Meeting provisioning failed; notifying without a meeting")
		return nil, status
	}

	status.Status = MeetingCreated
	status.EventID = details.EventID
	status.VideoURL = details.VideoURL
	status.ICSURL = details.ICSURL
	o.cfg.Metrics.RecordMeeting(monitoring.MeetingCreated)
	return details, status
}
