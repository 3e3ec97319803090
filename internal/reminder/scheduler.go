// Package reminder nudges recipients who still need to act. Ticks for
// different workflows are independent; within one tick the gating
// computation finishes before any notification goes out.
package reminder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sealflow/internal/notify"
	"sealflow/internal/workflow"
)

const (
	defaultPollInterval = time.Minute
	defaultSendTimeout  = 10 * time.Second
)

// Scheduler runs the periodic reminder job and serves the on-demand
// remind-all / remind-now operations.
type Scheduler struct {
	store        workflow.Store
	sender       notify.Sender
	logger       *zap.Logger
	pollInterval time.Duration
	sendTimeout  time.Duration
	now          func() time.Time

	mu        sync.Mutex
	cancelled map[uuid.UUID]bool
}

// Option tweaks scheduler behavior.
type Option func(*Scheduler)

// WithPollInterval sets how often the periodic loop scans workflows.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.pollInterval = d }
}

// WithSendTimeout bounds each individual notification send.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.sendTimeout = d }
}

// WithClock overrides the scheduler clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler wires the reminder job to its store and sender.
func NewScheduler(store workflow.Store, sender notify.Sender, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		store:        store,
		sender:       sender,
		logger:       logger,
		pollInterval: defaultPollInterval,
		sendTimeout:  defaultSendTimeout,
		now:          time.Now,
		cancelled:    make(map[uuid.UUID]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run polls active workflows until the context ends, ticking each
// workflow whose reminder interval has elapsed.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	active, err := s.store.ListActiveWorkflows(ctx)
	if err != nil {
		s.logger.Error("reminder poll: list workflows", zap.Error(err))
		return
	}
	for _, w := range active {
		if s.isCancelled(w.ID) {
			continue
		}
		snap, err := s.store.GetSnapshot(ctx, w.ID)
		if err != nil {
			s.logger.Error("reminder poll: snapshot", zap.String("workflow_id", w.ID.String()), zap.Error(err))
			continue
		}
		if !s.dueForTick(snap) {
			continue
		}
		if _, err := s.Tick(ctx, w.ID); err != nil {
			s.logger.Error("reminder tick failed", zap.String("workflow_id", w.ID.String()), zap.Error(err))
		}
	}
}

// Tick runs one reminder pass for a workflow: re-fetch the snapshot,
// cancel future reminders if the workflow reached a terminal or expired
// state, otherwise remind the gated pending set. Returns how many
// recipients were actually notified.
func (s *Scheduler) Tick(ctx context.Context, workflowID uuid.UUID) (int, error) {
	snap, err := s.store.GetSnapshot(ctx, workflowID)
	if err != nil {
		return 0, err
	}

	effective := workflow.EffectiveStatusOf(snap, s.now())
	if effective == workflow.WorkflowCompleted || effective == workflow.WorkflowCancelled || effective == workflow.WorkflowExpired {
		s.CancelReminders(workflowID)
		return 0, nil
	}
	if snap.Envelope.Status != workflow.EnvelopeInProgress {
		return 0, nil
	}

	targets := s.targets(snap)
	return s.fanOut(ctx, targets), nil
}

// RemindAll is the on-demand bulk operation: same ordering and gating as
// a tick, triggered by a user instead of the timer.
func (s *Scheduler) RemindAll(ctx context.Context, workflowID uuid.UUID) (int, error) {
	return s.Tick(ctx, workflowID)
}

// RemindNow reminds a single recipient, bypassing the ordering
// computation. It still refuses recipients who have already signed or
// whose envelope is not in progress.
func (s *Scheduler) RemindNow(ctx context.Context, recipientID uuid.UUID) error {
	snap, err := s.store.SnapshotForRecipient(ctx, recipientID)
	if err != nil {
		return err
	}
	r, ok := snap.Recipient(recipientID)
	if !ok {
		return workflow.ErrNotFound
	}
	if snap.SignedBy(r.ID) {
		return workflow.ErrAlreadySigned
	}
	if snap.Envelope.Status != workflow.EnvelopeInProgress {
		return workflow.ErrEnvelopeClosed
	}
	return s.send(ctx, r)
}

// CancelReminders suppresses future reminder activity for a workflow.
// Idempotent: re-observing a terminal workflow any number of times is
// fine.
func (s *Scheduler) CancelReminders(workflowID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cancelled[workflowID] {
		s.cancelled[workflowID] = true
		s.logger.Info("reminders cancelled", zap.String("workflow_id", workflowID.String()))
	}
}

func (s *Scheduler) isCancelled(workflowID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled[workflowID]
}

// targets computes who gets reminded this pass. Sequential workflows
// remind only the currently-gating recipient; parallel workflows remind
// everyone still pending.
func (s *Scheduler) targets(snap workflow.Snapshot) []workflow.Recipient {
	pending := workflow.PendingRecipients(snap)
	if len(pending) == 0 {
		return nil
	}
	if snap.Workflow.Sequential {
		return pending[:1]
	}
	return pending
}

// fanOut dispatches reminders concurrently. The target set is fixed
// before the first send; a failure for one recipient never blocks the
// others.
func (s *Scheduler) fanOut(ctx context.Context, targets []workflow.Recipient) int {
	var (
		wg    sync.WaitGroup
		count int64
	)
	for _, r := range targets {
		wg.Add(1)
		go func(r workflow.Recipient) {
			defer wg.Done()
			if err := s.send(ctx, r); err != nil {
				s.logger.Warn("reminder send failed",
					zap.String("recipient_id", r.ID.String()), zap.Error(err))
				return
			}
			atomic.AddInt64(&count, 1)
		}(r)
	}
	wg.Wait()
	return int(count)
}

func (s *Scheduler) send(ctx context.Context, r workflow.Recipient) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	if err := s.sender.Send(sendCtx, r); err != nil {
		return err
	}
	if err := s.store.SetLastReminded(ctx, r.ID, s.now()); err != nil {
		s.logger.Warn("failed to record reminder time",
			zap.String("recipient_id", r.ID.String()), zap.Error(err))
	}
	return nil
}

// dueForTick decides whether a workflow's reminder cadence has elapsed:
// some pending recipient has never been reminded, or the most recent
// reminder is older than the configured interval.
func (s *Scheduler) dueForTick(snap workflow.Snapshot) bool {
	if snap.Workflow.ReminderIntervalDays <= 0 {
		return false
	}
	interval := time.Duration(snap.Workflow.ReminderIntervalDays) * 24 * time.Hour
	now := s.now()
	for _, r := range workflow.PendingRecipients(snap) {
		if r.LastRemindedAt == nil || now.Sub(*r.LastRemindedAt) >= interval {
			return true
		}
	}
	return false
}
