package reminder

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sealflow/internal/workflow"
)

// recordingSender collects reminded recipients and can fail selectively.
type recordingSender struct {
	mu      sync.Mutex
	sent    []uuid.UUID
	failFor map[uuid.UUID]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{failFor: make(map[uuid.UUID]bool)}
}

func (s *recordingSender) Send(ctx context.Context, r workflow.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[r.ID] {
		return fmt.Errorf("delivery failed for %s", r.Email)
	}
	s.sent = append(s.sent, r.ID)
	return nil
}

func (s *recordingSender) sentIDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.sent...)
}

func fixedUUID(b byte) uuid.UUID {
	var id uuid.UUID
	id[15] = b
	return id
}

type reminderFixture struct {
	store  *workflow.MemStore
	sender *recordingSender
	sched  *Scheduler
	w      workflow.Workflow
}

func newReminderFixture(t *testing.T, sequential bool, deliveries ...workflow.DeliveryType) *reminderFixture {
	t.Helper()

	f := &reminderFixture{
		store:  workflow.NewMemStore(),
		sender: newRecordingSender(),
	}
	f.w = workflow.Workflow{
		ID:                   uuid.New(),
		TemplateID:           uuid.New(),
		CreatedBy:            uuid.New(),
		ValidUntil:           time.Now().Add(48 * time.Hour),
		ReminderIntervalDays: 1,
		Sequential:           sequential,
		Status:               workflow.WorkflowInProgress,
	}
	e := workflow.Envelope{ID: uuid.New(), WorkflowID: f.w.ID, Status: workflow.EnvelopeInProgress}

	var rs []workflow.Recipient
	for i, d := range deliveries {
		rs = append(rs, workflow.Recipient{
			ID:           fixedUUID(byte(i + 1)),
			EnvelopeID:   e.ID,
			RolePriority: i + 1,
			Role:         fmt.Sprintf("signer-%d", i+1),
			Delivery:     d,
			Email:        fmt.Sprintf("r%d@example.com", i+1),
		})
	}
	f.store.Seed(f.w, e, rs, nil, nil)
	f.sched = NewScheduler(f.store, f.sender, nil)
	return f
}

func (f *reminderFixture) sign(t *testing.T, recipient uuid.UUID) {
	t.Helper()
	now := time.Now()
	require.NoError(t, f.store.SaveSignature(context.Background(), workflow.Signature{
		ID:               uuid.New(),
		RecipientID:      recipient,
		SignedDocumentID: uuid.New(),
		IsSigned:         true,
		SignedAt:         &now,
		LatestVersion:    1,
	}))
}

func TestTickSequentialRemindsOnlyGatingRecipient(t *testing.T) {
	f := newReminderFixture(t, true, workflow.DeliveryNeedsToSign, workflow.DeliveryNeedsToSign)

	count, err := f.sched.Tick(context.Background(), f.w.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []uuid.UUID{fixedUUID(1)}, f.sender.sentIDs())

	// Once the gate moves, so does the reminder target.
	f.sign(t, fixedUUID(1))
	count, err = f.sched.Tick(context.Background(), f.w.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []uuid.UUID{fixedUUID(1), fixedUUID(2)}, f.sender.sentIDs())
}

func TestTickParallelRemindsAllPending(t *testing.T) {
	f := newReminderFixture(t, false,
		workflow.DeliveryNeedsToSign, workflow.DeliveryNeedsToSign, workflow.DeliveryReceivesCopy)

	count, err := f.sched.Tick(context.Background(), f.w.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	sent := f.sender.sentIDs()
	assert.ElementsMatch(t, []uuid.UUID{fixedUUID(1), fixedUUID(2)}, sent)
}

func TestTickRecordsLastReminded(t *testing.T) {
	f := newReminderFixture(t, false, workflow.DeliveryNeedsToSign)

	_, err := f.sched.Tick(context.Background(), f.w.ID)
	require.NoError(t, err)

	snap, err := f.store.GetSnapshot(context.Background(), f.w.ID)
	require.NoError(t, err)
	require.NotNil(t, snap.Recipients[0].LastRemindedAt)
}

func TestTickPartialFailureCountsSuccesses(t *testing.T) {
	f := newReminderFixture(t, false, workflow.DeliveryNeedsToSign, workflow.DeliveryNeedsToSign)
	f.sender.failFor[fixedUUID(2)] = true

	count, err := f.sched.Tick(context.Background(), f.w.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	snap, err := f.store.GetSnapshot(context.Background(), f.w.ID)
	require.NoError(t, err)
	for _, r := range snap.Recipients {
		if r.ID == fixedUUID(2) {
			assert.Nil(t, r.LastRemindedAt, "failed send must not record a reminder time")
		}
	}
}

func TestTickTerminalWorkflowCancelsReminders(t *testing.T) {
	f := newReminderFixture(t, false, workflow.DeliveryNeedsToSign)
	require.NoError(t, f.store.UpdateWorkflowStatus(context.Background(), f.w.ID, workflow.WorkflowCancelled))

	count, err := f.sched.Tick(context.Background(), f.w.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, f.sender.sentIDs())
}

func TestTickExpiredDeadlineSendsNothing(t *testing.T) {
	f := newReminderFixture(t, false, workflow.DeliveryNeedsToSign)
	f.sched = NewScheduler(f.store, f.sender, nil,
		WithClock(func() time.Time { return f.w.ValidUntil.Add(time.Hour) }))

	count, err := f.sched.Tick(context.Background(), f.w.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, f.sender.sentIDs())
}

func TestRemindNowRefusals(t *testing.T) {
	f := newReminderFixture(t, true, workflow.DeliveryNeedsToSign, workflow.DeliveryNeedsToSign)

	// Bypasses the sequential gate on purpose.
	require.NoError(t, f.sched.RemindNow(context.Background(), fixedUUID(2)))

	f.sign(t, fixedUUID(2))
	assert.ErrorIs(t, f.sched.RemindNow(context.Background(), fixedUUID(2)), workflow.ErrAlreadySigned)

	assert.ErrorIs(t, f.sched.RemindNow(context.Background(), fixedUUID(9)), workflow.ErrNotFound)
}

func TestRemindNowClosedEnvelope(t *testing.T) {
	f := newReminderFixture(t, false, workflow.DeliveryNeedsToSign)
	snap, err := f.store.GetSnapshot(context.Background(), f.w.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateEnvelopeStatus(context.Background(), snap.Envelope.ID, workflow.EnvelopeExpired, nil))

	assert.ErrorIs(t, f.sched.RemindNow(context.Background(), fixedUUID(1)), workflow.ErrEnvelopeClosed)
}

func TestCancelRemindersIdempotent(t *testing.T) {
	f := newReminderFixture(t, false, workflow.DeliveryNeedsToSign)

	f.sched.CancelReminders(f.w.ID)
	f.sched.CancelReminders(f.w.ID)

	count, err := f.sched.RemindAll(context.Background(), f.w.ID)
	require.NoError(t, err)
	// RemindAll still works on demand; cancellation only silences the
	// periodic loop.
	assert.Equal(t, 1, count)
}
