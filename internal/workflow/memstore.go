package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"sealflow/internal/signing"
)

// MemStore implements Store with in-memory state. It backs unit tests and
// local runs; the postgres store in internal/database is the production
// implementation. A single mutex serializes every unit of work, which
// trivially satisfies the atomicity contract.
type MemStore struct {
	mu    sync.Mutex
	state memState
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{state: memState{
		workflows:  make(map[uuid.UUID]*Workflow),
		envelopes:  make(map[uuid.UUID]*Envelope),
		recipients: make(map[uuid.UUID]*Recipient),
		tokens:     make(map[string]*SigningToken),
		signatures: make(map[uuid.UUID]*Signature),
		versions:   make(map[uuid.UUID][]DocumentVersion),
		fields:     make(map[uuid.UUID][]signing.Field),
	}}
}

// Seed loads a dispatched workflow with its envelope, recipients, tokens
// and field placements.
func (m *MemStore) Seed(w Workflow, e Envelope, rs []Recipient, ts []SigningToken, fs []signing.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w2 := w
	m.state.workflows[w.ID] = &w2
	e2 := e
	m.state.envelopes[e.ID] = &e2
	for _, r := range rs {
		r2 := r
		m.state.recipients[r.ID] = &r2
	}
	for _, t := range ts {
		t2 := t
		m.state.tokens[t.Token] = &t2
	}
	m.state.fields[w.ID] = append([]signing.Field(nil), fs...)
}

func (m *MemStore) Tx(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Tx(ctx, fn)
}

func (m *MemStore) GetWorkflow(ctx context.Context, id uuid.UUID) (Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetWorkflow(ctx, id)
}

func (m *MemStore) ListActiveWorkflows(ctx context.Context) ([]Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListActiveWorkflows(ctx)
}

func (m *MemStore) UpdateWorkflowStatus(ctx context.Context, id uuid.UUID, status WorkflowStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateWorkflowStatus(ctx, id, status)
}

func (m *MemStore) UpdateEnvelopeStatus(ctx context.Context, id uuid.UUID, status EnvelopeStatus, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateEnvelopeStatus(ctx, id, status, completedAt)
}

func (m *MemStore) GetSnapshot(ctx context.Context, workflowID uuid.UUID) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetSnapshot(ctx, workflowID)
}

func (m *MemStore) SnapshotForRecipient(ctx context.Context, recipientID uuid.UUID) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SnapshotForRecipient(ctx, recipientID)
}

func (m *MemStore) GetToken(ctx context.Context, token string) (SigningToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetToken(ctx, token)
}

func (m *MemStore) ConsumeToken(ctx context.Context, token string, now time.Time) (SigningToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ConsumeToken(ctx, token, now)
}

func (m *MemStore) GetSignature(ctx context.Context, recipientID uuid.UUID) (Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetSignature(ctx, recipientID)
}

func (m *MemStore) SaveSignature(ctx context.Context, sig Signature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveSignature(ctx, sig)
}

func (m *MemStore) AppendVersion(ctx context.Context, signedDocumentID uuid.UUID, blobRef string, now time.Time) (DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AppendVersion(ctx, signedDocumentID, blobRef, now)
}

func (m *MemStore) GetLatestVersion(ctx context.Context, signedDocumentID uuid.UUID) (DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetLatestVersion(ctx, signedDocumentID)
}

func (m *MemStore) ListFields(ctx context.Context, workflowID uuid.UUID) ([]signing.Field, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListFields(ctx, workflowID)
}

func (m *MemStore) SetLastReminded(ctx context.Context, recipientID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SetLastReminded(ctx, recipientID, at)
}

// memState is the unlocked core. Tx hands it to the callback so nested
// calls inside a unit of work do not deadlock on the MemStore mutex.
type memState struct {
	workflows  map[uuid.UUID]*Workflow
	envelopes  map[uuid.UUID]*Envelope
	recipients map[uuid.UUID]*Recipient
	tokens     map[string]*SigningToken
	signatures map[uuid.UUID]*Signature
	versions   map[uuid.UUID][]DocumentVersion
	fields     map[uuid.UUID][]signing.Field
}

// Tx snapshots the state and restores it when fn fails, mirroring the
// rollback a real transaction gives: a gate rejection must leave the
// token unconsumed.
func (s *memState) Tx(ctx context.Context, fn func(Store) error) error {
	saved := s.clone()
	if err := fn(s); err != nil {
		*s = saved
		return err
	}
	return nil
}

func (s *memState) clone() memState {
	c := memState{
		workflows:  make(map[uuid.UUID]*Workflow, len(s.workflows)),
		envelopes:  make(map[uuid.UUID]*Envelope, len(s.envelopes)),
		recipients: make(map[uuid.UUID]*Recipient, len(s.recipients)),
		tokens:     make(map[string]*SigningToken, len(s.tokens)),
		signatures: make(map[uuid.UUID]*Signature, len(s.signatures)),
		versions:   make(map[uuid.UUID][]DocumentVersion, len(s.versions)),
		fields:     make(map[uuid.UUID][]signing.Field, len(s.fields)),
	}
	for id, w := range s.workflows {
		w2 := *w
		c.workflows[id] = &w2
	}
	for id, e := range s.envelopes {
		e2 := *e
		c.envelopes[id] = &e2
	}
	for id, r := range s.recipients {
		r2 := *r
		c.recipients[id] = &r2
	}
	for k, t := range s.tokens {
		t2 := *t
		c.tokens[k] = &t2
	}
	for id, sig := range s.signatures {
		sig2 := *sig
		c.signatures[id] = &sig2
	}
	for id, vs := range s.versions {
		c.versions[id] = append([]DocumentVersion(nil), vs...)
	}
	for id, fs := range s.fields {
		c.fields[id] = append([]signing.Field(nil), fs...)
	}
	return c
}

func (s *memState) GetWorkflow(ctx context.Context, id uuid.UUID) (Workflow, error) {
	w, ok := s.workflows[id]
	if !ok {
		return Workflow{}, errors.Wrap(ErrNotFound, "workflow")
	}
	return *w, nil
}

func (s *memState) ListActiveWorkflows(ctx context.Context) ([]Workflow, error) {
	var out []Workflow
	for _, w := range s.workflows {
		if !w.Status.Terminal() {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (s *memState) UpdateWorkflowStatus(ctx context.Context, id uuid.UUID, status WorkflowStatus) error {
	w, ok := s.workflows[id]
	if !ok {
		return errors.Wrap(ErrNotFound, "workflow")
	}
	w.Status = status
	w.UpdatedAt = time.Now()
	return nil
}

func (s *memState) UpdateEnvelopeStatus(ctx context.Context, id uuid.UUID, status EnvelopeStatus, completedAt *time.Time) error {
	e, ok := s.envelopes[id]
	if !ok {
		return errors.Wrap(ErrNotFound, "envelope")
	}
	e.Status = status
	if completedAt != nil {
		e.CompletedAt = completedAt
	}
	return nil
}

func (s *memState) envelopeForWorkflow(workflowID uuid.UUID) (*Envelope, bool) {
	for _, e := range s.envelopes {
		if e.WorkflowID == workflowID {
			return e, true
		}
	}
	return nil, false
}

func (s *memState) GetSnapshot(ctx context.Context, workflowID uuid.UUID) (Snapshot, error) {
	w, ok := s.workflows[workflowID]
	if !ok {
		return Snapshot{}, errors.Wrap(ErrNotFound, "workflow")
	}
	e, ok := s.envelopeForWorkflow(workflowID)
	if !ok {
		return Snapshot{}, errors.Wrap(ErrNotFound, "envelope")
	}
	snap := Snapshot{
		Workflow:   *w,
		Envelope:   *e,
		Signatures: make(map[uuid.UUID]Signature),
	}
	for _, r := range s.recipients {
		if r.EnvelopeID == e.ID {
			snap.Recipients = append(snap.Recipients, *r)
			if sig, ok := s.signatures[r.ID]; ok {
				snap.Signatures[r.ID] = *sig
			}
		}
	}
	sortByPriority(snap.Recipients)
	return snap, nil
}

func (s *memState) SnapshotForRecipient(ctx context.Context, recipientID uuid.UUID) (Snapshot, error) {
	r, ok := s.recipients[recipientID]
	if !ok {
		return Snapshot{}, errors.Wrap(ErrNotFound, "recipient")
	}
	e, ok := s.envelopes[r.EnvelopeID]
	if !ok {
		return Snapshot{}, errors.Wrap(ErrNotFound, "envelope")
	}
	return s.GetSnapshot(ctx, e.WorkflowID)
}

func (s *memState) GetToken(ctx context.Context, token string) (SigningToken, error) {
	t, ok := s.tokens[token]
	if !ok {
		return SigningToken{}, ErrTokenInvalid
	}
	return *t, nil
}

func (s *memState) ConsumeToken(ctx context.Context, token string, now time.Time) (SigningToken, error) {
	t, ok := s.tokens[token]
	if !ok {
		return SigningToken{}, ErrTokenInvalid
	}
	if t.Used {
		return SigningToken{}, ErrTokenUsed
	}
	if now.After(t.ExpiresAt) {
		return SigningToken{}, ErrTokenExpired
	}
	t.Used = true
	usedAt := now
	t.UsedAt = &usedAt
	return *t, nil
}

func (s *memState) GetSignature(ctx context.Context, recipientID uuid.UUID) (Signature, error) {
	sig, ok := s.signatures[recipientID]
	if !ok {
		return Signature{}, errors.Wrap(ErrNotFound, "signature")
	}
	return *sig, nil
}

func (s *memState) SaveSignature(ctx context.Context, sig Signature) error {
	s2 := sig
	s.signatures[sig.RecipientID] = &s2
	return nil
}

func (s *memState) AppendVersion(ctx context.Context, signedDocumentID uuid.UUID, blobRef string, now time.Time) (DocumentVersion, error) {
	existing := s.versions[signedDocumentID]
	v := DocumentVersion{
		ID:               uuid.New(),
		SignedDocumentID: signedDocumentID,
		Version:          len(existing) + 1,
		BlobRef:          blobRef,
		CreatedAt:        now,
	}
	s.versions[signedDocumentID] = append(existing, v)
	return v, nil
}

func (s *memState) GetLatestVersion(ctx context.Context, signedDocumentID uuid.UUID) (DocumentVersion, error) {
	vs := s.versions[signedDocumentID]
	if len(vs) == 0 {
		return DocumentVersion{}, errors.Wrap(ErrNotFound, "document version")
	}
	return vs[len(vs)-1], nil
}

func (s *memState) ListFields(ctx context.Context, workflowID uuid.UUID) ([]signing.Field, error) {
	return append([]signing.Field(nil), s.fields[workflowID]...), nil
}

func (s *memState) SetLastReminded(ctx context.Context, recipientID uuid.UUID, at time.Time) error {
	r, ok := s.recipients[recipientID]
	if !ok {
		return errors.Wrap(ErrNotFound, "recipient")
	}
	t := at
	r.LastRemindedAt = &t
	return nil
}
