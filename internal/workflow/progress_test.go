package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProjectProgressEmptyWorkflow(t *testing.T) {
	p := ProjectProgress(testSnapshot(false, nil))
	assert.Equal(t, 0, p.TotalRecipients)
	assert.Equal(t, 0, p.SignaturePercent)
	assert.Equal(t, 0, p.OverallPercent)
	assert.Equal(t, 1, p.TotalEnvelopes)
}

func TestProjectProgressRounding(t *testing.T) {
	recipients := []Recipient{signer(1, 1), signer(2, 2), signer(3, 3)}

	p := ProjectProgress(testSnapshot(false, recipients, fixedUUID(1)))
	assert.Equal(t, 1, p.SignedRecipients)
	assert.Equal(t, 3, p.TotalRecipients)
	assert.Equal(t, 33, p.SignaturePercent)
	assert.InDelta(t, 1.0/3.0, p.SignatureFraction, 1e-9)

	p = ProjectProgress(testSnapshot(false, recipients, fixedUUID(1), fixedUUID(2)))
	assert.Equal(t, 67, p.SignaturePercent)
	assert.Equal(t, 67, p.OverallPercent)
}

func TestProjectProgressExcludesCopyRecipients(t *testing.T) {
	recipients := []Recipient{signer(1, 1), copyRecipient(2)}
	p := ProjectProgress(testSnapshot(false, recipients, fixedUUID(1)))
	assert.Equal(t, 1, p.TotalRecipients)
	assert.Equal(t, 100, p.SignaturePercent)
}

func TestProjectProgressEnvelopeCompletion(t *testing.T) {
	s := testSnapshot(false, []Recipient{signer(1, 1)}, fixedUUID(1))
	s.Envelope.Status = EnvelopeCompleted

	p := ProjectProgress(s)
	assert.Equal(t, 1, p.CompletedEnvelopes)
	assert.Equal(t, 100, p.EnvelopePercent)
	assert.Equal(t, 100, p.OverallPercent)
}
