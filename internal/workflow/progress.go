package workflow

import "math"

// Progress is the read-side completion projection. Fractions keep full
// precision for recomputation; the percent fields are rounded for
// display. Overall progress is the signature percentage; envelope
// progress rides alongside without overriding it.
type Progress struct {
	SignedRecipients   int     `json:"signed_recipients"`
	TotalRecipients    int     `json:"total_recipients"`
	CompletedEnvelopes int     `json:"completed_envelopes"`
	TotalEnvelopes     int     `json:"total_envelopes"`
	SignatureFraction  float64 `json:"signature_fraction"`
	EnvelopeFraction   float64 `json:"envelope_fraction"`
	SignaturePercent   int     `json:"signature_percent"`
	EnvelopePercent    int     `json:"envelope_percent"`
	OverallPercent     int     `json:"overall_percent"`
}

// ProjectProgress derives completion metrics from a snapshot. The
// recipient denominator counts signing-required recipients; copy-only
// recipients cannot contribute a signature. Zero denominators yield 0%,
// never an error.
func ProjectProgress(s Snapshot) Progress {
	p := Progress{TotalEnvelopes: 1}

	for _, r := range SigningOrder(s) {
		p.TotalRecipients++
		if s.SignedBy(r.ID) {
			p.SignedRecipients++
		}
	}
	if s.Envelope.Status == EnvelopeCompleted {
		p.CompletedEnvelopes = 1
	}

	p.SignatureFraction = fraction(p.SignedRecipients, p.TotalRecipients)
	p.EnvelopeFraction = fraction(p.CompletedEnvelopes, p.TotalEnvelopes)
	p.SignaturePercent = percent(p.SignatureFraction)
	p.EnvelopePercent = percent(p.EnvelopeFraction)
	p.OverallPercent = p.SignaturePercent
	return p
}

func fraction(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

func percent(f float64) int {
	return int(math.Round(f * 100))
}
