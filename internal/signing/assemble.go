package signing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	// Raster decoders for signature/image blobs.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Document is the external drawing capability the engine renders through.
// Implementations wrap a real PDF library; the engine itself never touches
// document internals. All draw coordinates are in document points with a
// bottom-left origin.
type Document interface {
	// PageSize returns the native size of a 1-based page, or ok=false if
	// the document has no such page.
	PageSize(page int) (w, h float64, ok bool)
	DrawText(page int, x, y, fontSize float64, text string)
	DrawRect(page int, x, y, w, h float64)
	DrawCheck(page int, x, y, size float64)
	// DrawImage embeds a decoded raster image. Returns an error for blobs
	// the underlying library cannot embed.
	DrawImage(page int, x, y, w, h float64, img []byte) error
	// Bytes serializes the document. The result must be deterministic for
	// a deterministic draw sequence.
	Bytes() ([]byte, error)
}

// OpenDocument opens source bytes for drawing.
type OpenDocument func(src []byte) (Document, error)

// AssembleInput is everything one assembly run needs. CommonFields is an
// explicit parameter: shared fields are threaded through the call, never
// pulled from ambient state.
type AssembleInput struct {
	Source       []byte
	OverlayW     float64
	OverlayH     float64
	RecipientID  uuid.UUID
	Fields       []Field
	CommonFields []Field
	Values       map[uuid.UUID]string
}

// FieldWarning records a per-field problem that was recovered locally.
type FieldWarning struct {
	FieldID uuid.UUID
	Reason  string
}

// AssembleResult is the assembled bytes plus any non-fatal field warnings.
type AssembleResult struct {
	Bytes    []byte
	Warnings []FieldWarning
}

// Assembler renders filled field values into a source document. It is a
// pure transform: the same source, fields and values always produce the
// same bytes.
type Assembler struct {
	open   OpenDocument
	logger *zap.Logger
}

// NewAssembler wires the engine to a document opener.
func NewAssembler(open OpenDocument, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{open: open, logger: logger}
}

// Assemble draws every filled field for the acting recipient into the
// source document and returns the new bytes. Per-field problems (corrupt
// image blobs, fields placed on missing pages) are skipped; only opening
// or serializing the document fails the run.
func (a *Assembler) Assemble(in AssembleInput) (AssembleResult, error) {
	if in.OverlayW <= 0 || in.OverlayH <= 0 {
		return AssembleResult{}, fmt.Errorf("assemble: overlay size %gx%g is not positive", in.OverlayW, in.OverlayH)
	}

	doc, err := a.open(in.Source)
	if err != nil {
		return AssembleResult{}, fmt.Errorf("assemble: open document: %w", err)
	}

	var warnings []FieldWarning
	for _, f := range mergeFields(in.RecipientID, in.Fields, in.CommonFields) {
		value := in.Values[f.ID]
		if value == "" || f.Type == FieldFile {
			// Empty fields draw nothing; file values travel as
			// attachments, not page content.
			continue
		}

		pdfW, pdfH, ok := doc.PageSize(f.Position.Page)
		if !ok {
			// Templates get reused against shorter documents.
			continue
		}
		sc := ScaleFactors(in.OverlayW, in.OverlayH, pdfW, pdfH)

		if warn := a.drawField(doc, f, value, sc, pdfH); warn != nil {
			a.logger.Warn("field skipped during assembly",
				zap.String("field_id", f.ID.String()),
				zap.String("field_type", string(f.Type)),
				zap.String("reason", warn.Reason))
			warnings = append(warnings, *warn)
		}
	}

	out, err := doc.Bytes()
	if err != nil {
		return AssembleResult{}, fmt.Errorf("assemble: serialize document: %w", err)
	}
	return AssembleResult{Bytes: out, Warnings: warnings}, nil
}

func (a *Assembler) drawField(doc Document, f Field, value string, sc Scale, pageH float64) *FieldWarning {
	pos := f.Position
	switch {
	case f.Type.TextLike():
		// Glyphs center inside the fixed logical box height, so the flip
		// uses the baseline offset, not the stored field height.
		baselineOffset := textBaseline(pos.Y) - pos.Y
		x, y := toDocumentSpace(pos.X+textInsetX, pos.Y, baselineOffset, sc, pageH)
		doc.DrawText(pos.Page, x, y, textFontSize*sc.Y, value)

	case f.Type == FieldCheckbox:
		x, y := toDocumentSpace(pos.X, pos.Y, checkboxSize, sc, pageH)
		w, h := checkboxSize*sc.X, checkboxSize*sc.Y
		doc.DrawRect(pos.Page, x, y, w, h)
		if value == "true" {
			doc.DrawCheck(pos.Page, x, y, h)
		}

	case f.Type == FieldSignature || f.Type == FieldImage:
		img, nativeW, nativeH, err := decodeImageValue(value)
		if err != nil {
			return &FieldWarning{FieldID: f.ID, Reason: err.Error()}
		}
		drawnH := pos.Height
		if nativeW > 0 {
			if aspectH := pos.Width * nativeH / nativeW; aspectH < drawnH {
				drawnH = aspectH
			}
		}
		x, y := toDocumentSpace(pos.X, pos.Y, drawnH, sc, pageH)
		if err := doc.DrawImage(pos.Page, x, y, pos.Width*sc.X, drawnH*sc.Y, img); err != nil {
			return &FieldWarning{FieldID: f.ID, Reason: fmt.Sprintf("embed image: %v", err)}
		}

	default:
		return &FieldWarning{FieldID: f.ID, Reason: fmt.Sprintf("unknown field type %q", f.Type)}
	}
	return nil
}

// mergeFields combines the recipient's own fields with the common fields
// visible to them, deduplicating common fields by group id so a shared
// field renders once per assembly.
func mergeFields(recipientID uuid.UUID, own, common []Field) []Field {
	merged := make([]Field, 0, len(own)+len(common))
	for _, f := range own {
		if f.Scope.AppliesTo(recipientID) {
			merged = append(merged, f)
		}
	}
	seen := make(map[string]bool, len(common))
	for _, f := range common {
		if !f.Scope.IsCommon() {
			continue
		}
		if f.GroupID != "" {
			if seen[f.GroupID] {
				continue
			}
			seen[f.GroupID] = true
		}
		merged = append(merged, f)
	}
	return merged
}

// decodeImageValue decodes a mime-tagged data blob
// ("data:image/png;base64,....") and reports the raster's native size.
func decodeImageValue(value string) (data []byte, w, h float64, err error) {
	payload := value
	if strings.HasPrefix(value, "data:") {
		idx := strings.Index(value, ",")
		if idx < 0 {
			return nil, 0, 0, fmt.Errorf("malformed data blob: missing payload separator")
		}
		meta := value[len("data:"):idx]
		if !strings.Contains(meta, ";base64") {
			return nil, 0, 0, fmt.Errorf("malformed data blob: not base64 encoded")
		}
		payload = value[idx+1:]
	}

	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode image payload: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode image header: %w", err)
	}
	return data, float64(cfg.Width), float64(cfg.Height), nil
}
