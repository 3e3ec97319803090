// Package signing holds the field placement model and the document
// assembly engine: everything needed to turn captured field values into
// drawn content on a signed document.
package signing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// FieldType identifies how a field's value is rendered.
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldDate      FieldType = "date"
	FieldCheckbox  FieldType = "checkbox"
	FieldInitials  FieldType = "initials"
	FieldName      FieldType = "name"
	FieldFullName  FieldType = "full_name"
	FieldEmail     FieldType = "email"
	FieldMobile    FieldType = "mobile"
	FieldSignature FieldType = "signature"
	FieldImage     FieldType = "image"
	FieldFile      FieldType = "file"
)

var validFieldTypes = map[FieldType]bool{
	FieldText:      true,
	FieldDate:      true,
	FieldCheckbox:  true,
	FieldInitials:  true,
	FieldName:      true,
	FieldFullName:  true,
	FieldEmail:     true,
	FieldMobile:    true,
	FieldSignature: true,
	FieldImage:     true,
	FieldFile:      true,
}

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	return validFieldTypes[t]
}

// TextLike reports whether the field renders through the text policy
// (fixed box height, font baseline math).
func (t FieldType) TextLike() bool {
	switch t {
	case FieldText, FieldDate, FieldInitials, FieldName, FieldFullName, FieldEmail, FieldMobile:
		return true
	}
	return false
}

// FieldScope says who a field belongs to: a concrete recipient, or the
// common scope shared by every recipient of the workflow.
type FieldScope struct {
	recipientID uuid.UUID
	common      bool
}

// CommonScope returns the scope for fields replicated across all recipients.
func CommonScope() FieldScope {
	return FieldScope{common: true}
}

// ForRecipient returns the scope binding a field to one recipient.
func ForRecipient(recipientID uuid.UUID) FieldScope {
	return FieldScope{recipientID: recipientID}
}

// IsCommon reports whether the field is shared across recipients.
func (s FieldScope) IsCommon() bool {
	return s.common
}

// RecipientID returns the owning recipient and whether one is set.
func (s FieldScope) RecipientID() (uuid.UUID, bool) {
	if s.common {
		return uuid.Nil, false
	}
	return s.recipientID, true
}

// AppliesTo reports whether the field is visible to the given recipient.
func (s FieldScope) AppliesTo(recipientID uuid.UUID) bool {
	return s.common || s.recipientID == recipientID
}

// Position is a field's logical placement captured at the reference zoom.
// (X, Y) is always the top-left corner of the field's bounding box.
type Position struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Page   int     `json:"page"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Field is one typed, positioned input on a document page.
type Field struct {
	ID       uuid.UUID `json:"id"`
	Type     FieldType `json:"type"`
	Position Position  `json:"position"`
	Required bool      `json:"required"`
	Scope    FieldScope
	// GroupID dedupes common fields: the same logical common field is
	// stored once and rendered for whichever recipient is acting.
	GroupID string `json:"group_id"`
}

// ParsePosition parses the comma-joined wire form "x,y,page,width,height".
// The legacy 2-field form "x,y" is accepted: page defaults to 1 and the
// caller keeps the field's declared width/height (both zero here).
func ParsePosition(raw string) (Position, error) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	switch len(parts) {
	case 2, 5:
	default:
		return Position{}, fmt.Errorf("position %q: want 2 or 5 comma-joined values, got %d", raw, len(parts))
	}

	nums := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Position{}, fmt.Errorf("position %q: value %d is not numeric: %w", raw, i, err)
		}
		nums[i] = v
	}

	pos := Position{X: nums[0], Y: nums[1], Page: 1}
	if len(nums) == 5 {
		page := int(nums[2])
		if page < 1 {
			return Position{}, fmt.Errorf("position %q: page must be >= 1", raw)
		}
		pos.Page = page
		pos.Width = nums[3]
		pos.Height = nums[4]
	}
	return pos, nil
}

// WirePosition renders the 5-field wire form of a position.
func WirePosition(p Position) string {
	return fmt.Sprintf("%g,%g,%d,%g,%g", p.X, p.Y, p.Page, p.Width, p.Height)
}

// Filled reports whether a captured value counts as filled for
// required-field completion. Checkboxes are special: the literal "false"
// is an explicit negative answer and counts as filled, only the empty
// value does not.
func Filled(t FieldType, value string) bool {
	return value != ""
}
