package signing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePositionFullForm(t *testing.T) {
	pos, err := ParsePosition("10.5,20,3,100,50")
	require.NoError(t, err)
	assert.Equal(t, Position{X: 10.5, Y: 20, Page: 3, Width: 100, Height: 50}, pos)

	assert.Equal(t, "10.5,20,3,100,50", WirePosition(pos))
}

func TestParsePositionLegacyForm(t *testing.T) {
	pos, err := ParsePosition("10,20")
	require.NoError(t, err)
	assert.Equal(t, Position{X: 10, Y: 20, Page: 1}, pos)
}

func TestParsePositionRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"three values": "1,2,3",
		"not numeric":  "a,b",
		"page zero":    "1,2,0,3,4",
		"empty":        "",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePosition(raw)
			assert.Error(t, err)
		})
	}
}

func TestFieldScope(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()

	common := CommonScope()
	assert.True(t, common.IsCommon())
	assert.True(t, common.AppliesTo(alice))
	assert.True(t, common.AppliesTo(bob))
	_, ok := common.RecipientID()
	assert.False(t, ok)

	owned := ForRecipient(alice)
	assert.False(t, owned.IsCommon())
	assert.True(t, owned.AppliesTo(alice))
	assert.False(t, owned.AppliesTo(bob))
	id, ok := owned.RecipientID()
	assert.True(t, ok)
	assert.Equal(t, alice, id)
}

func TestFilledCheckboxFalseCounts(t *testing.T) {
	assert.True(t, Filled(FieldCheckbox, "true"))
	assert.True(t, Filled(FieldCheckbox, "false"))
	assert.False(t, Filled(FieldCheckbox, ""))
	assert.True(t, Filled(FieldText, "hello"))
	assert.False(t, Filled(FieldText, ""))
}
