package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAttributesFromVector(t *testing.T) {
	t.Parallel()

	vec := make([]float32, AttributeCount)
	vec[1] = 0.9  // Age-Adult
	vec[35] = 0.4 // Accessory-Backpack

	p := ParEventPayload{AttributesVec: vec}
	items, scores := p.ParseAttributes()
	require.Len(t, items, AttributeCount)
	require.Len(t, scores, AttributeCount)
	assert.Equal(t, AttributeItem{Name: "Age-Adult", Score: 0.9}, items[1])
	assert.Equal(t, float32(0.4), scores[35])
}

func TestParseAttributesFromStrings(t *testing.T) {
	t.Parallel()

	p := ParEventPayload{Attributes: []string{
		"Age-Adult (0.91)",
		"UpperBody-Color-Red(0.5)",
		"  Accessory-Hat (1e-2) ",
	}}
	items, scores := p.ParseAttributes()
	require.Len(t, scores, AttributeCount)

	byName := map[string]float32{}
	for _, it := range items {
		byName[it.Name] = it.Score
	}
	assert.InDelta(t, 0.91, byName["Age-Adult"], 1e-6)
	assert.InDelta(t, 0.5, byName["UpperBody-Color-Red"], 1e-6)
	assert.InDelta(t, 0.01, byName["Accessory-Hat"], 1e-6)
	assert.InDelta(t, 0.91, scores[attrIndex["Age-Adult"]], 1e-6)
}

func TestParseAttributesIgnoresUnknownNames(t *testing.T) {
	t.Parallel()

	p := ParEventPayload{Attributes: []string{
		"Age-Adult (0.9)",
		"Wings-Feathered (0.8)",
		"not an attribute at all",
	}}
	items, scores := p.ParseAttributes()
	require.Len(t, items, 1)
	assert.Equal(t, "Age-Adult", items[0].Name)
	require.Len(t, scores, AttributeCount)
}

func TestParseAttributesVectorWinsOverStrings(t *testing.T) {
	t.Parallel()

	vec := make([]float32, AttributeCount)
	vec[0] = 0.7
	p := ParEventPayload{
		Attributes:    []string{"Age-Young (0.1)"},
		AttributesVec: vec,
	}
	_, scores := p.ParseAttributes()
	assert.Equal(t, float32(0.7), scores[0])
}

func TestParseAttributesAbsent(t *testing.T) {
	t.Parallel()

	p := ParEventPayload{}
	items, scores := p.ParseAttributes()
	assert.Nil(t, items)
	assert.Nil(t, scores)
}
