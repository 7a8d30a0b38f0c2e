// attributes.go: canonical person-attribute table and parsing.
package envelope

import (
	"regexp"
	"strconv"
	"strings"
)

// AttributeCount is the length of the canonical attribute score vector.
const AttributeCount = 40

// attrOrder is the fixed, ordered attribute-name table. Score vectors are
// indexed by position in this table.
var attrOrder = [AttributeCount]string{
	"Age-Young", "Age-Adult", "Age-Old", "Gender-Female",
	"Hair-Length-Short", "Hair-Length-Long", "Hair-Length-Bald",
	"UpperBody-Length-Short",
	"UpperBody-Color-Black", "UpperBody-Color-Blue", "UpperBody-Color-Brown",
	"UpperBody-Color-Green", "UpperBody-Color-Grey", "UpperBody-Color-Orange",
	"UpperBody-Color-Pink", "UpperBody-Color-Purple", "UpperBody-Color-Red",
	"UpperBody-Color-White", "UpperBody-Color-Yellow", "UpperBody-Color-Other",
	"LowerBody-Length-Short",
	"LowerBody-Color-Black", "LowerBody-Color-Blue", "LowerBody-Color-Brown",
	"LowerBody-Color-Green", "LowerBody-Color-Grey", "LowerBody-Color-Orange",
	"LowerBody-Color-Pink", "LowerBody-Color-Purple", "LowerBody-Color-Red",
	"LowerBody-Color-White", "LowerBody-Color-Yellow", "LowerBody-Color-Other",
	"LowerBody-Type-Trousers&Shorts", "LowerBody-Type-Skirt&Dress",
	"Accessory-Backpack", "Accessory-Bag", "Accessory-Glasses-Normal",
	"Accessory-Glasses-Sun", "Accessory-Hat",
}

var attrIndex = buildAttrIndex()

func buildAttrIndex() map[string]int {
	idx := make(map[string]int, AttributeCount)
	for i, name := range attrOrder {
		idx[name] = i
	}
	return idx
}

// AttributeName returns the canonical name for a vector slot.
func AttributeName(i int) string {
	return attrOrder[i]
}

// attrPattern matches strings of the form "Name (score)".
var attrPattern = regexp.MustCompile(`^(.+?)\s*\(([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)\)\s*$`)

// AttributeItem is a human-readable name/score pair.
type AttributeItem struct {
	Name  string  `json:"name"`
	Score float32 `json:"score"`
}

// ParseAttributes converts either the authoritative fixed-length score
// vector or "Name (score)" strings into name/score items plus the
// canonical score vector. The vector wins when both are present.
// Unrecognized names are ignored but do not fail the parse. Returns nil
// items and a nil vector when the payload carries neither form.
func (p *ParEventPayload) ParseAttributes() ([]AttributeItem, []float32) {
	if p.AttributesVec != nil {
		vec := make([]float32, AttributeCount)
		copy(vec, p.AttributesVec)
		items := make([]AttributeItem, AttributeCount)
		for i := range vec {
			items[i] = AttributeItem{Name: attrOrder[i], Score: vec[i]}
		}
		return items, vec
	}

	if len(p.Attributes) == 0 {
		return nil, nil
	}

	vec := make([]float32, AttributeCount)
	var items []AttributeItem
	for _, s := range p.Attributes {
		m := attrPattern.FindStringSubmatch(strings.TrimSpace(s))
		if m == nil {
			continue
		}
		score, err := strconv.ParseFloat(m[2], 32)
		if err != nil {
			continue
		}
		i, ok := attrIndex[m[1]]
		if !ok {
			continue
		}
		items = append(items, AttributeItem{Name: m[1], Score: float32(score)})
		vec[i] = float32(score)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items, vec
}
