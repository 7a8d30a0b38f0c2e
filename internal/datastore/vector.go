// vector.go: column types for fixed-length vectors and attribute lists.
//
// SQLite and MySQL have no native vector column, so embeddings and score
// vectors are stored as JSON text. Nearest-neighbor search runs against the
// in-process index (internal/identity), not SQL.
package datastore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/sentinelvision/sentinel-central/internal/envelope"
)

// FloatVector stores a float32 slice as a JSON text column.
type FloatVector []float32

// Value implements driver.Valuer.
func (v FloatVector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal([]float32(v))
	if err != nil {
		return nil, fmt.Errorf("encoding float vector: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (v *FloatVector) Scan(src any) error {
	return scanJSON(src, (*[]float32)(v))
}

// IntVector stores an int slice as a JSON text column.
type IntVector []int

// Value implements driver.Valuer.
func (v IntVector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal([]int(v))
	if err != nil {
		return nil, fmt.Errorf("encoding int vector: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (v *IntVector) Scan(src any) error {
	return scanJSON(src, (*[]int)(v))
}

// AttributeItems stores parsed attribute name/score pairs as JSON text.
type AttributeItems []envelope.AttributeItem

// Value implements driver.Valuer.
func (a AttributeItems) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal([]envelope.AttributeItem(a))
	if err != nil {
		return nil, fmt.Errorf("encoding attribute items: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (a *AttributeItems) Scan(src any) error {
	return scanJSON(src, (*[]envelope.AttributeItem)(a))
}

func scanJSON(src, target any) error {
	if src == nil {
		return nil
	}
	switch data := src.(type) {
	case []byte:
		return json.Unmarshal(data, target)
	case string:
		return json.Unmarshal([]byte(data), target)
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
}
