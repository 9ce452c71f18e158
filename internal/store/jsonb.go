package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// jsonbMap scans a PostgreSQL jsonb object of string values.
type jsonbMap map[string]string

// Value implements the driver.Valuer interface.
func (j jsonbMap) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface.
func (j *jsonbMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into jsonbMap", value)
	}
	return json.Unmarshal(b, j)
}
