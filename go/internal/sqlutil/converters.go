package sqlutil

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// Helper functions for converting between Go types and nullable column types

// ToNullUUID converts a Go UUID pointer to uuid.NullUUID
func ToNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{Valid: false}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

// FromNullUUID converts uuid.NullUUID to Go UUID pointer
func FromNullUUID(val uuid.NullUUID) *uuid.UUID {
	if !val.Valid {
		return nil
	}
	return &val.UUID
}

// ToNullString maps the empty string to NULL
func ToNullString(val string) sql.NullString {
	return sql.NullString{String: val, Valid: val != ""}
}

// ToNullJSON marshals val, mapping nil and empty slices to NULL
func ToNullJSON[T any](val []T) (pqtype.NullRawMessage, error) {
	if len(val) == 0 {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("failed to marshal json column: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}
