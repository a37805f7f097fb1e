package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Cursor is the decoded position inside an ordered listing. Listings
// order on (created_at, id), so the pair uniquely resumes a page even
// when timestamps collide.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

// EncodeCursor returns the opaque token for a listing position.
func EncodeCursor(createdAt time.Time, id string) string {
	raw, _ := json.Marshal(Cursor{CreatedAt: createdAt, ID: id})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses an opaque token back into a position. An empty
// token means start from the beginning.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("store: invalid cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("store: invalid cursor: %w", err)
	}
	return &c, nil
}
