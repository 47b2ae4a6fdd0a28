// Package pagination implements keyset cursors over (created_at, id) for
// append-only listings such as wallet history.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Params is one page request. A nil After starts from the newest row.
type Params struct {
	Limit int
	After *Cursor
}

// Cursor is the last row of the previous page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// NormalizeLimit clamps limit into [1, MaxLimit], defaulting when unset.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// Fetch is how many rows to load: one extra reveals whether a next page exists.
func (p Params) Fetch() int {
	return NormalizeLimit(p.Limit) + 1
}

// Trim cuts rows loaded with Fetch down to the page and returns the cursor
// for the next page, or "" on the last page.
func Trim[T any](p Params, rows []T, key func(T) Cursor) ([]T, string) {
	limit := NormalizeLimit(p.Limit)
	if len(rows) <= limit {
		return rows, ""
	}
	page := rows[:limit]
	return page, EncodeCursor(key(page[limit-1]))
}

// EncodeCursor renders an opaque URL-safe token. The timestamp keeps its
// offset so it compares equal to the stored value.
func EncodeCursor(c Cursor) string {
	payload := c.CreatedAt.Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes a token from EncodeCursor. Blank input is no cursor.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	createdAt, id, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil, fmt.Errorf("invalid cursor format")
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor id: %w", err)
	}
	return &Cursor{CreatedAt: t, ID: parsedID}, nil
}
