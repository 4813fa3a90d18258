package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"
)

// scannable abstracts sql.Row and sql.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// tsLayout is the stored timestamp format: ISO-8601 UTC with millisecond
// precision, which also sorts lexicographically.
const tsLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func fromNull(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// marshalJSON serialises v for a TEXT column; nil maps and slices encode
// as JSON null, which unmarshalStrings and unmarshalStringMap read back
// as nil.
func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func unmarshalStringMap(s string) map[string]string {
	if s == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
