// Package checkpoint persists one annotation record per judged sample. The presence of a
// record is the only completion signal the evaluation loop relies on.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/povarna/generative-ai-agents/qa-eval/internal/models"
)

var (
	// ErrNotFound indicates no record exists for the id.
	ErrNotFound = errors.New("record not found")
	// ErrEmptyID indicates an empty unique id was provided.
	ErrEmptyID = errors.New("record id must not be empty")
)

const recordExt = ".json"

// Store is a durable key-value medium for annotation records.
type Store interface {
	// Exists reports whether a record for id has been persisted.
	Exists(ctx context.Context, id string) (bool, error)
	// Put persists a record atomically. Concurrent readers observe either no record or the
	// complete record, never a partial one.
	Put(ctx context.Context, id string, record models.AnnotationRecord) error
	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (models.AnnotationRecord, error)
	// ListIDs returns the ids of all persisted records in no particular order.
	ListIDs(ctx context.Context) ([]string, error)
	Close() error
}

// objectName maps a unique id to its artifact name, <id>.json. Only path separators, '%',
// NUL and a leading dot are escaped; every other byte is kept as is.
func objectName(id string) (string, error) {
	if id == "" {
		return "", ErrEmptyID
	}

	var b strings.Builder
	b.Grow(len(id) + len(recordExt))
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c == '/' || c == '\\' || c == '%' || c == 0 || (i == 0 && c == '.') {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	b.WriteString(recordExt)
	return b.String(), nil
}

// idFromObjectName reverses objectName. A name that does not unescape, such as one
// holding a bare '%', is taken verbatim. ok is false for names that are not records.
func idFromObjectName(name string) (string, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
		return "", false
	}
	raw := strings.TrimSuffix(name, recordExt)
	if raw == "" || strings.ContainsAny(raw, "/\x00") {
		return "", false
	}

	id, err := url.PathUnescape(raw)
	if err != nil {
		return raw, true
	}
	return id, true
}

// verbatimObjectName returns the unescaped <id>.json name when it differs from
// objectName(id) and still reads back as id. Records written by other tools use it.
func verbatimObjectName(id string) (string, bool) {
	escaped, err := objectName(id)
	if err != nil {
		return "", false
	}
	name := id + recordExt
	if name == escaped {
		return "", false
	}
	if got, ok := idFromObjectName(name); !ok || got != id {
		return "", false
	}
	return name, true
}

func decodeRecord(id string, data []byte) (models.AnnotationRecord, error) {
	var record models.AnnotationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return models.AnnotationRecord{}, fmt.Errorf("decode record %s: %w", id, err)
	}
	return record, nil
}
