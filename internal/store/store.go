// Package store provides the local key-value store the analytics queue and the
// recommendation engine persist into.
//
// A store maps a key to an ordered list of opaque JSON records. Records are
// stored individually; a reader discards a corrupt record without losing the
// rest of the collection.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Well-known keys. Analytics and recommendation state live under dedicated
// keys distinct from feature-module data.
const (
	KeyAnalyticsQueue  = "analytics:queue"
	KeyAnalyticsPrefs  = "analytics:prefs"
	KeyRecommendations = "command_center:recommendations"
	KeyNotes           = "notebook:notes"
	KeyTasks           = "tasks:tasks"
	KeyCalendarEvents  = "calendar:events"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// Record is a single opaque JSON value.
type Record = json.RawMessage

// Store is the local persistence collaborator.
type Store interface {
	// Get returns the records stored under key in insertion order.
	// A missing key yields an empty result, not an error.
	Get(ctx context.Context, key string) ([]Record, error)
	// Set atomically replaces the records stored under key.
	Set(ctx context.Context, key string, records []Record) error
	// Close releases backend resources.
	Close() error
}

// Encode marshals v into a Record.
func Encode(v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return Record(data), nil
}

// EncodeAll marshals every value into a Record, preserving order.
func EncodeAll[T any](values []T) ([]Record, error) {
	out := make([]Record, 0, len(values))
	for i := range values {
		rec, err := Encode(values[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// DecodeEach unmarshals every record into a T. Records that fail to decode,
// or that validate rejects, are skipped and counted in discarded.
func DecodeEach[T any](records []Record, validate func(T) error) (out []T, discarded int) {
	out = make([]T, 0, len(records))
	for _, rec := range records {
		var v T
		if err := json.Unmarshal(rec, &v); err != nil {
			discarded++
			continue
		}
		if validate != nil {
			if err := validate(v); err != nil {
				discarded++
				continue
			}
		}
		out = append(out, v)
	}
	return out, discarded
}

func cloneRecords(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		c := make(Record, len(r))
		copy(c, r)
		out[i] = c
	}
	return out
}
