// Package loader imports user data (notes, tasks, calendar events) from a
// JSONL export. Each line is one record tagged with its kind:
//
//	{"kind":"task","id":"t1","title":"Ship","due_date":"2026-03-04T17:00:00Z"}
package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/aios/pkg/model"
)

// Record kinds accepted on the "kind" field.
const (
	KindNote  = "note"
	KindTask  = "task"
	KindEvent = "event"
)

// DefaultMaxBufferSize is the default buffer size for the reader (10MB).
const DefaultMaxBufferSize = 1024 * 1024 * 10

// ParseOptions configures the behavior of ParseSnapshot.
type ParseOptions struct {
	// WarningHandler is called with warning messages (e.g., malformed JSON).
	// If nil, warnings are printed to os.Stderr.
	WarningHandler func(string)

	// BufferSize sets the maximum line size (in bytes) to read at once.
	// Lines longer than this are skipped with a warning.
	// If 0, uses DefaultMaxBufferSize (10MB).
	BufferSize int
}

// Stats counts what an import read.
type Stats struct {
	Notes   int `json:"notes"`
	Tasks   int `json:"tasks"`
	Events  int `json:"events"`
	Skipped int `json:"skipped"`
}

// LoadSnapshotFromFile reads a JSONL export from path.
func LoadSnapshotFromFile(path string, opts ParseOptions) (model.Snapshot, Stats, error) {
	file, err := os.Open(path)
	if err != nil {
		return model.Snapshot{}, Stats{}, fmt.Errorf("failed to open import file: %w", err)
	}
	defer file.Close()

	return ParseSnapshot(file, opts)
}

// ParseSnapshot parses JSONL content into a snapshot. Malformed, invalid or
// unknown-kind lines are skipped with a warning; only read errors fail.
func ParseSnapshot(r io.Reader, opts ParseOptions) (model.Snapshot, Stats, error) {
	var snap model.Snapshot
	var stats Stats

	maxCapacity := opts.BufferSize
	if maxCapacity <= 0 {
		maxCapacity = DefaultMaxBufferSize
	}
	reader := bufio.NewReaderSize(r, maxCapacity)

	warn := opts.WarningHandler
	if warn == nil {
		warn = func(msg string) {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", msg)
		}
	}
	skip := func(format string, args ...any) {
		stats.Skipped++
		warn(fmt.Sprintf(format, args...))
	}

	lineNum := 0
	for {
		lineNum++
		// ReadLine returns a single line, not including the end-of-line bytes.
		// If the line was too long for the buffer then isPrefix is set and the
		// beginning of the line is returned.
		line, isPrefix, err := reader.ReadLine()
		if err != nil {
			if err == io.EOF {
				break
			}
			return snap, stats, fmt.Errorf("error reading import stream at line %d: %w", lineNum, err)
		}

		if isPrefix {
			skip("skipping line %d: line too long (exceeds %d bytes)", lineNum, maxCapacity)
			for isPrefix {
				_, isPrefix, err = reader.ReadLine()
				if err == io.EOF {
					break
				}
				if err != nil {
					return snap, stats, fmt.Errorf("error skipping long line at line %d: %w", lineNum, err)
				}
			}
			continue
		}

		if lineNum == 1 {
			line = stripBOM(line)
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var envelope struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(line, &envelope); err != nil {
			skip("skipping malformed JSON on line %d: %v", lineNum, err)
			continue
		}

		switch normalizeKind(envelope.Kind) {
		case KindNote:
			var n model.Note
			if err := decodeValid(line, &n); err != nil {
				skip("skipping invalid note on line %d: %v", lineNum, err)
				continue
			}
			snap.Notes = append(snap.Notes, n)
			stats.Notes++
		case KindTask:
			var t model.Task
			if err := decodeValid(line, &t); err != nil {
				skip("skipping invalid task on line %d: %v", lineNum, err)
				continue
			}
			snap.Tasks = append(snap.Tasks, t)
			stats.Tasks++
		case KindEvent:
			var e model.CalendarEvent
			if err := decodeValid(line, &e); err != nil {
				skip("skipping invalid event on line %d: %v", lineNum, err)
				continue
			}
			snap.Events = append(snap.Events, e)
			stats.Events++
		default:
			skip("skipping line %d: unknown kind %q", lineNum, envelope.Kind)
		}
	}

	return snap, stats, nil
}

// decodeValid unmarshals line into v and validates the result.
func decodeValid[T interface{ Validate() error }](line []byte, v *T) error {
	if err := json.Unmarshal(line, v); err != nil {
		return err
	}
	return (*v).Validate()
}

// stripBOM removes the UTF-8 Byte Order Mark if present
func stripBOM(b []byte) []byte {
	if bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}) {
		return b[3:]
	}
	return b
}

func normalizeKind(kind string) string {
	k := strings.ToLower(strings.TrimSpace(kind))
	switch k {
	case "notes":
		return KindNote
	case "tasks":
		return KindTask
	case "events", "calendar", "calendar_event":
		return KindEvent
	}
	return k
}
