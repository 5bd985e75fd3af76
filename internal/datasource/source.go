// Package datasource reads the feature-module records (notes, tasks,
// calendar events) that the recommendation engine inspects. Reads never
// mutate source data; a source that cannot be read counts as empty.
package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanderheijden86/aios/internal/store"
	"github.com/vanderheijden86/aios/pkg/model"
)

// SourceType identifies one feature-module collection.
type SourceType string

const (
	SourceNotes    SourceType = "notes"
	SourceTasks    SourceType = "tasks"
	SourceCalendar SourceType = "calendar"
)

// Key returns the local-store key holding the collection.
func (s SourceType) Key() string {
	switch s {
	case SourceNotes:
		return store.KeyNotes
	case SourceTasks:
		return store.KeyTasks
	case SourceCalendar:
		return store.KeyCalendarEvents
	}
	return ""
}

// Module returns the feature module owning the collection.
func (s SourceType) Module() model.ModuleID {
	switch s {
	case SourceNotes:
		return model.ModuleNotebook
	case SourceTasks:
		return model.ModuleTasks
	case SourceCalendar:
		return model.ModuleCalendar
	}
	return ""
}

// AllSources lists every collection a snapshot is built from.
func AllSources() []SourceType {
	return []SourceType{SourceNotes, SourceTasks, SourceCalendar}
}

// LoadResult describes how one collection was read.
type LoadResult struct {
	Source    SourceType `json:"source"`
	Count     int        `json:"count"`
	Discarded int        `json:"discarded"`
	Error     error      `json:"-"`
}

// String returns a human-readable description of the result
func (r LoadResult) String() string {
	status := "ok"
	if r.Error != nil {
		status = fmt.Sprintf("error: %v", r.Error)
	}
	return fmt.Sprintf("%s (%d records, %d discarded, %s)", r.Source, r.Count, r.Discarded, status)
}

// Reader produces read-only snapshots of user data.
type Reader interface {
	Snapshot(ctx context.Context) (model.Snapshot, []LoadResult)
}

// StoreReader reads snapshots from the local store.
type StoreReader struct {
	st     store.Store
	logger zerolog.Logger
	now    func() time.Time
}

// Option configures a StoreReader.
type Option func(*StoreReader)

// WithLogger sets the operator logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *StoreReader) { r.logger = l }
}

// WithClock overrides the time source used for CapturedAt.
func WithClock(now func() time.Time) Option {
	return func(r *StoreReader) { r.now = now }
}

// NewStoreReader returns a reader over st.
func NewStoreReader(st store.Store, opts ...Option) *StoreReader {
	r := &StoreReader{st: st, logger: zerolog.Nop(), now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}
