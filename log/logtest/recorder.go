/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/task-gateway/log"
)

var levels = map[logf.Level]log.Level{
	logf.LevelError: log.LevelError,
	logf.LevelWarn:  log.LevelWarn,
	logf.LevelInfo:  log.LevelInfo,
	logf.LevelDebug: log.LevelDebug,
}

// RecordedEntry is a single logged message with the fields of the logger and of the call.
type RecordedEntry struct {
	LoggerName string
	Fields     []log.Field
	Level      log.Level
	Time       time.Time
	Text       string
}

// FindField returns the first field with the given key.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			return &re.Fields[i], true
		}
	}
	return nil, false
}

// StringField returns the value of a string field, "" when absent.
func (re *RecordedEntry) StringField(key string) string {
	f, ok := re.FindField(key)
	if !ok {
		return ""
	}
	return string(f.Bytes)
}

// entryStore is a logf.EntryWriter shared by a recorder and the loggers derived from it.
type entryStore struct {
	mu      sync.Mutex
	entries []RecordedEntry
}

func (s *entryStore) WriteEntry(e logf.Entry) { //nolint:gocritic // logf.EntryWriter signature
	level, ok := levels[e.Level]
	if !ok {
		level = log.LevelInfo
	}
	entry := RecordedEntry{LoggerName: e.LoggerName, Level: level, Time: e.Time, Text: e.Text}
	entry.Fields = append(append(entry.Fields, e.DerivedFields...), e.Fields...)

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
}

func (s *entryStore) snapshot() []RecordedEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedEntry(nil), s.entries...)
}

// Recorder is a log.FieldLogger keeping every entry of every level in memory.
type Recorder struct {
	log.FieldLogger
	store *entryStore
}

var _ log.FieldLogger = (*Recorder)(nil)

func NewRecorder() *Recorder {
	store := &entryStore{}
	return &Recorder{FieldLogger: &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, store)}, store: store}
}

// With derives a logger whose entries land in the same recorder.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{FieldLogger: r.FieldLogger.With(fs...), store: r.store}
}

func (r *Recorder) Entries() []RecordedEntry {
	return r.store.snapshot()
}

func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	return r.FindEntryByFilter(func(e RecordedEntry) bool { return e.Text == msg })
}

func (r *Recorder) FindEntryByFilter(filter func(entry RecordedEntry) bool) (RecordedEntry, bool) {
	if found := r.FindAllEntriesByFilter(filter); len(found) != 0 {
		return found[0], true
	}
	return RecordedEntry{}, false
}

func (r *Recorder) FindAllEntriesByFilter(filter func(entry RecordedEntry) bool) []RecordedEntry {
	var found []RecordedEntry
	for _, e := range r.store.snapshot() {
		if filter(e) {
			found = append(found, e)
		}
	}
	return found
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.store.mu.Lock()
	r.store.entries = nil
	r.store.mu.Unlock()
}
