/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-admission/log"
)

// RecordedEntry is a logged entry with its own and derived (With) fields.
type RecordedEntry struct {
	Level  log.Level
	Time   time.Time
	Text   string
	Fields []log.Field
}

// FindField returns the field with the given key.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			return &re.Fields[i], true
		}
	}
	return nil, false
}

// FieldString returns the value of a string field, or "" if there is no such field.
func (re *RecordedEntry) FieldString(key string) string {
	if f, ok := re.FindField(key); ok {
		return string(f.Bytes)
	}
	return ""
}

// book is shared by a Recorder and all loggers derived from it.
type book struct {
	mu      sync.Mutex
	entries []RecordedEntry
}

//nolint:gocritic
func (b *book) WriteEntry(e logf.Entry) {
	fields := make([]log.Field, 0, len(e.Fields)+len(e.DerivedFields))
	fields = append(append(fields, e.Fields...), e.DerivedFields...)
	entry := RecordedEntry{Level: fromLogfLevel(e.Level), Time: e.Time, Text: e.Text, Fields: fields}

	b.mu.Lock()
	b.entries = append(b.entries, entry)
	b.mu.Unlock()
}

// Recorder is a log.FieldLogger that keeps every entry in memory at debug level and above.
type Recorder struct {
	*log.LogfAdapter
	book *book
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	b := &book{}
	return &Recorder{LogfAdapter: &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, b)}, book: b}
}

// With returns a logger with additional fields that records into the same Recorder.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{LogfAdapter: r.LogfAdapter.With(fs...).(*log.LogfAdapter), book: r.book}
}

// WithLevel returns a logger with an additional level check that records into the same Recorder.
func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return &Recorder{LogfAdapter: r.LogfAdapter.WithLevel(level).(*log.LogfAdapter), book: r.book}
}

// Entries returns a copy of all recorded entries.
func (r *Recorder) Entries() []RecordedEntry {
	return r.Filter(func(RecordedEntry) bool { return true })
}

// Filter returns recorded entries accepted by keep, in logging order.
func (r *Recorder) Filter(keep func(RecordedEntry) bool) []RecordedEntry {
	r.book.mu.Lock()
	defer r.book.mu.Unlock()
	var res []RecordedEntry
	for _, e := range r.book.entries {
		if keep(e) {
			res = append(res, e)
		}
	}
	return res
}

// FindEntry returns the first entry with the given message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	found := r.Filter(func(e RecordedEntry) bool { return e.Text == msg })
	if len(found) == 0 {
		return RecordedEntry{}, false
	}
	return found[0], true
}

// EntriesAtLevel returns entries of the given level.
func (r *Recorder) EntriesAtLevel(level log.Level) []RecordedEntry {
	return r.Filter(func(e RecordedEntry) bool { return e.Level == level })
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.book.mu.Lock()
	r.book.entries = nil
	r.book.mu.Unlock()
}

func fromLogfLevel(level logf.Level) log.Level {
	switch level {
	case logf.LevelError:
		return log.LevelError
	case logf.LevelWarn:
		return log.LevelWarn
	case logf.LevelDebug:
		return log.LevelDebug
	default:
		return log.LevelInfo
	}
}
