package client

import (
	"log/slog"
	"sync"
	"time"
)

// ActivityEntry is one line of the facade's activity log
type ActivityEntry struct {
	Time    time.Time
	Level   slog.Level
	Message string
}

// activityLog is a bounded, truncating log of recent subsystem
// activity. When full, the oldest entries fall off.
type activityLog struct {
	mu      sync.Mutex
	max     int
	min     slog.Level
	entries []ActivityEntry
}

func newActivityLog(max int, min slog.Level) *activityLog {
	if max <= 0 {
		max = 1
	}
	return &activityLog{
		max: max,
		min: min,
	}
}

func (l *activityLog) add(level slog.Level, msg string) {
	if level < l.min {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, ActivityEntry{
		Time:    time.Now(),
		Level:   level,
		Message: msg,
	})
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// Entries returns a copy of the log, oldest first
func (l *activityLog) Entries() []ActivityEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ActivityEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
