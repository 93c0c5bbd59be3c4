// Package oplog keeps the bounded log of print operations shown to operators
package oplog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the number of entries retained when none is configured.
const DefaultCapacity = 100

// Level of an operation log entry
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// Entry is one operation log record
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// Log is a fixed-capacity ring buffer of entries. The oldest entry is
// evicted first. When a file path is set the buffer is written to it after
// every append.
type Log struct {
	entries  []Entry
	start    int
	count    int
	filePath string
	logger   *slog.Logger
	now      func() time.Time

	subscribers map[chan Entry]struct{}
	mu          sync.RWMutex
}

// New creates a Log and reloads any entries previously saved at filePath.
// An empty filePath keeps the log in memory only.
func New(capacity int, filePath string, logger *slog.Logger) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Log{
		entries:     make([]Entry, capacity),
		filePath:    filePath,
		logger:      logger,
		now:         time.Now,
		subscribers: make(map[chan Entry]struct{}),
	}

	if filePath != "" {
		if err := l.load(); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to load operation log", "path", filePath, "err", err)
		}
	}
	return l
}

// Append records a new entry and returns it.
func (l *Log) Append(level Level, message string, data map[string]any) Entry {
	entry := Entry{
		ID:        uuid.New().String(),
		Timestamp: l.now(),
		Level:     level,
		Message:   message,
		Data:      data,
	}

	l.mu.Lock()
	l.push(entry)
	if l.filePath != "" {
		if err := l.save(); err != nil {
			l.logger.Warn("failed to save operation log", "path", l.filePath, "err", err)
		}
	}
	for ch := range l.subscribers {
		select {
		case ch <- entry:
		default:
			// Slow subscriber, drop the entry rather than block printing.
		}
	}
	l.mu.Unlock()

	return entry
}

func (l *Log) Info(message string, data map[string]any) Entry {
	return l.Append(LevelInfo, message, data)
}

func (l *Log) Warn(message string, data map[string]any) Entry {
	return l.Append(LevelWarn, message, data)
}

func (l *Log) Error(message string, data map[string]any) Entry {
	return l.Append(LevelError, message, data)
}

func (l *Log) Success(message string, data map[string]any) Entry {
	return l.Append(LevelSuccess, message, data)
}

// Entries returns all retained entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot()
}

// Recent returns up to n of the newest entries, oldest first. n <= 0
// returns everything.
func (l *Log) Recent(n int) []Entry {
	all := l.Entries()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Capacity returns the ring size.
func (l *Log) Capacity() int {
	return len(l.entries)
}

// Subscribe returns a channel receiving every entry appended from now on.
func (l *Log) Subscribe() chan Entry {
	ch := make(chan Entry, 32)
	l.mu.Lock()
	l.subscribers[ch] = struct{}{}
	l.mu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (l *Log) Unsubscribe(ch chan Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.subscribers[ch]; ok {
		delete(l.subscribers, ch)
		close(ch)
	}
}

func (l *Log) push(e Entry) {
	capacity := len(l.entries)
	if l.count < capacity {
		l.entries[(l.start+l.count)%capacity] = e
		l.count++
		return
	}
	l.entries[l.start] = e
	l.start = (l.start + 1) % capacity
}

func (l *Log) snapshot() []Entry {
	out := make([]Entry, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.entries[(l.start+i)%len(l.entries)]
	}
	return out
}

func (l *Log) load() error {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return err
	}

	var saved []Entry
	if err := json.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("failed to decode %s: %w", l.filePath, err)
	}
	for _, e := range saved {
		l.push(e)
	}
	return nil
}

func (l *Log) save() error {
	data, err := json.MarshalIndent(l.snapshot(), "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(l.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(l.filePath, data, 0644)
}
