// Package gate manages the IP allow-list protecting the print relay
package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrIPNotFound is returned when an operator acts on an IP with no entry.
var ErrIPNotFound = errors.New("IP not found")

// Status of an allow-list entry
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Entry is one client IP known to the relay
type Entry struct {
	IP             string     `json:"ip"`
	Label          string     `json:"label,omitempty"`
	Status         Status     `json:"status"`
	FirstSeenAt    time.Time  `json:"firstSeenAt"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	ApprovedAt     *time.Time `json:"approvedAt,omitempty"`
	RejectedAt     *time.Time `json:"rejectedAt,omitempty"`
}

// Store is the JSON-file backed allow-list. Every mutation rewrites the
// file while holding the lock.
type Store struct {
	filePath string
	trusted  map[string]bool
	data     map[string]*Entry
	logger   *slog.Logger
	now      func() time.Time
	mu       sync.RWMutex
}

// New loads the store from filePath. A missing file starts an empty store.
func New(filePath string, trusted []string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		filePath: filePath,
		trusted:  make(map[string]bool, len(trusted)),
		data:     make(map[string]*Entry),
		logger:   logger,
		now:      time.Now,
	}
	for _, ip := range trusted {
		if n := Normalize(ip); n != "" {
			s.trusted[n] = true
		}
	}

	if err := s.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load authorized IPs: %w", err)
		}
	}
	return s, nil
}

// Normalize canonicalises an IP string, unwrapping IPv4-mapped IPv6
// addresses. Unparseable input is returned trimmed.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	raw = strings.Trim(raw, "[]")
	ip := net.ParseIP(raw)
	if ip == nil {
		return raw
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}

// IsTrusted reports whether ip is on the configured trusted relay list.
func (s *Store) IsTrusted(ip string) bool {
	return s.trusted[Normalize(ip)]
}

// IsAuthorized reports whether ip may submit print jobs.
func (s *Store) IsAuthorized(ip string) bool {
	ip = Normalize(ip)
	if s.trusted[ip] {
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.data[ip]
	return ok && entry.Status == StatusApproved
}

// RecordUnknown creates a pending entry for ip or refreshes its activity
// time. The status of an existing entry is left alone.
func (s *Store) RecordUnknown(ip, label string) Entry {
	ip = Normalize(ip)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[ip]
	if !ok {
		entry = &Entry{
			IP:          ip,
			Label:       label,
			Status:      StatusPending,
			FirstSeenAt: now,
		}
		s.data[ip] = entry
	}
	entry.LastActivityAt = now
	if entry.Label == "" && label != "" {
		entry.Label = label
	}

	s.persist()
	return *entry
}

// Approve marks ip as approved. If the file cannot be written the entry is
// left unchanged and the error returned.
func (s *Store) Approve(ip string) (Entry, error) {
	return s.transition(ip, StatusApproved)
}

// Reject marks ip as rejected.
func (s *Store) Reject(ip string) (Entry, error) {
	return s.transition(ip, StatusRejected)
}

func (s *Store) transition(ip string, status Status) (Entry, error) {
	ip = Normalize(ip)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[ip]
	if !ok {
		return Entry{}, fmt.Errorf("%s: %w", ip, ErrIPNotFound)
	}

	previous := *entry
	entry.Status = status
	switch status {
	case StatusApproved:
		entry.ApprovedAt = &now
	case StatusRejected:
		entry.RejectedAt = &now
	}

	if err := s.save(); err != nil {
		*entry = previous
		return previous, fmt.Errorf("failed to save authorized IPs: %w", err)
	}
	return *entry, nil
}

// Remove deletes the entry for ip.
func (s *Store) Remove(ip string) error {
	ip = Normalize(ip)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[ip]
	if !ok {
		return fmt.Errorf("%s: %w", ip, ErrIPNotFound)
	}
	delete(s.data, ip)
	if err := s.save(); err != nil {
		s.data[ip] = entry
		return fmt.Errorf("failed to save authorized IPs: %w", err)
	}
	return nil
}

// Get returns the entry for ip.
func (s *Store) Get(ip string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.data[Normalize(ip)]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// List returns copies of all entries, oldest first.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted()
}

// Counts returns the number of entries per status.
func (s *Store) Counts() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[Status]int{StatusPending: 0, StatusApproved: 0, StatusRejected: 0}
	for _, e := range s.data {
		counts[e.Status]++
	}
	return counts
}

func (s *Store) sorted() []Entry {
	out := make([]Entry, 0, len(s.data))
	for _, e := range s.data {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeenAt.Equal(out[j].FirstSeenAt) {
			return out[i].IP < out[j].IP
		}
		return out[i].FirstSeenAt.Before(out[j].FirstSeenAt)
	})
	return out
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	for i := range entries {
		e := entries[i]
		e.IP = Normalize(e.IP)
		s.data[e.IP] = &e
	}
	return nil
}

// persist saves after a pending-entry update, where the caller has no error
// path. Must be called with mu held.
func (s *Store) persist() {
	if err := s.save(); err != nil {
		s.logger.Warn("failed to save authorized IPs", "path", s.filePath, "err", err)
	}
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.sorted(), "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.filePath)
}
