// Package audit records security-relevant actions performed through the
// virtual filesystem.
//
// Auditing is an observer: a failure to record an entry is logged and never
// aborts the operation that triggered it.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/marmos91/homefs/internal/logger"
)

// Entry is a single audit record.
type Entry struct {
	Time    time.Time `json:"time"`
	UserID  string    `json:"user_id"`
	Action  string    `json:"action"`
	Details string    `json:"details,omitempty"`
}

// Auditor receives audit entries.
type Auditor interface {
	Record(ctx context.Context, entry Entry)
	Close() error
}

// Noop discards every entry.
type Noop struct{}

func (Noop) Record(context.Context, Entry) {}
func (Noop) Close() error                  { return nil }

// LogAuditor writes entries through the process logger at INFO level.
type LogAuditor struct{}

// NewLogAuditor creates an auditor backed by internal/logger.
func NewLogAuditor() *LogAuditor {
	return &LogAuditor{}
}

func (*LogAuditor) Record(_ context.Context, e Entry) {
	if e.Details != "" {
		logger.Info("AUDIT user=%s action=%s %s", e.UserID, e.Action, e.Details)
		return
	}
	logger.Info("AUDIT user=%s action=%s", e.UserID, e.Action)
}

func (*LogAuditor) Close() error { return nil }

// FileAuditor appends entries to a file as JSON lines.
type FileAuditor struct {
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
	path string
}

// NewFileAuditor opens (creating if needed) an append-only audit file at path.
func NewFileAuditor(path string) (*FileAuditor, error) {
	if path == "" {
		return nil, fmt.Errorf("audit file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file %s: %w", path, err)
	}

	return &FileAuditor{f: f, enc: json.NewEncoder(f), path: path}, nil
}

func (a *FileAuditor) Record(_ context.Context, e Entry) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.f == nil {
		logger.Warn("Audit entry dropped after close: user=%s action=%s", e.UserID, e.Action)
		return
	}
	if err := a.enc.Encode(e); err != nil {
		logger.Error("Failed to write audit entry to %s: %v", a.path, err)
	}
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}
