package swarm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SessionVersion tags the artifact format.
const SessionVersion = "1"

// Session is the per-execution state artifact. One file per execution
// context, named by the execution ID, so two concurrent executions never
// touch each other's state.
type Session struct {
	ExecutionID  string    `json:"execution_id"`
	Version      string    `json:"version"`
	CurrentAgent string    `json:"current_agent"`
	State        State     `json:"state"`
	Handoffs     int       `json:"handoffs"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionStore writes session artifacts under a directory, one file per
// execution. Construction runs a retention sweep: artifacts older than
// the retention window are removed, younger ones are never touched.
type SessionStore struct {
	dir       string
	retention time.Duration
	logger    *zap.Logger
}

// NewSessionStore creates the directory if needed and sweeps stale
// artifacts from previous runs.
func NewSessionStore(dir string, retention time.Duration, logger *zap.Logger) (*SessionStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	s := &SessionStore{
		dir:       dir,
		retention: retention,
		logger:    logger.With(zap.String("component", "session_store")),
	}
	if removed, err := s.CleanupStale(); err != nil {
		s.logger.Warn("session cleanup failed", zap.Error(err))
	} else if removed > 0 {
		s.logger.Info("removed stale session artifacts", zap.Int("count", removed))
	}
	return s, nil
}

func (s *SessionStore) path(executionID string) string {
	return filepath.Join(s.dir, "session_"+executionID+".json")
}

// Save atomically replaces the execution's artifact.
func (s *SessionStore) Save(session Session) error {
	session.Version = SessionVersion
	session.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	path := s.path(session.ExecutionID)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

// Load reads one execution's artifact.
func (s *SessionStore) Load(executionID string) (*Session, error) {
	data, err := os.ReadFile(s.path(executionID))
	if err != nil {
		return nil, err
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("corrupt session artifact %s: %w", executionID, err)
	}
	return &session, nil
}

// CleanupStale removes artifacts older than the retention window and
// reports how many were removed. Artifacts within the window are left
// alone so concurrent executions are never disturbed.
func (s *SessionStore) CleanupStale() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-s.retention)
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "session_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			s.logger.Warn("failed to remove stale session", zap.String("file", name), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
