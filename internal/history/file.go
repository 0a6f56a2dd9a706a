package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "rhythm/pkg/logx"
)

// fileStore is a dependency-free backend: one append-only JSON Lines file.
// Recent reads scan the file; that is fine at journal scale.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	f    *os.File

	maxRecords int
	writes     int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path, f: f, maxRecords: cfg.MaxRecords}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendRun(_ context.Context, r RunRecord) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrDisabled
	}
	if _, err := s.f.Write(b); err != nil {
		return err
	}

	s.writes++
	if s.maxRecords > 0 && s.writes >= s.maxRecords*2 {
		s.writes = 0
		if err := s.compactLocked(); err != nil {
			s.log.Debug("history compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentRuns(_ context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := readRuns(s.path)
	if err != nil {
		return nil, err
	}

	// Newest first.
	out := make([]RunRecord, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// compactLocked rewrites the journal keeping only the newest maxRecords
// entries. Best effort: a failed compaction leaves the original intact.
func (s *fileStore) compactLocked() error {
	all, err := readRuns(s.path)
	if err != nil {
		return err
	}
	if len(all) <= s.maxRecords {
		return nil
	}
	keep := all[len(all)-s.maxRecords:]

	tmp := s.path + ".tmp"
	tf, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tf)
	for _, r := range keep {
		b, err := json.Marshal(r)
		if err != nil {
			_ = tf.Close()
			return err
		}
		b = append(b, '\n')
		if _, err := w.Write(b); err != nil {
			_ = tf.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = tf.Close()
		return err
	}
	if err := tf.Close(); err != nil {
		return err
	}

	if err := s.f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.f = nil
		return err
	}
	s.f = f
	return nil
}

func readRuns(path string) ([]RunRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []RunRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var r RunRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			// Skip torn lines (e.g. crash mid-append) instead of failing reads.
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
