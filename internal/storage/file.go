package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "attendbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Layout: <prefix>.attempts.jsonl, append-only JSON Lines. The full
// history is kept in memory too; the expected scale is a few attempts a
// day, so Prune can rewrite the file atomically.
type fileStore struct {
	log logx.Logger

	mu      sync.Mutex
	path    string
	file    *os.File
	records []AttemptRecord
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	attemptsPath := filepath.Join(dir, base) + ".attempts.jsonl"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	records, err := loadAttempts(attemptsPath)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(attemptsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{log: log, path: attemptsPath, file: f, records: records}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileStore) AppendAttempt(ctx context.Context, rec AttemptRecord) error {
	_ = ctx
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("attempts file closed")
	}
	if err := json.NewEncoder(s.file).Encode(rec); err != nil {
		return err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fileStore) RecentAttempts(ctx context.Context, n int) ([]AttemptRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.records) {
		n = len(s.records)
	}
	out := make([]AttemptRecord, 0, n)
	for i := len(s.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

func (s *fileStore) Prune(ctx context.Context, maxAge time.Duration, maxRecords int) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return 0, errors.New("attempts file closed")
	}

	kept := s.records[:0:0]
	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}
	for _, rec := range s.records {
		if !cutoff.IsZero() && rec.At.Before(cutoff) {
			continue
		}
		kept = append(kept, rec)
	}
	if maxRecords > 0 && len(kept) > maxRecords {
		kept = kept[len(kept)-maxRecords:]
	}
	dropped := len(s.records) - len(kept)
	if dropped == 0 {
		return 0, nil
	}

	if err := s.rewriteLocked(kept); err != nil {
		return 0, err
	}
	s.records = kept
	s.log.Debug("attempt history pruned", logx.Int("dropped", dropped))
	return dropped, nil
}

// rewriteLocked replaces the attempts file atomically and reopens the
// append handle.
func (s *fileStore) rewriteLocked(records []AttemptRecord) error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}

	_ = s.file.Close()
	nf, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.file = nil
		return err
	}
	s.file = nf
	return nil
}

func loadAttempts(path string) ([]AttemptRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []AttemptRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec AttemptRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			// Skip torn writes from a crashed run.
			continue
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}
