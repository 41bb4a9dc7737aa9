// Package fileset persists episode datasets as JSON files on the local
// filesystem, one file per session, with a per-map best-result index kept
// alongside. Writes are atomic (temp file, fsync, rename) so a crashed run
// never leaves a torn episode behind.
package fileset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/symgym/symgym/pkg/domain"
	"github.com/symgym/symgym/pkg/protocol"
)

const (
	episodeSuffix = ".episode.json"
	resultsFile   = "map_results.json"
)

// Store implements ports.EpisodeStore on a directory.
type Store struct {
	basePath string

	// mu serializes index updates; episode files themselves are
	// per-session and never contended.
	mu sync.Mutex
}

// New creates a store rooted at basePath. An empty path defaults to
// ".symgym/datasets".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".symgym", "datasets")
	}
	return &Store{basePath: basePath}
}

// Save persists the episode atomically and refreshes the per-map best
// result when this episode beats the recorded one.
func (s *Store) Save(ctx context.Context, ep domain.Episode) error {
	if ep.SessionID == "" {
		return fmt.Errorf("episode has no session id")
	}
	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return fmt.Errorf("ensure dataset directory: %w", err)
	}

	data, err := protocol.EncodeEpisode(ep)
	if err != nil {
		return fmt.Errorf("encode episode %s: %w", ep.SessionID, err)
	}
	if err := s.writeAtomic(s.episodePath(ep.SessionID), data); err != nil {
		return err
	}
	return s.updateBest(ep)
}

// Load retrieves an episode by session ID.
func (s *Store) Load(ctx context.Context, sessionID string) (domain.Episode, error) {
	data, err := os.ReadFile(s.episodePath(sessionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Episode{}, fmt.Errorf("session %q: %w", sessionID, domain.ErrEpisodeNotFound)
		}
		return domain.Episode{}, fmt.Errorf("read episode %s: %w", sessionID, err)
	}
	return protocol.DecodeEpisode(data)
}

// List returns all stored session IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dataset directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, episodeSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, episodeSuffix))
	}
	return ids, nil
}

// Delete removes an episode file. Absent episodes are not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	err := os.Remove(s.episodePath(sessionID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete episode %s: %w", sessionID, err)
	}
	return nil
}

// MapResult records the best outcome seen for one map.
type MapResult struct {
	SessionID string  `json:"session_id"`
	Coverage  float64 `json:"coverage"`
	Reward    float64 `json:"reward"`
	Steps     int     `json:"steps"`
}

// BestResults returns the per-map best-result index.
func (s *Store) BestResults() (map[string]MapResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readResults()
}

// updateBest keeps the higher-coverage (then higher-reward) episode per map,
// ignoring faulted trajectories.
func (s *Store) updateBest(ep domain.Episode) error {
	if ep.Faulted || ep.MapID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	results, err := s.readResults()
	if err != nil {
		return err
	}

	candidate := MapResult{
		SessionID: ep.SessionID,
		Coverage:  ep.FinalCoverage(),
		Reward:    ep.TotalReward(),
		Steps:     ep.Steps(),
	}
	if best, ok := results[ep.MapID]; ok && !betterThan(candidate, best) {
		return nil
	}
	results[ep.MapID] = candidate

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results index: %w", err)
	}
	return s.writeAtomic(filepath.Join(s.basePath, resultsFile), data)
}

func betterThan(a, b MapResult) bool {
	if a.Coverage != b.Coverage {
		return a.Coverage > b.Coverage
	}
	if a.Reward != b.Reward {
		return a.Reward > b.Reward
	}
	// Equal quality in fewer steps wins.
	return a.Steps < b.Steps
}

func (s *Store) readResults() (map[string]MapResult, error) {
	results := make(map[string]MapResult)
	data, err := os.ReadFile(filepath.Join(s.basePath, resultsFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return results, nil
		}
		return nil, fmt.Errorf("read results index: %w", err)
	}
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decode results index: %w", err)
	}
	return results, nil
}

func (s *Store) episodePath(sessionID string) string {
	return filepath.Join(s.basePath, sessionID+episodeSuffix)
}

// writeAtomic writes via a temp file in the same directory, fsyncs, and
// renames into place.
func (s *Store) writeAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
