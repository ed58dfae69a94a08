package cachestore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"cleave/internal/fileutil"
	"cleave/internal/fingerprint"
	"cleave/internal/logging"
)

const recordFileName = "manifest.jsonl"

// ArtifactRef points at a file-backed cache result.
type ArtifactRef struct {
	// Path is relative to the output directory root.
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	// ContentHash is the artifact's xxhash64 digest, hex-encoded.
	ContentHash string `json:"content_hash"`
}

// Entry is one cache record. Exactly one of Value and Artifact is set.
type Entry struct {
	Fingerprint string          `json:"fingerprint"`
	Stage       string          `json:"stage"`
	SceneIndex  *int            `json:"scene_index,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Value       json.RawMessage `json:"value,omitempty"`
	Artifact    *ArtifactRef    `json:"artifact,omitempty"`
}

// Store owns the cache record file and all access to cached results.
type Store struct {
	root       string
	recordPath string
	logger     *slog.Logger
	fileLock   *flock.Flock

	mu      sync.RWMutex
	entries map[fingerprint.Digest]Entry

	appendMu sync.Mutex
}

// Open loads (or creates) the cache record file under root/cache and returns
// the store. A record file that cannot be parsed is a fatal error; the cache
// is never silently discarded.
func Open(root string, logger *slog.Logger) (*Store, error) {
	cacheDir := filepath.Join(root, "cache")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("cachestore: create cache directory: %w", err)
	}
	recordPath := filepath.Join(cacheDir, recordFileName)

	s := &Store{
		root:       root,
		recordPath: recordPath,
		logger:     logging.NewComponentLogger(logger, "cachestore"),
		fileLock:   flock.New(recordPath + ".lock"),
		entries:    make(map[fingerprint.Digest]Entry),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordPath returns the manifest location, primarily for status output.
func (s *Store) RecordPath() string {
	return s.recordPath
}

// Len reports the number of distinct fingerprints currently recorded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) load() error {
	file, err := os.Open(s.recordPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("cachestore: open record file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	var pendingErr error
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// A record that failed to parse is only tolerable as the final
		// line, where it indicates an interrupted append.
		if pendingErr != nil {
			return fmt.Errorf("cachestore: corrupt record file %s line %d: %w", s.recordPath, lineNo-1, pendingErr)
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			pendingErr = err
			continue
		}
		digest, err := fingerprint.Parse(entry.Fingerprint)
		if err != nil {
			pendingErr = err
			continue
		}
		s.entries[digest] = entry
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("cachestore: read record file: %w", err)
	}
	if pendingErr != nil {
		s.logger.Warn("dropping interrupted trailing cache record",
			logging.String("record_file", s.recordPath),
			logging.Int("line", lineNo),
			logging.Error(pendingErr),
			logging.String(logging.FieldEventType, "cache_record_truncated"),
		)
	}
	return nil
}

// LookupValue returns the inline result stored for fp, when present.
func (s *Store) LookupValue(fp fingerprint.Digest) (json.RawMessage, bool) {
	s.mu.RLock()
	entry, ok := s.entries[fp]
	s.mu.RUnlock()
	if !ok || entry.Value == nil {
		return nil, false
	}
	return entry.Value, true
}

// LookupArtifact returns the verified artifact stored for fp. A missing or
// hash-mismatched file demotes the entry to a miss and logs a warning, so
// externally deleted or tampered artifacts are recomputed instead of trusted.
func (s *Store) LookupArtifact(fp fingerprint.Digest) (string, ArtifactRef, bool) {
	s.mu.RLock()
	entry, ok := s.entries[fp]
	s.mu.RUnlock()
	if !ok || entry.Artifact == nil {
		return "", ArtifactRef{}, false
	}

	ref := *entry.Artifact
	absPath := s.ArtifactPath(ref)
	hash, size, err := fileutil.HashFile(absPath)
	if err != nil {
		s.evict(fp)
		s.logger.Warn("cached artifact unreadable; treating as cache miss",
			logging.String(logging.FieldFingerprint, fp.Short()),
			logging.String(logging.FieldArtifact, absPath),
			logging.Error(err),
			logging.String(logging.FieldEventType, "cache_artifact_missing"),
			logging.String(logging.FieldErrorHint, "the stage will be recomputed"),
		)
		return "", ArtifactRef{}, false
	}
	if size != ref.SizeBytes || formatHash(hash) != ref.ContentHash {
		s.evict(fp)
		s.logger.Warn("cached artifact failed integrity check; treating as cache miss",
			logging.String(logging.FieldFingerprint, fp.Short()),
			logging.String(logging.FieldArtifact, absPath),
			logging.Int64("expected_size", ref.SizeBytes),
			logging.Int64("actual_size", size),
			logging.String(logging.FieldEventType, "cache_artifact_corrupt"),
			logging.String(logging.FieldErrorHint, "the stage will be recomputed"),
		)
		return "", ArtifactRef{}, false
	}
	return absPath, ref, true
}

// StoreValue records an inline result for fp. Storing equal content twice is
// a no-op; storing different content for the same fingerprint indicates a
// fingerprinting gap and is logged as a correctness warning before the new
// value replaces the old.
func (s *Store) StoreValue(ctx context.Context, stage string, sceneIndex *int, fp fingerprint.Digest, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cachestore: marshal value for %s: %w", stage, err)
	}

	s.mu.RLock()
	existing, ok := s.entries[fp]
	s.mu.RUnlock()
	if ok && existing.Value != nil {
		if bytes.Equal(existing.Value, payload) {
			return nil
		}
		s.warnConflict(ctx, fp, stage)
	}

	entry := Entry{
		Fingerprint: fp.String(),
		Stage:       stage,
		SceneIndex:  sceneIndex,
		CreatedAt:   time.Now().UTC(),
		Value:       payload,
	}
	return s.commit(ctx, fp, entry)
}

// CommitArtifact finalizes a freshly written temporary artifact: the file is
// hashed while still at tmpPath, renamed into finalPath, and only then is the
// record appended. The ordering guarantees an interrupted run never leaves a
// record for a partial artifact.
func (s *Store) CommitArtifact(ctx context.Context, stage string, sceneIndex *int, fp fingerprint.Digest, tmpPath, finalPath string) (ArtifactRef, error) {
	hash, size, err := fileutil.HashFile(tmpPath)
	if err != nil {
		return ArtifactRef{}, fmt.Errorf("cachestore: verify artifact %s: %w", tmpPath, err)
	}
	if size == 0 {
		return ArtifactRef{}, fmt.Errorf("cachestore: artifact %s is empty", tmpPath)
	}

	relPath, err := filepath.Rel(s.root, finalPath)
	if err != nil {
		return ArtifactRef{}, fmt.Errorf("cachestore: artifact %s escapes output directory: %w", finalPath, err)
	}

	if err := fileutil.ReplaceFile(tmpPath, finalPath); err != nil {
		return ArtifactRef{}, fmt.Errorf("cachestore: commit artifact: %w", err)
	}

	ref := ArtifactRef{
		Path:        filepath.ToSlash(relPath),
		SizeBytes:   size,
		ContentHash: formatHash(hash),
	}

	s.mu.RLock()
	existing, ok := s.entries[fp]
	s.mu.RUnlock()
	if ok && existing.Artifact != nil {
		if existing.Artifact.ContentHash == ref.ContentHash && existing.Artifact.SizeBytes == ref.SizeBytes && existing.Artifact.Path == ref.Path {
			return ref, nil
		}
		s.warnConflict(ctx, fp, stage)
	}

	entry := Entry{
		Fingerprint: fp.String(),
		Stage:       stage,
		SceneIndex:  sceneIndex,
		CreatedAt:   time.Now().UTC(),
		Artifact:    &ref,
	}
	if err := s.commit(ctx, fp, entry); err != nil {
		return ArtifactRef{}, err
	}
	return ref, nil
}

// ArtifactPath resolves a recorded artifact reference to an absolute path.
func (s *Store) ArtifactPath(ref ArtifactRef) string {
	return filepath.Join(s.root, filepath.FromSlash(ref.Path))
}

func (s *Store) commit(ctx context.Context, fp fingerprint.Digest, entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cachestore: marshal record: %w", err)
	}
	line = append(line, '\n')

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	locked, err := s.fileLock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("cachestore: acquire record lock: %w", err)
	}
	if !locked {
		return errors.New("cachestore: record lock unavailable")
	}
	defer func() {
		_ = s.fileLock.Unlock()
	}()

	file, err := os.OpenFile(s.recordPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("cachestore: open record file for append: %w", err)
	}
	if _, err := file.Write(line); err != nil {
		_ = file.Close()
		return fmt.Errorf("cachestore: append record: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("cachestore: flush record: %w", err)
	}

	s.mu.Lock()
	s.entries[fp] = entry
	s.mu.Unlock()
	return nil
}

func (s *Store) evict(fp fingerprint.Digest) {
	s.mu.Lock()
	delete(s.entries, fp)
	s.mu.Unlock()
}

func (s *Store) warnConflict(ctx context.Context, fp fingerprint.Digest, stage string) {
	logging.WithContext(ctx, s.logger).Warn("cache write conflict: same fingerprint, different content",
		logging.String(logging.FieldFingerprint, fp.Short()),
		logging.String(logging.FieldStage, stage),
		logging.String(logging.FieldEventType, "cache_write_conflict"),
		logging.String(logging.FieldErrorHint, "a stage configuration field is likely missing from its fingerprint"),
	)
}

func formatHash(hash uint64) string {
	return strconv.FormatUint(hash, 16)
}
