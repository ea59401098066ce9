package analysis

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/RyanBlaney/sonido-splice/config"
	"github.com/RyanBlaney/sonido-splice/logging"
	"github.com/RyanBlaney/sonido-splice/transcode"
)

// Store is one tier of the analysis cache. A Get miss returns (nil, false, nil).
type Store interface {
	Get(ctx context.Context, key string) (*Result, bool, error)
	Put(ctx context.Context, key string, result *Result) error
}

// MemoryStore keeps recent results in an LRU
type MemoryStore struct {
	cache *lru.Cache[string, *Result]
}

// NewMemoryStore creates an LRU holding up to size results
func NewMemoryStore(size int) (*MemoryStore, error) {
	cache, err := lru.New[string, *Result](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	return &MemoryStore{cache: cache}, nil
}

// Get implements Store
func (m *MemoryStore) Get(_ context.Context, key string) (*Result, bool, error) {
	r, ok := m.cache.Get(key)
	return r, ok, nil
}

// Put implements Store
func (m *MemoryStore) Put(_ context.Context, key string, result *Result) error {
	m.cache.Add(key, result)
	return nil
}

// Len returns the number of cached results
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}

// SQLiteStore persists results as JSON blobs keyed by content hash
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (and creates if needed) the cache database at path
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS analysis_cache (
		key TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		result BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analysis_created ON analysis_cache(created_at);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get implements Store
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Result, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT result FROM analysis_cache WHERE key = ?", key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query cache: %w", err)
	}

	var result Result
	if err := json.Unmarshal(blob, &result); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &result, true, nil
}

// Put implements Store
func (s *SQLiteStore) Put(ctx context.Context, key string, result *Result) error {
	blob, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO analysis_cache (key, source, result, created_at) VALUES (?, ?, ?, ?)",
		key, result.Source, blob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CachingExtractor memoizes an Extractor per audio content. Stores are
// consulted in order; a hit in a later store is copied into the earlier
// ones. Store errors are logged and treated as misses.
type CachingExtractor struct {
	inner    Extractor
	stores   []Store
	settings string
	logger   logging.Logger
}

// NewCachingExtractor wraps inner. settings should identify every option
// that changes the analysis so different configs never share entries.
func NewCachingExtractor(inner Extractor, settings string, stores ...Store) *CachingExtractor {
	return &CachingExtractor{
		inner:    inner,
		stores:   stores,
		settings: settings,
		logger: logging.WithFields(logging.Fields{
			"component": "analysis_cache",
		}),
	}
}

// SettingsKey fingerprints the analysis options that affect results
func SettingsKey(cfg config.AnalysisConfig) string {
	return fmt.Sprintf("v1|%s|%d|%d|%g|%g|%g|%t|%g",
		cfg.Backend, cfg.FrameSize, cfg.HopSize, cfg.OnsetThreshold,
		cfg.SeedWindow, cfg.TempoPriorWidth, cfg.Chroma, cfg.TuningFreq)
}

// ContentKey hashes the decoded audio together with settings
func ContentKey(audio *transcode.AudioData, settings string) string {
	h := sha256.New()
	h.Write([]byte(settings))

	var header [16]byte
	binary.LittleEndian.PutUint64(header[0:8], uint64(audio.SampleRate))
	binary.LittleEndian.PutUint64(header[8:16], uint64(audio.Channels))
	h.Write(header[:])

	buf := make([]byte, 8*4096)
	for start := 0; start < len(audio.PCM); start += 4096 {
		end := min(start+4096, len(audio.PCM))
		n := 0
		for _, v := range audio.PCM[start:end] {
			binary.LittleEndian.PutUint64(buf[n:n+8], math.Float64bits(v))
			n += 8
		}
		h.Write(buf[:n])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Analyze implements Extractor
func (c *CachingExtractor) Analyze(ctx context.Context, audio *transcode.AudioData) (*Result, error) {
	if audio == nil {
		return c.inner.Analyze(ctx, audio)
	}

	key := ContentKey(audio, c.settings)
	logger := c.logger.WithContext(ctx).WithFields(logging.Fields{
		"key": key[:12],
	})

	for i, store := range c.stores {
		result, ok, err := store.Get(ctx, key)
		if err != nil {
			logger.Warn("Cache lookup failed", logging.Fields{"tier": i, "error": err.Error()})
			continue
		}
		if !ok {
			continue
		}
		if err := result.Validate(); err != nil {
			logger.Warn("Discarding invalid cached result", logging.Fields{"tier": i, "error": err.Error()})
			continue
		}
		logger.Debug("Cache hit", logging.Fields{"tier": i})
		c.fill(ctx, key, result, c.stores[:i], logger)
		return result, nil
	}

	result, err := c.inner.Analyze(ctx, audio)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, key, result, c.stores, logger)
	return result, nil
}

func (c *CachingExtractor) fill(ctx context.Context, key string, result *Result, stores []Store, logger logging.Logger) {
	for i, store := range stores {
		if err := store.Put(ctx, key, result); err != nil {
			logger.Warn("Cache store failed", logging.Fields{"tier": i, "error": err.Error()})
		}
	}
}
