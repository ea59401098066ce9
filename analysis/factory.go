package analysis

import (
	"github.com/RyanBlaney/sonido-splice/config"
	"github.com/RyanBlaney/sonido-splice/logging"
)

// Pipeline is the extractor stack built from configuration
type Pipeline struct {
	Extractor Extractor
	Managed   *ManagedExtractor
	Memory    *MemoryStore
	SQLite    *SQLiteStore
}

// NewPipeline builds basic -> managed backend -> cache tiers from cfg.
// A cache that cannot be opened is skipped with a warning.
func NewPipeline(cfg config.Config) *Pipeline {
	logger := logging.WithFields(logging.Fields{
		"component": "analysis_pipeline",
	})

	basic := NewBasicExtractor(cfg.Analysis)

	var backend Backend
	if cfg.Analysis.Backend == "aubio" {
		backend = NewAubioBackend(cfg.Analysis.AubioPath, cfg.Analysis.BackendTimeout, basic)
	}
	managed := NewManagedExtractor(backend, basic)

	p := &Pipeline{Extractor: managed, Managed: managed}

	var stores []Store
	if cfg.Cache.MemoryEntries > 0 {
		mem, err := NewMemoryStore(cfg.Cache.MemoryEntries)
		if err != nil {
			logger.Warn("Memory cache disabled", logging.Fields{"error": err.Error()})
		} else {
			p.Memory = mem
			stores = append(stores, mem)
		}
	}
	if cfg.Cache.SQLitePath != "" {
		db, err := OpenSQLiteStore(cfg.Cache.SQLitePath)
		if err != nil {
			logger.Warn("Persistent cache disabled", logging.Fields{
				"path":  cfg.Cache.SQLitePath,
				"error": err.Error(),
			})
		} else {
			p.SQLite = db
			stores = append(stores, db)
		}
	}
	if len(stores) > 0 {
		p.Extractor = NewCachingExtractor(managed, SettingsKey(cfg.Analysis), stores...)
	}

	return p
}

// Close releases the persistent cache
func (p *Pipeline) Close() error {
	if p.SQLite != nil {
		return p.SQLite.Close()
	}
	return nil
}
