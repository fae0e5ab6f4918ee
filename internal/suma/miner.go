package suma

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/breeze-rmm/suma-sync/internal/audit"
	"github.com/breeze-rmm/suma-sync/internal/logging"
)

// Miner defaults.
const (
	DefaultMaxFailures = 3
	DefaultRoot        = "aixautomation/suma"
)

// DefaultFamilies are the release families mined when none are configured.
var DefaultFamilies = []string{"6.1", "7.1", "7.2"}

// MinerConfig configures a Miner. Zero values take the defaults.
type MinerConfig struct {
	Root        string
	Families    []string
	MaxFailures int
	// Concurrency is the number of families mined at once. Families never
	// share levels, so the result does not depend on it.
	Concurrency int
	Levels      LevelEnumerator
	Cache       Cache
	// SessionOptions are applied to every metadata Session.
	SessionOptions []SessionOption
	Ensure         DirEnsurer
	Journal        Recorder
}

// Miner builds the service packs per technical level map by probing the tool
// for every level of each release family.
type Miner struct {
	cfg MinerConfig
}

// NewMiner returns a Miner for cfg.
func NewMiner(cfg MinerConfig) *Miner {
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}
	if len(cfg.Families) == 0 {
		cfg.Families = DefaultFamilies
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Levels == nil {
		cfg.Levels = DefaultLevels{}
	}
	if cfg.Cache == nil {
		cfg.Cache = NewYAMLCache("")
	}
	return &Miner{cfg: cfg}
}

// SpPerTL returns the cached map if one is stored and refresh is false.
// Otherwise it mines every family, stores the result and returns it.
//
// A family is tried at increasing indices until MaxFailures attempts in a row
// report a soft failure; those trailing levels are then dropped. A hard
// metadata failure aborts the whole run.
func (m *Miner) SpPerTL(ctx context.Context, refresh bool) (*SpPerTL, error) {
	if !refresh {
		cached, err := m.cfg.Cache.Load()
		if err != nil {
			log.Warn("ignoring unreadable cache", logging.KeyError, err)
		}
		if cached != nil {
			log.Debug("service packs per technical level loaded from cache", "levels", cached.Len())
			m.record(audit.EventCacheHit, map[string]any{"levels": cached.Len()})
			return cached, nil
		}
	}

	start := time.Now()
	results := make([]*SpPerTL, len(m.cfg.Families))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for i, family := range m.cfg.Families {
		g.Go(func() error {
			found, err := m.mineFamily(gctx, family)
			if err != nil {
				return fmt.Errorf("mine release family %s: %w", family, err)
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	spPerTL := NewSpPerTL()
	for _, found := range results {
		spPerTL.Merge(found)
	}

	if err := m.cfg.Cache.Save(spPerTL); err != nil {
		return nil, err
	}
	log.Info("service packs per technical level built",
		"levels", spPerTL.Len(),
		logging.KeyDurationMs, time.Since(start).Milliseconds())
	m.record(audit.EventCacheBuilt, map[string]any{
		"levels":   spPerTL.Len(),
		"families": m.cfg.Families,
	})
	return spPerTL, nil
}

func (m *Miner) mineFamily(ctx context.Context, family string) (*SpPerTL, error) {
	found := NewSpPerTL()
	failures := 0
	var failed []string

	for index := 0; failures < m.cfg.MaxFailures; index++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		level, err := m.cfg.Levels.TechnicalLevel(family, index)
		if err != nil {
			return nil, err
		}

		req, err := NewRequest(RequestOptions{
			Root:      m.cfg.Root,
			FromLevel: level.Name,
			Kind:      KindLatest,
		}, m.cfg.Ensure)
		if err != nil {
			return nil, err
		}

		result, err := NewSession(req, m.cfg.SessionOptions...).Metadata(ctx)
		if err != nil {
			return nil, err
		}

		if result.OK {
			sps, err := ExtractServicePacks(req.MetadataDir(), level.Name)
			if err != nil {
				return nil, err
			}
			found.Set(level.Name, sps)
			failures = 0
			failed = failed[:0]
			log.Info("technical level found", "level", level.Display, "servicePacks", len(sps))
			continue
		}

		found.Set(level.Name, nil)
		failures++
		failed = append(failed, level.Name)
		log.Debug("technical level not available",
			"level", level.Display,
			"reason", result.Reason,
			"successiveFailures", failures)
	}

	// Drop the failure streak that ended the sweep.
	for i := 0; i < m.cfg.MaxFailures && len(failed) > 0; i++ {
		last := failed[len(failed)-1]
		failed = failed[:len(failed)-1]
		found.Delete(last)
	}
	return found, nil
}

func (m *Miner) record(eventType string, details map[string]any) {
	if m.cfg.Journal == nil {
		return
	}
	m.cfg.Journal.Record(eventType, "sp_per_tl", details)
}
