package categorize

import (
	"context"
	"errors"
	"sync"

	"github.com/jask/ledgerkit/internal/logger"
	"github.com/jask/ledgerkit/internal/rules"
)

// TrainingSource supplies rule- and manually-categorized history.
type TrainingSource interface {
	TrainingExamples(ctx context.Context) ([]Example, error)
}

// ModelCache holds the model trained for one rule-set hash. A different
// hash triggers a rebuild; the model is never persisted.
type ModelCache struct {
	Source      TrainingSource
	MinExamples int

	mu    sync.Mutex
	hash  string
	model *Model
	built bool
}

// NewModelCache returns an empty cache.
func NewModelCache(src TrainingSource, minExamples int) *ModelCache {
	return &ModelCache{Source: src, MinExamples: minExamples}
}

// Get returns the model for snap, training it on first use. A nil model
// means there is not enough history yet.
func (c *ModelCache) Get(ctx context.Context, snap rules.Snapshot) *Model {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.built && c.hash == snap.Hash {
		return c.model
	}
	c.train(ctx, snap.Hash)
	return c.model
}

// Retrain discards the cached model and trains for snap. It satisfies
// rules.Retrainer.
func (c *ModelCache) Retrain(ctx context.Context, snap rules.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.train(ctx, snap.Hash)
}

// Invalidate forces the next Get to retrain, e.g. after manual edits.
func (c *ModelCache) Invalidate() {
	c.mu.Lock()
	c.built = false
	c.model = nil
	c.mu.Unlock()
}

func (c *ModelCache) train(ctx context.Context, hash string) error {
	log := logger.Component(ctx, logger.ComponentCategorize)
	c.hash = hash
	c.built = true
	c.model = nil
	if c.Source == nil {
		return nil
	}
	examples, err := c.Source.TrainingExamples(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("load training examples")
		return err
	}
	m, err := Train(examples, c.MinExamples)
	if err != nil {
		if errors.Is(err, ErrInsufficientData) {
			log.Debug().Err(err).Msg("classifier not trained")
			return nil
		}
		return err
	}
	c.model = m
	log.Info().Int("examples", m.Examples()).Str(logger.FieldHash, hash).Msg("classifier trained")
	return nil
}
