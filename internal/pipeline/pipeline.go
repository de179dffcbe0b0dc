// Package pipeline defines the contract between the job engine and the
// product classification pipeline. The real pipeline (platform sync,
// embeddings, LLM classification) lives behind these interfaces; this
// backend only schedules it and tracks its progress.
package pipeline

import (
	"context"
	"log/slog"
)

// Stages selects which classification stages run for an item. The discovery
// engine uses a soft-categories-only selection so incremental updates stay
// cheap and never touch existing embeddings.
type Stages struct {
	HardCategories bool `json:"hard_categories"`
	SoftCategories bool `json:"soft_categories"`
	Types          bool `json:"types"`
	Variants       bool `json:"variants"`
	Embeddings     bool `json:"embeddings"`
	Descriptions   bool `json:"descriptions"`
}

// AllStages returns a selection with every stage enabled (full reprocess).
func AllStages() Stages {
	return Stages{
		HardCategories: true,
		SoftCategories: true,
		Types:          true,
		Variants:       true,
		Embeddings:     true,
		Descriptions:   true,
	}
}

// SoftCategoriesOnly returns the restricted selection used by incremental
// category-discovery reprocessing.
func SoftCategoriesOnly() Stages {
	return Stages{SoftCategories: true}
}

// Item is one unit of reprocessing work, typically a product.
type Item struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// Processor runs the enabled classification stages for a single item.
type Processor interface {
	Process(ctx context.Context, storeKey string, item Item, stages Stages) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, storeKey string, item Item, stages Stages) error

func (f ProcessorFunc) Process(ctx context.Context, storeKey string, item Item, stages Stages) error {
	return f(ctx, storeKey, item, stages)
}

// Catalog lists the items a reprocessing job should cover for a store.
type Catalog interface {
	ListItems(ctx context.Context, storeKey string) ([]Item, error)
}

// Placeholder is a stand-in for the real classification pipeline. It lists
// no items and processes nothing, so jobs complete immediately. It keeps the
// server runnable until the sync pipeline is wired in.
type Placeholder struct {
	Logger *slog.Logger
}

func (p *Placeholder) ListItems(ctx context.Context, storeKey string) ([]Item, error) {
	p.logger().Warn("pipeline not implemented, no items to process", "store_key", storeKey)
	return nil, nil
}

func (p *Placeholder) Process(ctx context.Context, storeKey string, item Item, stages Stages) error {
	p.logger().Debug("pipeline not implemented, skipping item", "store_key", storeKey, "item", item.ID)
	return nil
}

func (p *Placeholder) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
