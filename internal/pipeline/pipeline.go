// Package pipeline runs a campaign through an ordered list of stages.
package pipeline

import (
	"context"
	"fmt"

	"github.com/sungwon/campaign-dispatch/internal/storage"
)

// Stage transforms or acts on a campaign and hands it to the next stage.
type Stage interface {
	Handle(ctx context.Context, campaign *storage.Campaign) (*storage.Campaign, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc func(ctx context.Context, campaign *storage.Campaign) (*storage.Campaign, error)

func (f StageFunc) Handle(ctx context.Context, campaign *storage.Campaign) (*storage.Campaign, error) {
	return f(ctx, campaign)
}

// Pipeline runs stages in order. The first error stops the run.
type Pipeline struct {
	stages []Stage
}

func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

func (p *Pipeline) Run(ctx context.Context, campaign *storage.Campaign) (*storage.Campaign, error) {
	cur := campaign
	for i, st := range p.stages {
		next, err := st.Handle(ctx, cur)
		if err != nil {
			return cur, fmt.Errorf("stage %d (%T): %w", i, st, err)
		}
		if next != nil {
			cur = next
		}
	}
	return cur, nil
}
