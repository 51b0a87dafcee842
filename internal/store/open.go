package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/storyboard/internal/defra"
	"github.com/jackzampolin/storyboard/internal/schema"
)

// OpenDefra checks that DefraDB is reachable, applies the storyboard
// collections and returns a store over them.
func OpenDefra(ctx context.Context, client *defra.Client, logger *slog.Logger) (*Defra, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := client.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("defra not reachable at %s: %w", client.URL(), err)
	}
	if err := schema.Initialize(ctx, client, logger); err != nil {
		return nil, fmt.Errorf("initialize defra schema: %w", err)
	}
	return NewDefra(client), nil
}
