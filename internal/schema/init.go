package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackzampolin/storyboard/internal/defra"
)

// Initialize adds the storyboard collections to DefraDB. Collections that
// already exist are left as they are, so it runs on every store open.
func Initialize(ctx context.Context, client *defra.Client, logger *slog.Logger) error {
	schemas, err := All()
	if err != nil {
		return fmt.Errorf("failed to load schemas: %w", err)
	}

	var added, existing []string
	for _, s := range schemas {
		err := client.AddSchema(ctx, s.SDL)
		switch {
		case err == nil:
			added = append(added, s.Name)
		case collectionExists(err):
			existing = append(existing, s.Name)
		default:
			return fmt.Errorf("failed to add %s collection: %w", s.Name, err)
		}
	}
	logger.Info("defra collections ready", "added", added, "existing", existing)
	return nil
}

// collectionExists matches DefraDB's "collection already exists" response.
// The HTTP API reports it only in the error text.
func collectionExists(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}
