package llmquery

import (
	"context"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/onset-project/onset/domain/catalog"
	"github.com/onset-project/onset/internal/database"
	"github.com/onset-project/onset/pkg/logger"
)

// bunEnrichmentStore runs enrichment lookups through a catalog repository
// bound to a read-only bun transaction.
type bunEnrichmentStore struct {
	db  *bun.DB
	log *slog.Logger
}

// NewEnrichmentStore creates the database-backed enrichment store
func NewEnrichmentStore(db *bun.DB, log *slog.Logger) EnrichmentStore {
	return &bunEnrichmentStore{
		db:  db,
		log: log.With(logger.Scope("llmquery.store")),
	}
}

func (s *bunEnrichmentStore) InReadOnlyTx(ctx context.Context, fn func(ctx context.Context, r Resolver) error) error {
	return database.RunInReadOnlyTx(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, catalog.NewRepository(tx, s.log))
	})
}
