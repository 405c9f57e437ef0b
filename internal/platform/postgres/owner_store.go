package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/leadgen-api/internal/domain"
	"github.com/phrazzld/leadgen-api/internal/platform/logger"
	"github.com/phrazzld/leadgen-api/internal/store"
)

// PostgresOwnerStore implements store.OwnerStore on PostgreSQL.
type PostgresOwnerStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresOwnerStore creates a PostgresOwnerStore.
func NewPostgresOwnerStore(db store.DBTX, logger *slog.Logger) *PostgresOwnerStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresOwnerStore{
		db:     db,
		logger: logger.With(slog.String("component", "owner_store")),
	}
}

var _ store.OwnerStore = (*PostgresOwnerStore)(nil)

// EnsureOwner implements store.OwnerStore.EnsureOwner.
func (s *PostgresOwnerStore) EnsureOwner(ctx context.Context, owner *domain.Owner) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := owner.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO owners (id, email, full_name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, owner.ID, owner.Email, nullString(owner.FullName), owner.CreatedAt)
	if err != nil {
		log.Error("failed to ensure owner",
			slog.String("owner_id", owner.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		log.Info("owner created", slog.String("owner_id", owner.ID.String()))
	}
	return nil
}

// GetByID implements store.OwnerStore.GetByID.
func (s *PostgresOwnerStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Owner, error) {
	var (
		owner    domain.Owner
		fullName sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, full_name, created_at FROM owners WHERE id = $1`, id,
	).Scan(&owner.ID, &owner.Email, &fullName, &owner.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrOwnerNotFound
		}
		return nil, MapError(err)
	}
	owner.FullName = stringPtr(fullName)
	return &owner, nil
}
