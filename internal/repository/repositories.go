package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modomart/checkoutbff/internal/domain"
	"github.com/modomart/checkoutbff/internal/repository/postgres"
)

// DeviceKeyRepository stores hashed client credentials
type DeviceKeyRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.DeviceKey, error)
	Create(ctx context.Context, key *domain.DeviceKey) error
}

// IdempotencyKeyRepository stores settled submit outcomes for replay
type IdempotencyKeyRepository interface {
	Get(ctx context.Context, key string) (*domain.IdempotencyKey, error)
	Create(ctx context.Context, record *domain.IdempotencyKey) error
}

// FlowEventRepository stores the checkout audit trail
type FlowEventRepository interface {
	Create(ctx context.Context, event *domain.FlowEvent) error
	ListByFlowID(ctx context.Context, flowID uuid.UUID) ([]*domain.FlowEvent, error)
}

// Repositories bundles all persistence dependencies
type Repositories struct {
	DeviceKey      DeviceKeyRepository
	IdempotencyKey IdempotencyKeyRepository
	FlowEvent      FlowEventRepository
}

// NewRepositories creates Postgres-backed repositories
func NewRepositories(db *sql.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		DeviceKey:      postgres.NewDeviceKeyRepository(db, logger),
		IdempotencyKey: postgres.NewIdempotencyKeyRepository(db, logger),
		FlowEvent:      postgres.NewFlowEventRepository(db, logger),
	}
}
