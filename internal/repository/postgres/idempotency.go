package postgres

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/modomart/checkoutbff/internal/domain"
	"github.com/modomart/checkoutbff/pkg/errors"
)

type idempotencyKeyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIdempotencyKeyRepository creates a new idempotency key repository
func NewIdempotencyKeyRepository(db *sql.DB, logger *zap.Logger) *idempotencyKeyRepository {
	return &idempotencyKeyRepository{
		db:     db,
		logger: logger,
	}
}

func (r *idempotencyKeyRepository) Get(ctx context.Context, key string) (*domain.IdempotencyKey, error) {
	query := `
		SELECT key, flow_id, request_hash, destination, order_id, order_code, payment_url, message, created_at
		FROM idempotency_keys
		WHERE key = $1
	`

	var record domain.IdempotencyKey
	var paymentURL, message sql.NullString

	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&record.Key,
		&record.FlowID,
		&record.RequestHash,
		&record.Destination,
		&record.OrderID,
		&record.OrderCode,
		&paymentURL,
		&message,
		&record.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "idempotency key", ID: key}
	}
	if err != nil {
		r.logger.Error("Failed to get idempotency key", zap.Error(err))
		return nil, err
	}

	if paymentURL.Valid {
		record.PaymentURL = &paymentURL.String
	}
	if message.Valid {
		record.Message = &message.String
	}
	return &record, nil
}

func (r *idempotencyKeyRepository) Create(ctx context.Context, record *domain.IdempotencyKey) error {
	query := `
		INSERT INTO idempotency_keys (key, flow_id, request_hash, destination, order_id, order_code, payment_url, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		record.Key,
		record.FlowID,
		record.RequestHash,
		record.Destination,
		record.OrderID,
		record.OrderCode,
		record.PaymentURL,
		record.Message,
	).Scan(&record.CreatedAt)

	if err != nil {
		r.logger.Error("Failed to create idempotency key", zap.Error(err))
		return err
	}
	return nil
}
