package postgres

import (
	"context"
	"database/sql"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/modomart/checkoutbff/internal/domain"
	"github.com/modomart/checkoutbff/pkg/errors"
)

type deviceKeyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceKeyRepository creates a new device key repository
func NewDeviceKeyRepository(db *sql.DB, logger *zap.Logger) *deviceKeyRepository {
	return &deviceKeyRepository{
		db:     db,
		logger: logger,
	}
}

func (r *deviceKeyRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.DeviceKey, error) {
	// bcrypt hashes are salted, so there is no direct hash lookup; iterate
	// active keys and verify the presented key against each hash. The table
	// holds a handful of rows (one per app build channel).
	query := `
		SELECT id, label, api_key_hash, is_active, created_at, updated_at
		FROM device_keys
		WHERE is_active = true
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to query device keys", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var key domain.DeviceKey
		err := rows.Scan(
			&key.ID,
			&key.Label,
			&key.APIKeyHash,
			&key.IsActive,
			&key.CreatedAt,
			&key.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan device key", zap.Error(err))
			return nil, err
		}

		if err := bcrypt.CompareHashAndPassword([]byte(key.APIKeyHash), []byte(apiKey)); err == nil {
			return &key, nil
		}
	}

	// a database error mid-iteration must not look like a bad credential
	if err := rows.Err(); err != nil {
		r.logger.Error("Failed to iterate device keys", zap.Error(err))
		return nil, err
	}

	return nil, &errors.ErrUnauthorized{Message: "invalid API key"}
}

func (r *deviceKeyRepository) Create(ctx context.Context, key *domain.DeviceKey) error {
	query := `
		INSERT INTO device_keys (label, api_key_hash, is_active)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, key.Label, key.APIKeyHash, key.IsActive).Scan(
		&key.ID,
		&key.CreatedAt,
		&key.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create device key", zap.Error(err))
		return err
	}
	return nil
}
