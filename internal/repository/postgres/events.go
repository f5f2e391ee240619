package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modomart/checkoutbff/internal/domain"
)

type flowEventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFlowEventRepository creates a new flow event repository
func NewFlowEventRepository(db *sql.DB, logger *zap.Logger) *flowEventRepository {
	return &flowEventRepository{
		db:     db,
		logger: logger,
	}
}

func (r *flowEventRepository) Create(ctx context.Context, event *domain.FlowEvent) error {
	eventData, err := json.Marshal(event.EventData)
	if err != nil {
		r.logger.Error("Failed to marshal event data", zap.Error(err))
		return err
	}

	query := `
		INSERT INTO flow_events (flow_id, event_type, event_data)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err = r.db.QueryRowContext(ctx, query, event.FlowID, event.EventType, eventData).Scan(
		&event.ID,
		&event.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create flow event", zap.Error(err))
		return err
	}
	return nil
}

func (r *flowEventRepository) ListByFlowID(ctx context.Context, flowID uuid.UUID) ([]*domain.FlowEvent, error) {
	query := `
		SELECT id, flow_id, event_type, event_data, created_at
		FROM flow_events
		WHERE flow_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, flowID)
	if err != nil {
		r.logger.Error("Failed to list flow events", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var events []*domain.FlowEvent
	for rows.Next() {
		var event domain.FlowEvent
		var eventData []byte

		err := rows.Scan(
			&event.ID,
			&event.FlowID,
			&event.EventType,
			&eventData,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if len(eventData) > 0 {
			if err := json.Unmarshal(eventData, &event.EventData); err != nil {
				r.logger.Warn("Failed to unmarshal event data", zap.Error(err))
			}
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
