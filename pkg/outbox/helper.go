package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// InsertMessagesInTx 在事务中把业务事件写入 outbox
func InsertMessagesInTx(ctx context.Context, tx pgx.Tx, repo *Repository, msgs []Message) error {
	for _, m := range msgs {
		payloadJSON, err := json.Marshal(m.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", m.RoutingKey, err)
		}

		event := &Event{
			AggregateType: m.AggregateType,
			AggregateID:   m.AggregateID,
			RoutingKey:    m.RoutingKey,
			Payload:       payloadJSON,
			Status:        StatusPending,
		}
		if err := repo.InsertEvent(ctx, tx, event); err != nil {
			return err
		}
	}
	return nil
}
