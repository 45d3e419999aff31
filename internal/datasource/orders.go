package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const orderLookupQuery = `SELECT order_id, user_id, status, created_at FROM orders WHERE order_id = $1`

// TransactionalStore reads order records from Postgres. Point lookups only.
type TransactionalStore struct {
	db *sql.DB
}

func NewTransactionalStore(db *sql.DB) *TransactionalStore {
	return &TransactionalStore{db: db}
}

// FetchOrder looks up one order by id. A missing row is ErrNotFound;
// anything else wrong with the database is ErrSourceUnavailable.
func (s *TransactionalStore) FetchOrder(ctx context.Context, orderID string) (map[string]interface{}, error) {
	row := s.db.QueryRowContext(ctx, orderLookupQuery, orderID)

	var (
		id        string
		userID    string
		status    string
		createdAt time.Time
	)
	if err := row.Scan(&id, &userID, &status, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		return nil, fmt.Errorf("%w: order lookup: %v", ErrSourceUnavailable, err)
	}

	return map[string]interface{}{
		"order_id":   id,
		"user_id":    userID,
		"status":     status,
		"created_at": createdAt.UTC().Format(time.RFC3339),
	}, nil
}

// Ping verifies database connectivity for readiness checks.
func (s *TransactionalStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return nil
}
