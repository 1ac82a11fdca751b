package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetPlannerByUser returns sql.ErrNoRows when the user never saved.
func (s *PostgresStore) GetPlannerByUser(ctx context.Context, userID string) (Planner, error) {
	const query = `
		SELECT id, user_id, email, state, revision, created_at, updated_at
		FROM planners
		WHERE user_id = $1
	`
	var (
		planner Planner
		state   string
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&planner.ID,
		&planner.UserID,
		&planner.Email,
		&state,
		&planner.Revision,
		&planner.CreatedAt,
		&planner.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Planner{}, err
		}
		return Planner{}, fmt.Errorf("get planner: %w", err)
	}
	planner.State = []byte(state)
	return planner, nil
}

// UpsertPlanner replaces the document of planner.UserID, creating the row on
// first save. The returned planner carries the stored id, revision and
// timestamps.
func (s *PostgresStore) UpsertPlanner(ctx context.Context, planner Planner) (Planner, error) {
	if strings.TrimSpace(planner.UserID) == "" {
		return Planner{}, fmt.Errorf("upsert planner: user id is required")
	}
	const query = `
		INSERT INTO planners (id, user_id, email, state)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			state = EXCLUDED.state,
			revision = planners.revision + 1,
			updated_at = NOW()
		RETURNING id, revision, created_at, updated_at
	`
	stored := planner
	err := s.db.QueryRowContext(ctx, query, planner.ID, planner.UserID, planner.Email, string(planner.State)).Scan(
		&stored.ID,
		&stored.Revision,
		&stored.CreatedAt,
		&stored.UpdatedAt,
	)
	if err != nil {
		return Planner{}, fmt.Errorf("upsert planner: %w", err)
	}
	return stored, nil
}

