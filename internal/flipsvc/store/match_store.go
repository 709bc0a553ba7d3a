package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abelt/coinflip-services/internal/flipsvc/models"
)

type MatchStore struct {
	db *pgxpool.Pool
}

func NewMatchStore(db *pgxpool.Pool) *MatchStore {
	return &MatchStore{db: db}
}

const matchColumns = `id, creator, joiner, bet_amount, commit_creator, commit_joiner,
		reveal_creator, reveal_joiner, winner, status, created_at, joined_at, updated_at`

// Create inserts a new match and returns it with the assigned id.
func (s *MatchStore) Create(ctx context.Context, m *models.Match) (*models.Match, error) {
	query := `
		INSERT INTO matches (creator, bet_amount, commit_creator, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`

	err := querier(ctx, s.db).QueryRow(ctx, query,
		m.Creator,
		m.BetAmount,
		m.CommitCreator,
		m.Status,
		m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert match: %w", err)
	}

	return m, nil
}

// GetMatchByID returns the match or nil when the id is unknown.
func (s *MatchStore) GetMatchByID(ctx context.Context, matchID int64) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`

	m := &models.Match{}
	err := querier(ctx, s.db).QueryRow(ctx, query, matchID).Scan(
		&m.ID,
		&m.Creator,
		&m.Joiner,
		&m.BetAmount,
		&m.CommitCreator,
		&m.CommitJoiner,
		&m.RevealCreator,
		&m.RevealJoiner,
		&m.Winner,
		&m.Status,
		&m.CreatedAt,
		&m.JoinedAt,
		&m.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Match not found
		}
		return nil, fmt.Errorf("failed to get match by ID: %w", err)
	}

	return m, nil
}

// Update writes back every mutable field of the match.
func (s *MatchStore) Update(ctx context.Context, m *models.Match) error {
	query := `
		UPDATE matches
		SET joiner = $2, commit_joiner = $3, reveal_creator = $4, reveal_joiner = $5,
		    winner = $6, status = $7, joined_at = $8, updated_at = now()
		WHERE id = $1
	`

	tag, err := querier(ctx, s.db).Exec(ctx, query,
		m.ID,
		m.Joiner,
		m.CommitJoiner,
		m.RevealCreator,
		m.RevealJoiner,
		m.Winner,
		m.Status,
		m.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrMatchNotFound
	}

	return nil
}

// ListByStatus returns matches in a given status, newest first. Used by
// the query API so joiners can discover open matches.
func (s *MatchStore) ListByStatus(ctx context.Context, status string, limit int) ([]*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := querier(ctx, s.db).Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		m := &models.Match{}
		err := rows.Scan(
			&m.ID,
			&m.Creator,
			&m.Joiner,
			&m.BetAmount,
			&m.CommitCreator,
			&m.CommitJoiner,
			&m.RevealCreator,
			&m.RevealJoiner,
			&m.Winner,
			&m.Status,
			&m.CreatedAt,
			&m.JoinedAt,
			&m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, m)
	}

	return matches, rows.Err()
}
