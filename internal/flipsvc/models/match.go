package models

import (
	"database/sql"
	"time"
)

// Match lifecycle. created and joined are live states, the other three
// are terminal.
const (
	StatusCreated        = "created"
	StatusJoined         = "joined"
	StatusResolved       = "resolved"
	StatusCancelled      = "cancelled"
	StatusForfeitClaimed = "forfeit_claimed"
)

type Match struct {
	ID            int64          `json:"id"` // Primary key, doubles as the protocol match id
	Creator       string         `json:"creator"`
	Joiner        sql.NullString `json:"joiner"`
	BetAmount     int64          `json:"bet_amount"` // nano units, escrowed by each side
	CommitCreator []byte         `json:"commit_creator"`
	CommitJoiner  []byte         `json:"commit_joiner"`
	RevealCreator []byte         `json:"reveal_creator"`
	RevealJoiner  []byte         `json:"reveal_joiner"`
	Winner        sql.NullString `json:"winner"`
	Status        string         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	JoinedAt      sql.NullTime   `json:"joined_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Terminal reports whether no further operation is valid on the match.
func (m *Match) Terminal() bool {
	switch m.Status {
	case StatusResolved, StatusCancelled, StatusForfeitClaimed:
		return true
	}
	return false
}

// HasRevealed reports whether addr has already produced a valid reveal.
func (m *Match) HasRevealed(addr string) bool {
	if addr == m.Creator {
		return len(m.RevealCreator) > 0
	}
	if m.Joiner.Valid && addr == m.Joiner.String {
		return len(m.RevealJoiner) > 0
	}
	return false
}

// IsParticipant reports whether addr is the creator or the joiner.
func (m *Match) IsParticipant(addr string) bool {
	return addr == m.Creator || (m.Joiner.Valid && addr == m.Joiner.String)
}
