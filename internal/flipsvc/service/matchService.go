package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/abelt/coinflip-services/internal/commit"
	"github.com/abelt/coinflip-services/internal/flipsvc/models"
)

// MatchStore is the persistence the state machine needs. Implemented by
// store.MatchStore; tests use an in-memory fake.
type MatchStore interface {
	Create(ctx context.Context, m *models.Match) (*models.Match, error)
	GetMatchByID(ctx context.Context, matchID int64) (*models.Match, error)
	Update(ctx context.Context, m *models.Match) error
}

// Ledger is the escrow side of the state machine. Implemented by
// LedgerService.
type Ledger interface {
	Balance(ctx context.Context, account string) (decimal.Decimal, error)
	Charge(ctx context.Context, account, ttype string, amount int64, ref string) error
	Pay(ctx context.Context, account, ttype string, amount int64, ref string) error
}

// TxManager runs a batch of store and ledger writes as one unit.
// Implemented by store.TxRunner.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MatchService is the authoritative match state machine. All validation
// rules live here; callers submit operations and get the verdict back.
// It assumes a single writer: the engine applies submissions one at a
// time in arrival order. Each operation's match write and ledger rows
// commit together, so escrow never drifts from match state.
type MatchService struct {
	matchStore    MatchStore
	ledger        Ledger
	tx            TxManager
	revealTimeout time.Duration
	now           func() time.Time
}

func NewMatchService(matchStore MatchStore, ledger Ledger, tx TxManager, revealTimeout time.Duration) *MatchService {
	return &MatchService{
		matchStore:    matchStore,
		ledger:        ledger,
		tx:            tx,
		revealTimeout: revealTimeout,
		now:           time.Now,
	}
}

func matchRef(matchID int64) string {
	return fmt.Sprintf("match:%d", matchID)
}

// Create instantiates a match, escrowing betAmount from the caller.
// escrow is the value actually attached to the submission and must
// equal betAmount exactly.
func (s *MatchService) Create(ctx context.Context, from string, betAmount, escrow int64, commitment []byte) (*models.Match, error) {
	if betAmount <= 0 {
		return nil, models.ErrBadBetAmount
	}
	if escrow != betAmount {
		return nil, models.ErrBetMismatch
	}
	if _, err := commit.CommitmentFromBytes(commitment); err != nil {
		return nil, err
	}

	if err := s.checkFunds(ctx, from, betAmount); err != nil {
		return nil, err
	}

	m := &models.Match{
		Creator:       from,
		BetAmount:     betAmount,
		CommitCreator: commitment,
		Status:        models.StatusCreated,
		CreatedAt:     s.now(),
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if m, err = s.matchStore.Create(ctx, m); err != nil {
			return err
		}
		return s.ledger.Charge(ctx, from, models.TTypeEscrow, betAmount, matchRef(m.ID))
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Join enters the caller as the second participant. Valid only while
// the match is still in created state and never for the creator.
func (s *MatchService) Join(ctx context.Context, from string, matchID, escrow int64, commitment []byte) (*models.Match, error) {
	m, err := s.getMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.StatusCreated {
		return nil, models.ErrAlreadyJoined
	}
	if from == m.Creator {
		return nil, models.ErrSelfJoin
	}
	if escrow != m.BetAmount {
		return nil, models.ErrBetMismatch
	}
	if _, err := commit.CommitmentFromBytes(commitment); err != nil {
		return nil, err
	}
	if err := s.checkFunds(ctx, from, m.BetAmount); err != nil {
		return nil, err
	}

	m.Joiner = sql.NullString{String: from, Valid: true}
	m.CommitJoiner = commitment
	m.JoinedAt = sql.NullTime{Time: s.now(), Valid: true}
	m.Status = models.StatusJoined

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.matchStore.Update(ctx, m); err != nil {
			return err
		}
		return s.ledger.Charge(ctx, from, models.TTypeEscrow, m.BetAmount, matchRef(m.ID))
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Reveal validates the caller's secret against their stored commitment.
// When both sides have revealed the match resolves atomically and the
// full escrow is paid to the winner. A single-sided reveal leaves the
// match joined.
func (s *MatchService) Reveal(ctx context.Context, from string, matchID int64, secret commit.Secret) (*models.Match, error) {
	m, err := s.getMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.StatusJoined {
		return nil, models.ErrInvalidState
	}
	if !m.IsParticipant(from) {
		return nil, models.ErrNotParticipant
	}
	if m.HasRevealed(from) {
		return nil, models.ErrAlreadyRevealed
	}

	var stored []byte
	if from == m.Creator {
		stored = m.CommitCreator
	} else {
		stored = m.CommitJoiner
	}
	c, err := commit.CommitmentFromBytes(stored)
	if err != nil {
		return nil, err
	}
	if err := commit.Verify(c, secret); err != nil {
		return nil, models.ErrInvalidReveal
	}

	if from == m.Creator {
		m.RevealCreator = secret[:]
	} else {
		m.RevealJoiner = secret[:]
	}

	if len(m.RevealCreator) > 0 && len(m.RevealJoiner) > 0 {
		winner := flipWinner(m)
		m.Winner = sql.NullString{String: winner, Valid: true}
		m.Status = models.StatusResolved
		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.matchStore.Update(ctx, m); err != nil {
				return err
			}
			return s.ledger.Pay(ctx, winner, models.TTypePayout, 2*m.BetAmount, matchRef(m.ID))
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	}

	if err := s.matchStore.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Cancel refunds the creator while nobody has joined yet.
func (s *MatchService) Cancel(ctx context.Context, from string, matchID int64) (*models.Match, error) {
	m, err := s.getMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if from != m.Creator {
		return nil, models.ErrNotParticipant
	}
	if m.Status != models.StatusCreated {
		return nil, models.ErrInvalidState
	}

	m.Status = models.StatusCancelled
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.matchStore.Update(ctx, m); err != nil {
			return err
		}
		return s.ledger.Pay(ctx, m.Creator, models.TTypeRefund, m.BetAmount, matchRef(m.ID))
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ClaimForfeit awards the full escrow to a participant who revealed
// while the counterparty sat out the whole reveal window. The boundary
// is inclusive so there is no instant where neither side can act.
func (s *MatchService) ClaimForfeit(ctx context.Context, from string, matchID int64) (*models.Match, error) {
	m, err := s.getMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.StatusJoined {
		return nil, models.ErrInvalidState
	}
	if !m.IsParticipant(from) {
		return nil, models.ErrNotParticipant
	}
	if !m.JoinedAt.Valid || s.now().Before(m.JoinedAt.Time.Add(s.revealTimeout)) {
		return nil, models.ErrTimeoutNotElapsed
	}
	if !m.HasRevealed(from) {
		return nil, models.ErrNotEligible
	}

	m.Winner = sql.NullString{String: from, Valid: true}
	m.Status = models.StatusForfeitClaimed
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.matchStore.Update(ctx, m); err != nil {
			return err
		}
		return s.ledger.Pay(ctx, from, models.TTypePayout, 2*m.BetAmount, matchRef(m.ID))
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MatchService) getMatch(ctx context.Context, matchID int64) (*models.Match, error) {
	m, err := s.matchStore.GetMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, models.ErrMatchNotFound
	}
	return m, nil
}

func (s *MatchService) checkFunds(ctx context.Context, account string, amount int64) error {
	balance, err := s.ledger.Balance(ctx, account)
	if err != nil {
		return err
	}
	if balance.LessThan(decimal.NewFromInt(amount)) {
		return models.ErrNoBalance
	}
	return nil
}

// flipWinner derives the coin flip from both revealed secrets: the low
// bit of sha256(revealCreator || revealJoiner) picks the side. Either
// party flipping any bit of their secret flips the digest
// unpredictably, and both committed before either revealed.
func flipWinner(m *models.Match) string {
	h := sha256.New()
	h.Write(m.RevealCreator)
	h.Write(m.RevealJoiner)
	sum := h.Sum(nil)
	if sum[len(sum)-1]&1 == 0 {
		return m.Creator
	}
	return m.Joiner.String
}
