package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/abelt/coinflip-services/internal/codec"
	"github.com/abelt/coinflip-services/internal/comm"
	"github.com/abelt/coinflip-services/internal/commit"
	"github.com/abelt/coinflip-services/internal/vault"
)

// DefaultGasAmount is the fixed allowance attached to every submission
// on top of any escrow, in nano units.
const DefaultGasAmount = int64(50000000)

// DefaultValidFor bounds how long a submission stays acceptable.
const DefaultValidFor = 5 * time.Minute

// Config is passed in at construction; there is no package-level
// mutable state, so retargeting one client never affects another.
type Config struct {
	TargetAccount string
	GasAmount     int64
	ValidFor      time.Duration
}

// Session identifies the wallet account a call acts for. It is threaded
// through every call so concurrent sessions do not interfere.
type Session struct {
	Account string
}

// Submitter hands a submission to the execution environment and returns
// its verdict. The error return is transport failure only; protocol
// rejections come back inside the result.
type Submitter interface {
	Submit(ctx context.Context, sub *comm.Submission) (*comm.SubmissionResult, error)
}

// Client performs each player action as a single logical request:
// secret handling, commitment, encoding and submission.
type Client struct {
	cfg       Config
	vault     vault.Vault
	submitter Submitter
}

func New(cfg Config, v vault.Vault, s Submitter) *Client {
	if cfg.GasAmount == 0 {
		cfg.GasAmount = DefaultGasAmount
	}
	if cfg.ValidFor == 0 {
		cfg.ValidFor = DefaultValidFor
	}
	return &Client{cfg: cfg, vault: v, submitter: s}
}

// CreateMatch opens a new match with the given bet. The freshly drawn
// secret is vaulted under a provisional key before anything goes on the
// wire and rebound to the match id the engine assigns.
func (c *Client) CreateMatch(ctx context.Context, sess Session, betAmount int64) (*comm.SubmissionResult, error) {
	secret, err := commit.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	subID := uuid.NewString()
	pendingKey := vault.PendingKey(sess.Account, subID)
	if err := c.vault.Put(pendingKey, secret); err != nil {
		return nil, fmt.Errorf("vault secret: %w", err)
	}

	payload := codec.EncodeCreate(uint64(betAmount), commit.Commit(secret))
	result, err := c.submit(ctx, sess, subID, betAmount+c.cfg.GasAmount, payload)
	if err != nil {
		return nil, err
	}

	if result.Accepted {
		if err := c.vault.Put(vault.MatchKey(sess.Account, result.MatchID), secret); err != nil {
			return result, fmt.Errorf("rebind secret to match %d: %w", result.MatchID, err)
		}
	}
	if err := c.vault.Delete(pendingKey); err != nil {
		log.Warnf("failed to drop provisional secret %s: %v", pendingKey, err)
	}

	return result, nil
}

// JoinMatch enters an existing match. The secret is vaulted under the
// match id before submission.
func (c *Client) JoinMatch(ctx context.Context, sess Session, matchID uint64, betAmount int64) (*comm.SubmissionResult, error) {
	secret, err := commit.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	key := vault.MatchKey(sess.Account, matchID)
	if err := c.vault.Put(key, secret); err != nil {
		return nil, fmt.Errorf("vault secret: %w", err)
	}

	payload := codec.EncodeJoin(matchID, commit.Commit(secret))
	result, err := c.submit(ctx, sess, uuid.NewString(), betAmount+c.cfg.GasAmount, payload)
	if err != nil {
		return nil, err
	}

	if !result.Accepted {
		if err := c.vault.Delete(key); err != nil {
			log.Warnf("failed to drop unused secret %s: %v", key, err)
		}
	}
	return result, nil
}

// Reveal proves the locally held secret for a match. Without the secret
// there is nothing to prove, so a missing vault entry short-circuits
// before any network traffic.
func (c *Client) Reveal(ctx context.Context, sess Session, matchID uint64) (*comm.SubmissionResult, error) {
	key := vault.MatchKey(sess.Account, matchID)
	secret, err := c.vault.Get(key)
	if err != nil {
		return nil, err
	}

	payload := codec.EncodeReveal(matchID, secret)
	result, err := c.submit(ctx, sess, uuid.NewString(), c.cfg.GasAmount, payload)
	if err != nil {
		return nil, err
	}

	if result.Accepted {
		// spent, never reuse a revealed secret
		if err := c.vault.Delete(key); err != nil {
			log.Warnf("failed to drop revealed secret %s: %v", key, err)
		}
	}
	return result, nil
}

// Cancel withdraws an unjoined match.
func (c *Client) Cancel(ctx context.Context, sess Session, matchID uint64) (*comm.SubmissionResult, error) {
	payload := codec.EncodeCancel(matchID)
	return c.submit(ctx, sess, uuid.NewString(), c.cfg.GasAmount, payload)
}

// ClaimForfeit collects the escrow after the counterparty sat out the
// reveal window.
func (c *Client) ClaimForfeit(ctx context.Context, sess Session, matchID uint64) (*comm.SubmissionResult, error) {
	payload := codec.EncodeClaimForfeit(matchID)
	return c.submit(ctx, sess, uuid.NewString(), c.cfg.GasAmount, payload)
}

func (c *Client) submit(ctx context.Context, sess Session, subID string, amount int64, payload []byte) (*comm.SubmissionResult, error) {
	sub := &comm.Submission{
		ID:         subID,
		From:       sess.Account,
		Target:     c.cfg.TargetAccount,
		Amount:     amount,
		Payload:    codec.ToBase64(payload),
		ValidUntil: time.Now().Add(c.cfg.ValidFor).Unix(),
	}

	result, err := c.submitter.Submit(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", subID, err)
	}
	return result, nil
}
