package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/abelt/coinflip-services/internal/codec"
	"github.com/abelt/coinflip-services/internal/comm"
	"github.com/abelt/coinflip-services/internal/flipsvc/models"
	"github.com/abelt/coinflip-services/internal/flipsvc/service"
)

// SubmissionJournal is what the broker needs from the mongo journal.
type SubmissionJournal interface {
	Seen(ctx context.Context, submissionID string) (bool, error)
	Record(ctx context.Context, sub *comm.Submission, result *comm.SubmissionResult) error
}

// Notifier receives match transitions for fan-out (the websocket hub).
type Notifier interface {
	BroadcastMatch(ev comm.MatchEvent)
}

// Broker is the engine's intake: it consumes submissions from NATS,
// applies them to the match state machine and replies with the verdict.
// A single subscription with a single handler goroutine is the sole
// writer, which is what makes per-match operation ordering trivial.
type Broker struct {
	Conn         *nats.Conn
	MatchService *service.MatchService
	Ledger       service.Ledger
	Journal      SubmissionJournal
	Notifier     Notifier

	GasAmount  int64
	FeeAccount string

	now func() time.Time
}

func NewBroker(nc *nats.Conn, matchService *service.MatchService, ledger service.Ledger,
	journal SubmissionJournal, notifier Notifier, gasAmount int64, feeAccount string) *Broker {
	return &Broker{
		Conn:         nc,
		MatchService: matchService,
		Ledger:       ledger,
		Journal:      journal,
		Notifier:     notifier,
		GasAmount:    gasAmount,
		FeeAccount:   feeAccount,
		now:          time.Now,
	}
}

// SubscribeSubmissions starts consuming the submission subject.
func (b *Broker) SubscribeSubmissions() (*nats.Subscription, error) {
	return b.Conn.Subscribe(comm.SubjectSubmit, b.handleMessage)
}

func (b *Broker) handleMessage(msgNat *nats.Msg) {
	sub := &comm.Submission{}
	if err := json.Unmarshal(msgNat.Data, sub); err != nil {
		log.Errorf("Error nats submission %s", err)
		b.reply(msgNat, &comm.SubmissionResult{
			Accepted: false,
			Code:     comm.CodeBadPayload,
			Error:    "malformed submission envelope",
		})
		return
	}

	result := b.Process(sub)
	b.reply(msgNat, result)
}

func (b *Broker) reply(msgNat *nats.Msg, result *comm.SubmissionResult) {
	if msgNat.Reply == "" {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		log.Errorf("Error marshaling submission result %s", err)
		return
	}
	if err := msgNat.Respond(data); err != nil {
		log.Errorf("Error replying to submission %s", err)
	}
}

// Process applies one submission end to end and returns the verdict.
// It never touches the transport, so it is directly testable.
func (b *Broker) Process(sub *comm.Submission) *comm.SubmissionResult {
	result := &comm.SubmissionResult{SubmissionID: sub.ID}
	now := b.now()

	if now.Unix() > sub.ValidUntil {
		result.Code = comm.CodeStale
		result.Error = "submission validity window elapsed"
		return result
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	seen, err := b.Journal.Seen(ctx, sub.ID)
	if err != nil {
		log.Errorf("Error [Journal.Seen] %s", err)
		result.Code = comm.CodeInternal
		result.Error = "journal lookup failed"
		return result
	}
	if seen {
		result.Code = comm.CodeDuplicate
		result.Error = "submission already processed"
		return result
	}

	payload, err := codec.FromBase64(sub.Payload)
	if err != nil {
		result.Code = comm.CodeBadPayload
		result.Error = err.Error()
		return result
	}
	op, err := codec.Decode(payload)
	if err != nil {
		result.Code = comm.CodeBadPayload
		result.Error = err.Error()
		return result
	}

	if sub.Amount < b.GasAmount {
		result.Code = comm.CodeValidation
		result.Error = "attached value is below the gas allowance"
		return result
	}
	escrow := sub.Amount - b.GasAmount

	balance, err := b.Ledger.Balance(ctx, sub.From)
	if err != nil {
		log.Errorf("Error [Ledger.Balance] %s", err)
		result.Code = comm.CodeInternal
		result.Error = "balance lookup failed"
		return result
	}
	if balance.LessThan(decimal.NewFromInt(sub.Amount)) {
		result.Code = comm.CodeValidation
		result.Error = models.ErrNoBalance.Error()
		b.journal(ctx, sub, result)
		return result
	}

	// gas is consumed up front; a rejected operation still pays for the
	// validation work it caused
	if err := b.chargeGas(ctx, sub); err != nil {
		log.Errorf("Error charging gas for %s: %s", sub.ID, err)
		result.Code = comm.CodeInternal
		result.Error = "gas charge failed"
		return result
	}

	m, err := b.apply(ctx, sub.From, op, escrow)
	if err != nil {
		result.Code = errCode(err)
		result.Error = err.Error()
		if m != nil {
			result.MatchID = uint64(m.ID)
		}
		b.journal(ctx, sub, result)
		return result
	}

	result.Accepted = true
	result.Code = comm.CodeOK
	result.MatchID = uint64(m.ID)
	result.Status = m.Status

	b.journal(ctx, sub, result)
	b.notify(m)

	return result
}

func (b *Broker) apply(ctx context.Context, from string, op *codec.Operation, escrow int64) (*models.Match, error) {
	switch op.Op {
	case codec.OpCreate:
		return b.MatchService.Create(ctx, from, int64(op.BetAmount), escrow, op.Commitment[:])
	case codec.OpJoin:
		return b.MatchService.Join(ctx, from, int64(op.MatchID), escrow, op.Commitment[:])
	case codec.OpReveal:
		return b.MatchService.Reveal(ctx, from, int64(op.MatchID), op.Secret)
	case codec.OpCancel:
		return b.MatchService.Cancel(ctx, from, int64(op.MatchID))
	case codec.OpClaimForfeit:
		return b.MatchService.ClaimForfeit(ctx, from, int64(op.MatchID))
	}
	return nil, codec.ErrUnknownOp
}

func (b *Broker) chargeGas(ctx context.Context, sub *comm.Submission) error {
	if b.GasAmount == 0 {
		return nil
	}
	ref := "gas:" + sub.ID
	if err := b.Ledger.Charge(ctx, sub.From, models.TTypeGas, b.GasAmount, ref); err != nil {
		return fmt.Errorf("failed to charge gas: %w", err)
	}
	if err := b.Ledger.Pay(ctx, b.FeeAccount, models.TTypeGas, b.GasAmount, ref); err != nil {
		return fmt.Errorf("failed to credit fee account: %w", err)
	}
	return nil
}

func (b *Broker) journal(ctx context.Context, sub *comm.Submission, result *comm.SubmissionResult) {
	if err := b.Journal.Record(ctx, sub, result); err != nil {
		log.Errorf("Error [Journal.Record] %s", err)
	}
}

func (b *Broker) notify(m *models.Match) {
	ev := comm.MatchEvent{
		MatchID:   uint64(m.ID),
		Status:    m.Status,
		Winner:    m.Winner.String,
		Timestamp: time.Now(),
	}
	if b.Notifier != nil {
		b.Notifier.BroadcastMatch(ev)
	}
	if b.Conn != nil {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Errorf("Error marshaling match event %s", err)
			return
		}
		if err := b.Conn.Publish(comm.SubjectEvents, data); err != nil {
			log.Errorf("Error publishing match event %s", err)
		}
	}
}

func errCode(err error) string {
	switch {
	case errors.Is(err, codec.ErrUnknownOp), errors.Is(err, codec.ErrBadPayload):
		return comm.CodeBadPayload
	case errors.Is(err, models.ErrMatchNotFound),
		errors.Is(err, models.ErrAlreadyJoined),
		errors.Is(err, models.ErrSelfJoin),
		errors.Is(err, models.ErrBetMismatch),
		errors.Is(err, models.ErrInvalidReveal),
		errors.Is(err, models.ErrAlreadyRevealed),
		errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrNotParticipant),
		errors.Is(err, models.ErrTimeoutNotElapsed),
		errors.Is(err, models.ErrNotEligible),
		errors.Is(err, models.ErrNoBalance),
		errors.Is(err, models.ErrBadBetAmount):
		return comm.CodeValidation
	}
	return comm.CodeInternal
}
