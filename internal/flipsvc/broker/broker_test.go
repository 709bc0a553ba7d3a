package broker

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelt/coinflip-services/internal/codec"
	"github.com/abelt/coinflip-services/internal/comm"
	"github.com/abelt/coinflip-services/internal/commit"
	"github.com/abelt/coinflip-services/internal/flipsvc/models"
	"github.com/abelt/coinflip-services/internal/flipsvc/service"
)

const gas = int64(50000000)

type fakeMatchStore struct {
	matches map[int64]*models.Match
	nextID  int64
}

func (f *fakeMatchStore) Create(_ context.Context, m *models.Match) (*models.Match, error) {
	f.nextID++
	m.ID = f.nextID
	cp := *m
	f.matches[m.ID] = &cp
	return m, nil
}

func (f *fakeMatchStore) GetMatchByID(_ context.Context, matchID int64) (*models.Match, error) {
	m, ok := f.matches[matchID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMatchStore) Update(_ context.Context, m *models.Match) error {
	cp := *m
	f.matches[m.ID] = &cp
	return nil
}

type fakeLedger struct {
	balances  map[string]decimal.Decimal
	charges   []string
	pays      []string
	chargeErr error
}

func (f *fakeLedger) Balance(_ context.Context, account string) (decimal.Decimal, error) {
	return f.balances[account], nil
}

func (f *fakeLedger) Charge(_ context.Context, account, ttype string, amount int64, _ string) error {
	if f.chargeErr != nil {
		return f.chargeErr
	}
	f.balances[account] = f.balances[account].Sub(decimal.NewFromInt(amount))
	f.charges = append(f.charges, account+":"+ttype)
	return nil
}

func (f *fakeLedger) Pay(_ context.Context, account, ttype string, amount int64, _ string) error {
	f.balances[account] = f.balances[account].Add(decimal.NewFromInt(amount))
	f.pays = append(f.pays, account+":"+ttype)
	return nil
}

type passTx struct{}

func (passTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeJournal struct {
	seen     map[string]bool
	recorded []*comm.SubmissionResult
}

func (f *fakeJournal) Seen(_ context.Context, id string) (bool, error) {
	return f.seen[id], nil
}

func (f *fakeJournal) Record(_ context.Context, sub *comm.Submission, result *comm.SubmissionResult) error {
	f.seen[sub.ID] = true
	f.recorded = append(f.recorded, result)
	return nil
}

type fakeNotifier struct {
	events []comm.MatchEvent
}

func (f *fakeNotifier) BroadcastMatch(ev comm.MatchEvent) {
	f.events = append(f.events, ev)
}

type fixture struct {
	broker   *Broker
	store    *fakeMatchStore
	ledger   *fakeLedger
	journal  *fakeJournal
	notifier *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := &fakeMatchStore{matches: make(map[int64]*models.Match)}
	ledger := &fakeLedger{balances: map[string]decimal.Decimal{
		"alice": decimal.NewFromInt(10000000000),
		"bob":   decimal.NewFromInt(10000000000),
	}}
	matchService := service.NewMatchService(store, ledger, passTx{}, 24*time.Hour)
	journal := &fakeJournal{seen: make(map[string]bool)}
	notifier := &fakeNotifier{}

	return &fixture{
		broker:   NewBroker(nil, matchService, ledger, journal, notifier, gas, "flip-fees"),
		store:    store,
		ledger:   ledger,
		journal:  journal,
		notifier: notifier,
	}
}

func createSubmission(t *testing.T, id, from string, bet int64) *comm.Submission {
	t.Helper()
	s, err := commit.GenerateSecret()
	require.NoError(t, err)
	return &comm.Submission{
		ID:         id,
		From:       from,
		Target:     "flip-engine",
		Amount:     bet + gas,
		Payload:    codec.ToBase64(codec.EncodeCreate(uint64(bet), commit.Commit(s))),
		ValidUntil: time.Now().Add(time.Minute).Unix(),
	}
}

func TestProcessCreateAccepted(t *testing.T) {
	f := newFixture(t)

	result := f.broker.Process(createSubmission(t, "sub-1", "alice", 1000000000))

	assert.True(t, result.Accepted)
	assert.Equal(t, comm.CodeOK, result.Code)
	assert.Equal(t, uint64(1), result.MatchID)
	assert.Equal(t, models.StatusCreated, result.Status)

	// gas was collected and the verdict journaled and broadcast
	assert.Contains(t, f.ledger.charges, "alice:"+models.TTypeGas)
	assert.Contains(t, f.ledger.pays, "flip-fees:"+models.TTypeGas)
	require.Len(t, f.journal.recorded, 1)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, models.StatusCreated, f.notifier.events[0].Status)
}

func TestProcessStaleRejected(t *testing.T) {
	f := newFixture(t)

	sub := createSubmission(t, "sub-1", "alice", 1000000000)
	sub.ValidUntil = time.Now().Add(-time.Second).Unix()

	result := f.broker.Process(sub)
	assert.False(t, result.Accepted)
	assert.Equal(t, comm.CodeStale, result.Code)
	assert.True(t, result.Retryable())
	assert.Empty(t, f.journal.recorded, "stale submissions are not journaled")
}

func TestProcessDuplicateRejected(t *testing.T) {
	f := newFixture(t)

	sub := createSubmission(t, "sub-1", "alice", 1000000000)
	require.True(t, f.broker.Process(sub).Accepted)

	replay := f.broker.Process(sub)
	assert.False(t, replay.Accepted)
	assert.Equal(t, comm.CodeDuplicate, replay.Code)
}

func TestProcessBadBase64Rejected(t *testing.T) {
	f := newFixture(t)

	sub := createSubmission(t, "sub-1", "alice", 1000000000)
	sub.Payload = "%%%not-base64%%%"

	result := f.broker.Process(sub)
	assert.False(t, result.Accepted)
	assert.Equal(t, comm.CodeBadPayload, result.Code)
}

func TestProcessUnknownTagRejected(t *testing.T) {
	f := newFixture(t)

	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[:4], 77)
	binary.BigEndian.PutUint64(payload[4:], 1)

	sub := createSubmission(t, "sub-1", "alice", 1000000000)
	sub.Payload = codec.ToBase64(payload)

	result := f.broker.Process(sub)
	assert.False(t, result.Accepted)
	assert.Equal(t, comm.CodeBadPayload, result.Code)
	assert.False(t, result.Retryable())
}

func TestProcessValueBelowGasRejected(t *testing.T) {
	f := newFixture(t)

	sub := createSubmission(t, "sub-1", "alice", 1000000000)
	sub.Amount = gas - 1

	result := f.broker.Process(sub)
	assert.False(t, result.Accepted)
	assert.Equal(t, comm.CodeValidation, result.Code)
}

func TestProcessValidationVerdictJournaled(t *testing.T) {
	f := newFixture(t)

	// escrow after gas deduction will not match the bet field
	sub := createSubmission(t, "sub-1", "alice", 1000000000)
	sub.Amount = gas + 1

	result := f.broker.Process(sub)
	assert.False(t, result.Accepted)
	assert.Equal(t, comm.CodeValidation, result.Code)
	assert.False(t, result.Retryable())

	// the rejected operation still burned its gas
	assert.Contains(t, f.ledger.charges, "alice:"+models.TTypeGas)
	assert.Contains(t, f.ledger.pays, "flip-fees:"+models.TTypeGas)

	// futile verdicts are journaled so a replay is caught
	require.Len(t, f.journal.recorded, 1)
	replay := f.broker.Process(sub)
	assert.Equal(t, comm.CodeDuplicate, replay.Code)
}

func TestProcessFullMatchFlow(t *testing.T) {
	f := newFixture(t)

	bet := int64(1000000000)
	created := f.broker.Process(createSubmission(t, "sub-create", "alice", bet))
	require.True(t, created.Accepted)
	matchID := created.MatchID

	// joiner commits
	sj, err := commit.GenerateSecret()
	require.NoError(t, err)
	join := &comm.Submission{
		ID: "sub-join", From: "bob", Amount: bet + gas,
		Payload:    codec.ToBase64(codec.EncodeJoin(matchID, commit.Commit(sj))),
		ValidUntil: time.Now().Add(time.Minute).Unix(),
	}
	joined := f.broker.Process(join)
	require.True(t, joined.Accepted)
	assert.Equal(t, models.StatusJoined, joined.Status)

	// joiner reveals first, match stays joined
	reveal := &comm.Submission{
		ID: "sub-reveal", From: "bob", Amount: gas,
		Payload:    codec.ToBase64(codec.EncodeReveal(matchID, sj)),
		ValidUntil: time.Now().Add(time.Minute).Unix(),
	}
	revealed := f.broker.Process(reveal)
	require.True(t, revealed.Accepted)
	assert.Equal(t, models.StatusJoined, revealed.Status)
}

func TestProcessInsufficientFundsForValueRejected(t *testing.T) {
	f := newFixture(t)
	f.ledger.balances["alice"] = decimal.NewFromInt(gas + 100)

	// attached value (bet + gas) exceeds the account balance
	result := f.broker.Process(createSubmission(t, "sub-1", "alice", 1000000000))

	assert.False(t, result.Accepted)
	assert.Equal(t, comm.CodeValidation, result.Code)
	assert.Equal(t, models.ErrNoBalance.Error(), result.Error)

	// nothing was charged and no match row appeared
	assert.Empty(t, f.ledger.charges)
	assert.Empty(t, f.store.matches)

	// the verdict is journaled so a replay is caught
	require.Len(t, f.journal.recorded, 1)
}

func TestProcessGasChargeFailureSurfaced(t *testing.T) {
	f := newFixture(t)
	f.ledger.chargeErr = assert.AnError

	result := f.broker.Process(createSubmission(t, "sub-1", "alice", 1000000000))

	assert.False(t, result.Accepted)
	assert.Equal(t, comm.CodeInternal, result.Code)
	assert.True(t, result.Retryable())

	// the operation never ran and the verdict stays unjournaled so the
	// submitter can retry once the ledger recovers
	assert.Empty(t, f.store.matches)
	assert.Empty(t, f.journal.recorded)
}
