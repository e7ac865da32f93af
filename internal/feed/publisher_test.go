package feed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerd/internal/ir"
)

var ts = time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)

// setupTestPublisher creates a publisher connected to a miniredis instance.
func setupTestPublisher(t *testing.T, opts ...Option) (*Publisher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	quiet := WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	p, err := NewPublisher(&redis.Options{Addr: mr.Addr()}, "test", append([]Option{quiet}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p, mr
}

func withdrawal(seq int64) ir.Transition {
	return ir.Transition{
		ID:          "tx-" + ir.ContractID(seq).String(),
		Seq:         seq,
		CommandID:   "cmd",
		Timestamp:   ts,
		ActingParty: "emma",
		Kind:        ir.TransitionExercise,
		Template:    "AllowanceAccount",
		Choice:      "WithdrawMoney",
		Target:      ir.ContractID(seq - 1),
		Args:        ir.NewRecord(ir.F("amount", ir.Text("5.00"))),
		Consumed:    []ir.ContractID{ir.ContractID(seq - 1)},
		Produced: []ir.Contract{{
			ID:          ir.ContractID(seq),
			Template:    "AllowanceAccount",
			Signatories: []ir.Party{"parent"},
			Observers:   []ir.Party{"emma"},
			Payload:     ir.NewRecord(ir.F("balance", ir.Text("15.00"))),
			Status:      ir.StatusActive,
		}},
		Result: ir.NewRecord(),
	}
}

func TestNewPublisher_RejectsEmptyNamespace(t *testing.T) {
	_, err := NewPublisher(&redis.Options{Addr: "localhost:6379"}, "")
	assert.ErrorContains(t, err, "namespace cannot be empty")
}

func TestPing(t *testing.T) {
	p, _ := setupTestPublisher(t)
	assert.NoError(t, p.Ping(context.Background()))
	assert.Equal(t, "redis-feed", p.Name())
}

func TestObserve_AppendsStream(t *testing.T) {
	p, mr := setupTestPublisher(t)
	ctx := context.Background()

	for seq := int64(2); seq <= 4; seq++ {
		require.NoError(t, p.Observe(ctx, withdrawal(seq)))
	}
	assert.True(t, mr.Exists(StreamKey("test")))

	events, err := p.Read(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(2), events[0].Seq)
	assert.Equal(t, "WithdrawMoney", events[0].Choice)
	assert.Equal(t, []ir.ContractID{1}, events[0].Consumed)
	require.Len(t, events[0].Produced, 1)
	assert.Equal(t, []ir.Party{"emma"}, events[0].Produced[0].Observers)
	assert.True(t, ts.Equal(events[0].Timestamp))

	events, err = p.Read(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(3), events[0].Seq)

	last, err := p.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), last)
}

func TestObserve_StreamCarriesNoPayloads(t *testing.T) {
	p, mr := setupTestPublisher(t)
	require.NoError(t, p.Observe(context.Background(), withdrawal(2)))

	entries, err := mr.Stream(StreamKey("test"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	for _, v := range entries[0].Values {
		assert.NotContains(t, v, "15.00")
	}
}

func TestObserve_RedeliveryIsIdempotent(t *testing.T) {
	p, _ := setupTestPublisher(t)
	ctx := context.Background()

	require.NoError(t, p.Observe(ctx, withdrawal(2)))
	require.NoError(t, p.Observe(ctx, withdrawal(3)))
	require.NoError(t, p.Observe(ctx, withdrawal(2)), "an already published seq is skipped")

	events, err := p.Read(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestObserve_TrimsStream(t *testing.T) {
	p, _ := setupTestPublisher(t, WithMaxLen(2))
	ctx := context.Background()

	for seq := int64(2); seq <= 6; seq++ {
		require.NoError(t, p.Observe(ctx, withdrawal(seq)))
	}
	events, err := p.Read(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(5), events[0].Seq)
}

func TestObserve_PartyChannels(t *testing.T) {
	p, _ := setupTestPublisher(t)
	ctx := context.Background()

	emma, err := p.Subscribe(ctx, "emma")
	require.NoError(t, err)
	defer emma.Close()
	mallory, err := p.Subscribe(ctx, "mallory")
	require.NoError(t, err)
	defer mallory.Close()

	require.NoError(t, p.Observe(ctx, withdrawal(2)))

	msg, err := emma.ReceiveMessage(ctx)
	require.NoError(t, err)
	view, err := DecodeView(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.Seq)
	require.Len(t, view.Contracts, 1)
	assert.Equal(t, ir.Text("15.00"), view.Contracts[0].Payload["balance"])

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = mallory.ReceiveMessage(short)
	assert.Error(t, err, "non-stakeholders receive nothing")
}

func TestAudience(t *testing.T) {
	tr := withdrawal(2)
	tr.ActingParty = "parent"
	assert.Equal(t, []ir.Party{"emma", "parent"}, audience(tr))

	v := viewFor(NewEvent(tr), tr, "bank")
	assert.Empty(t, v.Contracts)
}

func TestSeqOf(t *testing.T) {
	seq, err := seqOf(entryID(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)

	_, err = seqOf("abc-0")
	assert.Error(t, err)
}
