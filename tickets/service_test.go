package tickets

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7UKECREAT0R/ability-wars-service-sub000/relay"
)

func TestOpenReportResolvesAccused(t *testing.T) {
	te := newTestEnv(t, Config{})

	rt, err := te.svc.OpenReport(context.Background(), 100, "griefqueen", "no griefing", nil)
	require.NoError(t, err)

	p := rt.Payload()
	assert.Equal(t, "GriefQueen", p.AccusedUsername, "stored username is canonical")
	require.NotNil(t, p.AccusedID)
	assert.Equal(t, uint64(42), *p.AccusedID)
	assert.True(t, rt.IsOpen())
	assert.Empty(t, rt.ChannelID(), "reports start pending, without a channel")
	assert.Equal(t, 1, te.svc.OpenCount())
}

func TestOpenReportValidation(t *testing.T) {
	te := newTestEnv(t, Config{})
	ctx := context.Background()

	var verr *ValidationError

	_, err := te.svc.OpenReport(ctx, 100, "", "no griefing", nil)
	require.ErrorAs(t, err, &verr)

	_, err = te.svc.OpenReport(ctx, 100, "GriefQueen", "", nil)
	require.ErrorAs(t, err, &verr)

	_, err = te.svc.OpenReport(ctx, 100, "NobodyByThatName", "no griefing", nil)
	require.ErrorAs(t, err, &verr)

	assert.Equal(t, 0, te.svc.OpenCount())
}

func TestReportCapPerOwner(t *testing.T) {
	te := newTestEnv(t, Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := te.svc.OpenReport(ctx, 100, "GriefQueen", "no griefing", nil)
		require.NoError(t, err)
	}

	var verr *ValidationError
	_, err := te.svc.OpenReport(ctx, 100, "GriefQueen", "no griefing", nil)
	require.ErrorAs(t, err, &verr)

	// a different owner is unaffected
	_, err = te.svc.OpenReport(ctx, 101, "GriefQueen", "no griefing", nil)
	require.NoError(t, err)
}

func TestUnbanTicketCapIsOne(t *testing.T) {
	te := newTestEnv(t, Config{})
	ctx := context.Background()

	_, err := te.svc.OpenAppeal(ctx, 100, DomainGame, 42, "it wasn't me")
	require.NoError(t, err)

	var verr *ValidationError
	_, err = te.svc.OpenAppeal(ctx, 100, DomainGame, 42, "still wasn't me")
	require.ErrorAs(t, err, &verr)

	// appeals and disputes are counted separately
	_, err = te.svc.OpenDispute(ctx, 100, DomainGame, 43, "neither was he")
	require.NoError(t, err)
}

func TestCategoryCapacity(t *testing.T) {
	te := newTestEnv(t, Config{CategoryCapacity: 2})
	ctx := context.Background()

	te.openMaterializedReport(100, "GriefQueen")
	te.openMaterializedReport(101, "GriefQueen")

	var verr *ValidationError
	_, err := te.svc.OpenReport(ctx, 102, "GriefQueen", "no griefing", nil)
	require.ErrorAs(t, err, &verr)
}

func TestKindWithoutCategoryRejected(t *testing.T) {
	te := newTestEnv(t, Config{Categories: map[Kind]string{KindReport: "cat-reports"}})

	var verr *ValidationError
	_, err := te.svc.OpenAppeal(context.Background(), 100, DomainGame, 42, "please")
	require.ErrorAs(t, err, &verr)
}

func TestFailedOpenDoesNotReuseIDs(t *testing.T) {
	te := newTestEnv(t, Config{})
	ctx := context.Background()

	a, err := te.svc.OpenReport(ctx, 100, "GriefQueen", "no griefing", nil)
	require.NoError(t, err)

	_, err = te.svc.OpenReport(ctx, 101, "NobodyByThatName", "no griefing", nil)
	require.Error(t, err)

	b, err := te.svc.OpenReport(ctx, 101, "GriefQueen", "no griefing", nil)
	require.NoError(t, err)
	assert.Greater(t, b.ID(), a.ID())
}

func TestBlacklistGate(t *testing.T) {
	te := newTestEnv(t, Config{})
	ctx := context.Background()

	require.NoError(t, te.svc.Blacklist(ctx, 42, DomainGame, 7, "serial frivolous appeals"))

	var verr *ValidationError
	_, err := te.svc.OpenAppeal(ctx, 100, DomainGame, 42, "please")
	require.ErrorAs(t, err, &verr)
	_, err = te.svc.OpenDispute(ctx, 100, DomainGame, 42, "please")
	require.ErrorAs(t, err, &verr)

	// the other domain is unaffected
	_, err = te.svc.OpenAppeal(ctx, 100, DomainPlatform, 42, "please")
	require.NoError(t, err)

	// and the blacklist appeal itself ignores the gate
	_, err = te.svc.OpenBlacklistAppeal(ctx, 101, DomainGame, 42, "I've changed")
	require.NoError(t, err)
}

func TestBlacklistAppealAcceptLiftsEntry(t *testing.T) {
	te := newTestEnv(t, Config{})
	ctx := context.Background()

	require.NoError(t, te.svc.Blacklist(ctx, 42, DomainGame, 7, "spam"))

	bt, err := te.svc.OpenBlacklistAppeal(ctx, 100, DomainGame, 42, "I've changed")
	require.NoError(t, err)
	_, err = te.svc.Materialize(ctx, bt)
	require.NoError(t, err)

	require.NoError(t, bt.HandleAction(ctx, ActionAccept, 7))
	assert.False(t, bt.IsOpen())

	blacklisted, err := te.svc.IsBlacklisted(ctx, 42, DomainGame)
	require.NoError(t, err)
	assert.False(t, blacklisted)

	// appeals work again
	_, err = te.svc.OpenAppeal(ctx, 100, DomainGame, 42, "as promised")
	require.NoError(t, err)
}

func TestReportBanAction(t *testing.T) {
	te := newTestEnv(t, Config{})
	ctx := context.Background()

	rt := te.openMaterializedReport(100, "GriefQueen")

	assert.Equal(t, []ActionID{ActionBan, ActionDismiss}, rt.AvailableActions())
	require.NoError(t, rt.HandleAction(ctx, ActionBan, 7))

	// ticket closes right away; the ban itself is asynchronous
	assert.False(t, rt.IsOpen())
	assert.Nil(t, rt.AvailableActions())
	assert.Equal(t, 0, te.svc.OpenCount())
	require.Equal(t, 1, te.queue.Len())

	batch := te.queue.SnapshotPending(time.Now())
	require.Len(t, batch.Requests, 1)
	e := batch.Requests[0]
	assert.Equal(t, relay.KindBan, e.Type)
	assert.Equal(t, uint64(42), e.User)
	assert.Equal(t, uint64(7), e.ResponsibleUser)
	assert.Equal(t, "no griefing", *e.Reason)
	assert.Equal(t, int64(0), *e.Length)

	// the game server fulfills; the ban lands in the ledger with the ticket
	started := time.Now().UnixMilli()
	out := te.queue.ApplyResults(ctx, &relay.FulfillBatch{Fulfill: []relay.FulfillEntry{{
		ID: &e.ID, Type: relay.KindBan, User: 42, Started: &started,
	}}})
	require.Equal(t, 1, out.Applied)

	h, err := te.ledger.HistoryFor(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, 1, h.Len())
	cur, _ := h.CurrentBan()
	require.NotNil(t, cur.TicketID)
	assert.Equal(t, rt.ID(), *cur.TicketID)
}

func TestReportDismissAction(t *testing.T) {
	te := newTestEnv(t, Config{})
	ctx := context.Background()

	rt := te.openMaterializedReport(100, "GriefQueen")
	require.NoError(t, rt.HandleAction(ctx, ActionDismiss, 7))
	assert.False(t, rt.IsOpen())
	assert.Equal(t, 0, te.queue.Len(), "dismissal issues no command")
}

func TestAppealAcceptGameDomain(t *testing.T) {
	te := newTestEnv(t, Config{})
	ctx := context.Background()

	at, err := te.svc.OpenAppeal(ctx, 100, DomainGame, 42, "it expired")
	require.NoError(t, err)
	_, err = te.svc.Materialize(ctx, at)
	require.NoError(t, err)

	require.NoError(t, at.HandleAction(ctx, ActionAccept, 7))
	assert.False(t, at.IsOpen())

	batch := te.queue.SnapshotPending(time.Now())
	require.Len(t, batch.Requests, 1)
	assert.Equal(t, relay.KindUnban, batch.Requests[0].Type)
	assert.Equal(t, uint64(42), batch.Requests[0].User)
}

func TestAppealAcceptPlatformDomainIssuesNoCommand(t *testing.T) {
	te := newTestEnv(t, Config{})
	ctx := context.Background()

	at, err := te.svc.OpenAppeal(ctx, 100, DomainPlatform, 42, "it expired")
	require.NoError(t, err)
	_, err = te.svc.Materialize(ctx, at)
	require.NoError(t, err)

	require.NoError(t, at.HandleAction(ctx, ActionAccept, 7))
	assert.False(t, at.IsOpen())
	assert.Equal(t, 0, te.queue.Len())
}

func TestDisputeDeny(t *testing.T) {
	te := newTestEnv(t, Config{})
	ctx := context.Background()

	dt, err := te.svc.OpenDispute(ctx, 100, DomainGame, 42, "unfair")
	require.NoError(t, err)
	_, err = te.svc.Materialize(ctx, dt)
	require.NoError(t, err)

	require.NoError(t, dt.HandleAction(ctx, ActionDeny, 7))
	assert.False(t, dt.IsOpen())
	assert.Equal(t, 0, te.queue.Len())
}

func TestUnknownActionRejected(t *testing.T) {
	te := newTestEnv(t, Config{})
	rt := te.openMaterializedReport(100, "GriefQueen")

	var verr *ValidationError
	err := rt.HandleAction(context.Background(), ActionAccept, 7)
	require.ErrorAs(t, err, &verr)
	assert.True(t, rt.IsOpen())
}
