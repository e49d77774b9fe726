package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/7UKECREAT0R/ability-wars-service-sub000/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)

	sqldb, err := db.DB()
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { sqldb.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.BanRecord{},
		&models.UnbanRecord{},
		&models.Evidence{},
		&models.TicketEvidenceLink{},
		&models.BanEvidenceLink{},
	))

	return NewService(db, slog.Default().With("test", t.Name()))
}

func strPtr(s string) *string        { return &s }
func u64Ptr(v uint64) *uint64        { return &v }
func timePtr(v time.Time) *time.Time { return &v }

func TestHistoryEmpty(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	h, err := svc.HistoryFor(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Len())
	assert.False(t, h.CurrentlyBanned(time.Now()))
	_, ok := h.CurrentBan()
	assert.False(t, ok)
}

func TestAddBanAndCurrent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	start := time.Now().Add(-time.Hour).UTC().Truncate(time.Millisecond)
	rec := models.BanRecord{
		UserID:      42,
		StartsAt:    start,
		ModeratorID: u64Ptr(7),
		Reason:      strPtr("exploiting"),
	}
	require.NoError(t, svc.AddBan(ctx, rec))

	h, err := svc.HistoryFor(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, 1, h.Len())
	assert.True(t, h.CurrentlyBanned(time.Now()))

	cur, ok := h.CurrentBan()
	require.True(t, ok)
	assert.True(t, cur.Permanent())
	assert.Equal(t, "forever", cur.DurationLabel())
}

func TestAddBanDuplicateStartReplaces(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	start := time.Now().Add(-time.Hour).UTC().Truncate(time.Millisecond)
	require.NoError(t, svc.AddBan(ctx, models.BanRecord{
		UserID:   9,
		StartsAt: start,
		Reason:   strPtr("first write"),
	}))
	require.NoError(t, svc.AddBan(ctx, models.BanRecord{
		UserID:   9,
		StartsAt: start,
		Reason:   strPtr("second write"),
	}))

	// the cache saw both writes
	h, err := svc.HistoryFor(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, 1, h.Len())
	cur, _ := h.CurrentBan()
	assert.Equal(t, "second write", *cur.Reason)

	// and so did the store
	svc2 := NewService(svc.db, slog.Default())
	h2, err := svc2.HistoryFor(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, 1, h2.Len())
	cur2, _ := h2.CurrentBan()
	assert.Equal(t, "second write", *cur2.Reason)
}

func TestCurrentBanIsLatestStart(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	old := now.Add(-48 * time.Hour)
	oldEnd := now.Add(-24 * time.Hour)
	require.NoError(t, svc.AddBan(ctx, models.BanRecord{
		UserID: 5, StartsAt: old, EndsAt: timePtr(oldEnd),
	}))
	require.NoError(t, svc.AddBan(ctx, models.BanRecord{
		UserID: 5, StartsAt: now.Add(-time.Hour),
	}))

	h, err := svc.HistoryFor(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, 2, h.Len())

	cur, ok := h.CurrentBan()
	require.True(t, ok)
	assert.Equal(t, now.Add(-time.Hour), cur.StartsAt)
	assert.True(t, h.CurrentlyBanned(now))
}

func TestExpiredBanNotCurrentlyBanned(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, svc.AddBan(ctx, models.BanRecord{
		UserID:   6,
		StartsAt: now.Add(-72 * time.Hour),
		EndsAt:   timePtr(now.Add(-time.Hour)),
	}))

	h, err := svc.HistoryFor(ctx, 6)
	require.NoError(t, err)
	assert.False(t, h.CurrentlyBanned(now))
	_, ok := h.CurrentBan()
	assert.True(t, ok, "expired bans stay in history")
}

func TestSetCurrentBanEnd(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, svc.AddBan(ctx, models.BanRecord{
		UserID: 3, StartsAt: now.Add(-time.Hour),
	}))

	end := now.Add(-time.Minute)
	require.NoError(t, svc.SetCurrentBanEnd(ctx, 3, end))

	h, err := svc.HistoryFor(ctx, 3)
	require.NoError(t, err)
	assert.False(t, h.CurrentlyBanned(now))

	// persisted too
	svc2 := NewService(svc.db, slog.Default())
	h2, err := svc2.HistoryFor(ctx, 3)
	require.NoError(t, err)
	assert.False(t, h2.CurrentlyBanned(now))
}

func TestSetCurrentBanEndNoBan(t *testing.T) {
	svc := newTestService(t)
	err := svc.SetCurrentBanEnd(context.Background(), 999, time.Now())
	assert.ErrorIs(t, err, ErrNoCurrentBan)
}

func TestRecordUnban(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, svc.RecordUnban(ctx, 42, u64Ptr(7), at))
	require.NoError(t, svc.RecordUnban(ctx, 42, nil, at.Add(time.Minute)))

	unbans, err := svc.Unbans(ctx, 42)
	require.NoError(t, err)
	require.Len(t, unbans, 2)
	assert.Equal(t, uint64(7), *unbans[0].ModeratorID)
	assert.Nil(t, unbans[1].ModeratorID)
}

func TestClear(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddBan(ctx, models.BanRecord{
		UserID: 8, StartsAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, svc.Clear(ctx, 8))

	h, err := svc.HistoryFor(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Len())
}

func TestEvidenceIDMonotonic(t *testing.T) {
	svc := newTestService(t)

	now := time.Now()
	a := svc.NewEvidenceID(now)
	b := svc.NewEvidenceID(now)
	c := svc.NewEvidenceID(now.Add(-time.Hour))
	assert.Greater(t, b, a)
	assert.Greater(t, c, b, "ids never go backwards even if the clock does")
}

func TestEvidenceUpsert(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id := svc.NewEvidenceID(time.Now())
	require.NoError(t, svc.PutEvidence(ctx, models.Evidence{
		ID: id, Details: "clip of the incident", URL: "https://example.com/a",
	}))
	require.NoError(t, svc.PutEvidence(ctx, models.Evidence{
		ID: id, Details: "clip of the incident", URL: "https://example.com/b",
	}))

	ev, err := svc.GetEvidence(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "https://example.com/b", ev.URL)
}

func TestGetEvidenceMissing(t *testing.T) {
	svc := newTestService(t)
	ev, err := svc.GetEvidence(context.Background(), 12345)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestTicketEvidenceLinks(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id1 := svc.NewEvidenceID(time.Now())
	id2 := svc.NewEvidenceID(time.Now())
	require.NoError(t, svc.PutEvidence(ctx, models.Evidence{ID: id1, Details: "one"}))
	require.NoError(t, svc.PutEvidence(ctx, models.Evidence{ID: id2, Details: "two"}))

	require.NoError(t, svc.LinkTicketEvidence(ctx, 100, id1))
	require.NoError(t, svc.LinkTicketEvidence(ctx, 100, id2))
	// duplicate link is a no-op
	require.NoError(t, svc.LinkTicketEvidence(ctx, 100, id1))

	evs, err := svc.TicketEvidence(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, evs, 2)

	require.NoError(t, svc.UnlinkTicketEvidence(ctx, 100, id1))
	evs, err = svc.TicketEvidence(ctx, 100)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, id2, evs[0].ID)
}

func TestBanEvidenceLinks(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, svc.AddBan(ctx, models.BanRecord{UserID: 42, StartsAt: start}))

	id := svc.NewEvidenceID(time.Now())
	require.NoError(t, svc.PutEvidence(ctx, models.Evidence{ID: id, Details: "proof"}))
	require.NoError(t, svc.LinkBanEvidence(ctx, 42, start, id))

	evs, err := svc.BanEvidence(ctx, 42, start)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "proof", evs[0].Details)

	require.NoError(t, svc.UnlinkBanEvidence(ctx, 42, start, id))
	evs, err = svc.BanEvidence(ctx, 42, start)
	require.NoError(t, err)
	assert.Empty(t, evs)
}
