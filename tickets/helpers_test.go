package tickets

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/7UKECREAT0R/ability-wars-service-sub000/identity"
	"github.com/7UKECREAT0R/ability-wars-service-sub000/ledger"
	"github.com/7UKECREAT0R/ability-wars-service-sub000/models"
	"github.com/7UKECREAT0R/ability-wars-service-sub000/platform"
	"github.com/7UKECREAT0R/ability-wars-service-sub000/relay"
)

type testEnv struct {
	t        *testing.T
	db       *gorm.DB
	svc      *Service
	ledger   *ledger.Service
	queue    *relay.Queue
	channels *platform.MockClient
	resolver *identity.MockResolver
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
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
		&models.TicketRow{},
		&models.AppealBlacklistEntry{},
	))

	if cfg.Categories == nil {
		cfg.Categories = map[Kind]string{
			KindReport:          "cat-reports",
			KindAppeal:          "cat-appeals",
			KindDispute:         "cat-disputes",
			KindBlacklistAppeal: "cat-blacklist",
		}
	}

	logger := slog.Default().With("test", t.Name())
	led := ledger.NewService(db, logger)
	queue := relay.NewQueue(led, logger)
	channels := platform.NewMockClient()
	resolver := identity.NewMockResolver()
	resolver.Add(identity.Player{ID: 42, Username: "GriefQueen", DisplayName: "Grief Queen"})
	resolver.Add(identity.Player{ID: 43, Username: "PunchBag", DisplayName: "Punch Bag"})

	svc := NewService(db, channels, resolver, queue, cfg, logger)

	return &testEnv{
		t:        t,
		db:       db,
		svc:      svc,
		ledger:   led,
		queue:    queue,
		channels: channels,
		resolver: resolver,
	}
}

// openMaterializedReport opens a report and gives it a channel, the state
// most tests care about.
func (te *testEnv) openMaterializedReport(ownerID uint64, accused string) *ReportTicket {
	te.t.Helper()
	rt, err := te.svc.OpenReport(context.Background(), ownerID, accused, "no griefing", nil)
	require.NoError(te.t, err)
	_, err = te.svc.Materialize(context.Background(), rt)
	require.NoError(te.t, err)
	return rt
}
