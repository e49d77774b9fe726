package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/7UKECREAT0R/ability-wars-service-sub000/models"
)

// SetupDatabase opens the database named by a sqlite:// or postgres:// URL
// and migrates the schema.
func SetupDatabase(dburl string, maxConnections int) (*gorm.DB, error) {
	var dial gorm.Dialector
	isSqlite := false
	openConns := maxConnections

	if strings.HasPrefix(dburl, "sqlite://") {
		sqliteSuffix := dburl[len("sqlite://"):]
		// if this isn't ":memory:", ensure that directory exists (eg, if db
		// file is being initialized)
		if !strings.Contains(sqliteSuffix, ":?") {
			os.MkdirAll(filepath.Dir(sqliteSuffix), os.ModePerm)
		}
		dial = sqlite.Open(sqliteSuffix)
		openConns = 1
		isSqlite = true
	} else if strings.HasPrefix(dburl, "postgresql://") || strings.HasPrefix(dburl, "postgres://") {
		dial = postgres.Open(dburl)
	} else {
		return nil, fmt.Errorf("unsupported database URL scheme: must start with sqlite:// or postgres://")
	}

	db, err := gorm.Open(dial, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 slogGorm.New(),
	})
	if err != nil {
		return nil, err
	}

	sqldb, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxIdleConns(openConns)
	sqldb.SetMaxOpenConns(openConns)
	sqldb.SetConnMaxIdleTime(time.Hour)

	if isSqlite {
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			return nil, err
		}
		if err := db.Exec("PRAGMA synchronous=normal;").Error; err != nil {
			return nil, err
		}
		if err := db.Exec("PRAGMA busy_timeout=10000;").Error; err != nil {
			return nil, err
		}
	}

	if err := db.AutoMigrate(
		&models.BanRecord{},
		&models.UnbanRecord{},
		&models.Evidence{},
		&models.TicketEvidenceLink{},
		&models.BanEvidenceLink{},
		&models.TicketRow{},
		&models.AppealBlacklistEntry{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
