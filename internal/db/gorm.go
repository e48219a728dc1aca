package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/carechat/server/internal/model"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// IsSQLite reports whether databaseURL points at an embedded SQLite file.
func IsSQLite(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "sqlite://") || strings.HasPrefix(databaseURL, "file:")
}

// OpenGorm opens the record store behind the repositories. PostgreSQL URLs go through
// Open and the goose migrations; SQLite URLs are for local development and tests and
// are migrated from the models.
func OpenGorm(ctx context.Context, databaseURL string, log *zap.Logger) (*gorm.DB, error) {
	cfg := &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger: logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	if IsSQLite(databaseURL) {
		return openSQLite(ctx, strings.TrimPrefix(databaseURL, "sqlite://"), cfg)
	}

	sqlDB, err := Open(ctx, databaseURL, log)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), cfg)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return gormDB, nil
}

func openSQLite(ctx context.Context, dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	gormDB, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// sqlite has a single writer; one connection keeps transactions serialised
	sqlDB.SetMaxOpenConns(1)

	err = gormDB.WithContext(ctx).AutoMigrate(
		&model.Account{},
		&model.UserDetail{},
		&model.DoctorDetail{},
		&model.DeviceKey{},
	)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}
	return gormDB, nil
}

// Ping checks the record store, for the health endpoint.
func Ping(ctx context.Context, gormDB *gorm.DB) error {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
