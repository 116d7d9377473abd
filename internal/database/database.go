package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"attachment-service/internal/domain"
)

var (
	globalDB *gorm.DB
	dbMutex  sync.RWMutex
)

// GetDB returns the current database connection, nil until one is
// established. Consumers hold the getter, not the handle, so a
// connection that comes up after startup reaches them.
func GetDB() *gorm.DB {
	dbMutex.RLock()
	defer dbMutex.RUnlock()
	return globalDB
}

// SetDB sets the global database connection
func SetDB(db *gorm.DB) {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	globalDB = db
}

// IsConnected returns true if the database is connected and answering
func IsConnected() bool {
	db := GetDB()
	if db == nil {
		return false
	}
	sqlDB, err := db.DB()
	if err != nil {
		return false
	}
	return sqlDB.Ping() == nil
}

// Config holds database configuration
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// New opens a database connection and verifies it with a ping.
// Timestamps are generated in UTC to match upload times on records.
func New(cfg Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return db, nil
}

// AutoMigrate runs database migrations
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Attachment{},
	)
}

// NewAsync retries the database connection in the background so the pod
// can come up before the database does. The connection is published via
// SetDB once it is migrated and ready.
func NewAsync(cfg Config, retryInterval time.Duration, log *zap.Logger) {
	go func() {
		for {
			db, err := New(cfg)
			if err == nil {
				if err := AutoMigrate(db); err != nil {
					log.Warn("Failed to run migrations", zap.Error(err))
				}
				SetDB(db)
				log.Info("Database connected successfully (async)")
				return
			}
			log.Warn("Failed to connect to database, retrying",
				zap.Duration("retryIn", retryInterval),
				zap.Error(err),
			)
			time.Sleep(retryInterval)
		}
	}()
}
