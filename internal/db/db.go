package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/PFlorov/k3s-url-shortener-app/internal/config"
	"github.com/PFlorov/k3s-url-shortener-app/internal/entities"
	"github.com/PFlorov/k3s-url-shortener-app/internal/utils"
)

const backfillBatchSize = 500

// OpenPostgres builds the connection pool. No connection is made until the
// first query, so an unreachable database does not stop the process.
func OpenPostgres(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gdb, err := open(postgres.Open(cfg.DSN()), cfg.SlowQueryThreshold)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return gdb, nil
}

// OpenSQLite opens a file-backed database for local runs and tests.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
	gdb, err := open(sqlite.Open(dsn), 200*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return gdb, nil
}

func open(dialector gorm.Dialector, slow time.Duration) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		DisableAutomaticPing: true,
		TranslateError:       true,
		Logger: gormlogger.New(gormWriter{log.With().Str("component", "gorm").Logger()}, gormlogger.Config{
			SlowThreshold:             slow,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
}

// InitSchema creates the urls table and its indexes if they are missing and
// fills long_url_hash on rows written before that column existed.
func InitSchema(ctx context.Context, gdb *gorm.DB) error {
	if err := gdb.WithContext(ctx).AutoMigrate(&entities.URL{}); err != nil {
		return fmt.Errorf("migrate urls: %w", err)
	}

	filled, err := backfillHashes(ctx, gdb)
	if err != nil {
		return fmt.Errorf("backfill url hashes: %w", err)
	}
	if filled > 0 {
		log.Info().Int("rows", filled).Msg("Backfilled long_url_hash")
	}
	return nil
}

func backfillHashes(ctx context.Context, gdb *gorm.DB) (int, error) {
	var (
		batch  []entities.URL
		filled int
	)

	res := gdb.WithContext(ctx).
		Where("long_url_hash IS NULL").
		FindInBatches(&batch, backfillBatchSize, func(_ *gorm.DB, _ int) error {
			for _, u := range batch {
				err := gdb.WithContext(ctx).
					Model(&entities.URL{}).
					Where("id = ?", u.ID).
					Update("long_url_hash", utils.HashURL(u.LongURL)).Error
				switch {
				case err == nil:
					filled++
				case utils.IsUniqueConstraint(err):
					// An earlier row already owns this URL; this one stays
					// reachable by its code only.
					log.Debug().Int64("id", u.ID).Str("short_code", u.ShortCode).Msg("Duplicate long_url left unhashed")
				default:
					return err
				}
			}
			return nil
		})

	return filled, res.Error
}

// Ping checks that a connection can be acquired and the server answers.
func Ping(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormWriter struct {
	logger zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.logger.Warn().Msgf(format, args...)
}
