// logger.go: GORM logger bridged onto the application's slog logger.
package datastore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sentinelvision/sentinel-central/internal/logging"
	"github.com/sentinelvision/sentinel-central/internal/observability/metrics"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// slowQueryThreshold defines the duration after which a query is logged as
// slow.
const slowQueryThreshold = time.Second

// createGormLogger configures and returns a GORM logger instance.
func createGormLogger(dbMetrics *metrics.DatastoreMetrics) gormlogger.Interface {
	return &gormLogger{
		log:      logging.ForService("datastore"),
		logLevel: gormlogger.Warn,
		metrics:  dbMetrics,
	}
}

type gormLogger struct {
	log      *slog.Logger
	logLevel gormlogger.LogLevel
	metrics  *metrics.DatastoreMetrics
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.logLevel = level
	return &clone
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Info {
		l.log.InfoContext(ctx, msg, "data", data)
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Warn {
		l.log.WarnContext(ctx, msg, "data", data)
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Error {
		l.log.ErrorContext(ctx, msg, "data", data)
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	if l.metrics != nil {
		l.metrics.ObserveQuery(elapsed.Seconds(), failed, elapsed > slowQueryThreshold)
	}
	if l.logLevel <= gormlogger.Silent {
		return
	}
	switch {
	case err != nil && l.logLevel >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.log.ErrorContext(ctx, "query failed",
			"error", err, "elapsed", elapsed, "rows", rows, "sql", sql)
	case elapsed > slowQueryThreshold && l.logLevel >= gormlogger.Warn:
		sql, rows := fc()
		l.log.WarnContext(ctx, "slow query",
			"elapsed", elapsed, "rows", rows, "sql", sql)
	case l.logLevel >= gormlogger.Info:
		sql, rows := fc()
		l.log.InfoContext(ctx, "query",
			"elapsed", elapsed, "rows", rows, "sql", sql)
	}
}
