package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/3xCaffeine/total-recall/internal/auth"
	"github.com/3xCaffeine/total-recall/internal/calendar"
	"github.com/3xCaffeine/total-recall/internal/jobs"
	"github.com/3xCaffeine/total-recall/internal/journal"
	"github.com/3xCaffeine/total-recall/internal/todo"
	"github.com/3xCaffeine/total-recall/internal/vector"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return gdb, nil
}

func AutoMigrateAndIndexes(ctx context.Context, gdb *gorm.DB, log *zap.Logger) error {
	// pgvector first: vector_chunks needs the extension
	if err := vector.NewPGStore(gdb).Migrate(ctx); err != nil {
		return fmt.Errorf("vector migrate: %w", err)
	}

	if err := gdb.WithContext(ctx).AutoMigrate(
		&auth.User{},
		&journal.Entry{},
		&journal.EntryEvent{},
		&jobs.Job{},
		&todo.Todo{},
		&calendar.Account{},
	); err != nil {
		return err
	}

	// Event idempotency: unique per user + idempotency_key where not null
	if err := gdb.Exec(`
create unique index if not exists uq_events_user_idem
on entry_events(user_id, idempotency_key)
where idempotency_key is not null;
`).Error; err != nil {
		return err
	}

	stmts := []string{
		`create index if not exists idx_entries_tags on journal_entries using gin (tags);`,
		`create index if not exists idx_entries_fts on journal_entries using gin (to_tsvector('simple', title || ' ' || content));`,
		`create index if not exists idx_entries_user_updated on journal_entries(user_id, updated_at desc);`,
		`create index if not exists idx_events_entry on entry_events(entry_id, id);`,
		`create index if not exists idx_todos_user_open on todos(user_id, completed, due_at);`,
		`create index if not exists idx_vector_chunks_user on vector_chunks ((metadata->>'user_id'));`,
		`create index if not exists idx_jobs_due on jobs(status, run_at);`,
		`create index if not exists idx_jobs_lock on jobs(status, locked_at);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	log.Info("database migrated")
	return nil
}
