package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/xela07ax/proofkit-gate/internal/runlog"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

// Store — postgres-реализация run-log'а для деплоев, где каталог CLI
// не является durable-хранилищем. Таблица:
//
//	CREATE TABLE run_log (
//	    id         UUID PRIMARY KEY,
//	    kind       TEXT NOT NULL,
//	    account_id TEXT NOT NULL,
//	    payload    JSONB NOT NULL,
//	    timestamp  TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX run_log_lookup ON run_log (account_id, kind, timestamp DESC);
type Store struct {
	db *sql.DB
}

func New(connString string, maxOpen, maxIdle int) (*Store, error) {
	if maxOpen <= 0 {
		maxOpen = 15
	}
	if maxIdle <= 0 {
		maxIdle = 5
	}

	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("runlog/postgres: open: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("runlog/postgres: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// Append дописывает запись. Короткий retry сглаживает моргнувший коннект;
// журнал append-only, так что повтор INSERT'а с тем же UUID безопасен
// (конфликт по PK означает, что первая попытка всё-таки прошла).
func (s *Store) Append(ctx context.Context, rec runlog.Record) error {
	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
	).Do(func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO run_log (id, kind, account_id, payload, timestamp)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO NOTHING`,
			rec.ID, rec.Kind, rec.AccountID, []byte(rec.Payload), rec.Timestamp,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("runlog/postgres: append: %w", err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, accountID, kind string, limit int) ([]runlog.Record, error) {
	query := `SELECT id, kind, account_id, payload, timestamp FROM run_log WHERE 1=1`
	args := make([]interface{}, 0, 3)
	if accountID != "" {
		args = append(args, accountID)
		query += fmt.Sprintf(" AND account_id = $%d", len(args))
	}
	if kind != "" {
		args = append(args, kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("runlog/postgres: query recent: %w", err)
	}
	defer rows.Close()

	var out []runlog.Record
	for rows.Next() {
		var rec runlog.Record
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.AccountID, &payload, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("runlog/postgres: scan: %w", err)
		}
		rec.Payload = payload
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }

var _ runlog.Store = (*Store)(nil)
