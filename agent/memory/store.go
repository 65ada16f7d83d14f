package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/ppec-ai/copilot/agent/contract"
)

// memoryRecord is the bun model for one committed plan. The serial id gives
// the storage-order position revert relies on; wall-clock is informational
// only.
type memoryRecord struct {
	bun.BaseModel `bun:"table:memory_records,alias:mr"`

	ID        int64             `bun:"id,pk,autoincrement"`
	Key       string            `bun:"key,notnull,unique"`
	OwnerKey  string            `bun:"owner_key,notnull"`
	Content   string            `bun:"content,notnull"`
	Metadata  map[string]string `bun:"metadata,type:jsonb"`
	CreatedAt time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type StoreConfig struct {
	DSN          string        `envconfig:"DSN" split_words:"true" required:"true"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"8"`
}

// PostgresStore persists memory records in Postgres through bun.
type PostgresStore struct {
	db *bun.DB
}

func NewPostgresStore(cfg StoreConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(timeout),
	))
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return &PostgresStore{db: bun.NewDB(sqldb, pgdialect.New())}, nil
}

// Init creates the records table when it does not exist yet.
func (s *PostgresStore) Init(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*memoryRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create memory_records table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Add(ctx context.Context, rec contractx.Record) error {
	if strings.TrimSpace(rec.Key) == "" {
		return fmt.Errorf("%w: record key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(rec.OwnerKey) == "" {
		return fmt.Errorf("%w: record owner key is required", contractx.ErrValidation)
	}

	row := &memoryRecord{
		Key:      rec.Key,
		OwnerKey: rec.OwnerKey,
		Content:  rec.Content,
		Metadata: rec.Metadata,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert memory record: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, ownerKey string) ([]contractx.Record, error) {
	var rows []memoryRecord
	if err := s.db.NewSelect().
		Model(&rows).
		Where("owner_key = ?", ownerKey).
		Order("id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list memory records: %w", err)
	}

	records := make([]contractx.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, contractx.Record{
			Key:      row.Key,
			OwnerKey: row.OwnerKey,
			Content:  row.Content,
			Metadata: row.Metadata,
		})
	}
	return records, nil
}

func (s *PostgresStore) Delete(ctx context.Context, recordKey string) error {
	if _, err := s.db.NewDelete().
		Model((*memoryRecord)(nil)).
		Where("key = ?", recordKey).
		Exec(ctx); err != nil {
		return fmt.Errorf("delete memory record: %w", err)
	}
	return nil
}
