package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
	"github.com/tjfontaine/canvass-pipeline/internal/core/ports"
	"github.com/tjfontaine/canvass-pipeline/internal/storage/dialect"
)

// Store is a SQL implementation of ConversationStore and EventLog
// that supports multiple database dialects.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
	now     func() time.Time
}

var _ ports.StorageProvider = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres
	DSN    string // Data source name / connection string
}

// New creates a new SQL store with the specified configuration.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Run dialect-specific initialization (e.g., PRAGMA for SQLite)
	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d, now: time.Now}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLite creates a new SQLite store
func NewSQLite(dbPath string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: dbPath})
}

// NewPostgres creates a new PostgreSQL store using the pgx driver.
func NewPostgres(dsn string) (*Store, error) {
	return New(Config{Driver: "postgres", DSN: dsn})
}

// Dialect returns the dialect being used
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *Store) initSchema() error {
	ts := s.dialect.TimestampType()
	statements := []string{
		`CREATE TABLE IF NOT EXISTS client_data (
			id TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			version BIGINT NOT NULL,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pipeline_events (
			id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			subject TEXT NOT NULL,
			data TEXT,
			data_version TEXT NOT NULL,
			event_time ` + ts + ` NOT NULL,
			PRIMARY KEY (id, event_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_events_conversation ON pipeline_events(conversation_id, event_time)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

type documentRow struct {
	Document string `db:"document"`
	Version  int64  `db:"version"`
}

func (s *Store) Get(ctx context.Context, id string) (*domain.ClientData, error) {
	query := s.dialect.Rebind(`SELECT document, version FROM client_data WHERE id = ?`)

	var row documentRow
	err := s.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	var data domain.ClientData
	if err := json.Unmarshal([]byte(row.Document), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation %s: %w", id, err)
	}
	data.ConversationID = id
	data.Version = row.Version
	if data.Messages == nil {
		data.Messages = []domain.Message{}
	}

	return &data, nil
}

func (s *Store) Save(ctx context.Context, data *domain.ClientData) error {
	next := *data
	next.Version = data.Version + 1
	next.UpdatedAt = s.now().UTC()
	if data.Version == 0 {
		next.CreatedAt = next.UpdatedAt
	}

	doc, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation %s: %w", data.ConversationID, err)
	}

	var res sql.Result
	if data.Version == 0 {
		query := s.dialect.Rebind(`INSERT INTO client_data (id, document, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?) ` + s.dialect.InsertIgnoreClause("id"))
		res, err = s.db.ExecContext(ctx, query,
			next.ConversationID, string(doc), next.Version, next.CreatedAt, next.UpdatedAt)
	} else {
		query := s.dialect.Rebind(`UPDATE client_data SET document = ?, version = ?, updated_at = ?
			WHERE id = ? AND version = ?`)
		res, err = s.db.ExecContext(ctx, query,
			string(doc), next.Version, next.UpdatedAt, next.ConversationID, data.Version)
	}
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", data.ConversationID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", data.ConversationID, err)
	}
	if n == 0 {
		return fmt.Errorf("conversation %s at version %d: %w", data.ConversationID, data.Version, domain.ErrVersionConflict)
	}

	*data = next
	return nil
}

type eventRow struct {
	ID          string    `db:"id"`
	Type        string    `db:"event_type"`
	Subject     string    `db:"subject"`
	Data        string    `db:"data"`
	DataVersion string    `db:"data_version"`
	Time        time.Time `db:"event_time"`
}

func (s *Store) AppendEvent(ctx context.Context, event domain.Event) error {
	conversationID := conversationFromSubject(event.Subject)

	query := s.dialect.Rebind(`INSERT INTO pipeline_events (id, conversation_id, event_type, subject, data, data_version, event_time)
		VALUES (?, ?, ?, ?, ?, ?, ?) ` + s.dialect.InsertIgnoreClause("id, event_type"))

	_, err := s.db.ExecContext(ctx, query,
		event.ID, conversationID, string(event.Type), event.Subject, string(event.Data), event.DataVersion, event.Time.UTC())
	if err != nil {
		return fmt.Errorf("failed to append event %s: %w", event.ID, err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, conversationID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.dialect.Rebind(`SELECT id, event_type, subject, data, data_version, event_time
		FROM pipeline_events
		WHERE conversation_id = ?
		ORDER BY event_time ASC, id ASC
		LIMIT ?`)

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, conversationID, limit); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]domain.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, domain.Event{
			ID:          r.ID,
			Type:        domain.EventType(r.Type),
			Subject:     r.Subject,
			Time:        r.Time.UTC(),
			Data:        json.RawMessage(r.Data),
			DataVersion: r.DataVersion,
		})
	}
	return events, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func conversationFromSubject(subject string) string {
	const prefix = "chatbot/"
	if len(subject) > len(prefix) && subject[:len(prefix)] == prefix {
		return subject[len(prefix):]
	}
	return subject
}
