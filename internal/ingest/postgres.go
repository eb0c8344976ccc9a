package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
)

const schema = `
	CREATE TABLE IF NOT EXISTS knowledge_documents (
		id VARCHAR(128) PRIMARY KEY,
		title VARCHAR(255) NOT NULL DEFAULT '',
		category VARCHAR(100) NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		source_type VARCHAR(50) NOT NULL DEFAULT 'documentation',
		content TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_documents_category ON knowledge_documents(category);
`

const selectDocuments = `SELECT id, title, category, url, source_type, content, updated_at
	FROM knowledge_documents ORDER BY id`

// PostgresLoader reads knowledge documents from the knowledge_documents table.
type PostgresLoader struct {
	db  *sql.DB
	log *logger.Logger
}

// OpenPostgres opens and pings a connection pool for dsn.
func OpenPostgres(ctx context.Context, dsn string, log *logger.Logger) (*PostgresLoader, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("knowledge database connected")
	return NewPostgresLoader(db, log), nil
}

// NewPostgresLoader wraps an existing pool.
func NewPostgresLoader(db *sql.DB, log *logger.Logger) *PostgresLoader {
	return &PostgresLoader{db: db, log: log.Named("ingest.postgres")}
}

// InitSchema creates the knowledge table if it does not exist.
func (l *PostgresLoader) InitSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize knowledge schema: %w", err)
	}
	return nil
}

// Load returns every row as a document input. Rows with empty content are
// skipped.
func (l *PostgresLoader) Load(ctx context.Context) ([]model.NewDocumentInput, error) {
	rows, err := l.db.QueryContext(ctx, selectDocuments)
	if err != nil {
		return nil, fmt.Errorf("query knowledge documents: %w", err)
	}
	defer rows.Close()

	var out []model.NewDocumentInput
	skipped := 0
	for rows.Next() {
		var (
			id, title, category, url, sourceType, content string
			updatedAt                                     time.Time
		)
		if err := rows.Scan(&id, &title, &category, &url, &sourceType, &content, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan knowledge document: %w", err)
		}
		if content == "" {
			skipped++
			continue
		}

		meta := map[string]string{
			model.MetaTimestamp: updatedAt.UTC().Format(time.RFC3339),
		}
		setIf(meta, model.MetaTitle, title)
		setIf(meta, model.MetaCategory, category)
		setIf(meta, model.MetaURL, url)
		setIf(meta, model.MetaSourceType, sourceType)

		out = append(out, model.NewDocumentInput{ID: id, Text: content, Metadata: meta})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge documents: %w", err)
	}

	l.log.Info("loaded knowledge documents",
		zap.Int("count", len(out)),
		zap.Int("skipped", skipped),
	)
	return out, nil
}

// LoadInto loads all rows and adds them to sink.
func (l *PostgresLoader) LoadInto(ctx context.Context, sink Sink) (int, error) {
	docs, err := l.Load(ctx)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	ids, err := sink.AddDocuments(ctx, docs)
	return len(ids), err
}

// HealthCheck pings the database.
func (l *PostgresLoader) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := l.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close closes the pool.
func (l *PostgresLoader) Close() error {
	return l.db.Close()
}

func setIf(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}
