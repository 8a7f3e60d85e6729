package storage

import (
	"fmt"
	"time"

	"github.com/carloslauriano/draftmail/config"
	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS emails (
	id BIGSERIAL PRIMARY KEY,
	"to" TEXT NOT NULL,
	cc TEXT,
	bcc TEXT,
	subject TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_emails_created_at ON emails (created_at);

CREATE TABLE IF NOT EXISTS mailbox_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	uid_validity BIGINT NOT NULL
);
`

const postgresNextID = `SELECT CASE WHEN is_called THEN last_value + 1 ELSE last_value END FROM emails_id_seq`

// NewPostgresStorage cria uma nova instância de armazenamento PostgreSQL
func NewPostgresStorage(cfg *config.DatabaseConfig) (Storage, error) {
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslmode,
	)

	return &SQLStorage{
		driver: "postgres",
		dsn:    connStr,
		schema: postgresSchema,
		nextID: postgresNextID,
		now:    time.Now,
	}, nil
}
