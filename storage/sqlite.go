package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/carloslauriano/draftmail/config"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS emails (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	"to" TEXT NOT NULL,
	cc TEXT,
	bcc TEXT,
	subject TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_emails_created_at ON emails (created_at);

CREATE TABLE IF NOT EXISTS mailbox_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	uid_validity INTEGER NOT NULL
);
`

// AUTOINCREMENT guarda o maior id já usado em sqlite_sequence, mesmo após exclusões
const sqliteNextID = `SELECT COALESCE((SELECT seq FROM sqlite_sequence WHERE name = 'emails'), 0) + 1`

// NewSQLiteStorage cria uma nova instância de armazenamento SQLite
func NewSQLiteStorage(cfg *config.DatabaseConfig) (Storage, error) {
	if cfg.Path != ":memory:" && !strings.HasPrefix(cfg.Path, "file:") {
		// Garantir que o diretório existe
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("falha ao criar diretório para SQLite: %w", err)
		}
	}

	return &SQLStorage{
		driver: "sqlite3",
		dsn:    cfg.Path,
		schema: sqliteSchema,
		nextID: sqliteNextID,
		// SQLite serializa escritas; uma conexão evita "database is locked"
		maxConns: 1,
		now:      time.Now,
	}, nil
}
