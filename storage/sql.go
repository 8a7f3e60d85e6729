package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const emailColumns = `id, "to", cc, bcc, subject, body, created_at, updated_at`

// SQLStorage implementa a interface Storage sobre database/sql via sqlx.
// Os construtores de SQLite e PostgreSQL definem driver, DSN e esquema.
type SQLStorage struct {
	db     *sqlx.DB
	driver string
	dsn    string
	schema string
	// nextID consulta a sequência de ids do driver
	nextID string
	// maxConns limita conexões abertas; zero não limita
	maxConns int
	now      func() time.Time
}

// Open abre a conexão com o banco de dados e cria o esquema
func (s *SQLStorage) Open(ctx context.Context) error {
	db, err := sqlx.Open(s.driver, s.dsn)
	if err != nil {
		return fmt.Errorf("falha ao abrir banco de dados %s: %w", s.driver, err)
	}
	if s.maxConns > 0 {
		db.SetMaxOpenConns(s.maxConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("falha ao conectar ao banco de dados %s: %w", s.driver, err)
	}

	if _, err := db.ExecContext(ctx, s.schema); err != nil {
		db.Close()
		return fmt.Errorf("falha ao criar esquema %s: %w", s.driver, err)
	}

	// só a primeira abertura grava; um banco recriado recebe outro valor
	validity := uint32(s.now().Unix())
	if validity == 0 {
		validity = 1
	}
	_, err = db.ExecContext(ctx,
		db.Rebind(`INSERT INTO mailbox_state (id, uid_validity) VALUES (1, ?) ON CONFLICT (id) DO NOTHING`),
		int64(validity),
	)
	if err != nil {
		db.Close()
		return fmt.Errorf("falha ao inicializar estado da caixa %s: %w", s.driver, err)
	}

	s.db = db
	return nil
}

// Close fecha a conexão com o banco de dados
func (s *SQLStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ListEmails lista todos os emails, do mais recente para o mais antigo
func (s *SQLStorage) ListEmails(ctx context.Context) ([]*Email, error) {
	emails := []*Email{}
	err := s.db.SelectContext(ctx, &emails,
		`SELECT `+emailColumns+` FROM emails ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("falha ao listar emails: %w", err)
	}
	return emails, nil
}

// GetEmail obtém um email pelo id
func (s *SQLStorage) GetEmail(ctx context.Context, id int64) (*Email, error) {
	email := &Email{}
	err := s.db.GetContext(ctx, email,
		s.db.Rebind(`SELECT `+emailColumns+` FROM emails WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmailNotFound
	} else if err != nil {
		return nil, fmt.Errorf("falha ao obter email: %w", err)
	}
	return email, nil
}

// CreateEmail valida e insere um novo email, retornando a linha persistida
func (s *SQLStorage) CreateEmail(ctx context.Context, in NewEmail) (*Email, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var id int64
	err := s.db.QueryRowxContext(ctx,
		s.db.Rebind(`INSERT INTO emails ("to", cc, bcc, subject, body, created_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		in.To, nullable(in.Cc), nullable(in.Bcc), in.Subject, in.Body, s.now().UTC(),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("falha ao criar email: %w", err)
	}

	return s.GetEmail(ctx, id)
}

// UpdateEmail aplica somente os campos informados e atualiza updated_at.
// Todos os campos são gravados em um único UPDATE.
func (s *SQLStorage) UpdateEmail(ctx context.Context, id int64, patch EmailPatch) (*Email, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.To != nil {
		set(`"to"`, *patch.To)
	}
	if patch.Cc != nil {
		set("cc", nullable(*patch.Cc))
	}
	if patch.Bcc != nil {
		set("bcc", nullable(*patch.Bcc))
	}
	if patch.Subject != nil {
		set("subject", *patch.Subject)
	}
	if patch.Body != nil {
		set("body", *patch.Body)
	}
	set("updated_at", s.now().UTC())
	args = append(args, id)

	query := s.db.Rebind(`UPDATE emails SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("falha ao atualizar email: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("falha ao obter linhas afetadas: %w", err)
	}
	if rows == 0 {
		return nil, ErrEmailNotFound
	}

	return s.GetEmail(ctx, id)
}

// DeleteEmail exclui um email; ids inexistentes retornam ErrEmailNotFound
func (s *SQLStorage) DeleteEmail(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM emails WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("falha ao excluir email: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("falha ao obter linhas afetadas: %w", err)
	}
	if rows == 0 {
		return ErrEmailNotFound
	}
	return nil
}

// MailboxState lê o UIDVALIDITY gravado e o próximo id da sequência
func (s *SQLStorage) MailboxState(ctx context.Context) (MailboxState, error) {
	var state MailboxState

	var validity int64
	if err := s.db.GetContext(ctx, &validity, `SELECT uid_validity FROM mailbox_state WHERE id = 1`); err != nil {
		return state, fmt.Errorf("falha ao ler uid_validity: %w", err)
	}
	if err := s.db.GetContext(ctx, &state.NextID, s.nextID); err != nil {
		return state, fmt.Errorf("falha ao ler próximo id: %w", err)
	}

	state.UIDValidity = uint32(validity)
	return state, nil
}
