package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/carloslauriano/draftmail/config"
)

// ErrEmailNotFound é retornado quando não existe email com o id informado
var ErrEmailNotFound = errors.New("email not found")

// MailboxState descreve a numeração de ids vista por clientes IMAP
type MailboxState struct {
	// UIDValidity é sorteado na criação do banco e nunca muda depois
	UIDValidity uint32
	// NextID é o id que a próxima inserção vai receber; nunca diminui
	NextID int64
}

// Storage é a interface para operações de armazenamento de emails
type Storage interface {
	// Métodos de inicialização
	Open(ctx context.Context) error
	Close() error

	// Métodos de email
	ListEmails(ctx context.Context) ([]*Email, error)
	GetEmail(ctx context.Context, id int64) (*Email, error)
	CreateEmail(ctx context.Context, email NewEmail) (*Email, error)
	UpdateEmail(ctx context.Context, id int64, patch EmailPatch) (*Email, error)
	DeleteEmail(ctx context.Context, id int64) error

	// Estado da numeração
	MailboxState(ctx context.Context) (MailboxState, error)
}

// NewStorage cria uma nova instância de armazenamento com base na configuração
func NewStorage(cfg *config.Config) (Storage, error) {
	switch cfg.Database.Type {
	case "sqlite":
		return NewSQLiteStorage(&cfg.Database)
	case "postgres":
		return NewPostgresStorage(&cfg.Database)
	default:
		return nil, fmt.Errorf("tipo de banco de dados não suportado: %s", cfg.Database.Type)
	}
}
