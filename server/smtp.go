package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/carloslauriano/draftmail/config"
	"github.com/carloslauriano/draftmail/storage"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

// SMTPBackend implementa a interface smtp.Backend; cada mensagem recebida vira um email salvo
type SMTPBackend struct {
	store  storage.Storage
	logger *zap.Logger
}

// NewSMTPBackend cria um novo backend SMTP
func NewSMTPBackend(store storage.Storage, logger *zap.Logger) *SMTPBackend {
	return &SMTPBackend{
		store:  store,
		logger: logger,
	}
}

// NewSession abre uma sessão SMTP; não há autenticação nem relay
func (b *SMTPBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &SMTPSession{backend: b}, nil
}

// SMTPSession implementa a interface smtp.Session
type SMTPSession struct {
	backend *SMTPBackend
	from    string
	to      []string
}

// Mail inicia uma nova transação de email
func (s *SMTPSession) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	return nil
}

// Rcpt adiciona um destinatário do envelope
func (s *SMTPSession) Rcpt(to string, opts *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

// Data converte a mensagem e salva como email
func (s *SMTPSession) Data(r io.Reader) error {
	in, err := ParseMessage(r, s.to)
	if err != nil {
		s.backend.logger.Warn("rejected unparsable message", zap.String("from", s.from), zap.Error(err))
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Could not parse message",
		}
	}

	email, err := s.backend.store.CreateEmail(context.Background(), in)
	if err != nil {
		var verr *storage.ValidationError
		if errors.As(err, &verr) {
			return &smtp.SMTPError{
				Code:         554,
				EnhancedCode: smtp.EnhancedCode{5, 6, 0},
				Message:      verr.Error(),
			}
		}
		s.backend.logger.Error("failed to store message", zap.Error(err))
		return fmt.Errorf("falha ao salvar mensagem: %w", err)
	}

	s.backend.logger.Info("message stored",
		zap.Int64("id", email.ID),
		zap.String("from", s.from),
		zap.Strings("rcpt", s.to),
	)
	return nil
}

// Reset limpa o estado da sessão
func (s *SMTPSession) Reset() {
	s.from = ""
	s.to = nil
}

// Logout finaliza a sessão
func (s *SMTPSession) Logout() error {
	return nil
}

// NewSMTPServer configura o servidor SMTP de entrada
func NewSMTPServer(cfg *config.Config, store storage.Storage, logger *zap.Logger) *smtp.Server {
	s := smtp.NewServer(NewSMTPBackend(store, logger))

	s.Addr = cfg.SMTPAddr()
	s.Domain = cfg.SMTP.Domain
	s.ReadTimeout = 10 * time.Second
	s.WriteTimeout = 10 * time.Second
	s.MaxMessageBytes = cfg.SMTP.MaxMessageBytes
	s.MaxRecipients = cfg.SMTP.MaxRecipients
	s.AllowInsecureAuth = true

	return s
}

// StartSMTPServer inicia o servidor SMTP e o encerra quando ctx é cancelado
func StartSMTPServer(ctx context.Context, cfg *config.Config, store storage.Storage, logger *zap.Logger) error {
	s := NewSMTPServer(cfg, store, logger)

	logger.Info("starting SMTP intake", zap.String("addr", s.Addr))
	return serveUntilDone(ctx, s.ListenAndServe, s.Shutdown)
}
