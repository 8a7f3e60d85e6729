package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/carloslauriano/draftmail/config"
	"github.com/carloslauriano/draftmail/storage"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend"
	"github.com/emersion/go-imap/backend/backendutil"
	imapserver "github.com/emersion/go-imap/server"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
	"go.uber.org/zap"
)

// DraftsMailbox é a única caixa exposta via IMAP
const DraftsMailbox = "Drafts"

var errFixedMailboxes = errors.New("mailboxes cannot be created, renamed or deleted")

// IMAPBackend implementa a interface backend.Backend sobre o armazenamento de emails
type IMAPBackend struct {
	store  storage.Storage
	cfg    config.IMAPConfig
	domain string
	logger *zap.Logger
}

// NewIMAPBackend cria um novo backend IMAP
func NewIMAPBackend(store storage.Storage, cfg *config.Config, logger *zap.Logger) *IMAPBackend {
	return &IMAPBackend{
		store:  store,
		cfg:    cfg.IMAP,
		domain: cfg.SMTP.Domain,
		logger: logger,
	}
}

// Login aceita qualquer credencial, a menos que imap.username esteja configurado
func (b *IMAPBackend) Login(connInfo *imap.ConnInfo, username, password string) (backend.User, error) {
	if b.cfg.Username != "" && (username != b.cfg.Username || password != b.cfg.Password) {
		b.logger.Warn("IMAP login rejected", zap.String("username", username))
		return nil, backend.ErrInvalidCredentials
	}
	return &IMAPUser{backend: b, username: username}, nil
}

// IMAPUser implementa a interface backend.User
type IMAPUser struct {
	backend  *IMAPBackend
	username string
}

// Username retorna o nome do usuário
func (u *IMAPUser) Username() string {
	return u.username
}

// ListMailboxes lista a caixa Drafts
func (u *IMAPUser) ListMailboxes(subscribed bool) ([]backend.Mailbox, error) {
	return []backend.Mailbox{u.drafts()}, nil
}

// GetMailbox obtém a caixa Drafts
func (u *IMAPUser) GetMailbox(name string) (backend.Mailbox, error) {
	if !strings.EqualFold(name, DraftsMailbox) {
		return nil, backend.ErrNoSuchMailbox
	}

	// SELECT fixa a numeração de sequência desta sessão
	mbox := u.drafts()
	if _, err := mbox.messages(); err != nil {
		return nil, err
	}
	return mbox, nil
}

func (u *IMAPUser) drafts() *IMAPMailbox {
	return &IMAPMailbox{
		backend: u.backend,
		deleted: make(map[int64]bool),
		gone:    make(map[int64]bool),
	}
}

// CreateMailbox não é suportado
func (u *IMAPUser) CreateMailbox(name string) error {
	return errFixedMailboxes
}

// DeleteMailbox não é suportado
func (u *IMAPUser) DeleteMailbox(name string) error {
	return errFixedMailboxes
}

// RenameMailbox não é suportado
func (u *IMAPUser) RenameMailbox(existingName, newName string) error {
	return errFixedMailboxes
}

// Logout finaliza a sessão
func (u *IMAPUser) Logout() error {
	return nil
}

// IMAPMailbox implementa a interface backend.Mailbox.
//
// Cada sessão guarda a lista de ids que o cliente conhece, em ordem de sequência.
// Linhas novas entram no fim da lista; ids só saem dela no EXPUNGE, então uma
// exclusão feita pela API não desloca as sequências já vistas pelo cliente.
// Linhas apagadas por fora aparecem com \Deleted até o próximo EXPUNGE.
type IMAPMailbox struct {
	backend *IMAPBackend

	mu      sync.Mutex
	ids     []int64
	deleted map[int64]bool
	gone    map[int64]bool
}

// draftMessage é um email renderizado com sua posição na caixa.
// email é nil quando a linha já não existe no armazenamento.
type draftMessage struct {
	seqNum uint32
	id     int64
	email  *storage.Email
	raw    []byte
}

// goneMessage substitui o conteúdo de uma linha apagada fora da sessão
var goneMessage = []byte("\r\n")

func (d *draftMessage) uid() uint32 {
	return uint32(d.id)
}

func (d *draftMessage) internalDate() time.Time {
	if d.email == nil {
		return time.Time{}
	}
	return d.email.CreatedAt
}

func (d *draftMessage) headerAndBody() (textproto.Header, *bufio.Reader, error) {
	body := bufio.NewReader(bytes.NewReader(d.raw))
	hdr, err := textproto.ReadHeader(body)
	return hdr, body, err
}

// messages sincroniza a lista da sessão com o armazenamento e devolve as mensagens
// na ordem de sequência
func (m *IMAPMailbox) messages() ([]*draftMessage, error) {
	emails, err := m.backend.store.ListEmails(context.Background())
	if err != nil {
		return nil, fmt.Errorf("falha ao listar emails: %w", err)
	}

	live := make(map[int64]*storage.Email, len(emails))
	for _, e := range emails {
		live[e.ID] = e
	}

	m.mu.Lock()
	known := make(map[int64]bool, len(m.ids))
	for _, id := range m.ids {
		known[id] = true
		if live[id] == nil {
			m.gone[id] = true
		}
	}

	var added []int64
	for id := range live {
		if !known[id] {
			added = append(added, id)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
	m.ids = append(m.ids, added...)

	ids := append([]int64(nil), m.ids...)
	m.mu.Unlock()

	out := make([]*draftMessage, 0, len(ids))
	for i, id := range ids {
		d := &draftMessage{seqNum: uint32(i + 1), id: id, email: live[id], raw: goneMessage}
		if d.email != nil {
			if d.raw, err = RenderMessage(d.email, m.backend.domain); err != nil {
				return nil, err
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *IMAPMailbox) flags(d *draftMessage) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	flags := []string{imap.DraftFlag}
	if m.deleted[d.id] || m.gone[d.id] {
		flags = append(flags, imap.DeletedFlag)
	}
	return flags
}

// Name retorna o nome da caixa
func (m *IMAPMailbox) Name() string {
	return DraftsMailbox
}

// Info retorna informações sobre a caixa
func (m *IMAPMailbox) Info() (*imap.MailboxInfo, error) {
	return &imap.MailboxInfo{
		Attributes: []string{`\Drafts`},
		Delimiter:  "/",
		Name:       DraftsMailbox,
	}, nil
}

// Status retorna o status da caixa
func (m *IMAPMailbox) Status(items []imap.StatusItem) (*imap.MailboxStatus, error) {
	msgs, err := m.messages()
	if err != nil {
		return nil, err
	}

	state, err := m.backend.store.MailboxState(context.Background())
	if err != nil {
		return nil, fmt.Errorf("falha ao ler estado da caixa: %w", err)
	}

	status := imap.NewMailboxStatus(DraftsMailbox, items)
	status.Flags = []string{imap.DraftFlag, imap.DeletedFlag}
	status.PermanentFlags = []string{imap.DeletedFlag}

	for _, item := range items {
		switch item {
		case imap.StatusMessages:
			status.Messages = uint32(len(msgs))
		case imap.StatusRecent:
			status.Recent = 0
		case imap.StatusUnseen:
			status.Unseen = 0
		case imap.StatusUidNext:
			status.UidNext = uint32(state.NextID)
		case imap.StatusUidValidity:
			status.UidValidity = state.UIDValidity
		}
	}

	return status, nil
}

// SetSubscribed não tem efeito
func (m *IMAPMailbox) SetSubscribed(subscribed bool) error {
	return nil
}

// Check não tem efeito
func (m *IMAPMailbox) Check() error {
	return nil
}

func selected(uid bool, seqSet *imap.SeqSet, d *draftMessage) bool {
	if uid {
		return seqSet.Contains(d.uid())
	}
	return seqSet.Contains(d.seqNum)
}

// ListMessages responde ao FETCH
func (m *IMAPMailbox) ListMessages(uid bool, seqSet *imap.SeqSet, items []imap.FetchItem, ch chan<- *imap.Message) error {
	defer close(ch)

	msgs, err := m.messages()
	if err != nil {
		return err
	}

	for _, d := range msgs {
		if !selected(uid, seqSet, d) {
			continue
		}

		fetched, err := m.fetch(d, items)
		if err != nil {
			return err
		}
		ch <- fetched
	}

	return nil
}

func (m *IMAPMailbox) fetch(d *draftMessage, items []imap.FetchItem) (*imap.Message, error) {
	fetched := imap.NewMessage(d.seqNum, items)
	for _, item := range items {
		switch item {
		case imap.FetchEnvelope:
			hdr, _, err := d.headerAndBody()
			if err != nil {
				return nil, err
			}
			if fetched.Envelope, err = backendutil.FetchEnvelope(hdr); err != nil {
				return nil, err
			}
		case imap.FetchBody, imap.FetchBodyStructure:
			hdr, body, err := d.headerAndBody()
			if err != nil {
				return nil, err
			}
			if fetched.BodyStructure, err = backendutil.FetchBodyStructure(hdr, body, item == imap.FetchBodyStructure); err != nil {
				return nil, err
			}
		case imap.FetchFlags:
			fetched.Flags = m.flags(d)
		case imap.FetchInternalDate:
			fetched.InternalDate = d.internalDate()
		case imap.FetchRFC822Size:
			fetched.Size = uint32(len(d.raw))
		case imap.FetchUid:
			fetched.Uid = d.uid()
		default:
			section, err := imap.ParseBodySectionName(item)
			if err != nil {
				continue
			}
			hdr, body, err := d.headerAndBody()
			if err != nil {
				return nil, err
			}
			l, err := backendutil.FetchBodySection(hdr, body, section)
			if err != nil {
				continue
			}
			fetched.Body[section] = l
		}
	}
	return fetched, nil
}

// SearchMessages responde ao SEARCH
func (m *IMAPMailbox) SearchMessages(uid bool, criteria *imap.SearchCriteria) ([]uint32, error) {
	msgs, err := m.messages()
	if err != nil {
		return nil, err
	}

	var ids []uint32
	for _, d := range msgs {
		e, err := message.Read(bytes.NewReader(d.raw))
		if err != nil {
			return nil, fmt.Errorf("falha ao ler mensagem %d: %w", d.id, err)
		}

		ok, err := backendutil.Match(e, d.seqNum, d.uid(), d.internalDate(), m.flags(d), criteria)
		if err != nil || !ok {
			continue
		}

		if uid {
			ids = append(ids, d.uid())
		} else {
			ids = append(ids, d.seqNum)
		}
	}
	return ids, nil
}

// CreateMessage trata o APPEND: a mensagem é convertida e salva como novo email
func (m *IMAPMailbox) CreateMessage(flags []string, date time.Time, body imap.Literal) error {
	in, err := ParseMessage(body, nil)
	if err != nil {
		return err
	}

	email, err := m.backend.store.CreateEmail(context.Background(), in)
	if err != nil {
		return err
	}

	m.backend.logger.Info("draft appended", zap.Int64("id", email.ID))
	return nil
}

// UpdateMessagesFlags só acompanha \Deleted; \Draft é fixa e as demais flags são ignoradas
func (m *IMAPMailbox) UpdateMessagesFlags(uid bool, seqSet *imap.SeqSet, operation imap.FlagsOp, flags []string) error {
	msgs, err := m.messages()
	if err != nil {
		return err
	}

	hasDeleted := false
	for _, f := range flags {
		if strings.EqualFold(f, imap.DeletedFlag) {
			hasDeleted = true
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range msgs {
		if !selected(uid, seqSet, d) {
			continue
		}

		switch {
		case operation == imap.RemoveFlags && hasDeleted:
			delete(m.deleted, d.id)
		case operation == imap.SetFlags && !hasDeleted:
			delete(m.deleted, d.id)
		case hasDeleted:
			m.deleted[d.id] = true
		}
	}

	return nil
}

// CopyMessages não é suportado: existe uma única caixa
func (m *IMAPMailbox) CopyMessages(uid bool, seqSet *imap.SeqSet, destName string) error {
	return backend.ErrNoSuchMailbox
}

// Expunge apaga os emails marcados com \Deleted e tira da sessão os ids
// marcados ou apagados por fora. Como a caixa não publica atualizações, o servidor
// go-imap anuncia os EXPUNGE a partir da busca por \Deleted feita antes desta chamada.
func (m *IMAPMailbox) Expunge() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.ids[:0]
	for i, id := range m.ids {
		if !m.deleted[id] && !m.gone[id] {
			kept = append(kept, id)
			continue
		}

		if !m.gone[id] {
			err := m.backend.store.DeleteEmail(context.Background(), id)
			if err != nil && !errors.Is(err, storage.ErrEmailNotFound) {
				// mantém a lista coerente com o que já foi apagado
				m.ids = append(kept, m.ids[i:]...)
				return fmt.Errorf("falha ao excluir email %d: %w", id, err)
			}
			m.backend.logger.Info("draft expunged", zap.Int64("id", id))
		}
		delete(m.deleted, id)
		delete(m.gone, id)
	}
	m.ids = kept

	return nil
}

// NewIMAPServer configura o servidor IMAP da caixa Drafts
func NewIMAPServer(cfg *config.Config, store storage.Storage, logger *zap.Logger) *imapserver.Server {
	s := imapserver.New(NewIMAPBackend(store, cfg, logger))

	s.Addr = cfg.IMAPAddr()
	s.AllowInsecureAuth = true

	return s
}

// StartIMAPServer inicia o servidor IMAP e o encerra quando ctx é cancelado
func StartIMAPServer(ctx context.Context, cfg *config.Config, store storage.Storage, logger *zap.Logger) error {
	s := NewIMAPServer(cfg, store, logger)

	logger.Info("starting IMAP drafts mailbox", zap.String("addr", s.Addr))
	return serveUntilDone(ctx, s.ListenAndServe, func(context.Context) error {
		return s.Close()
	})
}
