package storage

import (
	"fmt"
	"strings"
	"time"
)

// Email representa um email persistido na tabela emails
type Email struct {
	ID        int64      `db:"id" json:"id"`
	To        string     `db:"to" json:"to"`
	Cc        *string    `db:"cc" json:"cc,omitempty"`
	Bcc       *string    `db:"bcc" json:"bcc,omitempty"`
	Subject   string     `db:"subject" json:"subject"`
	Body      string     `db:"body" json:"body"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}

// NewEmail contém os campos informados na criação de um email
type NewEmail struct {
	To      string `json:"to"`
	Cc      string `json:"cc,omitempty"`
	Bcc     string `json:"bcc,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmailPatch contém apenas os campos que devem ser alterados; nil mantém o valor atual
type EmailPatch struct {
	To      *string `json:"to,omitempty"`
	Cc      *string `json:"cc,omitempty"`
	Bcc     *string `json:"bcc,omitempty"`
	Subject *string `json:"subject,omitempty"`
	Body    *string `json:"body,omitempty"`
}

// ValidationError indica um campo obrigatório ausente ou inválido
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// nullable converte listas de endereço vazias em NULL
func nullable(s string) *string {
	if blank(s) {
		return nil
	}
	return &s
}

// Validate verifica os campos obrigatórios de um novo email
func (n NewEmail) Validate() error {
	switch {
	case blank(n.To):
		return &ValidationError{Field: "to"}
	case blank(n.Subject):
		return &ValidationError{Field: "subject"}
	case blank(n.Body):
		return &ValidationError{Field: "body"}
	}
	return nil
}

// Validate impede que uma atualização esvazie campos obrigatórios
func (p EmailPatch) Validate() error {
	switch {
	case p.To != nil && blank(*p.To):
		return &ValidationError{Field: "to"}
	case p.Subject != nil && blank(*p.Subject):
		return &ValidationError{Field: "subject"}
	case p.Body != nil && blank(*p.Body):
		return &ValidationError{Field: "body"}
	}
	return nil
}
