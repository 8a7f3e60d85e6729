// Package draft gera rascunhos de email (assunto e corpo) a partir de um
// pedido em texto livre, classificando a intenção como venda ou follow-up.
package draft

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Intent é a classificação grosseira de um pedido
type Intent string

const (
	IntentSales    Intent = "sales"
	IntentFollowUp Intent = "followup"
)

// Limites de palavras do assunto e do corpo
const (
	SubjectWordLimit = 10
	BodyWordLimit    = 40
)

// ErrEmptyPrompt é retornado quando o pedido está vazio
var ErrEmptyPrompt = errors.New("prompt is required")

// GenerationError indica falha do gerador externo ou conteúdo inutilizável
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed: %s: %v", e.Reason, e.Err)
	}
	return "generation failed: " + e.Reason
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Context traz dicas opcionais sobre o destinatário
type Context struct {
	Recipient string `json:"recipient,omitempty"`
	Business  string `json:"business,omitempty"`
}

// Draft é um rascunho gerado, ainda não persistido
type Draft struct {
	Type    Intent `json:"type"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Generator produz um rascunho para um pedido não vazio
type Generator interface {
	Generate(ctx context.Context, prompt string, hints Context) (Draft, error)
}

// Cada termo precisa ser palavra inteira: "shipping", "pingpong" e "follow upgrades" são venda
var followUpPattern = regexp.MustCompile(`(?i)\b(?:follow[\s-]*ups?|checking in|touching base|ping(?:s|ed|ing)?)\b`)

// Classify decide a intenção do pedido; na dúvida é venda
func Classify(prompt string) Intent {
	if followUpPattern.MatchString(strings.ToLower(prompt)) {
		return IntentFollowUp
	}
	return IntentSales
}

// Truncate mantém as primeiras max palavras, unidas por um único espaço
func Truncate(text string, max int) string {
	words := strings.Fields(text)
	if len(words) > max {
		words = words[:max]
	}
	return strings.Join(words, " ")
}

// TemplateGenerator gera rascunhos determinísticos a partir de modelos fixos
type TemplateGenerator struct{}

// Generate implementa Generator sem chamadas externas
func (TemplateGenerator) Generate(_ context.Context, prompt string, hints Context) (Draft, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Draft{}, ErrEmptyPrompt
	}

	intent := Classify(prompt)
	subject, body := render(intent, prompt, hints)
	return Draft{Type: intent, Subject: subject, Body: body}, nil
}

func render(intent Intent, prompt string, hints Context) (string, string) {
	recipient := strings.TrimSpace(hints.Recipient)
	business := strings.TrimSpace(hints.Business)

	if intent == IntentFollowUp {
		subject := "Following up: " + prompt
		body := "Hi there, just checking in on " + prompt +
			". Do you have a minute this week? Happy to share details or adjust timing. Thanks!"
		return Truncate(subject, SubjectWordLimit), Truncate(body, BodyWordLimit)
	}

	subject := "Quick idea"
	if recipient != "" {
		subject += " for " + recipient
	}
	subject += ": " + prompt

	greeting := "there"
	if recipient != "" {
		greeting = recipient
	}
	body := "Hi " + greeting + ", noticed " + prompt
	if business != "" {
		body += " to help " + business
	}
	body += ". 1) Fast setup 2) Clear results. Open to a 10-min chat this week?"

	return Truncate(subject, SubjectWordLimit), Truncate(body, BodyWordLimit)
}
