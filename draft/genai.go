package draft

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/carloslauriano/draftmail/config"
	"google.golang.org/genai"
)

// formatInstruction é anexada a toda instrução de sistema
const formatInstruction = "Rules: at most 40 words total, 7-10 words per sentence. " +
	"The first line is the subject, then a blank line, then the body."

var personas = map[Intent]string{
	IntentSales: "You are a sales email assistant. Generate concise, professional sales emails. " +
		"Be direct and value-focused and include a clear call to action.",
	IntentFollowUp: "You are a follow-up email assistant. Generate polite, professional follow-up emails. " +
		"Keep it courteous and brief, reference previous interactions when relevant " +
		"and include a gentle call to action.",
}

var subjectPrefix = regexp.MustCompile(`(?i)^\s*subject(\s+line)?\s*:\s*`)

// completer abstrai a chamada de completação de texto
type completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// GenAIGenerator delega assunto e corpo a um modelo Gemini.
// A classificação continua sendo a mesma regra de palavras-chave.
type GenAIGenerator struct {
	llm completer
}

// NewGenAIGenerator cria o cliente genai com a chave e o modelo configurados
func NewGenAIGenerator(ctx context.Context, cfg config.GeneratorConfig) (*GenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIGenerator{
		llm: &genaiCompleter{
			client:      client,
			model:       cfg.Model,
			temperature: cfg.Temperature,
		},
	}, nil
}

// Generate implementa Generator com uma única chamada ao modelo, sem retentativas
func (g *GenAIGenerator) Generate(ctx context.Context, prompt string, hints Context) (Draft, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Draft{}, ErrEmptyPrompt
	}

	intent := Classify(prompt)
	system := personas[intent] + "\n" + formatInstruction

	text, err := g.llm.Complete(ctx, system, userMessage(prompt, hints))
	if err != nil {
		return Draft{}, &GenerationError{Reason: "completion request failed", Err: err}
	}

	subject, body := parseCompletion(text)
	if subject == "" || body == "" {
		return Draft{}, &GenerationError{Reason: "model returned no usable subject and body"}
	}

	return Draft{
		Type:    intent,
		Subject: Truncate(subject, SubjectWordLimit),
		Body:    Truncate(body, BodyWordLimit),
	}, nil
}

func userMessage(prompt string, hints Context) string {
	var b strings.Builder
	b.WriteString(prompt)
	if r := strings.TrimSpace(hints.Recipient); r != "" {
		b.WriteString("\nRecipient: " + r)
	}
	if biz := strings.TrimSpace(hints.Business); biz != "" {
		b.WriteString("\nBusiness: " + biz)
	}
	return b.String()
}

// parseCompletion separa assunto e corpo. Uma linha "Subject:" tem prioridade;
// senão a primeira linha não vazia é o assunto.
func parseCompletion(text string) (string, string) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	if len(lines) == 0 {
		return "", ""
	}

	subjectIdx := 0
	for i, line := range lines {
		if subjectPrefix.MatchString(line) {
			subjectIdx = i
			break
		}
	}

	subject := subjectPrefix.ReplaceAllString(lines[subjectIdx], "")
	var body []string
	for i, line := range lines {
		if i != subjectIdx {
			body = append(body, line)
		}
	}
	return strings.TrimSpace(subject), strings.Join(body, "\n")
}

// genaiCompleter chama a API Gemini via google.golang.org/genai
type genaiCompleter struct {
	client      *genai.Client
	model       string
	temperature float32
}

func (c *genaiCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	result, err := c.client.Models.GenerateContent(ctx,
		c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
			Temperature:       genai.Ptr(c.temperature),
		},
	)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	return result.Text(), nil
}

// NewGenerator escolhe o gerador pelo backend configurado
func NewGenerator(ctx context.Context, cfg config.GeneratorConfig) (Generator, error) {
	switch cfg.Backend {
	case "", "template":
		return TemplateGenerator{}, nil
	case "genai":
		return NewGenAIGenerator(ctx, cfg)
	default:
		return nil, fmt.Errorf("backend de geração não suportado: %s", cfg.Backend)
	}
}
