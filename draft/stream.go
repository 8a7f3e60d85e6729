package draft

import (
	"encoding/json"
	"strings"
	"unicode"
)

// Nomes dos eventos do stream de rascunho
const (
	EventType    = "type"
	EventSubject = "subject"
	EventBody    = "body"
	EventDone    = "done"
)

// Event é um incremento do rascunho enviado como Server-Sent Event
type Event struct {
	Name string
	Data string
}

// Sentences divide o texto após '.', '!' ou '?' seguidos de espaço,
// preservando a ordem original.
func Sentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !strings.ContainsRune(".!?", runes[i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// Events transforma um rascunho na sequência ordenada type, subject*, body*, done
func Events(d Draft) []Event {
	typ, _ := json.Marshal(map[string]Intent{"type": d.Type})

	events := []Event{{Name: EventType, Data: string(typ)}}
	for _, s := range Sentences(d.Subject) {
		events = append(events, Event{Name: EventSubject, Data: s})
	}
	for _, s := range Sentences(d.Body) {
		events = append(events, Event{Name: EventBody, Data: s})
	}
	return append(events, Event{Name: EventDone, Data: "true"})
}
