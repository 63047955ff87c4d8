package scriptgen

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/aescanero/podgen/internal/generation"
	"github.com/aescanero/podgen/pkg/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"join": strings.Join,
	"add":  func(a, b int) int { return a + b },
}

// prompts renders the instructions of both step kinds
type prompts struct {
	tmpl *template.Template
}

func loadPrompts() (*prompts, error) {
	tmpl, err := template.New("prompts").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt templates: %w", err)
	}
	return &prompts{tmpl: tmpl}, nil
}

type summarizeData struct {
	ProgramName string
	Item        domain.ContentItem
}

type synthesizeData struct {
	ProgramName   string
	ProgramDate   time.Time
	Items         []domain.SummarizedItem
	ListenerNotes []domain.ListenerNote
	Length        domain.LengthBounds
}

func (p *prompts) summarize(data summarizeData) (generation.Prompt, error) {
	system, err := p.render("summarize_system.tmpl", data)
	if err != nil {
		return generation.Prompt{}, err
	}
	user, err := p.render("summarize_user.tmpl", data)
	if err != nil {
		return generation.Prompt{}, err
	}
	return generation.Prompt{System: system, User: user}, nil
}

func (p *prompts) synthesize(mode domain.SpeakerMode, data synthesizeData) (generation.Prompt, error) {
	persona := "monologue_system.tmpl"
	if mode == domain.SpeakerModeDialogue {
		persona = "dialogue_system.tmpl"
	}

	system, err := p.render(persona, data)
	if err != nil {
		return generation.Prompt{}, err
	}
	user, err := p.render("synthesize_user.tmpl", data)
	if err != nil {
		return generation.Prompt{}, err
	}
	return generation.Prompt{System: system, User: user}, nil
}

func (p *prompts) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
