package phase

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/codeready-toolchain/cardigan/pkg/models"
)

// defaultPrompts embeds the built-in system-prompt templates shipped with
// the binary so Cardigan runs out of the box without an external prompts
// directory (SPEC_FULL §4.4 "Prompt source collaborator"). Operators may
// override any phase's prompt by pointing PromptsDir at a directory with a
// same-named .tmpl file; the engine only ever renders this content, never
// interprets it (spec §9 "Dynamic-typed collaborators").
//
//go:embed templates/*.tmpl
var defaultPrompts embed.FS

// PromptData is the set of fields a phase template may reference.
type PromptData struct {
	Phase          models.PhaseName
	TranscriptFile string
	ProjectName    string
	Transcript     string
	PriorOutputs   map[string]string // phase name -> artifact content
	SSTContext     map[string]string // external metadata fields, may be empty
}

// PromptStore loads each phase's template on first use and caches it for
// the life of the store (prompts are "content", not code — spec §9); an
// edit to prompts/ after a phase's template was loaded takes effect only
// after a restart.
type PromptStore struct {
	dir string

	mu        sync.Mutex
	templates map[models.PhaseName]*template.Template
}

// NewPromptStore builds a store that prefers files under dir (if non-empty
// and the file exists) and falls back to the embedded default for any
// phase without an override.
func NewPromptStore(dir string) *PromptStore {
	return &PromptStore{dir: dir, templates: make(map[models.PhaseName]*template.Template)}
}

// Render loads (or reuses a cached) template for phase and executes it
// against data, returning the fully rendered system prompt.
func (s *PromptStore) Render(phase models.PhaseName, data PromptData) (string, error) {
	tmpl, err := s.templateFor(phase)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", phase, err)
	}
	return buf.String(), nil
}

func (s *PromptStore) templateFor(phase models.PhaseName) (*template.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.templates[phase]; ok {
		return t, nil
	}

	name := string(phase) + ".tmpl"
	raw, err := s.read(name)
	if err != nil {
		return nil, fmt.Errorf("load prompt template %s: %w", name, err)
	}

	t, err := template.New(name).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	s.templates[phase] = t
	return t, nil
}

// read prefers an on-disk override at <dir>/<name>, falling back to the
// embedded default.
func (s *PromptStore) read(name string) ([]byte, error) {
	if s.dir != "" {
		path := filepath.Join(s.dir, name)
		if raw, err := os.ReadFile(path); err == nil {
			return raw, nil
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return fs.ReadFile(defaultPrompts, "templates/"+name)
}

// formatPriorOutputs renders the prior-phase-artifacts section of every
// phase's user message; buildUserMessage calls it, so the .tmpl files do
// not repeat this markdown.
func formatPriorOutputs(outputs map[string]string) string {
	if len(outputs) == 0 {
		return "(no prior phase output available)"
	}
	var b strings.Builder
	for _, name := range []string{"analyst", "formatter", "seo", "timestamp", "copy_editor"} {
		content, ok := outputs[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "### %s output\n\n%s\n\n", name, content)
	}
	return b.String()
}
