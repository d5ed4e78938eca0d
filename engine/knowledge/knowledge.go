package knowledge

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/goccy/go-yaml"
)

//go:embed glossary.yaml
var glossaryYAML []byte

// Base holds the built-in A/B testing glossary used to answer conceptual
// questions without calling the experimentation API.
type Base struct {
	CoreTerms       map[string]string `yaml:"core_terms"`
	AssignmentTerms map[string]string `yaml:"assignment_terms"`
	StatusLifecycle map[string]string `yaml:"status_lifecycle"`

	index map[string]string
}

// Load parses the embedded glossary. It fails only if the embedded asset is
// malformed, which indicates a build problem rather than a runtime condition.
func Load() (*Base, error) {
	base := &Base{}
	if err := yaml.Unmarshal(glossaryYAML, base); err != nil {
		return nil, core.NewError(fmt.Errorf("parse embedded glossary: %w", err), core.CodeInternal, nil)
	}
	base.index = make(map[string]string, len(base.CoreTerms)+len(base.AssignmentTerms)+len(base.StatusLifecycle))
	for _, section := range base.sections() {
		for term, def := range section {
			base.index[normalizeTerm(term)] = def
		}
	}
	return base, nil
}

// MustLoad is for wiring paths where a broken embedded asset should stop the
// process immediately.
func MustLoad() *Base {
	base, err := Load()
	if err != nil {
		panic(err)
	}
	return base
}

// Lookup returns the definition for a term. Matching is case-insensitive and
// treats spaces and hyphens as underscores, so "decision point" and
// "decision-point" both resolve.
func (b *Base) Lookup(term string) (string, bool) {
	def, ok := b.index[normalizeTerm(term)]
	return def, ok
}

// Terms returns every known term sorted alphabetically.
func (b *Base) Terms() []string {
	terms := make([]string, 0, len(b.index))
	for _, section := range b.sections() {
		for term := range section {
			terms = append(terms, term)
		}
	}
	sort.Strings(terms)
	return terms
}

// Render formats the glossary as prompt context so the language model answers
// conceptual questions from the same definitions users see.
func (b *Base) Render() string {
	var sb strings.Builder
	sb.WriteString("Core A/B testing terms:\n")
	writeSection(&sb, b.CoreTerms)
	sb.WriteString("\nAssignment and consistency terms:\n")
	writeSection(&sb, b.AssignmentTerms)
	sb.WriteString("\nExperiment status lifecycle:\n")
	writeSection(&sb, b.StatusLifecycle)
	return sb.String()
}

func (b *Base) sections() []map[string]string {
	return []map[string]string{b.CoreTerms, b.AssignmentTerms, b.StatusLifecycle}
}

func writeSection(sb *strings.Builder, section map[string]string) {
	keys := make([]string, 0, len(section))
	for key := range section {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(sb, "- %s: %s\n", key, section[key])
	}
}

func normalizeTerm(term string) string {
	key := strings.ToLower(strings.TrimSpace(term))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}
