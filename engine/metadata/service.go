package metadata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/upgrade"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/logger"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	contextsKey = "context_metadata"
	namesKey    = "experiment_names"

	suggestionLimit = 5
)

// Fetcher is the slice of the platform client the service needs.
type Fetcher interface {
	GetContextMetadata(ctx context.Context) (*upgrade.ContextMetadata, error)
	ListExperimentNames(ctx context.Context) ([]upgrade.ExperimentName, error)
}

// ContextInfo is the conversational view of one app context. The platform
// reports sites as EXP_POINTS and targets as EXP_IDS.
type ContextInfo struct {
	Name       string   `json:"name"`
	Conditions []string `json:"conditions"`
	GroupTypes []string `json:"group_types"`
	Sites      []string `json:"sites"`
	Targets    []string `json:"targets"`
}

// Service caches platform vocabulary (app contexts and experiment names)
// with a TTL, serving validation and prompt construction without hitting
// the API on every turn.
type Service struct {
	fetcher  Fetcher
	contexts *expirable.LRU[string, *upgrade.ContextMetadata]
	names    *expirable.LRU[string, []upgrade.ExperimentName]
}

// NewService builds a metadata cache around the given fetcher.
func NewService(fetcher Fetcher, ttl time.Duration) *Service {
	return &Service{
		fetcher:  fetcher,
		contexts: expirable.NewLRU[string, *upgrade.ContextMetadata](1, nil, ttl),
		names:    expirable.NewLRU[string, []upgrade.ExperimentName](1, nil, ttl),
	}
}

// Invalidate drops everything cached. Called after any mutation so the next
// validation sees fresh vocabulary.
func (s *Service) Invalidate() {
	s.contexts.Purge()
	s.names.Purge()
}

// ContextMetadata returns the cached platform metadata, fetching on miss.
func (s *Service) ContextMetadata(ctx context.Context) (*upgrade.ContextMetadata, error) {
	if cached, ok := s.contexts.Get(contextsKey); ok {
		return cached, nil
	}
	meta, err := s.fetcher.GetContextMetadata(ctx)
	if err != nil {
		return nil, err
	}
	s.contexts.Add(contextsKey, meta)
	logger.FromContext(ctx).Debug("context metadata refreshed", "contexts", len(meta.Contexts))
	return meta, nil
}

// ExperimentNames returns the cached experiment listing, fetching on miss.
func (s *Service) ExperimentNames(ctx context.Context) ([]upgrade.ExperimentName, error) {
	if cached, ok := s.names.Get(namesKey); ok {
		return cached, nil
	}
	names, err := s.fetcher.ListExperimentNames(ctx)
	if err != nil {
		return nil, err
	}
	s.names.Add(namesKey, names)
	logger.FromContext(ctx).Debug("experiment names refreshed", "count", len(names))
	return names, nil
}

// Contexts lists the available app context names, sorted.
func (s *Service) Contexts(ctx context.Context) ([]string, error) {
	meta, err := s.ContextMetadata(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(meta.Contexts))
	for name := range meta.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ContextInfo returns the vocabulary of one app context. Unknown contexts
// yield a not-found error carrying the closest known names.
func (s *Service) ContextInfo(ctx context.Context, name string) (*ContextInfo, error) {
	meta, err := s.ContextMetadata(ctx)
	if err != nil {
		return nil, err
	}
	item, ok := meta.Contexts[name]
	if !ok {
		known := make([]string, 0, len(meta.Contexts))
		for k := range meta.Contexts {
			known = append(known, k)
		}
		return nil, core.NewError(
			fmt.Errorf("unknown app context: %q", name),
			core.CodeNotFound,
			map[string]any{
				"context":     name,
				"suggestions": rankSuggestions(name, known, suggestionLimit),
			},
		)
	}
	return &ContextInfo{
		Name:       name,
		Conditions: orEmptyList(item.Conditions),
		GroupTypes: orEmptyList(item.GroupTypes),
		Sites:      orEmptyList(item.ExpPoints),
		Targets:    orEmptyList(item.ExpIDs),
	}, nil
}

// ResolveExperimentID turns an experiment reference (id or name, exact or
// approximate) into an experiment id. Ambiguous or unknown references fail
// with candidate suggestions in the error details.
func (s *Service) ResolveExperimentID(ctx context.Context, ref string) (string, error) {
	names, err := s.ExperimentNames(ctx)
	if err != nil {
		return "", err
	}
	needle := strings.ToLower(strings.TrimSpace(ref))
	if needle == "" {
		return "", core.NewError(
			fmt.Errorf("empty experiment reference"),
			core.CodeValidationFailed,
			map[string]any{"field": "experiment_id"},
		)
	}

	var matches []upgrade.ExperimentName
	for _, candidate := range names {
		if strings.ToLower(candidate.ID) == needle {
			return candidate.ID, nil
		}
		if strings.ToLower(candidate.Name) == needle {
			matches = append(matches, candidate)
		}
	}
	if len(matches) == 1 {
		return matches[0].ID, nil
	}
	if len(matches) > 1 {
		return "", core.NewError(
			fmt.Errorf("experiment name %q matches %d experiments", ref, len(matches)),
			core.CodeValidationFailed,
			map[string]any{"candidates": nameList(matches)},
		)
	}

	// Fall back to unique substring matching before giving up.
	for _, candidate := range names {
		if strings.Contains(strings.ToLower(candidate.Name), needle) {
			matches = append(matches, candidate)
		}
	}
	if len(matches) == 1 {
		return matches[0].ID, nil
	}
	if len(matches) > 1 {
		return "", core.NewError(
			fmt.Errorf("experiment reference %q is ambiguous", ref),
			core.CodeValidationFailed,
			map[string]any{"candidates": nameList(matches)},
		)
	}

	all := make([]string, 0, len(names))
	for _, candidate := range names {
		all = append(all, candidate.Name)
	}
	return "", core.NewError(
		fmt.Errorf("no experiment matches %q", ref),
		core.CodeNotFound,
		map[string]any{
			"reference":   ref,
			"suggestions": rankSuggestions(ref, all, suggestionLimit),
		},
	)
}

// PromptSummary renders the cached vocabulary as a compact block for
// classification prompts.
func (s *Service) PromptSummary(ctx context.Context) (string, error) {
	meta, err := s.ContextMetadata(ctx)
	if err != nil {
		return "", err
	}
	names, err := s.ExperimentNames(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Available app contexts:\n")
	contextNames := make([]string, 0, len(meta.Contexts))
	for name := range meta.Contexts {
		contextNames = append(contextNames, name)
	}
	sort.Strings(contextNames)
	for _, name := range contextNames {
		item := meta.Contexts[name]
		fmt.Fprintf(&b, "- %s: conditions=%s; group_types=%s; sites=%s; targets=%s\n",
			name,
			joinOrNone(item.Conditions),
			joinOrNone(item.GroupTypes),
			joinOrNone(item.ExpPoints),
			joinOrNone(item.ExpIDs),
		)
	}

	b.WriteString("Existing experiments:\n")
	if len(names) == 0 {
		b.WriteString("- none\n")
	}
	for _, n := range names {
		fmt.Fprintf(&b, "- %s (id: %s)\n", n.Name, n.ID)
	}
	return b.String(), nil
}

func nameList(matches []upgrade.ExperimentName) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, fmt.Sprintf("%s (id: %s)", m.Name, m.ID))
	}
	return out
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}

func orEmptyList(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
