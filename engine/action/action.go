package action

import (
	"fmt"
	"sort"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/schema"
)

// Name identifies one of the supported platform actions. The set is closed:
// the conversation layer can only ever dispatch these.
type Name string

const (
	CheckUpgradeHealth          Name = "check_upgrade_health"
	GetContextMetadata          Name = "get_context_metadata"
	GetExperimentNames          Name = "get_experiment_names"
	GetAllExperiments           Name = "get_all_experiments"
	GetExperimentDetails        Name = "get_experiment_details"
	CreateExperiment            Name = "create_experiment"
	UpdateExperiment            Name = "update_experiment"
	UpdateExperimentStatus      Name = "update_experiment_status"
	DeleteExperiment            Name = "delete_experiment"
	InitExperimentUser          Name = "init_experiment_user"
	GetDecisionPointAssignments Name = "get_decision_point_assignments"
	MarkDecisionPoint           Name = "mark_decision_point"
)

func (n Name) String() string {
	return string(n)
}

// Parse validates a raw action name against the registry.
func Parse(raw string) (Name, error) {
	name := Name(raw)
	if _, ok := registry[name]; !ok {
		return "", core.NewError(
			fmt.Errorf("unknown action: %q", raw),
			core.CodeValidationFailed,
			map[string]any{"action": raw},
		)
	}
	return name, nil
}

// Spec describes one action: what it needs, what it defaults, and how its
// execution must be gated.
type Spec struct {
	Name        Name
	Description string
	// Confirm marks actions that change platform state and therefore
	// require an explicit user confirmation before dispatch.
	Confirm bool
	// Destructive marks actions that cannot be undone. These require the
	// exact acknowledgment keyword on top of normal confirmation.
	Destructive bool
	Required    []string
	Defaults    core.Input
	Params      *schema.Schema
}

// Get returns the spec for a registered action.
func Get(name Name) (Spec, bool) {
	spec, ok := registry[name]
	return spec, ok
}

// MustGet returns the spec for a registered action and panics otherwise.
// Use only with the package's own constants.
func MustGet(name Name) Spec {
	spec, ok := registry[name]
	if !ok {
		panic(fmt.Sprintf("action %q is not registered", name))
	}
	return spec
}

// All returns every registered spec sorted by name.
func All() []Spec {
	specs := make([]Spec, 0, len(registry))
	for _, spec := range registry {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// MissingParams lists the required parameters not yet present in the
// gathered input, in spec order.
func MissingParams(spec Spec, params core.Input) []string {
	missing := make([]string, 0)
	for _, key := range spec.Required {
		value, ok := params[key]
		if !ok || value == nil {
			missing = append(missing, key)
			continue
		}
		if s, isString := value.(string); isString && s == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

var registry = map[Name]Spec{
	CheckUpgradeHealth: {
		Name:        CheckUpgradeHealth,
		Description: "Check whether the UpGrade service is up and report its version",
		Params:      noParamsSchema,
	},
	GetContextMetadata: {
		Name:        GetContextMetadata,
		Description: "List the app contexts with their supported conditions, group types, sites and targets",
		Params:      noParamsSchema,
	},
	GetExperimentNames: {
		Name:        GetExperimentNames,
		Description: "List the names and ids of all experiments",
		Params:      noParamsSchema,
	},
	GetAllExperiments: {
		Name:        GetAllExperiments,
		Description: "List all experiments, optionally filtered by app context or status",
		Params:      allExperimentsSchema,
	},
	GetExperimentDetails: {
		Name:        GetExperimentDetails,
		Description: "Show the full definition of a single experiment",
		Required:    []string{"experiment_id"},
		Params:      experimentDetailsSchema,
	},
	CreateExperiment: {
		Name:        CreateExperiment,
		Description: "Create a new A/B experiment",
		Confirm:     true,
		Required:    []string{"name", "context", "decision_points", "conditions"},
		Defaults: core.Input{
			"description":      "",
			"assignment_unit":  "individual",
			"consistency_rule": "individual",
			"filter_mode":      "excludeAll",
			"tags":             []any{},
			"post_experiment_rule": map[string]any{
				"rule": "continue",
			},
		},
		Params: experimentDefinitionSchema(
			[]string{"name", "context", "decision_points", "conditions"}),
	},
	UpdateExperiment: {
		Name:        UpdateExperiment,
		Description: "Update an existing experiment's definition",
		Confirm:     true,
		Required:    []string{"experiment_id"},
		Params:      updateExperimentSchema,
	},
	UpdateExperimentStatus: {
		Name:        UpdateExperimentStatus,
		Description: "Change an experiment's lifecycle status",
		Confirm:     true,
		Required:    []string{"experiment_id", "status"},
		Params:      experimentStatusSchema,
	},
	DeleteExperiment: {
		Name:        DeleteExperiment,
		Description: "Permanently delete an experiment and all of its data",
		Confirm:     true,
		Destructive: true,
		Required:    []string{"experiment_id"},
		Params:      deleteExperimentSchema,
	},
	InitExperimentUser: {
		Name:        InitExperimentUser,
		Description: "Register a test user with group memberships",
		Confirm:     true,
		Required:    []string{"user_id"},
		Params:      initUserSchema,
	},
	GetDecisionPointAssignments: {
		Name:        GetDecisionPointAssignments,
		Description: "Fetch the condition assignments a test user would receive",
		Confirm:     true,
		Required:    []string{"user_id", "context"},
		Params:      assignmentsSchema,
	},
	MarkDecisionPoint: {
		Name:        MarkDecisionPoint,
		Description: "Record that a test user visited a decision point",
		Confirm:     true,
		Required:    []string{"user_id", "site", "target"},
		Params:      markSchema,
	},
}
