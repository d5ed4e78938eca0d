package action

import (
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/schema"
)

// Settable lifecycle statuses. Preview, scheduled, archived and draft exist
// on the platform but are never set through conversation.
var settableStatuses = []string{"inactive", "enrolling", "enrollmentComplete", "cancelled"}

// All statuses accepted as listing filters.
var filterableStatuses = []string{
	"inactive", "preview", "scheduled", "enrolling",
	"enrollmentComplete", "cancelled", "archived", "draft",
}

var noParamsSchema = &schema.Schema{
	"type":                 "object",
	"additionalProperties": false,
}

var allExperimentsSchema = &schema.Schema{
	"type": "object",
	"properties": map[string]any{
		"context_filter": map[string]any{"type": "string"},
		"status_filter":  map[string]any{"type": "string", "enum": filterableStatuses},
	},
	"additionalProperties": false,
}

var experimentDetailsSchema = &schema.Schema{
	"type": "object",
	"properties": map[string]any{
		"experiment_id": map[string]any{"type": "string", "minLength": 1},
	},
	"required":             []string{"experiment_id"},
	"additionalProperties": false,
}

var deleteExperimentSchema = &schema.Schema{
	"type": "object",
	"properties": map[string]any{
		"experiment_id": map[string]any{"type": "string", "minLength": 1},
		// Kept for display in confirmations when the user referred to the
		// experiment by name.
		"name": map[string]any{"type": "string"},
	},
	"required":             []string{"experiment_id"},
	"additionalProperties": false,
}

var experimentStatusSchema = &schema.Schema{
	"type": "object",
	"properties": map[string]any{
		"experiment_id": map[string]any{"type": "string", "minLength": 1},
		"status":        map[string]any{"type": "string", "enum": settableStatuses},
		"name":          map[string]any{"type": "string"},
	},
	"required":             []string{"experiment_id", "status"},
	"additionalProperties": false,
}

var initUserSchema = &schema.Schema{
	"type": "object",
	"properties": map[string]any{
		"user_id": map[string]any{"type": "string", "minLength": 1},
		"group": map[string]any{
			"type": "object",
			"additionalProperties": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"working_group": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
	},
	"required":             []string{"user_id"},
	"additionalProperties": false,
}

var assignmentsSchema = &schema.Schema{
	"type": "object",
	"properties": map[string]any{
		"user_id": map[string]any{"type": "string", "minLength": 1},
		"context": map[string]any{"type": "string", "minLength": 1},
	},
	"required":             []string{"user_id", "context"},
	"additionalProperties": false,
}

var markSchema = &schema.Schema{
	"type": "object",
	"properties": map[string]any{
		"user_id": map[string]any{"type": "string", "minLength": 1},
		"site":    map[string]any{"type": "string", "minLength": 1},
		"target":  map[string]any{"type": "string", "minLength": 1},
		"assigned_condition": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":             map[string]any{"type": "string"},
				"condition_code": map[string]any{"type": "string"},
				"payload":        map[string]any{"type": "object"},
				"experiment_id":  map[string]any{"type": "string"},
			},
			"additionalProperties": true,
		},
		"status": map[string]any{
			"type": "string",
			"enum": []string{
				"condition applied", "condition not applied", "no condition assigned",
			},
		},
	},
	"required":             []string{"user_id", "site", "target"},
	"additionalProperties": false,
}

// experimentFieldProperties is the shared property set for experiment
// definitions, in the simplified conversational shape.
func experimentFieldProperties() map[string]any {
	return map[string]any{
		"name":        map[string]any{"type": "string", "minLength": 1},
		"description": map[string]any{"type": "string"},
		"context":     map[string]any{"type": "string", "minLength": 1},
		"decision_points": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"site":               map[string]any{"type": "string", "minLength": 1},
					"target":             map[string]any{"type": "string", "minLength": 1},
					"exclude_if_reached": map[string]any{"type": "boolean"},
				},
				"required":             []string{"site", "target"},
				"additionalProperties": false,
			},
		},
		"conditions": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"code":   map[string]any{"type": "string", "minLength": 1},
					"weight": map[string]any{"type": "number", "minimum": 0, "maximum": 100},
					"name":   map[string]any{"type": "string"},
				},
				"required":             []string{"code", "weight"},
				"additionalProperties": false,
			},
		},
		"assignment_unit": map[string]any{
			"type": "string",
			"enum": []string{"individual", "group"},
		},
		"consistency_rule": map[string]any{
			"type": "string",
			"enum": []string{"individual", "group"},
		},
		"group_type":  map[string]any{"type": "string"},
		"filter_mode": map[string]any{"type": "string", "enum": []string{"excludeAll", "includeAll"}},
		"tags": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"post_experiment_rule": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"rule":           map[string]any{"type": "string", "enum": []string{"continue", "assign"}},
				"condition_code": map[string]any{"type": "string"},
			},
			"required":             []string{"rule"},
			"additionalProperties": false,
		},
		"inclusion_users": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"exclusion_users": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"inclusion_groups": segmentGroupListSchema(),
		"exclusion_groups": segmentGroupListSchema(),
	}
}

func segmentGroupListSchema() map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"group_id": map[string]any{"type": "string", "minLength": 1},
				"type":     map[string]any{"type": "string", "minLength": 1},
			},
			"required":             []string{"group_id", "type"},
			"additionalProperties": false,
		},
	}
}

// experimentDefinitionSchema builds the create-shaped schema with the given
// required keys.
func experimentDefinitionSchema(required []string) *schema.Schema {
	return &schema.Schema{
		"type":                 "object",
		"properties":           experimentFieldProperties(),
		"required":             required,
		"additionalProperties": false,
	}
}

// updateExperimentSchema takes the experiment definition plus the id of the
// experiment being replaced. All definition fields stay optional; untouched
// ones are backfilled from the current definition before dispatch.
var updateExperimentSchema = func() *schema.Schema {
	props := experimentFieldProperties()
	props["experiment_id"] = map[string]any{"type": "string", "minLength": 1}
	return &schema.Schema{
		"type":                 "object",
		"properties":           props,
		"required":             []string{"experiment_id"},
		"additionalProperties": false,
	}
}()
