package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/schema"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/upgrade"
)

// Validate checks gathered parameters against the action's schema and its
// cross-field rules. The first violation is returned as a validation error.
func Validate(ctx context.Context, spec Spec, params core.Input) error {
	v := schema.NewCompositeValidator(
		schema.NewParamsValidator(params.AsMap(), spec.Params, spec.Name.String()),
	)
	switch spec.Name {
	case CreateExperiment, UpdateExperiment:
		v.AddValidator(conditionWeightsRule(params))
		v.AddValidator(groupTypeRule(params))
		v.AddValidator(postRuleConditionRule(params))
	}
	err := v.Validate(ctx)
	if err == nil {
		return nil
	}
	coreErr := &core.Error{}
	if errors.As(err, &coreErr) {
		return err
	}
	return core.NewError(err, core.CodeValidationFailed, map[string]any{
		"action": spec.Name.String(),
	})
}

// conditionWeightsRule verifies condition weights sum to 100 when any
// conditions are present.
func conditionWeightsRule(params core.Input) schema.FuncValidator {
	return func(_ context.Context) error {
		raw, ok := params["conditions"]
		if !ok || raw == nil {
			return nil
		}
		conditions, err := core.FromMap[[]upgrade.ConditionParam](raw)
		if err != nil {
			return core.NewError(err, core.CodeValidationFailed, map[string]any{
				"field": "conditions",
			})
		}
		if len(conditions) == 0 {
			return nil
		}
		return upgrade.CheckConditionWeights(conditions)
	}
}

// groupTypeRule requires group_type whenever assignment is per group.
func groupTypeRule(params core.Input) schema.FuncValidator {
	return func(_ context.Context) error {
		unit, _ := params["assignment_unit"].(string)
		if unit != "group" {
			return nil
		}
		if groupType, _ := params["group_type"].(string); groupType == "" {
			return core.NewError(
				fmt.Errorf("group_type is required when assignment_unit is %q", unit),
				core.CodeValidationFailed,
				map[string]any{"field": "group_type"},
			)
		}
		return nil
	}
}

// postRuleConditionRule requires a condition code when the post rule
// assigns one, and requires it to name a declared condition.
func postRuleConditionRule(params core.Input) schema.FuncValidator {
	return func(_ context.Context) error {
		rawRule, ok := params["post_experiment_rule"]
		if !ok || rawRule == nil {
			return nil
		}
		rule, err := core.FromMap[upgrade.PostRuleParam](rawRule)
		if err != nil || rule.Rule != "assign" {
			return nil
		}
		if rule.ConditionCode == "" {
			return core.NewError(
				fmt.Errorf("post_experiment_rule.condition_code is required when the rule is %q", rule.Rule),
				core.CodeValidationFailed,
				map[string]any{"field": "post_experiment_rule.condition_code"},
			)
		}
		rawConditions, ok := params["conditions"]
		if !ok || rawConditions == nil {
			return nil
		}
		conditions, err := core.FromMap[[]upgrade.ConditionParam](rawConditions)
		if err != nil {
			return nil
		}
		for _, c := range conditions {
			if c.Code == rule.ConditionCode {
				return nil
			}
		}
		return core.NewError(
			fmt.Errorf("post rule condition %q is not one of the experiment's conditions",
				rule.ConditionCode),
			core.CodeValidationFailed,
			map[string]any{"field": "post_experiment_rule.condition_code"},
		)
	}
}
