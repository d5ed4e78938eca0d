package upgrade

import (
	"fmt"
	"math"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/google/uuid"
)

// Experiment defaults applied when the user does not specify a value.
const (
	defaultExperimentType     = "Simple"
	defaultAssignmentAlgo     = "random"
	defaultAssignmentUnit     = "individual"
	defaultConsistencyRule    = "individual"
	defaultFilterMode         = "excludeAll"
	defaultPostExperimentRule = "continue"
	filterModeIncludeAll      = "includeAll"
	segmentTypePrivate        = "private"
	segmentMemberAll          = "All"
)

// weightTolerance absorbs floating point drift when checking that condition
// weights sum to 100.
const weightTolerance = 0.01

// -----------------------------------------------------------------------------
// Simplified parameters
// -----------------------------------------------------------------------------

// ConditionParam is the simplified condition shape gathered from the
// conversation: a code plus its percentage weight.
type ConditionParam struct {
	Code   string  `json:"code"            mapstructure:"code"`
	Weight float64 `json:"weight"          mapstructure:"weight"`
	Name   string  `json:"name,omitempty"  mapstructure:"name"`
}

// DecisionPointParam is the simplified decision point shape: where in the
// app the experiment applies.
type DecisionPointParam struct {
	Site             string `json:"site"                mapstructure:"site"`
	Target           string `json:"target"              mapstructure:"target"`
	ExcludeIfReached bool   `json:"exclude_if_reached"  mapstructure:"exclude_if_reached"`
}

// SegmentGroupParam names a group for inclusion or exclusion lists.
type SegmentGroupParam struct {
	GroupID string `json:"group_id" mapstructure:"group_id"`
	Type    string `json:"type"     mapstructure:"type"`
}

// PostRuleParam describes what happens after enrollment completes.
type PostRuleParam struct {
	Rule          string `json:"rule"                     mapstructure:"rule"`
	ConditionCode string `json:"condition_code,omitempty" mapstructure:"condition_code"`
}

// ExperimentParams is the simplified experiment definition collected from
// the conversation before it is expanded into a full API payload.
type ExperimentParams struct {
	Name            string               `json:"name"             mapstructure:"name"`
	Description     string               `json:"description"      mapstructure:"description"`
	Context         string               `json:"context"          mapstructure:"context"`
	DecisionPoints  []DecisionPointParam `json:"decision_points"  mapstructure:"decision_points"`
	Conditions      []ConditionParam     `json:"conditions"       mapstructure:"conditions"`
	AssignmentUnit  string               `json:"assignment_unit"  mapstructure:"assignment_unit"`
	ConsistencyRule string               `json:"consistency_rule" mapstructure:"consistency_rule"`
	GroupType       string               `json:"group_type"       mapstructure:"group_type"`
	FilterMode      string               `json:"filter_mode"      mapstructure:"filter_mode"`
	Tags            []string             `json:"tags"             mapstructure:"tags"`
	PostRule        *PostRuleParam       `json:"post_experiment_rule" mapstructure:"post_experiment_rule"`
	InclusionUsers  []string             `json:"inclusion_users"  mapstructure:"inclusion_users"`
	InclusionGroups []SegmentGroupParam  `json:"inclusion_groups" mapstructure:"inclusion_groups"`
	ExclusionUsers  []string             `json:"exclusion_users"  mapstructure:"exclusion_users"`
	ExclusionGroups []SegmentGroupParam  `json:"exclusion_groups" mapstructure:"exclusion_groups"`
}

// DecodeExperimentParams converts gathered conversation parameters into the
// simplified experiment definition.
func DecodeExperimentParams(input core.Input) (*ExperimentParams, error) {
	params, err := core.FromMap[ExperimentParams](map[string]any(input))
	if err != nil {
		return nil, core.NewError(err, core.CodeValidationFailed, map[string]any{
			"reason": "experiment parameters have the wrong shape",
		})
	}
	return &params, nil
}

// -----------------------------------------------------------------------------
// Request building
// -----------------------------------------------------------------------------

// BuildExperimentRequest expands the simplified definition into the full
// API payload: generated condition and partition ids, ordered entries,
// private inclusion/exclusion segments and the post-rule revert target
// resolved from condition code to generated id.
func BuildExperimentRequest(params *ExperimentParams) (*ExperimentRequest, error) {
	if params.Name == "" {
		return nil, missingFieldError("name")
	}
	if params.Context == "" {
		return nil, missingFieldError("context")
	}
	if len(params.Conditions) == 0 {
		return nil, missingFieldError("conditions")
	}
	if len(params.DecisionPoints) == 0 {
		return nil, missingFieldError("decision_points")
	}
	if err := CheckConditionWeights(params.Conditions); err != nil {
		return nil, err
	}

	conditions, codeToID := buildConditions(params.Conditions)
	partitions := buildPartitions(params.DecisionPoints)

	filterMode := orDefault(params.FilterMode, defaultFilterMode)
	inclusion := buildSegment(params.InclusionUsers, params.InclusionGroups)
	if filterMode == filterModeIncludeAll {
		// includeAll means everyone participates: the platform expects the
		// sentinel {All, All} group and ignores individual inclusion lists.
		inclusion = buildSegment(nil, []SegmentGroupParam{
			{GroupID: segmentMemberAll, Type: segmentMemberAll},
		})
	}

	req := &ExperimentRequest{
		Name:                params.Name,
		Description:         params.Description,
		Type:                defaultExperimentType,
		Context:             []string{params.Context},
		AssignmentUnit:      orDefault(params.AssignmentUnit, defaultAssignmentUnit),
		ConsistencyRule:     orDefault(params.ConsistencyRule, defaultConsistencyRule),
		AssignmentAlgorithm: defaultAssignmentAlgo,
		Tags:                orEmpty(params.Tags),
		Conditions:          conditions,
		Partitions:          partitions,
		ExperimentSegmentInclusion: inclusion,
		ExperimentSegmentExclusion: buildSegment(
			params.ExclusionUsers, params.ExclusionGroups),
		FilterMode:         filterMode,
		Queries:            []any{},
		State:              StateInactive,
		PostExperimentRule: defaultPostExperimentRule,
	}

	if params.GroupType != "" {
		req.Group = &params.GroupType
	}
	if params.PostRule != nil && params.PostRule.Rule != "" {
		req.PostExperimentRule = params.PostRule.Rule
		if params.PostRule.Rule == "assign" {
			id, ok := codeToID[params.PostRule.ConditionCode]
			if !ok {
				return nil, core.NewError(
					fmt.Errorf("revert condition %q is not one of the experiment's conditions",
						params.PostRule.ConditionCode),
					core.CodeValidationFailed,
					map[string]any{"field": "post_experiment_rule.condition_code"},
				)
			}
			req.RevertTo = &id
		}
	}

	return req, nil
}

// CheckConditionWeights verifies that assignment weights sum to 100 within
// floating point tolerance.
func CheckConditionWeights(conditions []ConditionParam) error {
	total := 0.0
	for _, c := range conditions {
		total += c.Weight
	}
	if math.Abs(total-100.0) > weightTolerance {
		return core.NewError(
			fmt.Errorf("condition weights must sum to 100, got %g", total),
			core.CodeValidationFailed,
			map[string]any{"field": "conditions", "total_weight": total},
		)
	}
	return nil
}

// buildConditions expands simplified conditions into API conditions with
// generated ids and stable order, and returns the code-to-id mapping used
// to resolve the post-rule revert target.
func buildConditions(params []ConditionParam) ([]Condition, map[string]string) {
	codeToID := make(map[string]string, len(params))
	conditions := make([]Condition, 0, len(params))
	for i, p := range params {
		id := uuid.NewString()
		codeToID[p.Code] = id
		conditions = append(conditions, Condition{
			ID:               id,
			ConditionCode:    p.Code,
			AssignmentWeight: p.Weight,
			Name:             orDefault(p.Name, p.Code),
			Order:            i,
		})
	}
	return conditions, codeToID
}

func buildPartitions(params []DecisionPointParam) []Partition {
	partitions := make([]Partition, 0, len(params))
	for i, p := range params {
		partitions = append(partitions, Partition{
			ID:               uuid.NewString(),
			Site:             p.Site,
			Target:           p.Target,
			Order:            i,
			ExcludeIfReached: p.ExcludeIfReached,
		})
	}
	return partitions
}

func buildSegment(users []string, groups []SegmentGroupParam) *ExperimentSegment {
	individuals := make([]IndividualForSegment, 0, len(users))
	for _, u := range users {
		individuals = append(individuals, IndividualForSegment{UserID: u})
	}
	groupEntries := make([]GroupForSegment, 0, len(groups))
	for _, g := range groups {
		groupEntries = append(groupEntries, GroupForSegment{GroupID: g.GroupID, Type: g.Type})
	}
	return &ExperimentSegment{
		Segment: Segment{
			Type:                 segmentTypePrivate,
			IndividualForSegment: individuals,
			GroupForSegment:      groupEntries,
			SubSegments:          []any{},
		},
	}
}

func missingFieldError(field string) error {
	return core.NewError(
		fmt.Errorf("missing required parameter: %s", field),
		core.CodeValidationFailed,
		map[string]any{"field": field},
	)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func orEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// -----------------------------------------------------------------------------
// Flattening
// -----------------------------------------------------------------------------

// SimplifiedInput flattens a platform experiment back into the
// conversational parameter shape. Update requests replace the whole
// definition, so fields the user did not mention are backfilled from this.
func SimplifiedInput(exp *Experiment) core.Input {
	input := core.Input{
		"name":        exp.Name,
		"description": exp.Description,
	}
	if len(exp.Context) > 0 {
		input["context"] = exp.Context[0]
	}
	if exp.AssignmentUnit != "" {
		input["assignment_unit"] = exp.AssignmentUnit
	}
	if exp.ConsistencyRule != "" {
		input["consistency_rule"] = exp.ConsistencyRule
	}
	if exp.Group != nil && *exp.Group != "" {
		input["group_type"] = *exp.Group
	}
	if exp.FilterMode != "" {
		input["filter_mode"] = exp.FilterMode
	}
	if len(exp.Tags) > 0 {
		tags := make([]any, 0, len(exp.Tags))
		for _, tag := range exp.Tags {
			tags = append(tags, tag)
		}
		input["tags"] = tags
	}

	points := make([]any, 0, len(exp.Partitions))
	for _, p := range exp.Partitions {
		points = append(points, map[string]any{
			"site":               p.Site,
			"target":             p.Target,
			"exclude_if_reached": p.ExcludeIfReached,
		})
	}
	if len(points) > 0 {
		input["decision_points"] = points
	}

	idToCode := make(map[string]string, len(exp.Conditions))
	conditions := make([]any, 0, len(exp.Conditions))
	for _, c := range exp.Conditions {
		idToCode[c.ID] = c.ConditionCode
		conditions = append(conditions, map[string]any{
			"code":   c.ConditionCode,
			"weight": c.AssignmentWeight,
			"name":   c.Name,
		})
	}
	if len(conditions) > 0 {
		input["conditions"] = conditions
	}

	if exp.PostExperimentRule != "" {
		rule := map[string]any{"rule": exp.PostExperimentRule}
		if exp.RevertTo != nil {
			if code, ok := idToCode[*exp.RevertTo]; ok {
				rule["condition_code"] = code
			}
		}
		input["post_experiment_rule"] = rule
	}

	if users, groups := segmentMembers(exp.ExperimentSegmentInclusion); users != nil || groups != nil {
		input["inclusion_users"] = users
		input["inclusion_groups"] = groups
	}
	if users, groups := segmentMembers(exp.ExperimentSegmentExclusion); users != nil || groups != nil {
		input["exclusion_users"] = users
		input["exclusion_groups"] = groups
	}
	return input
}

func segmentMembers(segment *ExperimentSegment) ([]any, []any) {
	if segment == nil {
		return nil, nil
	}
	var users []any
	for _, individual := range segment.Segment.IndividualForSegment {
		users = append(users, individual.UserID)
	}
	var groups []any
	for _, group := range segment.Segment.GroupForSegment {
		groups = append(groups, map[string]any{
			"group_id": group.GroupID,
			"type":     group.Type,
		})
	}
	return users, groups
}
