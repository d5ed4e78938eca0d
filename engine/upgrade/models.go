package upgrade

// -----------------------------------------------------------------------------
// System
// -----------------------------------------------------------------------------

// HealthInfo is the response of the unauthenticated root endpoint.
type HealthInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// ContextMetadataItem enumerates the values a single app context accepts.
// The upstream API uses upper-snake keys for these fields.
type ContextMetadataItem struct {
	Conditions []string `json:"CONDITIONS,omitempty"`
	GroupTypes []string `json:"GROUP_TYPES,omitempty"`
	ExpIDs     []string `json:"EXP_IDS,omitempty"`
	ExpPoints  []string `json:"EXP_POINTS,omitempty"`
}

// ContextMetadata maps app context names to their accepted values.
type ContextMetadata struct {
	Contexts map[string]ContextMetadataItem `json:"contextMetadata"`
}

// ExperimentName is the id/name pair returned by the names listing.
type ExperimentName struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// -----------------------------------------------------------------------------
// Experiment structure
// -----------------------------------------------------------------------------

// Condition is one arm of an experiment. AssignmentWeight is a percentage;
// weights across an experiment must sum to 100.
type Condition struct {
	ID               string  `json:"id,omitempty"`
	TwoCharacterID   *string `json:"twoCharacterId"`
	Name             string  `json:"name,omitempty"`
	Description      *string `json:"description"`
	ConditionCode    string  `json:"conditionCode"`
	AssignmentWeight float64 `json:"assignmentWeight"`
	Order            int     `json:"order"`
	ExperimentID     string  `json:"experimentId,omitempty"`
}

// Partition is a decision point: the site/target pair where an app asks
// for a condition.
type Partition struct {
	ID               string  `json:"id,omitempty"`
	TwoCharacterID   *string `json:"twoCharacterId"`
	Site             string  `json:"site"`
	Target           string  `json:"target,omitempty"`
	Description      *string `json:"description"`
	Order            int     `json:"order"`
	ExcludeIfReached bool    `json:"excludeIfReached"`
	ExperimentID     string  `json:"experimentId,omitempty"`
}

// IndividualForSegment lists a single user inside a segment.
type IndividualForSegment struct {
	UserID string `json:"userId"`
}

// GroupForSegment lists a group (by type and id) inside a segment.
type GroupForSegment struct {
	GroupID string `json:"groupId"`
	Type    string `json:"type"`
}

// Segment holds the members of an inclusion or exclusion list. The slices
// must serialize even when empty, so they are never nil in requests.
type Segment struct {
	ID                   string                 `json:"id,omitempty"`
	Name                 string                 `json:"name,omitempty"`
	Context              string                 `json:"context,omitempty"`
	Type                 string                 `json:"type"`
	IndividualForSegment []IndividualForSegment `json:"individualForSegment"`
	GroupForSegment      []GroupForSegment      `json:"groupForSegment"`
	SubSegments          []any                  `json:"subSegments"`
}

// ExperimentSegment wraps a segment for the inclusion/exclusion slots of an
// experiment payload.
type ExperimentSegment struct {
	SegmentID    string  `json:"segmentId,omitempty"`
	ExperimentID string  `json:"experimentId,omitempty"`
	Segment      Segment `json:"segment"`
}

// -----------------------------------------------------------------------------
// Experiment payloads
// -----------------------------------------------------------------------------

// ExperimentRequest is the write payload for creating or replacing an
// experiment. Zero-value slices are kept non-nil so the API receives
// explicit empty arrays.
type ExperimentRequest struct {
	Name                       string             `json:"name"`
	Description                string             `json:"description"`
	Type                       string             `json:"type"`
	Context                    []string           `json:"context"`
	AssignmentUnit             string             `json:"assignmentUnit"`
	ConsistencyRule            string             `json:"consistencyRule"`
	AssignmentAlgorithm        string             `json:"assignmentAlgorithm"`
	Group                      *string            `json:"group,omitempty"`
	Tags                       []string           `json:"tags"`
	Conditions                 []Condition        `json:"conditions"`
	Partitions                 []Partition        `json:"partitions"`
	ExperimentSegmentInclusion *ExperimentSegment `json:"experimentSegmentInclusion,omitempty"`
	ExperimentSegmentExclusion *ExperimentSegment `json:"experimentSegmentExclusion,omitempty"`
	FilterMode                 string             `json:"filterMode"`
	Queries                    []any              `json:"queries"`
	State                      ExperimentState    `json:"state"`
	PostExperimentRule         string             `json:"postExperimentRule"`
	RevertTo                   *string            `json:"revertTo,omitempty"`
}

// Experiment is the read model returned by the experiment endpoints. Fields
// the server may omit stay pointers or nilable slices.
type Experiment struct {
	ID                         string             `json:"id,omitempty"`
	Name                       string             `json:"name"`
	Description                string             `json:"description,omitempty"`
	Type                       string             `json:"type,omitempty"`
	Context                    []string           `json:"context"`
	AssignmentUnit             string             `json:"assignmentUnit,omitempty"`
	ConsistencyRule            string             `json:"consistencyRule,omitempty"`
	AssignmentAlgorithm        string             `json:"assignmentAlgorithm,omitempty"`
	Group                      *string            `json:"group,omitempty"`
	Tags                       []string           `json:"tags,omitempty"`
	State                      ExperimentState    `json:"state"`
	PostExperimentRule         string             `json:"postExperimentRule,omitempty"`
	RevertTo                   *string            `json:"revertTo,omitempty"`
	FilterMode                 string             `json:"filterMode,omitempty"`
	Conditions                 []Condition        `json:"conditions,omitempty"`
	Partitions                 []Partition        `json:"partitions,omitempty"`
	ExperimentSegmentInclusion *ExperimentSegment `json:"experimentSegmentInclusion,omitempty"`
	ExperimentSegmentExclusion *ExperimentSegment `json:"experimentSegmentExclusion,omitempty"`
	CreatedAt                  string             `json:"createdAt,omitempty"`
	UpdatedAt                  string             `json:"updatedAt,omitempty"`
	VersionNumber              int                `json:"versionNumber,omitempty"`
	BackendVersion             string             `json:"backendVersion,omitempty"`
}

// StateUpdateRequest moves an experiment to a new lifecycle state.
type StateUpdateRequest struct {
	ExperimentID string          `json:"experimentId"`
	State        ExperimentState `json:"state"`
}

// -----------------------------------------------------------------------------
// User simulation payloads
// -----------------------------------------------------------------------------

// InitRequest registers a user's group memberships. The user id itself
// travels in the User-Id header, not the body.
type InitRequest struct {
	Group        map[string][]string `json:"group,omitempty"        mapstructure:"group"`
	WorkingGroup map[string]string   `json:"workingGroup,omitempty" mapstructure:"working_group"`
}

// InitResponse echoes the registered user.
type InitResponse struct {
	ID           string              `json:"id"`
	Group        map[string][]string `json:"group,omitempty"`
	WorkingGroup map[string]string   `json:"workingGroup,omitempty"`
}

// AssignRequest asks for condition assignments within one app context.
type AssignRequest struct {
	Context string `json:"context"`
}

// AssignedCondition is a condition handed to a user at a decision point.
// The mapstructure tags cover the simplified underscore keys used when the
// condition is gathered from conversation rather than returned by the API.
type AssignedCondition struct {
	ID            string         `json:"id"                     mapstructure:"id"`
	ConditionCode string         `json:"conditionCode"          mapstructure:"condition_code"`
	Payload       map[string]any `json:"payload,omitempty"      mapstructure:"payload"`
	ExperimentID  string         `json:"experimentId,omitempty" mapstructure:"experiment_id"`
}

// AssignmentResult is one decision point's assignment for a user. The
// assign endpoint returns a bare array of these.
type AssignmentResult struct {
	Site              string              `json:"site"`
	Target            string              `json:"target"`
	ExperimentType    string              `json:"experimentType,omitempty"`
	AssignedCondition []AssignedCondition `json:"assignedCondition,omitempty"`
}

// Mark statuses accepted by the mark endpoint.
const (
	MarkStatusApplied    = "condition applied"
	MarkStatusNotApplied = "condition not applied"
	MarkStatusNoneGiven  = "no condition assigned"
)

// MarkData describes the visited decision point and, when known, the
// condition that was applied there.
type MarkData struct {
	Site              string             `json:"site"`
	Target            string             `json:"target"`
	AssignedCondition *AssignedCondition `json:"assignedCondition,omitempty"`
}

// MarkRequest records a decision point visit.
type MarkRequest struct {
	Data   MarkData `json:"data"`
	Status string   `json:"status"`
}

// MarkResponse confirms a recorded visit.
type MarkResponse struct {
	ID           string `json:"id"`
	Condition    string `json:"condition,omitempty"`
	UserID       string `json:"userId"`
	Site         string `json:"site"`
	Target       string `json:"target"`
	ExperimentID string `json:"experimentId,omitempty"`
}
