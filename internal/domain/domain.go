package domain

// Variant identifies one of the eleven concrete requirement kinds.
type Variant string

const (
	VariantSystem                   Variant = "system"
	VariantEventSystem              Variant = "event_system"
	VariantActor                    Variant = "actor"
	VariantSystemActorCommunication Variant = "system_actor_communication"
	VariantConditional              Variant = "conditional"
	VariantRecursive                Variant = "recursive"
	VariantUseCaseReference         Variant = "use_case_reference"
	VariantLogicalGroup             Variant = "logical_group"
	VariantConditionalGroup         Variant = "conditional_group"
	VariantSimultaneous             Variant = "simultaneous"
	VariantExceptional              Variant = "exceptional"
)

// ActorSubtype classifies the participant behind an actor node.
type ActorSubtype string

const (
	SubtypeHuman    ActorSubtype = "HUMAN"
	SubtypeSoftware ActorSubtype = "SOFTWARE"
	SubtypeHardware ActorSubtype = "HARDWARE"
	SubtypeAIAgent  ActorSubtype = "AI_AGENT"
	SubtypeEvent    ActorSubtype = "EVENT"
)

// UseCaseKind distinguishes primary flows from secondary (exception) flows.
type UseCaseKind string

const (
	UseCasePrimary   UseCaseKind = "PRIMARY"
	UseCaseSecondary UseCaseKind = "SECONDARY"
)

type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Actor struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"project_id"`
	Name      string       `json:"name"`
	Type      string       `json:"type"`
	Subtype   ActorSubtype `json:"subtype" enum:"HUMAN,SOFTWARE,HARDWARE,AI_AGENT,EVENT"`
	CreatedAt string       `json:"created_at" format:"date-time"`
}

type UseCase struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"project_id"`
	Name      string      `json:"name"`
	Kind      UseCaseKind `json:"kind" enum:"PRIMARY,SECONDARY"`
	CreatedAt string      `json:"created_at" format:"date-time"`
}

// Event is one audit log row.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

// Requirement is the hydrated view of one requirement node. The Variant tag is
// resolved once from the node's most-specific label when the node is read; all
// variants share this struct and unused payload fields stay zero.
type Requirement struct {
	ID        string  `json:"id"`
	Variant   Variant `json:"variant"`
	UseCaseID string  `json:"use_case_id"`
	Depth     int     `json:"depth"`

	Operation             string `json:"operation,omitempty"`
	Condition             string `json:"condition,omitempty"`
	ConditionalValue      string `json:"conditional_value,omitempty"`
	Exception             string `json:"exception,omitempty"`
	CommunicationInfo     string `json:"communication_info,omitempty"`
	CommunicationFacility string `json:"communication_facility,omitempty"`

	ActorIDs                []string `json:"actor_ids,omitempty"`
	RequirementID           *string  `json:"requirement_id,omitempty"`
	ReferencedUseCaseID     *string  `json:"referenced_use_case_id,omitempty"`
	MainRequirementID       *string  `json:"main_requirement_id,omitempty"`
	DetailRequirementIDs    []string `json:"detail_requirement_ids,omitempty"`
	PrimaryConditionID      *string  `json:"primary_condition_id,omitempty"`
	AlternativeConditionIDs []string `json:"alternative_condition_ids,omitempty"`
	FallbackConditionID     *string  `json:"fallback_condition_id,omitempty"`
	SimpleRequirementIDs    []string `json:"simple_requirement_ids,omitempty"`
	HandledRequirementIDs   []string `json:"handled_requirement_ids,omitempty"`

	NestedRequirementIDs []string `json:"nested_requirement_ids,omitempty"`
	ExceptionIDs         []string `json:"exception_ids,omitempty"`

	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at,omitempty" format:"date-time"`
}

// Variants lists every registered requirement kind in declaration order.
func Variants() []Variant {
	return []Variant{
		VariantSystem,
		VariantEventSystem,
		VariantActor,
		VariantSystemActorCommunication,
		VariantConditional,
		VariantRecursive,
		VariantUseCaseReference,
		VariantLogicalGroup,
		VariantConditionalGroup,
		VariantSimultaneous,
		VariantExceptional,
	}
}

// ActorSubtypes lists every valid actor subtype.
func ActorSubtypes() []ActorSubtype {
	return []ActorSubtype{SubtypeHuman, SubtypeSoftware, SubtypeHardware, SubtypeAIAgent, SubtypeEvent}
}
