package domain

// RequirementPatch carries a partial update. Nil pointers and nil slices mean
// "unchanged"; supplied slices replace the existing edge set for that alias.
type RequirementPatch struct {
	Operation             *string `json:"operation,omitempty"`
	Condition             *string `json:"condition,omitempty"`
	ConditionalValue      *string `json:"conditional_value,omitempty"`
	Exception             *string `json:"exception,omitempty"`
	CommunicationInfo     *string `json:"communication_info,omitempty"`
	CommunicationFacility *string `json:"communication_facility,omitempty"`
	Depth                 *int    `json:"depth,omitempty"`

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
}

// Empty reports whether the patch changes nothing.
func (p RequirementPatch) Empty() bool {
	return p.Operation == nil && p.Condition == nil && p.ConditionalValue == nil &&
		p.Exception == nil && p.CommunicationInfo == nil && p.CommunicationFacility == nil &&
		p.Depth == nil && p.ActorIDs == nil && p.RequirementID == nil &&
		p.ReferencedUseCaseID == nil && p.MainRequirementID == nil &&
		p.DetailRequirementIDs == nil && p.PrimaryConditionID == nil &&
		p.AlternativeConditionIDs == nil && p.FallbackConditionID == nil &&
		p.SimpleRequirementIDs == nil && p.HandledRequirementIDs == nil
}
