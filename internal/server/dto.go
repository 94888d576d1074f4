package server

import (
	"strings"

	"reqline/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type CreateActorRequest struct {
	ID        *string `json:"id,omitempty"`
	ProjectID string  `json:"project_id,omitempty"`
	Name      string  `json:"name"`
	Type      string  `json:"type,omitempty"`
	Subtype   string  `json:"subtype,omitempty" enum:"HUMAN,SOFTWARE,HARDWARE,AI_AGENT,EVENT"`
}

type CreateUseCaseRequest struct {
	ID        *string `json:"id,omitempty"`
	ProjectID string  `json:"project_id,omitempty"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind,omitempty" enum:"PRIMARY,SECONDARY"`
}

// CreateRequirementRequest is the shared create payload; the variant comes
// from the request path and decides which fields are read.
type CreateRequirementRequest struct {
	ID        *string `json:"id,omitempty"`
	ProjectID string  `json:"project_id,omitempty"`
	UseCaseID string  `json:"use_case_id"`
	Depth     int     `json:"depth,omitempty"`

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

	ParentRequirementID *string `json:"parent_requirement_id,omitempty"`
	ExceptionID         *string `json:"exception_id,omitempty"`
}

func (r CreateRequirementRequest) toDomain(variant domain.Variant) domain.Requirement {
	req := domain.Requirement{
		Variant:   variant,
		UseCaseID: r.UseCaseID,
		Depth:     r.Depth,

		Operation:             r.Operation,
		Condition:             r.Condition,
		ConditionalValue:      r.ConditionalValue,
		Exception:             r.Exception,
		CommunicationInfo:     r.CommunicationInfo,
		CommunicationFacility: r.CommunicationFacility,

		ActorIDs:                r.ActorIDs,
		RequirementID:           r.RequirementID,
		ReferencedUseCaseID:     r.ReferencedUseCaseID,
		MainRequirementID:       r.MainRequirementID,
		DetailRequirementIDs:    r.DetailRequirementIDs,
		PrimaryConditionID:      r.PrimaryConditionID,
		AlternativeConditionIDs: r.AlternativeConditionIDs,
		FallbackConditionID:     r.FallbackConditionID,
		SimpleRequirementIDs:    r.SimpleRequirementIDs,
		HandledRequirementIDs:   r.HandledRequirementIDs,
	}
	if r.ID != nil {
		req.ID = *r.ID
	}
	return req
}

// UpdateRequirementRequest mirrors the patch semantics: absent fields stay
// untouched, supplied lists replace the stored edge set.
type UpdateRequirementRequest struct {
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

func (r UpdateRequirementRequest) toPatch() domain.RequirementPatch {
	return domain.RequirementPatch{
		Operation:             r.Operation,
		Condition:             r.Condition,
		ConditionalValue:      r.ConditionalValue,
		Exception:             r.Exception,
		CommunicationInfo:     r.CommunicationInfo,
		CommunicationFacility: r.CommunicationFacility,
		Depth:                 r.Depth,

		ActorIDs:                r.ActorIDs,
		RequirementID:           r.RequirementID,
		ReferencedUseCaseID:     r.ReferencedUseCaseID,
		MainRequirementID:       r.MainRequirementID,
		DetailRequirementIDs:    r.DetailRequirementIDs,
		PrimaryConditionID:      r.PrimaryConditionID,
		AlternativeConditionIDs: r.AlternativeConditionIDs,
		FallbackConditionID:     r.FallbackConditionID,
		SimpleRequirementIDs:    r.SimpleRequirementIDs,
		HandledRequirementIDs:   r.HandledRequirementIDs,
	}
}

type NestRequirementRequest struct {
	ChildID string `json:"child_id"`
}

type AttachExceptionRequest struct {
	ExceptionalID string `json:"exceptional_id"`
}

type TransferRequest struct {
	UseCaseID string `json:"use_case_id"`
}

type ValidateDependencyRequest struct {
	Variant  string `json:"variant"`
	TargetID string `json:"target_id"`
}

type ValidateDependencyResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type TransferResponse struct {
	Moved int `json:"moved"`
}

type DeleteResponse struct {
	Removed bool `json:"removed"`
}

// variantPath maps a variant to its URL segment.
func variantPath(v domain.Variant) string {
	return strings.ReplaceAll(string(v), "_", "-")
}
