package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"reqline/internal/engine"
)

func registerRelations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "nest-requirement",
		Method:        http.MethodPost,
		Path:          "/requirements/{requirement_id}/nested",
		Summary:       "Nest a requirement under another",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequirementID string                 `path:"requirement_id"`
		Body          NestRequirementRequest `json:"body"`
	}) (*struct{}, error) {
		if err := e.AddNestedRequirement(ctx, input.RequirementID, input.Body.ChildID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "unnest-requirement",
		Method:        http.MethodDelete,
		Path:          "/requirements/{requirement_id}/nested/{child_id}",
		Summary:       "Remove a nesting link",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequirementID string `path:"requirement_id"`
		ChildID       string `path:"child_id"`
	}) (*struct{}, error) {
		if err := e.RemoveNestedRequirement(ctx, input.RequirementID, input.ChildID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "attach-exception",
		Method:        http.MethodPost,
		Path:          "/requirements/{requirement_id}/exceptions",
		Summary:       "Attach an exceptional requirement",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequirementID string                 `path:"requirement_id"`
		Body          AttachExceptionRequest `json:"body"`
	}) (*struct{}, error) {
		if err := e.AddException(ctx, input.RequirementID, input.Body.ExceptionalID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "detach-exception",
		Method:        http.MethodDelete,
		Path:          "/requirements/{requirement_id}/exceptions/{exceptional_id}",
		Summary:       "Detach an exceptional requirement",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequirementID string `path:"requirement_id"`
		ExceptionalID string `path:"exceptional_id"`
	}) (*struct{}, error) {
		if err := e.RemoveException(ctx, input.RequirementID, input.ExceptionalID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transfer-requirements",
		Method:      http.MethodPost,
		Path:        "/requirements/{requirement_id}/transfer",
		Summary:     "Move a container and its members to another use case",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequirementID string          `path:"requirement_id"`
		Body          TransferRequest `json:"body"`
	}) (*struct {
		Body TransferResponse `json:"body"`
	}, error) {
		moved, err := e.SetToSecondaryUseCase(ctx, input.RequirementID, input.Body.UseCaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TransferResponse `json:"body"`
		}{Body: TransferResponse{Moved: moved}}, nil
	})
}
