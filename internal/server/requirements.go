package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"reqline/internal/domain"
	"reqline/internal/engine"
)

func registerRequirements(api huma.API, e engine.Engine) {
	for _, variant := range domain.Variants() {
		registerCreateRequirement(api, e, variant)
		registerUpdateRequirement(api, e, variant)
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-requirement",
		Method:      http.MethodGet,
		Path:        "/requirements/{requirement_id}",
		Summary:     "Get requirement",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequirementID string `path:"requirement_id"`
	}) (*struct {
		Body domain.Requirement `json:"body"`
	}, error) {
		req, err := e.GetRequirement(ctx, input.RequirementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Requirement `json:"body"`
		}{Body: *req}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requirements-by-usecase",
		Method:      http.MethodGet,
		Path:        "/usecases/{use_case_id}/requirements",
		Summary:     "List requirements of a use case",
	}, func(ctx context.Context, input *struct {
		UseCaseID string `path:"use_case_id"`
	}) (*struct {
		Body []domain.Requirement `json:"body"`
	}, error) {
		items, err := e.RequirementsByUseCase(ctx, input.UseCaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Requirement `json:"body"`
		}{Body: derefAll(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requirements-by-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/requirements",
		Summary:     "List requirements of a project",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.Requirement `json:"body"`
	}, error) {
		items, err := e.RequirementsByProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Requirement `json:"body"`
		}{Body: derefAll(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-requirement",
		Method:      http.MethodDelete,
		Path:        "/requirements/{requirement_id}",
		Summary:     "Delete requirement and its owned subtree",
	}, func(ctx context.Context, input *struct {
		RequirementID string `path:"requirement_id"`
	}) (*struct {
		Body DeleteResponse `json:"body"`
	}, error) {
		removed, err := e.RemoveRequirement(ctx, input.RequirementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeleteResponse `json:"body"`
		}{Body: DeleteResponse{Removed: removed}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-requirement-dependency",
		Method:      http.MethodPost,
		Path:        "/requirements/validate-dependency",
		Summary:     "Check whether a variant may reference a requirement",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body ValidateDependencyRequest `json:"body"`
	}) (*struct {
		Body ValidateDependencyResponse `json:"body"`
	}, error) {
		err := e.ValidateRequirementDependency(ctx, domain.Variant(input.Body.Variant), input.Body.TargetID)
		if err != nil {
			var br domain.BadRequestError
			if errors.As(err, &br) {
				return &struct {
					Body ValidateDependencyResponse `json:"body"`
				}{Body: ValidateDependencyResponse{Allowed: false, Reason: br.Reason}}, nil
			}
			return nil, handleError(err)
		}
		return &struct {
			Body ValidateDependencyResponse `json:"body"`
		}{Body: ValidateDependencyResponse{Allowed: true}}, nil
	})
}

func registerCreateRequirement(api huma.API, e engine.Engine, variant domain.Variant) {
	segment := variantPath(variant)
	huma.Register(api, huma.Operation{
		OperationID:   "create-" + segment + "-requirement",
		Method:        http.MethodPost,
		Path:          "/requirements/" + segment,
		Summary:       "Create " + strings.ReplaceAll(string(variant), "_", " ") + " requirement",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateRequirementRequest `json:"body"`
	}) (*struct {
		Body domain.Requirement `json:"body"`
	}, error) {
		projectID, err := resolveProject(ctx, e, input.Body.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		opts := engine.CreateRequirementOptions{
			ProjectID:   projectID,
			Requirement: input.Body.toDomain(variant),
		}
		if input.Body.ParentRequirementID != nil {
			opts.ParentRequirementID = *input.Body.ParentRequirementID
		}
		if input.Body.ExceptionID != nil {
			opts.ExceptionID = *input.Body.ExceptionID
		}
		created, err := e.CreateRequirement(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Requirement `json:"body"`
		}{Body: *created}, nil
	})
}

func registerUpdateRequirement(api huma.API, e engine.Engine, variant domain.Variant) {
	segment := variantPath(variant)
	huma.Register(api, huma.Operation{
		OperationID: "update-" + segment + "-requirement",
		Method:      http.MethodPatch,
		Path:        "/requirements/" + segment + "/{requirement_id}",
		Summary:     "Update " + strings.ReplaceAll(string(variant), "_", " ") + " requirement",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		RequirementID string                   `path:"requirement_id"`
		Body          UpdateRequirementRequest `json:"body"`
	}) (*struct {
		Body domain.Requirement `json:"body"`
	}, error) {
		existing, err := e.GetRequirement(ctx, input.RequirementID)
		if err != nil {
			return nil, handleError(err)
		}
		if existing.Variant != variant {
			return nil, newAPIError(http.StatusBadRequest, "bad_request",
				"requirement "+input.RequirementID+" is a "+strings.ReplaceAll(string(existing.Variant), "_", " ")+" requirement", nil)
		}
		updated, err := e.UpdateRequirement(ctx, input.RequirementID, input.Body.toPatch())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Requirement `json:"body"`
		}{Body: *updated}, nil
	})
}

func derefAll(items []*domain.Requirement) []domain.Requirement {
	res := make([]domain.Requirement, 0, len(items))
	for _, item := range items {
		res = append(res, *item)
	}
	return res
}
