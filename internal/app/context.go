// Package app holds CLI-side wiring that is too opinionated for the engine:
// picking the active project and making sure it has a stored config.
package app

import (
	"context"
	"errors"
	"fmt"

	"reqline/internal/config"
	"reqline/internal/domain"
	"reqline/internal/engine"
)

// ResolveProjectAndConfig picks the active project and ensures a project and
// its config exist. It prefers the override, then the workspace's single
// project, and initializes a fresh project from the workspace config when
// none exists yet.
func ResolveProjectAndConfig(ctx context.Context, workspace, projectOverride string, e engine.Engine) (domain.Project, *config.Config, error) {
	if projectOverride != "" {
		p, err := e.GetProject(ctx, projectOverride)
		if err != nil {
			return domain.Project{}, nil, err
		}
		return p, loadConfigOr(ctx, e, p), nil
	}
	p, err := e.SingleProject(ctx)
	if err == nil {
		return p, loadConfigOr(ctx, e, p), nil
	}
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		return domain.Project{}, nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return domain.Project{}, nil, err
	}
	if cfg == nil {
		return domain.Project{}, nil, fmt.Errorf("no project in workspace; run rl project init")
	}
	seeded := e
	seeded.Config = cfg
	p, err = seeded.InitProject(ctx, cfg.Project.Name, cfg.Project.Description)
	if err != nil {
		return domain.Project{}, nil, err
	}
	return p, cfg, nil
}

// loadConfigOr returns the stored project config, or the default one when the
// row is missing or unreadable.
func loadConfigOr(ctx context.Context, e engine.Engine, p domain.Project) *config.Config {
	cfg, err := e.GetProjectConfig(ctx, p.ID)
	if err != nil || cfg == nil {
		return config.Default(p.Name)
	}
	return cfg
}
