package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reqline/internal/config"
	"reqline/internal/domain"
	"reqline/internal/events"
	"reqline/internal/graph"
)

// InitProject creates the project node, stores its config, and seeds the
// actors and use cases the config declares.
func (e Engine) InitProject(ctx context.Context, name, description string) (domain.Project, error) {
	cfg := e.Config
	if cfg == nil {
		cfg = config.Default(name)
	}
	if name == "" {
		name = cfg.Project.Name
	}
	if name == "" {
		return domain.Project{}, domain.BadRequestf("project name is required")
	}
	if description == "" {
		description = cfg.Project.Description
	}
	id := uuid.New().String()
	attrs := graph.Attrs{"name": name}
	if description != "" {
		attrs["description"] = description
	}
	if err := e.Store.CreateNode(ctx, graph.TypeProject, id, []string{graph.TypeProject}, attrs, nil); err != nil {
		return domain.Project{}, domain.Internalf("create project", err)
	}
	if err := e.UpsertProjectConfig(ctx, id, cfg); err != nil {
		return domain.Project{}, err
	}
	for _, a := range cfg.Seed.Actors {
		if _, err := e.CreateActor(ctx, ActorCreateOptions{ProjectID: id, Name: a.Name, Subtype: domain.ActorSubtype(a.Subtype)}); err != nil {
			return domain.Project{}, err
		}
	}
	for _, u := range cfg.Seed.UseCases {
		if _, err := e.CreateUseCase(ctx, UseCaseCreateOptions{ProjectID: id, Name: u.Name, Kind: domain.UseCaseKind(u.Kind)}); err != nil {
			return domain.Project{}, err
		}
	}
	e.audit(ctx, "project.init", id, "project", id, events.EventPayload{"name": name})
	return e.GetProject(ctx, id)
}

func (e Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	node, err := e.Store.FindByID(ctx, graph.TypeProject, id, nil)
	if err != nil {
		return domain.Project{}, domain.Internalf("load project", err)
	}
	if node == nil {
		return domain.Project{}, domain.NotFoundError{Entity: "Project", ID: id}
	}
	return projectFrom(node), nil
}

// SingleProject returns the workspace's only project, for commands that do
// not name one.
func (e Engine) SingleProject(ctx context.Context) (domain.Project, error) {
	nodes, err := e.Store.FindByType(ctx, graph.TypeProject, nil)
	if err != nil {
		return domain.Project{}, domain.Internalf("list projects", err)
	}
	if len(nodes) == 0 {
		return domain.Project{}, domain.NotFoundError{Entity: "Project", ID: ""}
	}
	if len(nodes) > 1 {
		return domain.Project{}, domain.BadRequestf("multiple projects exist; specify --project")
	}
	return projectFrom(nodes[0]), nil
}

func (e Engine) ListProjects(ctx context.Context) ([]domain.Project, error) {
	nodes, err := e.Store.FindByType(ctx, graph.TypeProject, nil)
	if err != nil {
		return nil, domain.Internalf("list projects", err)
	}
	res := make([]domain.Project, 0, len(nodes))
	for _, n := range nodes {
		res = append(res, projectFrom(n))
	}
	return res, nil
}

type ActorCreateOptions struct {
	ID        string
	ProjectID string
	Name      string
	Type      string
	Subtype   domain.ActorSubtype
}

func (e Engine) CreateActor(ctx context.Context, opts ActorCreateOptions) (domain.Actor, error) {
	if opts.Name == "" {
		return domain.Actor{}, domain.BadRequestf("actor name is required")
	}
	if opts.Subtype == "" {
		opts.Subtype = domain.SubtypeHuman
		if e.Config != nil && e.Config.Defaults.ActorSubtype != "" {
			opts.Subtype = domain.ActorSubtype(e.Config.Defaults.ActorSubtype)
		}
	}
	if !validSubtype(opts.Subtype) {
		return domain.Actor{}, domain.BadRequestf("unknown actor subtype %s", opts.Subtype)
	}
	ok, err := e.Store.NodeExists(ctx, graph.TypeProject, opts.ProjectID)
	if err != nil {
		return domain.Actor{}, domain.Internalf("check project", err)
	}
	if !ok {
		return domain.Actor{}, domain.NotFoundError{Entity: "Project", ID: opts.ProjectID}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	attrs := graph.Attrs{"name": opts.Name, "subtype": string(opts.Subtype)}
	if opts.Type != "" {
		attrs["type"] = opts.Type
	}
	initial := []graph.Edge{{Alias: graph.AliasOwnedBy, TargetID: opts.ProjectID}}
	if err := e.Store.CreateNode(ctx, graph.TypeActor, id, []string{graph.TypeActor}, attrs, initial); err != nil {
		return domain.Actor{}, domain.Internalf("create actor", err)
	}
	e.audit(ctx, "actor.create", opts.ProjectID, "actor", id, events.EventPayload{"name": opts.Name, "subtype": string(opts.Subtype)})
	return e.GetActor(ctx, id)
}

func (e Engine) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	node, err := e.Store.FindByID(ctx, graph.TypeActor, id, []graph.Alias{graph.AliasOwnedBy})
	if err != nil {
		return domain.Actor{}, domain.Internalf("load actor", err)
	}
	if node == nil {
		return domain.Actor{}, domain.NotFoundError{Entity: "Actor", ID: id}
	}
	return actorFrom(node), nil
}

func (e Engine) ListActors(ctx context.Context, projectID string) ([]domain.Actor, error) {
	nodes, err := e.Store.FindByRelated(ctx, graph.TypeActor, graph.AliasOwnedBy, projectID, []graph.Alias{graph.AliasOwnedBy})
	if err != nil {
		return nil, domain.Internalf("list actors", err)
	}
	res := make([]domain.Actor, 0, len(nodes))
	for _, n := range nodes {
		res = append(res, actorFrom(n))
	}
	return res, nil
}

type UseCaseCreateOptions struct {
	ID        string
	ProjectID string
	Name      string
	Kind      domain.UseCaseKind
}

func (e Engine) CreateUseCase(ctx context.Context, opts UseCaseCreateOptions) (domain.UseCase, error) {
	if opts.Name == "" {
		return domain.UseCase{}, domain.BadRequestf("use case name is required")
	}
	if opts.Kind == "" {
		opts.Kind = domain.UseCasePrimary
		if e.Config != nil && e.Config.Defaults.UseCaseKind != "" {
			opts.Kind = domain.UseCaseKind(e.Config.Defaults.UseCaseKind)
		}
	}
	if opts.Kind != domain.UseCasePrimary && opts.Kind != domain.UseCaseSecondary {
		return domain.UseCase{}, domain.BadRequestf("unknown use case kind %s", opts.Kind)
	}
	ok, err := e.Store.NodeExists(ctx, graph.TypeProject, opts.ProjectID)
	if err != nil {
		return domain.UseCase{}, domain.Internalf("check project", err)
	}
	if !ok {
		return domain.UseCase{}, domain.NotFoundError{Entity: "Project", ID: opts.ProjectID}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	attrs := graph.Attrs{"name": opts.Name, "kind": string(opts.Kind)}
	initial := []graph.Edge{{Alias: graph.AliasOwnedBy, TargetID: opts.ProjectID}}
	if err := e.Store.CreateNode(ctx, graph.TypeUseCase, id, []string{graph.TypeUseCase}, attrs, initial); err != nil {
		return domain.UseCase{}, domain.Internalf("create use case", err)
	}
	e.audit(ctx, "usecase.create", opts.ProjectID, "usecase", id, events.EventPayload{"name": opts.Name, "kind": string(opts.Kind)})
	return e.GetUseCase(ctx, id)
}

func (e Engine) GetUseCase(ctx context.Context, id string) (domain.UseCase, error) {
	node, err := e.Store.FindByID(ctx, graph.TypeUseCase, id, []graph.Alias{graph.AliasOwnedBy})
	if err != nil {
		return domain.UseCase{}, domain.Internalf("load use case", err)
	}
	if node == nil {
		return domain.UseCase{}, domain.NotFoundError{Entity: "UseCase", ID: id}
	}
	return useCaseFrom(node), nil
}

func (e Engine) ListUseCases(ctx context.Context, projectID string) ([]domain.UseCase, error) {
	nodes, err := e.Store.FindByRelated(ctx, graph.TypeUseCase, graph.AliasOwnedBy, projectID, []graph.Alias{graph.AliasOwnedBy})
	if err != nil {
		return nil, domain.Internalf("list use cases", err)
	}
	res := make([]domain.UseCase, 0, len(nodes))
	for _, n := range nodes {
		res = append(res, useCaseFrom(n))
	}
	return res, nil
}

// LatestEvents tails the audit log, newest first.
func (e Engine) LatestEvents(ctx context.Context, limit int, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if e.Events.DB == nil {
		return nil, nil
	}
	return e.Events.Latest(ctx, limit, projectID, evtType, entityKind, entityID)
}

func (e Engine) UpsertProjectConfig(ctx context.Context, projectID string, cfg *config.Config) error {
	if e.DB == nil {
		return nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal project config: %w", err)
	}
	now := e.now().UTC().Format(time.RFC3339)
	_, err = e.DB.ExecContext(ctx, `INSERT INTO project_configs(project_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`,
		projectID, string(data), now, now)
	if err != nil {
		return fmt.Errorf("upsert project config: %w", err)
	}
	return nil
}

func (e Engine) GetProjectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	if e.DB == nil {
		return nil, nil
	}
	var payload string
	err := e.DB.QueryRowContext(ctx, `SELECT config_json FROM project_configs WHERE project_id=?`, projectID).Scan(&payload)
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal project config: %w", err)
	}
	return &cfg, nil
}

func validSubtype(s domain.ActorSubtype) bool {
	for _, a := range domain.ActorSubtypes() {
		if a == s {
			return true
		}
	}
	return false
}

func projectFrom(n *graph.Node) domain.Project {
	return domain.Project{
		ID:        n.ID,
		Name:      n.Attrs["name"],
		CreatedAt: n.CreatedAt,
	}
}

func actorFrom(n *graph.Node) domain.Actor {
	return domain.Actor{
		ID:        n.ID,
		ProjectID: n.First(graph.AliasOwnedBy),
		Name:      n.Attrs["name"],
		Type:      n.Attrs["type"],
		Subtype:   domain.ActorSubtype(n.Attrs["subtype"]),
		CreatedAt: n.CreatedAt,
	}
}

func useCaseFrom(n *graph.Node) domain.UseCase {
	return domain.UseCase{
		ID:        n.ID,
		ProjectID: n.First(graph.AliasOwnedBy),
		Name:      n.Attrs["name"],
		Kind:      domain.UseCaseKind(n.Attrs["kind"]),
		CreatedAt: n.CreatedAt,
	}
}
