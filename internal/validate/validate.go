// Package validate decides accept/reject for every mutating requirement
// operation before any write occurs. All checks read the live graph through
// the Store interface only, so they can run against the in-memory store in
// tests and never leave partial state behind on rejection.
package validate

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"reqline/internal/domain"
	"reqline/internal/graph"
	"reqline/internal/registry"
)

type Engine struct {
	Store graph.Store
}

func New(store graph.Store) Engine {
	return Engine{Store: store}
}

// CommonParams checks the owning use case and project exist and the
// caller-supplied depth is sane. Depth is an explicit input, never derived.
func (e Engine) CommonParams(ctx context.Context, useCaseID, projectID string, depth int) error {
	if depth < 0 {
		return domain.BadRequestf("depth must be a non-negative integer, got %d", depth)
	}
	ok, err := e.Store.NodeExists(ctx, graph.TypeUseCase, useCaseID)
	if err != nil {
		return domain.Internalf("check use case", err)
	}
	if !ok {
		return domain.NotFoundError{Entity: "UseCase", ID: useCaseID}
	}
	ok, err = e.Store.NodeExists(ctx, graph.TypeProject, projectID)
	if err != nil {
		return domain.Internalf("check project", err)
	}
	if !ok {
		return domain.NotFoundError{Entity: "Project", ID: projectID}
	}
	return nil
}

// TypeSpecificParams dispatches on the candidate's variant: attribute
// constraints first, then existence and label-lattice checks for every
// referenced id. All references are checked before the caller writes anything.
func (e Engine) TypeSpecificParams(ctx context.Context, req *domain.Requirement) error {
	schema, err := registry.Describe(req.Variant)
	if err != nil {
		return err
	}
	for _, rule := range schema.Attributes {
		if err := checkAttribute(rule, attrValue(req, rule.Name)); err != nil {
			return err
		}
	}
	for _, rule := range schema.Edges {
		if err := e.checkEdge(ctx, req.Variant, req.ID, rule, edgeTargets(req, rule.Alias)); err != nil {
			return err
		}
	}
	return nil
}

// PatchParams validates only the fields and edge sets a partial update
// supplies; untouched attributes and edges are not re-checked.
func (e Engine) PatchParams(ctx context.Context, variant domain.Variant, id string, patch domain.RequirementPatch) error {
	schema, err := registry.Describe(variant)
	if err != nil {
		return err
	}
	if patch.Depth != nil && *patch.Depth < 0 {
		return domain.BadRequestf("depth must be a non-negative integer, got %d", *patch.Depth)
	}
	for _, rule := range schema.Attributes {
		if v := patchAttr(patch, rule.Name); v != nil {
			if err := checkAttribute(rule, *v); err != nil {
				return err
			}
		}
	}
	for _, rule := range schema.Edges {
		if targets, supplied := patchTargets(patch, rule.Alias); supplied {
			if err := e.checkEdge(ctx, variant, id, rule, targets); err != nil {
				return err
			}
		}
	}
	return nil
}

// ActorIDs requires every id to resolve to an existing actor whose subtype is
// in the allowed set.
func (e Engine) ActorIDs(ctx context.Context, ids []string, allowed []domain.ActorSubtype) error {
	for _, id := range ids {
		node, err := e.Store.FindByID(ctx, graph.TypeActor, id, nil)
		if err != nil {
			return domain.Internalf("load actor", err)
		}
		if node == nil {
			return domain.NotFoundError{Entity: "Actor", ID: id}
		}
		subtype := domain.ActorSubtype(node.Attrs["subtype"])
		if len(allowed) > 0 && !subtypeAllowed(subtype, allowed) {
			return domain.SubtypeMismatch(id, subtype, allowed)
		}
	}
	return nil
}

// RequirementID is an existence-only check.
func (e Engine) RequirementID(ctx context.Context, id string) error {
	ok, err := e.Store.NodeExists(ctx, graph.TypeRequirement, id)
	if err != nil {
		return domain.Internalf("check requirement", err)
	}
	if !ok {
		return domain.NotFoundError{Entity: "Requirement", ID: id}
	}
	return nil
}

// referenceAliases are the requirement-to-requirement edges a reference
// cycle can travel: containment (NESTED, HANDLES) plus every schema-declared
// requirement reference. EXCEPTION_AT is an attachment, not a reference, and
// is excluded.
var referenceAliases = []graph.Alias{
	graph.AliasNested,
	graph.AliasHandles,
	graph.AliasRequirement,
	graph.AliasMain,
	graph.AliasDetails,
	graph.AliasPrimaryCondition,
	graph.AliasAlternatives,
	graph.AliasFallback,
	graph.AliasSimpleParts,
}

// CreatesCycle reports whether sourceID is reachable from targetID over
// reference edges, that is, whether adding an edge source -> target would
// close a cycle.
func (e Engine) CreatesCycle(ctx context.Context, sourceID, targetID string) (bool, error) {
	if sourceID == "" || targetID == "" {
		return false, nil
	}
	seen := map[string]bool{}
	stack := []string{targetID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == sourceID {
			return true, nil
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		node, err := e.Store.FindByID(ctx, graph.TypeRequirement, id, referenceAliases)
		if err != nil {
			return false, domain.Internalf("walk references", err)
		}
		if node == nil {
			continue
		}
		for _, alias := range referenceAliases {
			stack = append(stack, node.Out[alias]...)
		}
	}
	return false, nil
}

// ReferenceAllowed reports whether a node of sourceVariant may reference
// targetID through the given alias, using the registry's disallowed-target
// table and the target's most-specific stored label. Exposed for pre-flight
// checks; the same logic runs inside TypeSpecificParams.
func (e Engine) ReferenceAllowed(ctx context.Context, sourceVariant domain.Variant, alias graph.Alias, targetID string) error {
	schema, err := registry.Describe(sourceVariant)
	if err != nil {
		return err
	}
	rule, ok := schema.Edge(alias)
	if !ok || rule.TargetType != graph.TypeRequirement {
		return nil
	}
	return e.checkRequirementTarget(ctx, sourceVariant, "", rule, 0, targetID)
}

func (e Engine) checkEdge(ctx context.Context, sourceVariant domain.Variant, selfID string, rule registry.EdgeRule, targets []string) error {
	noun := edgeNoun(rule.Alias)
	switch rule.Cardinality {
	case registry.One:
		if len(targets) == 0 {
			if rule.Required {
				return domain.BadRequestf("a %s is required", noun)
			}
			return nil
		}
		if len(targets) > 1 {
			return domain.BadRequestf("exactly one %s is allowed", noun)
		}
	case registry.Many:
		min := rule.MinCount
		if rule.Required && min < 1 {
			min = 1
		}
		if len(targets) < min {
			if min == 1 {
				return domain.BadRequestf("at least one %s is required", noun)
			}
			return domain.BadRequestf("at least %d %ss are required", min, noun)
		}
	}
	switch rule.TargetType {
	case graph.TypeActor:
		return e.ActorIDs(ctx, targets, rule.ActorSubtypes)
	case graph.TypeUseCase:
		for _, id := range targets {
			ok, err := e.Store.NodeExists(ctx, graph.TypeUseCase, id)
			if err != nil {
				return domain.Internalf("check use case", err)
			}
			if !ok {
				return domain.NotFoundError{Entity: "UseCase", ID: id}
			}
		}
	case graph.TypeRequirement:
		for i, id := range targets {
			if err := e.checkRequirementTarget(ctx, sourceVariant, selfID, rule, i, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e Engine) checkRequirementTarget(ctx context.Context, sourceVariant domain.Variant, selfID string, rule registry.EdgeRule, position int, targetID string) error {
	if selfID != "" && targetID == selfID {
		name := variantName(sourceVariant)
		return domain.BadRequestf("%s %s requirement may not reference itself", article(name), name)
	}
	ok, err := e.Store.NodeExists(ctx, graph.TypeRequirement, targetID)
	if err != nil {
		return domain.Internalf("check requirement", err)
	}
	if !ok {
		return domain.NotFoundError{Entity: "Requirement", ID: targetID}
	}
	labels, err := e.Store.LabelsOf(ctx, targetID)
	if err != nil {
		return domain.Internalf("read labels", err)
	}
	targetVariant, err := registry.VariantOf(labels)
	if err != nil {
		return err
	}
	if rule.SimpleOnly && !registry.IsSimple(targetVariant) {
		return domain.BadRequestf("%s must be a simple requirement, but %s is a %s requirement",
			edgeNoun(rule.Alias), targetID, variantName(targetVariant))
	}
	for _, d := range rule.Disallowed {
		if d == targetVariant {
			source, target := variantName(sourceVariant), variantName(targetVariant)
			return domain.BadRequestf("%s %s requirement may not reference %s %s requirement as %s",
				article(source), source, article(target), target, edgeNoun(rule.Alias))
		}
	}
	if position == 0 {
		for _, d := range rule.FirstDisallowed {
			if d == targetVariant {
				target := variantName(targetVariant)
				return domain.BadRequestf("the first %s may not be %s %s requirement",
					edgeNoun(rule.Alias), article(target), target)
			}
		}
	}
	cyclic, err := e.CreatesCycle(ctx, selfID, targetID)
	if err != nil {
		return err
	}
	if cyclic {
		return domain.BadRequestf("%s %s would create a reference cycle", edgeNoun(rule.Alias), targetID)
	}
	return nil
}

func checkAttribute(rule registry.AttributeRule, value string) error {
	name := strings.ReplaceAll(rule.Name, "_", " ")
	if value == "" {
		if rule.Required {
			return domain.BadRequestf("%s is required", name)
		}
		return nil
	}
	if rule.MaxLen > 0 && utf8.RuneCountInString(value) > rule.MaxLen {
		return domain.BadRequestf("%s must not exceed %d characters", name, rule.MaxLen)
	}
	if rule.LeadingLetter {
		first, _ := utf8.DecodeRuneInString(value)
		if !unicode.IsLetter(first) {
			return domain.BadRequestf("%s must start with a letter", name)
		}
	}
	return nil
}

func subtypeAllowed(s domain.ActorSubtype, allowed []domain.ActorSubtype) bool {
	for _, a := range allowed {
		if a == s {
			return true
		}
	}
	return false
}

func variantName(v domain.Variant) string {
	return strings.ReplaceAll(string(v), "_", " ")
}

// article picks the indefinite article for a noun phrase.
func article(noun string) string {
	if noun != "" && strings.ContainsRune("aeiou", rune(noun[0])) {
		return "an"
	}
	return "a"
}

func edgeNoun(alias graph.Alias) string {
	switch alias {
	case graph.AliasActors:
		return "actor"
	case graph.AliasRequirement:
		return "referenced requirement"
	case graph.AliasUseCase:
		return "referenced use case"
	case graph.AliasMain:
		return "main requirement"
	case graph.AliasDetails:
		return "detail requirement"
	case graph.AliasPrimaryCondition:
		return "primary condition"
	case graph.AliasAlternatives:
		return "alternative condition"
	case graph.AliasFallback:
		return "fallback condition"
	case graph.AliasSimpleParts:
		return "simple requirement"
	case graph.AliasHandles:
		return "handled requirement"
	default:
		return strings.ToLower(string(alias))
	}
}

// attrValue maps a schema attribute name to the candidate's field.
func attrValue(req *domain.Requirement, name string) string {
	switch name {
	case "operation":
		return req.Operation
	case "condition":
		return req.Condition
	case "conditional_value":
		return req.ConditionalValue
	case "exception":
		return req.Exception
	case "communication_info":
		return req.CommunicationInfo
	case "communication_facility":
		return req.CommunicationFacility
	default:
		return ""
	}
}

func patchAttr(p domain.RequirementPatch, name string) *string {
	switch name {
	case "operation":
		return p.Operation
	case "condition":
		return p.Condition
	case "conditional_value":
		return p.ConditionalValue
	case "exception":
		return p.Exception
	case "communication_info":
		return p.CommunicationInfo
	case "communication_facility":
		return p.CommunicationFacility
	default:
		return nil
	}
}

// edgeTargets maps an alias to the candidate's reference ids.
func edgeTargets(req *domain.Requirement, alias graph.Alias) []string {
	switch alias {
	case graph.AliasActors:
		return req.ActorIDs
	case graph.AliasRequirement:
		return fromPtr(req.RequirementID)
	case graph.AliasUseCase:
		return fromPtr(req.ReferencedUseCaseID)
	case graph.AliasMain:
		return fromPtr(req.MainRequirementID)
	case graph.AliasDetails:
		return req.DetailRequirementIDs
	case graph.AliasPrimaryCondition:
		return fromPtr(req.PrimaryConditionID)
	case graph.AliasAlternatives:
		return req.AlternativeConditionIDs
	case graph.AliasFallback:
		return fromPtr(req.FallbackConditionID)
	case graph.AliasSimpleParts:
		return req.SimpleRequirementIDs
	case graph.AliasHandles:
		return req.HandledRequirementIDs
	default:
		return nil
	}
}

func patchTargets(p domain.RequirementPatch, alias graph.Alias) ([]string, bool) {
	switch alias {
	case graph.AliasActors:
		return p.ActorIDs, p.ActorIDs != nil
	case graph.AliasRequirement:
		return fromPtr(p.RequirementID), p.RequirementID != nil
	case graph.AliasUseCase:
		return fromPtr(p.ReferencedUseCaseID), p.ReferencedUseCaseID != nil
	case graph.AliasMain:
		return fromPtr(p.MainRequirementID), p.MainRequirementID != nil
	case graph.AliasDetails:
		return p.DetailRequirementIDs, p.DetailRequirementIDs != nil
	case graph.AliasPrimaryCondition:
		return fromPtr(p.PrimaryConditionID), p.PrimaryConditionID != nil
	case graph.AliasAlternatives:
		return p.AlternativeConditionIDs, p.AlternativeConditionIDs != nil
	case graph.AliasFallback:
		return fromPtr(p.FallbackConditionID), p.FallbackConditionID != nil
	case graph.AliasSimpleParts:
		return p.SimpleRequirementIDs, p.SimpleRequirementIDs != nil
	case graph.AliasHandles:
		return p.HandledRequirementIDs, p.HandledRequirementIDs != nil
	default:
		return nil, false
	}
}

func fromPtr(p *string) []string {
	if p == nil || *p == "" {
		return nil
	}
	return []string{*p}
}
