// Package registry holds the static description of every requirement variant:
// its attribute constraints, its typed relationship rules, and its position in
// the Simple/Composite label lattice. The tables here drive both validation
// and the schema-driven repository handlers; adding a variant means adding one
// entry, not editing call sites.
package registry

import (
	"reqline/internal/domain"
	"reqline/internal/graph"
)

// Cardinality of a relationship rule.
type Cardinality string

const (
	One  Cardinality = "one"
	Many Cardinality = "many"
)

// AttributeRule constrains one scalar attribute.
type AttributeRule struct {
	Name          string
	Required      bool
	MaxLen        int
	LeadingLetter bool // value must start with a Unicode letter
}

// EdgeRule constrains one typed relationship of a variant.
type EdgeRule struct {
	Alias       graph.Alias
	TargetType  string // graph node type of the edge target
	Cardinality Cardinality
	Required    bool
	MinCount    int // for Many: minimum number of targets when the edge is required

	// ActorSubtypes restricts Actor targets to these subtypes.
	ActorSubtypes []domain.ActorSubtype

	// SimpleOnly requires Requirement targets to be Simple-lattice members.
	SimpleOnly bool

	// Disallowed lists Requirement target variants that are always rejected.
	Disallowed []domain.Variant

	// FirstDisallowed lists variants rejected in the first position of a
	// Many-cardinality edge.
	FirstDisallowed []domain.Variant
}

// Schema is the full static description of one variant.
type Schema struct {
	Variant    domain.Variant
	Simple     bool
	Labels     []string // lattice, most-specific last
	Attributes []AttributeRule
	Edges      []EdgeRule
}

// Edge returns the rule for an alias, if the variant declares it.
func (s Schema) Edge(alias graph.Alias) (EdgeRule, bool) {
	for _, e := range s.Edges {
		if e.Alias == alias {
			return e, true
		}
	}
	return EdgeRule{}, false
}

const (
	labelRequirement = "Requirement"
	labelSimple      = "SimpleRequirement"
	labelComposite   = "CompositeRequirement"
)

var schemas = map[domain.Variant]Schema{
	domain.VariantSystem: {
		Variant: domain.VariantSystem,
		Simple:  true,
		Labels:  []string{labelRequirement, labelSimple, "SystemRequirement"},
		Attributes: []AttributeRule{
			{Name: "operation", Required: true, MaxLen: 100, LeadingLetter: true},
		},
	},
	domain.VariantEventSystem: {
		Variant: domain.VariantEventSystem,
		Simple:  true,
		Labels:  []string{labelRequirement, labelSimple, "EventSystemRequirement"},
		Attributes: []AttributeRule{
			{Name: "operation", Required: true, MaxLen: 100, LeadingLetter: true},
		},
		Edges: []EdgeRule{
			{Alias: graph.AliasActors, TargetType: graph.TypeActor, Cardinality: One, Required: true,
				ActorSubtypes: []domain.ActorSubtype{domain.SubtypeEvent}},
		},
	},
	domain.VariantActor: {
		Variant: domain.VariantActor,
		Simple:  true,
		Labels:  []string{labelRequirement, labelSimple, "ActorRequirement"},
		Attributes: []AttributeRule{
			{Name: "operation", Required: true, MaxLen: 100, LeadingLetter: true},
		},
		Edges: []EdgeRule{
			{Alias: graph.AliasActors, TargetType: graph.TypeActor, Cardinality: Many, Required: true, MinCount: 1,
				ActorSubtypes: []domain.ActorSubtype{
					domain.SubtypeHuman, domain.SubtypeSoftware, domain.SubtypeHardware, domain.SubtypeAIAgent,
				}},
		},
	},
	domain.VariantSystemActorCommunication: {
		Variant: domain.VariantSystemActorCommunication,
		Simple:  true,
		Labels:  []string{labelRequirement, labelSimple, "SystemActorCommunicationRequirement"},
		Attributes: []AttributeRule{
			{Name: "communication_info", Required: true, MaxLen: 200},
			{Name: "communication_facility", Required: true, MaxLen: 30},
		},
		Edges: []EdgeRule{
			{Alias: graph.AliasActors, TargetType: graph.TypeActor, Cardinality: Many, Required: true, MinCount: 1,
				ActorSubtypes: []domain.ActorSubtype{domain.SubtypeHuman}},
		},
	},
	domain.VariantConditional: {
		Variant: domain.VariantConditional,
		Simple:  true,
		Labels:  []string{labelRequirement, labelSimple, "ConditionalRequirement"},
		Attributes: []AttributeRule{
			{Name: "condition", Required: true, MaxLen: 50},
		},
		Edges: []EdgeRule{
			{Alias: graph.AliasRequirement, TargetType: graph.TypeRequirement, Cardinality: One, Required: true,
				Disallowed: []domain.Variant{
					domain.VariantExceptional, domain.VariantConditionalGroup, domain.VariantConditional,
				}},
		},
	},
	domain.VariantRecursive: {
		Variant: domain.VariantRecursive,
		Simple:  true,
		Labels:  []string{labelRequirement, labelSimple, "RecursiveRequirement"},
		Edges: []EdgeRule{
			{Alias: graph.AliasRequirement, TargetType: graph.TypeRequirement, Cardinality: One, Required: true},
		},
	},
	domain.VariantUseCaseReference: {
		Variant: domain.VariantUseCaseReference,
		Simple:  true,
		Labels:  []string{labelRequirement, labelSimple, "UseCaseReferenceRequirement"},
		Edges: []EdgeRule{
			{Alias: graph.AliasUseCase, TargetType: graph.TypeUseCase, Cardinality: One, Required: true},
		},
	},
	domain.VariantLogicalGroup: {
		Variant: domain.VariantLogicalGroup,
		Labels:  []string{labelRequirement, labelComposite, "LogicalGroupRequirement"},
		Edges: []EdgeRule{
			{Alias: graph.AliasMain, TargetType: graph.TypeRequirement, Cardinality: One, Required: true,
				SimpleOnly: true,
				Disallowed: []domain.Variant{
					domain.VariantSystemActorCommunication, domain.VariantRecursive, domain.VariantUseCaseReference,
				}},
			{Alias: graph.AliasDetails, TargetType: graph.TypeRequirement, Cardinality: Many, Required: true, MinCount: 2,
				Disallowed:      []domain.Variant{domain.VariantRecursive, domain.VariantLogicalGroup},
				FirstDisallowed: []domain.Variant{domain.VariantExceptional}},
		},
	},
	domain.VariantConditionalGroup: {
		Variant: domain.VariantConditionalGroup,
		Labels:  []string{labelRequirement, labelComposite, "ConditionalGroupRequirement"},
		Attributes: []AttributeRule{
			{Name: "conditional_value", Required: true, MaxLen: 50},
		},
		Edges: []EdgeRule{
			{Alias: graph.AliasPrimaryCondition, TargetType: graph.TypeRequirement, Cardinality: One, Required: true,
				Disallowed: allExcept(domain.VariantConditional)},
			{Alias: graph.AliasAlternatives, TargetType: graph.TypeRequirement, Cardinality: Many, Required: true, MinCount: 1,
				Disallowed: allExcept(domain.VariantConditional)},
			{Alias: graph.AliasFallback, TargetType: graph.TypeRequirement, Cardinality: One,
				Disallowed: allExcept(domain.VariantConditional)},
		},
	},
	domain.VariantSimultaneous: {
		Variant: domain.VariantSimultaneous,
		Labels:  []string{labelRequirement, labelComposite, "SimultaneousRequirement"},
		Edges: []EdgeRule{
			{Alias: graph.AliasSimpleParts, TargetType: graph.TypeRequirement, Cardinality: Many, Required: true, MinCount: 2,
				SimpleOnly: true},
		},
	},
	domain.VariantExceptional: {
		Variant: domain.VariantExceptional,
		Labels:  []string{labelRequirement, labelComposite, "ExceptionalRequirement"},
		Attributes: []AttributeRule{
			{Name: "exception", Required: true, MaxLen: 100},
		},
		Edges: []EdgeRule{
			{Alias: graph.AliasHandles, TargetType: graph.TypeRequirement, Cardinality: Many, Required: true, MinCount: 1,
				Disallowed: []domain.Variant{domain.VariantLogicalGroup, domain.VariantExceptional}},
		},
	},
}

var variantByLabel = func() map[string]domain.Variant {
	m := make(map[string]domain.Variant, len(schemas))
	for v, s := range schemas {
		m[s.Labels[len(s.Labels)-1]] = v
	}
	return m
}()

// Describe returns the schema for a variant.
func Describe(v domain.Variant) (Schema, error) {
	s, ok := schemas[v]
	if !ok {
		return Schema{}, domain.UnknownVariantError{Variant: string(v)}
	}
	return s, nil
}

// IsSimple reports whether the variant is a member of the Simple lattice.
func IsSimple(v domain.Variant) bool {
	return schemas[v].Simple
}

// Labels returns the variant's label lattice, most-specific last.
func Labels(v domain.Variant) ([]string, error) {
	s, err := Describe(v)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), s.Labels...), nil
}

// VariantOf resolves a node's label lattice to its variant tag using the
// most-specific label. Resolution happens once per read; nothing downstream
// compares label strings again.
func VariantOf(labels []string) (domain.Variant, error) {
	if len(labels) == 0 {
		return "", domain.UnknownVariantError{Variant: ""}
	}
	last := labels[len(labels)-1]
	v, ok := variantByLabel[last]
	if !ok {
		return "", domain.UnknownVariantError{Variant: last}
	}
	return v, nil
}

// DisallowedTargets returns the variants a source variant may never reference
// through the given alias. The same table drives validation and the
// pre-flight dependency check.
func DisallowedTargets(source domain.Variant, alias graph.Alias) ([]domain.Variant, error) {
	s, err := Describe(source)
	if err != nil {
		return nil, err
	}
	rule, ok := s.Edge(alias)
	if !ok {
		return nil, nil
	}
	out := append([]domain.Variant(nil), rule.Disallowed...)
	if rule.SimpleOnly {
		for _, v := range domain.Variants() {
			if !schemas[v].Simple && !contains(out, v) {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

func allExcept(allowed ...domain.Variant) []domain.Variant {
	var out []domain.Variant
	for _, v := range domain.Variants() {
		if !contains(allowed, v) {
			out = append(out, v)
		}
	}
	return out
}

func contains(set []domain.Variant, v domain.Variant) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
