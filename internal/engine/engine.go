// Package engine resolves the effective value of a feature flag for a request
// context. Resolution walks a fixed precedence order (user > group > region >
// global default) and stops at the first tier holding an explicit override for
// the context's identifier. It performs no I/O and never mutates its inputs.
package engine

import "feature-flag-service/internal/domain"

// Reason identifies which precedence tier produced an evaluation result.
type Reason string

const (
	ReasonUserOverride   Reason = "user-override"
	ReasonGroupOverride  Reason = "group-override"
	ReasonRegionOverride Reason = "region-override"
	ReasonGlobalDefault  Reason = "global-default"
)

// Context carries the request-scoped identifiers a flag is evaluated against.
// An empty string means the identifier was not supplied.
type Context struct {
	UserID   string `json:"userId,omitempty"`
	GroupID  string `json:"groupId,omitempty"`
	RegionID string `json:"regionId,omitempty"`
}

// Empty reports whether no identifier was supplied at all. Callers are expected
// to reject empty contexts before evaluation; the engine itself accepts them
// and falls through to the global default.
func (c Context) Empty() bool {
	return c.UserID == "" && c.GroupID == "" && c.RegionID == ""
}

// Result is the reasoned boolean an evaluation yields.
type Result struct {
	Key     string `json:"key"`
	Enabled bool   `json:"enabled"`
	Reason  Reason `json:"reason"`
}

type tier struct {
	overrideType domain.OverrideType
	reason       Reason
}

// Precedence order is fixed; adding a tier means widening both the record
// schema and this list.
var tiers = []tier{
	{domain.OverrideUser, ReasonUserOverride},
	{domain.OverrideGroup, ReasonGroupOverride},
	{domain.OverrideRegion, ReasonRegionOverride},
}

func (c Context) identifier(t domain.OverrideType) string {
	switch t {
	case domain.OverrideUser:
		return c.UserID
	case domain.OverrideGroup:
		return c.GroupID
	case domain.OverrideRegion:
		return c.RegionID
	}
	return ""
}

// Evaluate resolves one flag against one context. Matching is exact string
// equality on the identifier; no normalization is applied. Exactly one tier's
// value is returned, and lower tiers are never consulted once a higher tier
// matched, even when an override there holds false.
func Evaluate(flag *domain.FeatureFlag, ctx Context) Result {
	for _, t := range tiers {
		id := ctx.identifier(t.overrideType)
		if id == "" {
			continue
		}
		if enabled, ok := lookup(flag.Overrides, t.overrideType, id); ok {
			return Result{Key: flag.Key, Enabled: enabled, Reason: t.reason}
		}
	}
	return Result{Key: flag.Key, Enabled: flag.Enabled, Reason: ReasonGlobalDefault}
}

// EvaluateAll evaluates one context against an ordered sequence of flags,
// yielding results in the same order. Flags never interact with each other.
func EvaluateAll(flags []domain.FeatureFlag, ctx Context) []Result {
	results := make([]Result, 0, len(flags))
	for i := range flags {
		results = append(results, Evaluate(&flags[i], ctx))
	}
	return results
}

func lookup(overrides []domain.FlagOverride, t domain.OverrideType, entityID string) (bool, bool) {
	for _, o := range overrides {
		if o.Type == t && o.EntityID == entityID {
			return o.Enabled, true
		}
	}
	return false, false
}
