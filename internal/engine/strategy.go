package engine

import (
	"github.com/yagehu/wasit-sub000/internal/randpool"
	"github.com/yagehu/wasit-sub000/internal/schema"
	"github.com/yagehu/wasit-sub000/internal/vfs"
)

// Strategy picks the next function to attempt, from the candidate set whose
// parameters all have at least one live resource (or require none). Spec
// §4.6: "A strategy interface abstracts this so alternative strategies
// (stateless, stateful) plug in."
type Strategy interface {
	Pick(candidates []*schema.Function, resources map[string]*schema.Resource, env *vfs.Environment) *schema.Function
	// Observe reports the outcome of the call the strategy just picked, so a
	// stateful strategy can bias its next Pick. hasResource is false when the
	// call took no resource-typed parameter to blame a nonzero errno on.
	Observe(fn *schema.Function, resource vfs.ResourceID, hasResource bool, errnoNonzero bool)
}

// UniformStrategy selects uniformly at random over the candidate set,
// drawing its index from the shared random pool (spec §4.6: "Function
// selection policy: uniform random over the candidate set, drawn from the
// pool").
type UniformStrategy struct {
	Pool *randpool.Pool
}

func (s *UniformStrategy) Pick(candidates []*schema.Function, _ map[string]*schema.Resource, _ *vfs.Environment) *schema.Function {
	if len(candidates) == 0 {
		return nil
	}
	return candidates[s.Pool.ChooseOneOf(len(candidates))]
}

func (s *UniformStrategy) Observe(*schema.Function, vfs.ResourceID, bool, bool) {}

// StatefulStrategy supplements UniformStrategy with a simple bias: it skips
// functions whose only candidate resources were involved in the
// immediately preceding call's nonzero-errno return, per
// original_source/src/strategy/stateful.rs's avoidance of repeatedly
// re-trying an operation that just failed on the same resource.
type StatefulStrategy struct {
	Pool          *randpool.Pool
	LastErrnoResource vfs.ResourceID
	LastErrnoWasNonzero bool
}

func (s *StatefulStrategy) Pick(candidates []*schema.Function, resources map[string]*schema.Resource, env *vfs.Environment) *schema.Function {
	if len(candidates) == 0 {
		return nil
	}
	if !s.LastErrnoWasNonzero {
		return candidates[s.Pool.ChooseOneOf(len(candidates))]
	}
	filtered := make([]*schema.Function, 0, len(candidates))
	for _, f := range candidates {
		if s.onlyCandidateIsLastErrnoResource(f, resources, env) {
			continue
		}
		filtered = append(filtered, f)
	}
	if len(filtered) == 0 {
		filtered = candidates
	}
	return filtered[s.Pool.ChooseOneOf(len(filtered))]
}

// Observe records whether the call just dispatched returned a nonzero
// errno and, if so, which resource to treat as implicated for the next
// Pick's filtering.
func (s *StatefulStrategy) Observe(fn *schema.Function, resource vfs.ResourceID, hasResource bool, errnoNonzero bool) {
	s.LastErrnoWasNonzero = errnoNonzero && hasResource
	if s.LastErrnoWasNonzero {
		s.LastErrnoResource = resource
	}
}

// onlyCandidateIsLastErrnoResource reports whether fn has a resource-typed
// parameter whose only live candidate resource is the one implicated in the
// immediately preceding nonzero-errno call, meaning retrying fn now would
// necessarily bind the same resource that just failed.
func (s *StatefulStrategy) onlyCandidateIsLastErrnoResource(fn *schema.Function, resources map[string]*schema.Resource, env *vfs.Environment) bool {
	for _, p := range fn.Params {
		name := p.Type.Name
		if name == "" {
			continue
		}
		if _, ok := resources[name]; !ok {
			continue
		}
		ids := env.ResourcesOfType(name)
		if len(ids) == 1 && ids[0] == s.LastErrnoResource {
			return true
		}
	}
	return false
}

// CandidatesOf returns the subset of fns whose parameters all have at least
// one candidate live resource in env, or which require no resource
// parameters at all (spec §4.6 Loop step 1).
func CandidatesOf(fns []*schema.Function, resources map[string]*schema.Resource, env *vfs.Environment, defs map[string]*schema.Type) []*schema.Function {
	out := make([]*schema.Function, 0, len(fns))
	for _, fn := range fns {
		if hasCandidateForEveryResourceParam(fn, resources, env) {
			out = append(out, fn)
		}
	}
	return out
}

func hasCandidateForEveryResourceParam(fn *schema.Function, resources map[string]*schema.Resource, env *vfs.Environment) bool {
	for _, p := range fn.Params {
		name := p.Type.Name
		if name == "" {
			continue
		}
		if _, ok := resources[name]; !ok {
			continue
		}
		if len(env.ResourcesOfType(name)) == 0 {
			return false
		}
	}
	return true
}
