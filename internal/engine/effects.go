package engine

import (
	"github.com/yagehu/wasit-sub000/internal/contract/olang"
	"github.com/yagehu/wasit-sub000/internal/schema"
	"github.com/yagehu/wasit-sub000/internal/vfs"
	"github.com/yagehu/wasit-sub000/internal/werr"
)

// ApplyEffects runs a function's declared output statements against env in
// order (spec §4.6: "output statements are a finite ordered sequence; each
// is evaluated against (params_before, params_after, results,
// environment)"). Per SPEC_FULL §4.6 and the resolved Open Question in
// DESIGN.md, this is only ever called when the call returned errno == 0;
// callers gate that check themselves.
func ApplyEffects(env *vfs.Environment, resources map[string]*schema.Resource, defs map[string]*schema.Type, effects []olang.Stmt, paramsBefore, paramsAfter, results map[string]*schema.Value) error {
	bindings := bindingScope{before: paramsBefore, after: paramsAfter, results: results}
	for _, stmt := range effects {
		set, ok := stmt.(*olang.AttrSet)
		if !ok {
			return werr.New(werr.Contract, "effects: unsupported statement type %T", stmt)
		}
		if err := applyAttrSet(env, resources, defs, bindings, set); err != nil {
			return err
		}
	}
	return nil
}

type bindingScope struct {
	before, after, results map[string]*schema.Value
}

func applyAttrSet(env *vfs.Environment, resources map[string]*schema.Resource, defs map[string]*schema.Type, b bindingScope, stmt *olang.AttrSet) error {
	id, _, ok := resolveResourceBinding(env, resources, b, stmt.Resource)
	if !ok {
		// A result-typed resource not yet present in the environment: the
		// spec's Loop step inserts any resource produced as a result
		// before running effects (spec §4.6: "any resource produced as a
		// result is inserted into the environment first"), so the engine
		// is responsible for calling InsertResource before ApplyEffects
		// runs; reaching here means that step was skipped.
		return werr.New(werr.Contract, "attr.set: resource binding %q has no corresponding environment entry", stmt.Resource)
	}
	val := evalExpr(stmt.Value, b)
	return env.SetAttribute(id, stmt.Attr, val)
}

func resolveResourceBinding(env *vfs.Environment, resources map[string]*schema.Resource, b bindingScope, name string) (vfs.ResourceID, string, bool) {
	var v *schema.Value
	if name == "result" {
		v = b.results[name]
		if v == nil {
			for _, rv := range b.results {
				v = rv
				break
			}
		}
	} else {
		v = b.after[name]
		if v == nil {
			v = b.before[name]
		}
	}
	if v == nil || v.Kind != schema.KindHandle {
		return 0, "", false
	}
	for typeName := range resources {
		if id, ok := env.ResolveValueToID(typeName, v); ok {
			return id, typeName, true
		}
	}
	return 0, "", false
}

func evalExpr(e olang.Expr, b bindingScope) *schema.Value {
	switch n := e.(type) {
	case *olang.IntConst:
		return &schema.Value{Kind: schema.KindInt, Int: n.Value}
	case *olang.BoolConst:
		return &schema.Value{Kind: schema.KindFlags, FlagsBits: map[string]bool{"_": n.Value}}
	case *olang.VariantConst:
		return &schema.Value{Kind: schema.KindVariant, VariantCase: n.CaseName}
	case *olang.ParamRef:
		if v, ok := b.after[n.Name]; ok {
			return v
		}
		return b.before[n.Name]
	case *olang.ResultRef:
		return b.results[n.Name]
	default:
		return nil
	}
}
