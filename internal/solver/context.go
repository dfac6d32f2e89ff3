// Package solver implements the constraint solver adapter (spec §4.5): it
// turns "pick arguments for function F that satisfy F's input contract
// against the current environment" into an SMT query against
// github.com/mitchellh/go-z3, extracts up to 100 models (or a time budget),
// and samples one using internal/randpool.
//
// Every go-z3-specific call is confined to this package, per design note
// §9's "lifetime-tangled SMT borrows" guidance: Context is the single
// long-lived owner of the underlying z3.Context, and every encoded term is
// carried as an mvar (an AST handle paired with the variable name it was
// declared under), so model values are recovered by name from
// Model.Assignments rather than by threading z3 handles through consumers.
package solver

import (
	"strconv"
	"time"

	z3 "github.com/mitchellh/go-z3"

	"github.com/yagehu/wasit-sub000/internal/schema"
	"github.com/yagehu/wasit-sub000/internal/werr"
)

// mvar is a single encoded SMT term. name is non-empty iff the term is a
// declared constant whose assignment can be read back from a model; literal
// terms (integer constants, true/false) carry only the AST.
type mvar struct {
	ast  *z3.AST
	name string
}

// Context owns the z3.Config and z3.Context for the life of one call's
// solve (spec §4.5). A fresh Context is created per call rather than reused
// across the whole run, since the encoded variables differ per function
// signature and per environment snapshot; reuse would require invalidating
// every declared constant on each environment mutation.
type Context struct {
	cfg *z3.Config
	ctx *z3.Context

	defs map[string]*schema.Type

	modelCap   int
	timeBudget time.Duration
}

// NewContext constructs a solver Context bound to the schema's type
// definitions (for resolving named TypeRefs during encoding). The time
// budget is handed to Z3 itself via the "timeout" parameter so an
// intractable query is bounded inside the solver, not only by this
// package's outer model-collection deadline.
func NewContext(defs map[string]*schema.Type, modelCap int, timeBudget time.Duration) *Context {
	cfg := z3.NewConfig()
	if timeBudget > 0 {
		cfg.SetParamValue("timeout", strconv.FormatInt(int64(timeBudget/time.Millisecond), 10))
	}
	ctx := z3.NewContext(cfg)
	return &Context{
		cfg:        cfg,
		ctx:        ctx,
		defs:       defs,
		modelCap:   modelCap,
		timeBudget: timeBudget,
	}
}

// Close releases the underlying z3 context. Callers open a fresh Context per
// call and Close it once the call's model set has been sampled.
func (c *Context) Close() {
	c.ctx.Close()
	c.cfg.Close()
}

func (c *Context) intSort() *z3.Sort  { return c.ctx.IntSort() }
func (c *Context) boolSort() *z3.Sort { return c.ctx.BoolSort() }

// constVar declares a fresh named constant of the given sort.
func (c *Context) constVar(name string, sort *z3.Sort) *mvar {
	sym := c.ctx.Symbol(name)
	return &mvar{ast: c.ctx.Const(sym, sort), name: name}
}

func (c *Context) intLit(v int64) *z3.AST { return c.ctx.Int(int(v), c.ctx.IntSort()) }

func (c *Context) boolLit(v bool) *z3.AST {
	if v {
		return c.ctx.True()
	}
	return c.ctx.False()
}

func newSolver(ctx *z3.Context) *z3.Solver {
	return ctx.NewSolver()
}

func (c *Context) timeoutErr() error {
	return werr.New(werr.Solve, "solver exceeded time budget of %s", c.timeBudget)
}

// assignment is one extracted z3 model, keyed by declared-constant name.
// Variables the solver left unconstrained may be absent; readers treat a
// missing entry as zero/false.
type assignment map[string]*z3.AST

func (a assignment) int64(v *mvar) int64 {
	if v == nil {
		return 0
	}
	ast, ok := a[v.name]
	if !ok || ast == nil {
		return 0
	}
	return int64(ast.Int())
}

func (a assignment) bool(v *mvar) bool {
	if v == nil {
		return false
	}
	ast, ok := a[v.name]
	if !ok || ast == nil {
		return false
	}
	return ast.String() == "true"
}

// valueAST returns the model's AST for v, or nil if the model does not
// constrain it (used by the blocking clause, which can only forbid values
// the model actually pinned).
func (a assignment) valueAST(v *mvar) *z3.AST {
	if v == nil {
		return nil
	}
	return a[v.name]
}
