package solver

import (
	"strings"

	"github.com/yagehu/wasit-sub000/internal/randpool"
	"github.com/yagehu/wasit-sub000/internal/schema"
	"github.com/yagehu/wasit-sub000/internal/vfs"
)

// Sample draws one model from the solution space by indexing into models
// with bytes consumed from pool, then fills in every placeholder string
// produced by decode with concrete characters from pool (spec §4.5's
// "Model sampling... one model is drawn... indexing into the collected
// list using bytes consumed from the random pool").
func Sample(models []*Model, pool *randpool.Pool) *Model {
	idx := pool.ChooseOneOf(len(models))
	chosen := models[idx]
	out := &Model{
		Params:        make(map[string]*schema.Value, len(chosen.Params)),
		PathStructure: chosen.PathStructure,
	}
	for name, v := range chosen.Params {
		out.Params[name] = fillStrings(v, pool)
	}
	return out
}

// RenderPaths replaces every path parameter's sampled string with a path
// rendered from its solved depth-delta structure (spec §4.5 model sampling
// plus design note §9's two-phase approach: the solver fixed the structure,
// the pool now supplies concrete component names). Relative paths are
// prefixed with the preopen directory's dir-name discovered during
// bootstrap, unless they already start with '/' (spec §4.5's last sampling
// rule). A path parameter with no solved structure falls back to
// SamplePathString against startDir.
func (m *Model) RenderPaths(pool *randpool.Pool, dirName string, startDir *vfs.File) {
	for name, deltas := range m.PathStructure {
		var s string
		if len(deltas) == 0 {
			s = SamplePathString(pool, startDir)
		} else {
			p := vfs.PathFromDeltas(deltas, func() string {
				return pool.TakeString(1 + pool.ChooseOneOf(8))
			})
			s = p.String()
		}
		if dirName != "" && !strings.HasPrefix(s, "/") {
			s = dirName + "/" + s
		}
		m.Params[name] = &schema.Value{Kind: schema.KindString, Str: s}
	}
}

func fillStrings(v *schema.Value, pool *randpool.Pool) *schema.Value {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case schema.KindString:
		return &schema.Value{Kind: schema.KindString, Str: pool.TakeString(len(v.Str))}
	case schema.KindRecord:
		fields := make(map[string]*schema.Value, len(v.RecordFields))
		for k, f := range v.RecordFields {
			fields[k] = fillStrings(f, pool)
		}
		return &schema.Value{Kind: schema.KindRecord, RecordFields: fields}
	case schema.KindVariant:
		return &schema.Value{Kind: schema.KindVariant, VariantCase: v.VariantCase, VariantPayload: fillStrings(v.VariantPayload, pool)}
	case schema.KindList, schema.KindPointer:
		items := make([]*schema.Value, len(v.ListItems))
		for i, it := range v.ListItems {
			items[i] = fillStrings(it, pool)
		}
		return &schema.Value{Kind: v.Kind, ListItems: items}
	default:
		return v
	}
}

// SamplePathString implements the two-phase path sampling design note
// (spec §9): segment structure (count, where separators fall) is drawn
// directly from pool; only the rendered string is handed back, since the
// wire codec and the contract's no-backtrack predicate both operate on the
// rendered '/'-joined form. startDir, if non-nil, is consulted so the
// sampled path is re-drawn (up to a bounded number of attempts) until it
// does not back-track above it, keeping generation and the
// NoBacktrackAbovePreopen contract predicate in agreement without requiring
// the solver itself to reason about filesystem structure.
func SamplePathString(pool *randpool.Pool, startDir *vfs.File) string {
	const maxAttempts = 8
	for attempt := 0; attempt < maxAttempts; attempt++ {
		p := sampleOnePath(pool)
		if startDir == nil || !vfs.BacktracksAbovePreopen(p, startDir) {
			return p.String()
		}
	}
	p := sampleOnePath(pool)
	return p.String()
}

func sampleOnePath(pool *randpool.Pool) *vfs.Path {
	numComponents := 1 + pool.ChooseOneOf(4)
	segs := make([]vfs.Segment, 0, numComponents*2)
	for i := 0; i < numComponents; i++ {
		if i > 0 {
			segs = append(segs, vfs.Segment{Kind: vfs.Separator})
		}
		segs = append(segs, vfs.Segment{Kind: vfs.Component, Name: pathComponent(pool)})
	}
	return &vfs.Path{Segments: segs}
}

func pathComponent(pool *randpool.Pool) string {
	switch pool.ChooseOneOf(8) {
	case 0:
		return ".."
	case 1:
		return "."
	default:
		return pool.TakeString(1 + pool.ChooseOneOf(8))
	}
}
