package vfs

import "strings"

// SegmentKind discriminates a path Segment atom.
type SegmentKind int

const (
	Separator SegmentKind = iota
	Component
)

// Segment is one atom of a path string (spec §3): a path argument is
// modeled as an ordered sequence of Segments rather than a raw byte
// string.
type Segment struct {
	Kind SegmentKind
	Name string // Component only; never empty, never contains '/'
}

// Path is an ordered sequence of Segments, with the invariants enforced by
// ValidatePath (spec §3, §8.5): first segment is a component; no two
// adjacent components; no component contains a slash.
type Path struct {
	Segments []Segment
}

// String renders the path back to its canonical '/'-joined form.
func (p *Path) String() string {
	var sb strings.Builder
	for _, s := range p.Segments {
		switch s.Kind {
		case Separator:
			sb.WriteByte('/')
		case Component:
			sb.WriteString(s.Name)
		}
	}
	return sb.String()
}

// Components returns just the component names, in order, dropping
// separators — the form Lookup wants.
func (p *Path) Components() []string {
	out := make([]string, 0, len(p.Segments))
	for _, s := range p.Segments {
		if s.Kind == Component {
			out = append(out, s.Name)
		}
	}
	return out
}

// ValidatePath checks the spec §3/§8.5 path invariants: first segment is a
// component; no two adjacent components; no component contains '/'; and
// (per DESIGN.md's Open Question resolution) an empty path is rejected
// outright rather than left to the ambiguous interaction of the two
// original path-validation predicates.
func ValidatePath(p *Path) error {
	if len(p.Segments) == 0 {
		return errEmptyPath
	}
	if p.Segments[0].Kind != Component {
		return errFirstSegmentNotComponent
	}
	prevWasComponent := false
	for _, s := range p.Segments {
		if s.Kind == Component {
			if strings.Contains(s.Name, "/") {
				return errComponentContainsSlash
			}
			if s.Name == "" {
				return errEmptyComponent
			}
			if prevWasComponent {
				return errAdjacentComponents
			}
			prevWasComponent = true
		} else {
			prevWasComponent = false
		}
	}
	return nil
}

var (
	errEmptyPath                = pathErr("path has no segments")
	errFirstSegmentNotComponent = pathErr("first segment must be a component")
	errComponentContainsSlash   = pathErr("component contains '/'")
	errEmptyComponent           = pathErr("component is empty")
	errAdjacentComponents       = pathErr("two adjacent components without a separator")
)

type pathErrString string

func pathErr(s string) error { return pathErrString(s) }
func (e pathErrString) Error() string { return string(e) }

// BacktracksAbovePreopen reports whether, starting from startDir and
// applying this path's components in order (".." rewound one level, any
// other component descended into, matching the filesystem predicate named
// in spec §4.3), the traversal would step above startDir — i.e. would
// escape the preopened directory it's relative to.
func BacktracksAbovePreopen(p *Path, startDir *File) bool {
	depth := 0
	node := startDir
	for _, c := range p.Components() {
		switch c {
		case ".":
			continue
		case "..":
			if depth == 0 {
				return true
			}
			depth--
		default:
			if node != nil && node.Kind == Directory {
				node = node.Children[c]
			}
			depth++
		}
	}
	return false
}

// PathFromDeltas renders a concrete Path from a solved sequence of
// depth-deltas (internal/solver/fs.go's encoding of
// NoBacktrackAbovePreopen): -1 renders ".." (ascend), 0 renders "."
// (stay), and +1 renders a fresh component name drawn from nameFn
// (descend). Segments are joined by separators so the structural
// "no adjacent components" invariant holds by construction.
func PathFromDeltas(deltas []int, nameFn func() string) *Path {
	p := &Path{}
	for i, d := range deltas {
		if i > 0 {
			p.Segments = append(p.Segments, Segment{Kind: Separator})
		}
		switch {
		case d < 0:
			p.Segments = append(p.Segments, Segment{Kind: Component, Name: ".."})
		case d == 0:
			p.Segments = append(p.Segments, Segment{Kind: Component, Name: "."})
		default:
			p.Segments = append(p.Segments, Segment{Kind: Component, Name: nameFn()})
		}
	}
	return p
}

// IsPathParamName reports whether a parameter name follows the WASI
// preview1 naming convention for path-valued string parameters (e.g.
// "path", "old_path", "new_path"), used as the fallback signal for "this
// string parameter should be treated as a path" when a function's @input
// contract does not reference it via NoBacktrackAbovePreopen.
func IsPathParamName(name string) bool {
	return name == "path" || strings.HasSuffix(name, "_path")
}
