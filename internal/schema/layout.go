package schema

// Layout provides the constant-time queries over a resolved Type required
// by component 4.2: size, alignment, member offsets (records), payload
// offset (variants), and item size (lists). Sizes and alignments are memoized
// on first computation since a Type can be shared by many TypeRefs.
type Layout struct {
	defs map[string]*Type
}

// NewLayout builds a Layout bound to the given interface's type table, used
// to resolve named references encountered while walking nested types.
func NewLayout(defs map[string]*Type) *Layout {
	return &Layout{defs: defs}
}

func primSize(w IntWidth) int {
	switch w {
	case Width8:
		return 1
	case Width16:
		return 2
	case Width32:
		return 4
	case Width64:
		return 8
	}
	return 0
}

func alignUp(offset, align int) int {
	if align <= 1 {
		return offset
	}
	rem := offset % align
	if rem == 0 {
		return offset
	}
	return offset + (align - rem)
}

// Size returns the type's memory size in bytes (spec §3, §4.2).
func (l *Layout) Size(t *Type) int {
	s, _ := l.sizeAlign(t)
	return s
}

// Align returns the type's memory alignment in bytes.
func (l *Layout) Align(t *Type) int {
	_, a := l.sizeAlign(t)
	return a
}

func (l *Layout) resolve(r *TypeRef) *Type {
	if r.Inline != nil {
		return r.Inline
	}
	return l.defs[r.Name]
}

func (l *Layout) sizeAlign(t *Type) (size, align int) {
	if t.sizeSet {
		return t.size, t.align
	}
	switch t.Kind {
	case KindInt:
		size = primSize(t.IntWidth)
		align = size
	case KindHandle:
		size, align = 4, 4
	case KindFlags:
		size = primSize(t.FlagsRepr)
		align = size
	case KindString, KindList:
		// Fat-pointer-sized handle on the wire (spec §4.2: "List is a
		// fat-pointer-sized handle (8 bytes on the wire..."). Strings
		// share the same on-wire shape (ptr+len).
		size, align = 8, 4
	case KindPointer:
		size, align = 4, 4
	case KindRecord:
		align = 1
		offset := 0
		for _, m := range t.RecordMembers {
			mt := l.resolve(m.Type)
			ms, ma := l.sizeAlign(mt)
			if ma > align {
				align = ma
			}
			offset = alignUp(offset, ma) + ms
		}
		size = alignUp(offset, align)
	case KindVariant:
		tagAlign := primSize(tagWidthFor(len(t.VariantCases)))
		align = tagAlign
		maxPayload := 0
		for _, c := range t.VariantCases {
			if c.Payload == nil {
				continue
			}
			pt := l.resolve(c.Payload)
			ps, pa := l.sizeAlign(pt)
			if pa > align {
				align = pa
			}
			if ps > maxPayload {
				maxPayload = ps
			}
		}
		payloadOffset := alignUp(tagAlign, align)
		size = alignUp(payloadOffset+maxPayload, align)
	}
	t.size, t.align, t.sizeSet = size, align, true
	return size, align
}

// tagWidthFor returns the smallest integer width that can represent
// nCases distinct tag values.
func tagWidthFor(nCases int) IntWidth {
	switch {
	case nCases <= 1<<8:
		return Width8
	case nCases <= 1<<16:
		return Width16
	default:
		return Width32
	}
}

// PayloadOffset returns the byte offset of a variant's payload region
// (spec §4.2: "tag size rounded up to max case-payload alignment").
func (l *Layout) PayloadOffset(t *Type) int {
	if t.Kind != KindVariant {
		return 0
	}
	_, align := l.sizeAlign(t)
	tagAlign := primSize(tagWidthFor(len(t.VariantCases)))
	return alignUp(tagAlign, align)
}

// MemberOffsets returns each record member's byte offset, in declaration
// order.
func (l *Layout) MemberOffsets(t *Type) []int {
	if t.Kind != KindRecord {
		return nil
	}
	offsets := make([]int, 0, len(t.RecordMembers))
	offset := 0
	for _, m := range t.RecordMembers {
		mt := l.resolve(m.Type)
		ms, ma := l.sizeAlign(mt)
		offset = alignUp(offset, ma)
		offsets = append(offsets, offset)
		offset += ms
	}
	return offsets
}

// ItemSize returns a list's element type's size, used by the wire codec to
// compute item-size metadata for list values (spec §4.7).
func (l *Layout) ItemSize(t *Type) int {
	if t.Elem == nil {
		return 0
	}
	return l.Size(l.resolve(t.Elem))
}

// TagWidth returns a variant's tag integer width.
func (l *Layout) TagWidth(t *Type) IntWidth {
	return tagWidthFor(len(t.VariantCases))
}
