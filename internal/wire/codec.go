package wire

import (
	"github.com/yagehu/wasit-sub000/internal/schema"
	"github.com/yagehu/wasit-sub000/internal/werr"
)

// Encode builds the layout-annotated wire Value for v of type t (spec
// §4.7). layout supplies size/offset/item-size/tag-width metadata so the
// guest executor can reproduce the host's memory layout without itself
// running the layout algorithm.
func Encode(v *schema.Value, t *schema.Type, defs map[string]*schema.Type, layout *schema.Layout) (*Value, error) {
	if v == nil {
		return nil, werr.New(werr.Internal, "encode: nil value")
	}
	size, align := layout.Size(t), layout.Align(t)
	switch t.Kind {
	case schema.KindHandle:
		return &Value{Tag: TagHandle, Size: size, Align: align, Handle: v.Handle}, nil
	case schema.KindInt:
		return &Value{Tag: TagInt, Size: size, Align: align, Int: v.Int, Width: size}, nil
	case schema.KindFlags:
		bits := make([]FlagsBit, 0, len(t.FlagsMembers))
		for _, m := range t.FlagsMembers {
			bits = append(bits, FlagsBit{Name: m, Set: v.FlagsBits[m]})
		}
		return &Value{Tag: TagFlags, Size: size, Align: align, FlagsWidth: size, FlagsBits: bits}, nil
	case schema.KindRecord:
		offsets := layout.MemberOffsets(t)
		members := make([]RecordMember, 0, len(t.RecordMembers))
		for i, m := range t.RecordMembers {
			mt := resolveRef(m.Type, defs)
			mv, err := Encode(v.RecordFields[m.Name], mt, defs, layout)
			if err != nil {
				return nil, werr.Wrap(werr.Internal, err, "encoding record member %q", m.Name)
			}
			members = append(members, RecordMember{Name: m.Name, Offset: offsets[i], Value: *mv})
		}
		return &Value{Tag: TagRecord, Size: size, Align: align, RecordMembers: members}, nil
	case schema.KindVariant:
		idx := variantIndex(t, v.VariantCase)
		var payload *Value
		if idx >= 0 && t.VariantCases[idx].Payload != nil && v.VariantPayload != nil {
			pt := resolveRef(t.VariantCases[idx].Payload, defs)
			pv, err := Encode(v.VariantPayload, pt, defs, layout)
			if err != nil {
				return nil, werr.Wrap(werr.Internal, err, "encoding variant payload for case %q", v.VariantCase)
			}
			payload = pv
		}
		return &Value{
			Tag:               TagVariant,
			Size:              size,
			Align:             align,
			VariantTagWidth:   int(layout.TagWidth(t)) / 8,
			VariantCaseIndex:  idx,
			VariantPayloadOff: layout.PayloadOffset(t),
			VariantPayload:    payload,
		}, nil
	case schema.KindList, schema.KindPointer:
		elemType := resolveRef(t.Elem, defs)
		items := make([]Value, 0, len(v.ListItems))
		for _, it := range v.ListItems {
			iv, err := Encode(it, elemType, defs, layout)
			if err != nil {
				return nil, werr.Wrap(werr.Internal, err, "encoding list item")
			}
			items = append(items, *iv)
		}
		tag := TagList
		if t.Kind == schema.KindPointer {
			tag = TagPointer
		}
		return &Value{Tag: tag, Size: size, Align: align, ItemSize: layout.ItemSize(t), Items: items}, nil
	case schema.KindString:
		return &Value{Tag: TagString, Size: size, Align: align, Str: []byte(v.Str)}, nil
	default:
		return nil, werr.New(werr.Internal, "encode: unknown kind %d", t.Kind)
	}
}

// Decode is the inverse of Encode (spec §4.7's round-trip law:
// decode(encode(v, T), T) = v).
func Decode(wv *Value, t *schema.Type, defs map[string]*schema.Type) (*schema.Value, error) {
	if wv == nil {
		return nil, werr.New(werr.Internal, "decode: nil wire value")
	}
	switch wv.Tag {
	case TagHandle:
		return &schema.Value{Kind: schema.KindHandle, Handle: wv.Handle}, nil
	case TagInt:
		return &schema.Value{Kind: schema.KindInt, Int: wv.Int}, nil
	case TagFlags:
		bits := make(map[string]bool, len(wv.FlagsBits))
		for _, b := range wv.FlagsBits {
			bits[b.Name] = b.Set
		}
		return &schema.Value{Kind: schema.KindFlags, FlagsBits: bits}, nil
	case TagRecord:
		fields := make(map[string]*schema.Value, len(wv.RecordMembers))
		for i, m := range wv.RecordMembers {
			mt := memberTypeAt(t, i, defs)
			fv, err := Decode(&m.Value, mt, defs)
			if err != nil {
				return nil, werr.Wrap(werr.Internal, err, "decoding record member %q", m.Name)
			}
			fields[m.Name] = fv
		}
		return &schema.Value{Kind: schema.KindRecord, RecordFields: fields}, nil
	case TagVariant:
		if t == nil || wv.VariantCaseIndex < 0 || wv.VariantCaseIndex >= len(t.VariantCases) {
			return &schema.Value{Kind: schema.KindVariant}, nil
		}
		vc := t.VariantCases[wv.VariantCaseIndex]
		var payload *schema.Value
		if vc.Payload != nil && wv.VariantPayload != nil {
			pt := resolveRef(vc.Payload, defs)
			pv, err := Decode(wv.VariantPayload, pt, defs)
			if err != nil {
				return nil, werr.Wrap(werr.Internal, err, "decoding variant payload for case %q", vc.Name)
			}
			payload = pv
		}
		return &schema.Value{Kind: schema.KindVariant, VariantCase: vc.Name, VariantPayload: payload}, nil
	case TagList, TagPointer:
		elemType := (*schema.Type)(nil)
		if t != nil {
			elemType = resolveRef(t.Elem, defs)
		}
		items := make([]*schema.Value, 0, len(wv.Items))
		for i := range wv.Items {
			iv, err := Decode(&wv.Items[i], elemType, defs)
			if err != nil {
				return nil, werr.Wrap(werr.Internal, err, "decoding list item")
			}
			items = append(items, iv)
		}
		kind := schema.KindList
		if wv.Tag == TagPointer {
			kind = schema.KindPointer
		}
		return &schema.Value{Kind: kind, ListItems: items}, nil
	case TagString:
		return &schema.Value{Kind: schema.KindString, Str: string(wv.Str)}, nil
	default:
		return nil, werr.New(werr.Internal, "decode: unknown tag %d", wv.Tag)
	}
}

func resolveRef(r *schema.TypeRef, defs map[string]*schema.Type) *schema.Type {
	if r == nil {
		return nil
	}
	return r.Resolve(defs)
}

func variantIndex(t *schema.Type, caseName string) int {
	for i, vc := range t.VariantCases {
		if vc.Name == caseName {
			return i
		}
	}
	return -1
}

func memberTypeAt(t *schema.Type, i int, defs map[string]*schema.Type) *schema.Type {
	if t == nil || i < 0 || i >= len(t.RecordMembers) {
		return nil
	}
	return resolveRef(t.RecordMembers[i].Type, defs)
}
