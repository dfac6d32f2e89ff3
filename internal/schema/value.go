package schema

// Value is the canonical in-memory representation of a concrete value of
// some Type — the representation produced by decoding a solver model
// (internal/solver), consumed by ILANG/OLANG evaluation, and serialized by
// the wire codec (internal/wire). Keeping one canonical Value type (rather
// than one per subsystem) is what lets the round-trip law in spec §4.7 be
// stated as a single equality.
type Value struct {
	Kind Kind

	Int    int64  // KindInt
	Handle uint32 // KindHandle

	FlagsBits map[string]bool // KindFlags

	VariantCase    string // KindVariant
	VariantPayload *Value // KindVariant, nil if the case is payloadless

	RecordFields map[string]*Value // KindRecord

	ListItems []*Value // KindList / KindPointer

	Str string // KindString
}

// Zero constructs the canonical "all-zero" instance of t, used as the
// skeleton for results before a call executes (spec §4.2).
func Zero(t *Type, defs map[string]*Type) *Value {
	switch t.Kind {
	case KindInt:
		return &Value{Kind: KindInt, Int: 0}
	case KindHandle:
		return &Value{Kind: KindHandle, Handle: 0}
	case KindFlags:
		bits := make(map[string]bool, len(t.FlagsMembers))
		for _, m := range t.FlagsMembers {
			bits[m] = false
		}
		return &Value{Kind: KindFlags, FlagsBits: bits}
	case KindVariant:
		if len(t.VariantCases) == 0 {
			return &Value{Kind: KindVariant}
		}
		first := t.VariantCases[0]
		var payload *Value
		if first.Payload != nil {
			payload = Zero(first.Payload.Resolve(defs), defs)
		}
		return &Value{Kind: KindVariant, VariantCase: first.Name, VariantPayload: payload}
	case KindRecord:
		fields := make(map[string]*Value, len(t.RecordMembers))
		for _, m := range t.RecordMembers {
			fields[m.Name] = Zero(m.Type.Resolve(defs), defs)
		}
		return &Value{Kind: KindRecord, RecordFields: fields}
	case KindList, KindPointer:
		return &Value{Kind: t.Kind, ListItems: nil}
	case KindString:
		return &Value{Kind: KindString, Str: ""}
	default:
		return &Value{Kind: t.Kind}
	}
}

// Equal reports deep value equality, used by the round-trip property test
// (spec §8.2).
func (v *Value) Equal(other *Value) bool {
	if v == nil || other == nil {
		return v == other
	}
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.Int == other.Int
	case KindHandle:
		return v.Handle == other.Handle
	case KindFlags:
		if len(v.FlagsBits) != len(other.FlagsBits) {
			return false
		}
		for k, b := range v.FlagsBits {
			if other.FlagsBits[k] != b {
				return false
			}
		}
		return true
	case KindVariant:
		if v.VariantCase != other.VariantCase {
			return false
		}
		return v.VariantPayload.Equal(other.VariantPayload)
	case KindRecord:
		if len(v.RecordFields) != len(other.RecordFields) {
			return false
		}
		for k, f := range v.RecordFields {
			if !f.Equal(other.RecordFields[k]) {
				return false
			}
		}
		return true
	case KindList, KindPointer:
		if len(v.ListItems) != len(other.ListItems) {
			return false
		}
		for i, item := range v.ListItems {
			if !item.Equal(other.ListItems[i]) {
				return false
			}
		}
		return true
	case KindString:
		return v.Str == other.Str
	}
	return false
}
