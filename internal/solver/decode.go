package solver

import (
	"github.com/yagehu/wasit-sub000/internal/schema"
)

// decode extracts a concrete schema.Value from enc's assignment in a model
// (the inverse of encodeType, spec §4.5's "decoded into a wire value via
// the inverse of the encoding"). Variables the model left unconstrained
// read back as zero/false — the all-zero skeleton the type system also
// uses for unexecuted results.
func (c *Context) decode(asn assignment, enc *EncodedValue) *schema.Value {
	switch {
	case enc.Int != nil:
		n := asn.int64(enc.Int)
		kind := schema.KindInt
		if enc.Type != nil {
			kind = enc.Type.Kind
		}
		if kind == schema.KindHandle {
			return &schema.Value{Kind: schema.KindHandle, Handle: uint32(n)}
		}
		return &schema.Value{Kind: schema.KindInt, Int: n}
	case enc.FlagsBits != nil:
		bits := make(map[string]bool, len(enc.FlagsBits))
		for name, bit := range enc.FlagsBits {
			bits[name] = asn.bool(bit)
		}
		return &schema.Value{Kind: schema.KindFlags, FlagsBits: bits}
	case enc.VariantTag != nil:
		idx := asn.int64(enc.VariantTag)
		name := ""
		var payload *schema.Value
		if enc.Type != nil && int(idx) >= 0 && int(idx) < len(enc.Type.VariantCases) {
			vc := enc.Type.VariantCases[idx]
			name = vc.Name
			if p, ok := enc.VariantPayloads[name]; ok && vc.Payload != nil {
				payload = c.decode(asn, p)
			}
		}
		return &schema.Value{Kind: schema.KindVariant, VariantCase: name, VariantPayload: payload}
	case enc.RecordFields != nil:
		fields := make(map[string]*schema.Value, len(enc.RecordFields))
		for name, f := range enc.RecordFields {
			fields[name] = c.decode(asn, f)
		}
		return &schema.Value{Kind: schema.KindRecord, RecordFields: fields}
	case enc.ListLen != nil:
		n := asn.int64(enc.ListLen)
		items := make([]*schema.Value, n)
		kind := schema.KindList
		if enc.Type != nil {
			kind = enc.Type.Kind
		}
		return &schema.Value{Kind: kind, ListItems: items}
	case enc.StrLen != nil:
		// Only the abstract length is solved for; Sample fills in the
		// concrete characters from the random pool before this value is
		// handed to the wire codec.
		n := asn.int64(enc.StrLen)
		return &schema.Value{Kind: schema.KindString, Str: placeholderString(int(n))}
	default:
		return &schema.Value{}
	}
}

func placeholderString(n int) string {
	if n <= 0 {
		return ""
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = '_'
	}
	return string(buf)
}
