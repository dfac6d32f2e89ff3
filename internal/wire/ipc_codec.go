package wire

import (
	"bufio"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yagehu/wasit-sub000/internal/werr"
)

// Field numbers for the hand-rolled Value wire message (spec §6's "value
// message is a tagged union... each carrying enough layout metadata").
// There is no .proto source: this is a two-message, one-off framing
// protocol, so protowire's low-level varint/length-delimited primitives are
// used directly rather than generating a full message type from a schema
// neither side needs (see SPEC_FULL §4.7).
const (
	fieldTag             = 1
	fieldSize            = 2
	fieldAlign           = 3
	fieldHandle          = 4
	fieldInt             = 5
	fieldWidth           = 6
	fieldFlagsWidth      = 7
	fieldFlagsBit        = 8
	fieldRecordMember    = 9
	fieldItemSize        = 10
	fieldItem            = 11
	fieldPointerTarget   = 12
	fieldStr             = 13
	fieldVariantTagWidth = 14
	fieldVariantCaseIdx  = 15
	fieldVariantPayOff   = 16
	fieldVariantPayload  = 17
)

// EncodeValue appends the wire encoding of v to b.
func EncodeValue(b []byte, v *Value) []byte {
	b = protowire.AppendTag(b, fieldTag, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v.Tag))
	b = protowire.AppendTag(b, fieldSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v.Size))
	b = protowire.AppendTag(b, fieldAlign, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v.Align))

	switch v.Tag {
	case TagHandle:
		b = protowire.AppendTag(b, fieldHandle, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.Handle))
	case TagInt:
		b = protowire.AppendTag(b, fieldInt, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(v.Int))
		b = protowire.AppendTag(b, fieldWidth, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.Width))
	case TagFlags:
		b = protowire.AppendTag(b, fieldFlagsWidth, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.FlagsWidth))
		for _, bit := range v.FlagsBits {
			sub := protowire.AppendString(nil, bit.Name)
			set := uint64(0)
			if bit.Set {
				set = 1
			}
			sub = protowire.AppendVarint(sub, set)
			b = protowire.AppendTag(b, fieldFlagsBit, protowire.BytesType)
			b = protowire.AppendBytes(b, sub)
		}
	case TagRecord:
		for _, m := range v.RecordMembers {
			sub := protowire.AppendString(nil, m.Name)
			sub = protowire.AppendVarint(sub, uint64(m.Offset))
			sub = EncodeValue(sub, &m.Value)
			b = protowire.AppendTag(b, fieldRecordMember, protowire.BytesType)
			b = protowire.AppendBytes(b, sub)
		}
	case TagList, TagPointer:
		b = protowire.AppendTag(b, fieldItemSize, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.ItemSize))
		for i := range v.Items {
			sub := EncodeValue(nil, &v.Items[i])
			b = protowire.AppendTag(b, fieldItem, protowire.BytesType)
			b = protowire.AppendBytes(b, sub)
		}
		if v.PointerTarget != nil {
			sub := EncodeValue(nil, v.PointerTarget)
			b = protowire.AppendTag(b, fieldPointerTarget, protowire.BytesType)
			b = protowire.AppendBytes(b, sub)
		}
	case TagString:
		b = protowire.AppendTag(b, fieldStr, protowire.BytesType)
		b = protowire.AppendBytes(b, v.Str)
	case TagVariant:
		b = protowire.AppendTag(b, fieldVariantTagWidth, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.VariantTagWidth))
		b = protowire.AppendTag(b, fieldVariantCaseIdx, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.VariantCaseIndex))
		b = protowire.AppendTag(b, fieldVariantPayOff, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.VariantPayloadOff))
		if v.VariantPayload != nil {
			sub := EncodeValue(nil, v.VariantPayload)
			b = protowire.AppendTag(b, fieldVariantPayload, protowire.BytesType)
			b = protowire.AppendBytes(b, sub)
		}
	}
	return b
}

// DecodeValue parses one Value message from the front of b, returning the
// value and the number of bytes consumed.
func DecodeValue(b []byte) (*Value, int, error) {
	v := &Value{}
	total := 0
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, 0, werr.New(werr.Dispatch, "wire: malformed tag")
		}
		b, total = b[n:], total+n

		switch num {
		case fieldTag:
			x, n := protowire.ConsumeVarint(b)
			b, total = b[n:], total+n
			v.Tag = Tag(x)
		case fieldSize:
			x, n := protowire.ConsumeVarint(b)
			b, total = b[n:], total+n
			v.Size = int(x)
		case fieldAlign:
			x, n := protowire.ConsumeVarint(b)
			b, total = b[n:], total+n
			v.Align = int(x)
		case fieldHandle:
			x, n := protowire.ConsumeVarint(b)
			b, total = b[n:], total+n
			v.Handle = uint32(x)
		case fieldInt:
			x, n := protowire.ConsumeVarint(b)
			b, total = b[n:], total+n
			v.Int = protowire.DecodeZigZag(x)
		case fieldWidth:
			x, n := protowire.ConsumeVarint(b)
			b, total = b[n:], total+n
			v.Width = int(x)
		case fieldFlagsWidth:
			x, n := protowire.ConsumeVarint(b)
			b, total = b[n:], total+n
			v.FlagsWidth = int(x)
		case fieldFlagsBit:
			sub, n := protowire.ConsumeBytes(b)
			b, total = b[n:], total+n
			name, m := protowire.ConsumeString(sub)
			sub = sub[m:]
			set, _ := protowire.ConsumeVarint(sub)
			v.FlagsBits = append(v.FlagsBits, FlagsBit{Name: name, Set: set == 1})
		case fieldRecordMember:
			sub, n := protowire.ConsumeBytes(b)
			b, total = b[n:], total+n
			name, m := protowire.ConsumeString(sub)
			sub = sub[m:]
			offset, m2 := protowire.ConsumeVarint(sub)
			sub = sub[m2:]
			mv, _, err := DecodeValue(sub)
			if err != nil {
				return nil, 0, err
			}
			v.RecordMembers = append(v.RecordMembers, RecordMember{Name: name, Offset: int(offset), Value: *mv})
		case fieldItemSize:
			x, n := protowire.ConsumeVarint(b)
			b, total = b[n:], total+n
			v.ItemSize = int(x)
		case fieldItem:
			sub, n := protowire.ConsumeBytes(b)
			b, total = b[n:], total+n
			iv, _, err := DecodeValue(sub)
			if err != nil {
				return nil, 0, err
			}
			v.Items = append(v.Items, *iv)
		case fieldPointerTarget:
			sub, n := protowire.ConsumeBytes(b)
			b, total = b[n:], total+n
			pv, _, err := DecodeValue(sub)
			if err != nil {
				return nil, 0, err
			}
			v.PointerTarget = pv
		case fieldStr:
			s, n := protowire.ConsumeBytes(b)
			b, total = b[n:], total+n
			v.Str = append([]byte(nil), s...)
		case fieldVariantTagWidth:
			x, n := protowire.ConsumeVarint(b)
			b, total = b[n:], total+n
			v.VariantTagWidth = int(x)
		case fieldVariantCaseIdx:
			x, n := protowire.ConsumeVarint(b)
			b, total = b[n:], total+n
			v.VariantCaseIndex = int(x)
		case fieldVariantPayOff:
			x, n := protowire.ConsumeVarint(b)
			b, total = b[n:], total+n
			v.VariantPayloadOff = int(x)
		case fieldVariantPayload:
			sub, n := protowire.ConsumeBytes(b)
			b, total = b[n:], total+n
			pv, _, err := DecodeValue(sub)
			if err != nil {
				return nil, 0, err
			}
			v.VariantPayload = pv
		default:
			n := skipField(b, typ)
			if n < 0 {
				return nil, 0, werr.New(werr.Dispatch, "wire: malformed field %d", num)
			}
			b, total = b[n:], total+n
		}
	}
	return v, total, nil
}

func skipField(b []byte, typ protowire.Type) int {
	switch typ {
	case protowire.VarintType:
		_, n := protowire.ConsumeVarint(b)
		return n
	case protowire.BytesType:
		_, n := protowire.ConsumeBytes(b)
		return n
	case protowire.Fixed32Type:
		_, n := protowire.ConsumeFixed32(b)
		return n
	case protowire.Fixed64Type:
		_, n := protowire.ConsumeFixed64(b)
		return n
	}
	return -1
}

// WriteMessage writes a length-prefixed message to w (spec §6: "a
// length-prefixed protobuf stream over stdin/stdout of the guest
// executor"). The prefix is itself a protowire varint.
func WriteMessage(w io.Writer, payload []byte) error {
	var lenBuf []byte
	lenBuf = protowire.AppendVarint(lenBuf, uint64(len(payload)))
	if _, err := w.Write(lenBuf); err != nil {
		return werr.Wrap(werr.Dispatch, err, "writing message length prefix")
	}
	if _, err := w.Write(payload); err != nil {
		return werr.Wrap(werr.Dispatch, err, "writing message payload")
	}
	return nil
}

// ReadMessage reads one length-prefixed message from a buffered reader.
func ReadMessage(r *bufio.Reader) ([]byte, error) {
	var length uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, werr.Wrap(werr.Dispatch, err, "reading message length prefix")
		}
		length |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, werr.Wrap(werr.Dispatch, err, "reading message payload")
	}
	return payload, nil
}
