package codec

import (
	"math"
	"reflect"

	"liquidnet/buffer"
)

func (c *ObjectCodec) encodeRecord(ctx *EncodeContext, d *TypeDescriptor, v reflect.Value) error {
	if ctx.depth >= c.maxDepth {
		return ctx.fail(ErrDepthExceeded)
	}
	ctx.depth++
	defer func() { ctx.depth-- }()

	for i := range d.Fields {
		f := &d.Fields[i]
		ctx.path = append(ctx.path, f.Name)
		if err := c.encodeValue(ctx, &f.Value, v.Field(f.Index)); err != nil {
			return ctx.fail(err)
		}
		ctx.path = ctx.path[:len(ctx.path)-1]
	}
	return nil
}

func (c *ObjectCodec) encodeValue(ctx *EncodeContext, vd *ValueDescriptor, v reflect.Value) error {
	w := ctx.w
	if vd.Nullable {
		if v.IsNil() {
			w.WriteNullMarker()
			return nil
		}
		w.WritePresentMarker()
	}
	if vd.Pointer {
		v = v.Elem()
	}

	switch vd.Kind {
	case KindBool:
		w.WriteBool(v.Bool())
	case KindByte:
		if v.Kind() == reflect.Int8 {
			return w.WriteByte(byte(v.Int()))
		}
		return w.WriteByte(byte(v.Uint()))
	case KindShort, KindInt, KindLong:
		return encodeInteger(w, vd, v)
	case KindFloat:
		w.WriteFloat(float32(v.Float()))
	case KindDouble:
		w.WriteDouble(v.Float())
	case KindString:
		return w.WriteString(v.String())
	case KindEnum:
		var ord uint64
		if v.CanInt() {
			if v.Int() < 0 {
				return ErrEnumOrdinal
			}
			ord = uint64(v.Int())
		} else {
			ord = v.Uint()
		}
		if ord >= uint64(vd.EnumLen) {
			return ErrEnumOrdinal
		}
		w.WriteUnsignedVarInt(uint32(ord))
	case KindBytes:
		n := v.Len()
		if n > c.maxElements {
			return ErrTooLarge
		}
		w.WriteUnsignedVarInt(uint32(n))
		if v.Kind() == reflect.Slice {
			w.WriteBytes(v.Bytes())
			return nil
		}
		for i := 0; i < n; i++ {
			_ = w.WriteByte(byte(v.Index(i).Uint()))
		}
	case KindList:
		n := v.Len()
		if n > c.maxElements {
			return ErrTooLarge
		}
		w.WriteUnsignedVarInt(uint32(n))
		for i := 0; i < n; i++ {
			if err := c.encodeValue(ctx, vd.Elem, v.Index(i)); err != nil {
				return err
			}
		}
	case KindRecord:
		return c.encodeRecord(ctx, vd.Record, v)
	case KindCustom:
		if nilable(v.Type()) && v.IsNil() {
			return ErrNilValue
		}
		return vd.Custom.EncodeValue(ctx, v)
	default:
		return &DescriptorError{Type: vd.Type, Err: ErrUnsupportedType}
	}
	return nil
}

func encodeInteger(w *buffer.Writer, vd *ValueDescriptor, v reflect.Value) error {
	if !vd.Unsigned {
		switch vd.Kind {
		case KindShort:
			w.WriteShort(int16(v.Int()))
		case KindInt:
			w.WriteInt(int32(v.Int()))
		default:
			w.WriteLong(v.Int())
		}
		return nil
	}

	var u uint64
	if v.CanInt() {
		if v.Int() < 0 {
			return ErrNegativeUnsigned
		}
		u = uint64(v.Int())
	} else {
		u = v.Uint()
	}
	switch vd.Kind {
	case KindShort:
		w.WriteUnsignedVarShort(uint16(u))
	case KindInt:
		w.WriteUnsignedVarInt(uint32(u))
	default:
		w.WriteUnsignedVarLong(u)
	}
	return nil
}

func (c *ObjectCodec) decodeRecord(ctx *DecodeContext, d *TypeDescriptor, v reflect.Value) error {
	if ctx.depth >= c.maxDepth {
		return ctx.fail(ErrDepthExceeded)
	}
	ctx.depth++
	defer func() { ctx.depth-- }()

	for i := range d.Fields {
		f := &d.Fields[i]
		ctx.path = append(ctx.path, f.Name)
		if err := c.decodeValue(ctx, &f.Value, v.Field(f.Index)); err != nil {
			return ctx.fail(err)
		}
		ctx.path = ctx.path[:len(ctx.path)-1]
	}
	return nil
}

// decodeValue reads one value into dst, which holds the zero value of the
// field's declared type.
func (c *ObjectCodec) decodeValue(ctx *DecodeContext, vd *ValueDescriptor, dst reflect.Value) error {
	r := ctx.r
	if vd.Nullable {
		if r.PeekIsNullMarker() {
			return r.SkipByte()
		}
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != buffer.PresentMarker {
			return ErrCorruptPresence
		}
	}
	if vd.Pointer {
		p := reflect.New(vd.Type)
		if err := c.decodePayload(ctx, vd, p.Elem()); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}
	return c.decodePayload(ctx, vd, dst)
}

func (c *ObjectCodec) decodePayload(ctx *DecodeContext, vd *ValueDescriptor, dst reflect.Value) error {
	r := ctx.r
	switch vd.Kind {
	case KindBool:
		b, err := r.ReadBool()
		if err != nil {
			return err
		}
		dst.SetBool(b)
	case KindByte:
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if dst.Kind() == reflect.Int8 {
			dst.SetInt(int64(int8(b)))
		} else {
			dst.SetUint(uint64(b))
		}
	case KindShort, KindInt, KindLong:
		return decodeInteger(r, vd, dst)
	case KindFloat:
		f, err := r.ReadFloat()
		if err != nil {
			return err
		}
		dst.SetFloat(float64(f))
	case KindDouble:
		f, err := r.ReadDouble()
		if err != nil {
			return err
		}
		dst.SetFloat(f)
	case KindString:
		s, err := r.ReadString()
		if err != nil {
			return err
		}
		dst.SetString(s)
	case KindEnum:
		ord, err := r.ReadUnsignedVarInt()
		if err != nil {
			return err
		}
		if uint64(ord) >= uint64(vd.EnumLen) {
			return ErrEnumOrdinal
		}
		if dst.CanInt() {
			if dst.OverflowInt(int64(ord)) {
				return ErrEnumOrdinal
			}
			dst.SetInt(int64(ord))
		} else {
			if dst.OverflowUint(uint64(ord)) {
				return ErrEnumOrdinal
			}
			dst.SetUint(uint64(ord))
		}
	case KindBytes:
		n, err := c.readCount(r)
		if err != nil {
			return err
		}
		if vd.FixedLen > 0 && n != vd.FixedLen {
			return ErrLengthMismatch
		}
		b, err := r.ReadBytes(n)
		if err != nil {
			return err
		}
		if dst.Kind() == reflect.Slice {
			dst.SetBytes(b)
			return nil
		}
		for i, x := range b {
			dst.Index(i).SetUint(uint64(x))
		}
	case KindList:
		n, err := c.readCount(r)
		if err != nil {
			return err
		}
		// Every element takes at least one byte, so the remaining input caps
		// how much a hostile count can make us preallocate.
		list := reflect.MakeSlice(vd.Type, 0, min(n, r.Remaining()))
		for i := 0; i < n; i++ {
			elem := reflect.New(vd.Type.Elem()).Elem()
			if err := c.decodeValue(ctx, vd.Elem, elem); err != nil {
				return err
			}
			list = reflect.Append(list, elem)
		}
		dst.Set(list)
	case KindRecord:
		return c.decodeRecord(ctx, vd.Record, dst)
	case KindCustom:
		saved := ctx.target
		ctx.target = vd.Type
		v, err := vd.Custom.DecodeValue(ctx, vd.Type)
		ctx.target = saved
		if err != nil {
			return err
		}
		v, err = assignable(v, vd.Type)
		if err != nil {
			return err
		}
		dst.Set(v)
	default:
		return &DescriptorError{Type: vd.Type, Err: ErrUnsupportedType}
	}
	return nil
}

func (c *ObjectCodec) readCount(r *buffer.Reader) (int, error) {
	n, err := r.ReadUnsignedVarInt()
	if err != nil {
		return 0, err
	}
	if uint64(n) > uint64(c.maxElements) {
		return 0, ErrTooLarge
	}
	return int(n), nil
}

func decodeInteger(r *buffer.Reader, vd *ValueDescriptor, dst reflect.Value) error {
	if !vd.Unsigned {
		var x int64
		switch vd.Kind {
		case KindShort:
			v, err := r.ReadShort()
			if err != nil {
				return err
			}
			x = int64(v)
		case KindInt:
			v, err := r.ReadInt()
			if err != nil {
				return err
			}
			x = int64(v)
		default:
			v, err := r.ReadLong()
			if err != nil {
				return err
			}
			x = v
		}
		dst.SetInt(x)
		return nil
	}

	var u uint64
	switch vd.Kind {
	case KindShort:
		v, err := r.ReadUnsignedVarShort()
		if err != nil {
			return err
		}
		u = uint64(v)
	case KindInt:
		v, err := r.ReadUnsignedVarInt()
		if err != nil {
			return err
		}
		u = uint64(v)
	default:
		v, err := r.ReadUnsignedVarLong()
		if err != nil {
			return err
		}
		u = v
	}
	if dst.CanInt() {
		if u > math.MaxInt64 || dst.OverflowInt(int64(u)) {
			return ErrVarintOverflow
		}
		dst.SetInt(int64(u))
		return nil
	}
	dst.SetUint(u)
	return nil
}
