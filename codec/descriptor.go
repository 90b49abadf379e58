package codec

import (
	"fmt"
	"reflect"
)

// Kind is the wire shape of a value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool         // one byte, 0 or 1
	KindByte         // one raw byte (int8, uint8)
	KindShort        // int16 big-endian, or unsigned varint
	KindInt          // int32 big-endian, or unsigned varint
	KindLong         // int64 big-endian, or unsigned varint
	KindFloat        // IEEE-754 32-bit
	KindDouble       // IEEE-754 64-bit
	KindString       // varint length + UTF-8
	KindEnum         // varint ordinal
	KindBytes        // varint length + raw bytes
	KindList         // varint count + elements
	KindRecord       // fields in declaration order
	KindCustom       // registered TypeCodec
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindBool:    "bool",
	KindByte:    "byte",
	KindShort:   "short",
	KindInt:     "int",
	KindLong:    "long",
	KindFloat:   "float",
	KindDouble:  "double",
	KindString:  "string",
	KindEnum:    "enum",
	KindBytes:   "bytes",
	KindList:    "list",
	KindRecord:  "record",
	KindCustom:  "custom",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Enum is implemented by named integer types whose values are the ordinals
// 0 through EnumLen()-1. The method must have a value receiver.
type Enum interface {
	EnumLen() int
}

var enumType = reflect.TypeFor[Enum]()

// ValueDescriptor says how one value is laid out on the wire.
type ValueDescriptor struct {
	Kind Kind
	// Type is the payload type. For pointer fields it is the pointee.
	Type reflect.Type
	// Pointer is set when the Go value is a pointer to Type.
	Pointer bool
	// Nullable values carry a presence byte.
	Nullable bool
	Unsigned bool
	// EnumLen is the ordinal count of a KindEnum.
	EnumLen int
	// FixedLen is the length of a [N]byte array, 0 otherwise.
	FixedLen int
	Elem     *ValueDescriptor
	Record   *TypeDescriptor
	Custom   TypeCodec
}

// FieldDescriptor is one encoded struct field.
type FieldDescriptor struct {
	Name  string
	Index int
	Value ValueDescriptor
}

// TypeDescriptor is the ordered field list of a record type. Descriptors are
// built once per type and never modified after they are published.
type TypeDescriptor struct {
	Type   reflect.Type
	Fields []FieldDescriptor
}

// Describe returns the descriptor for struct type t, building and caching it
// on first use. Pointer types are dereferenced once.
func (c *ObjectCodec) Describe(t reflect.Type) (*TypeDescriptor, error) {
	if t == nil {
		return nil, &DescriptorError{Err: ErrUnsupportedType, Reason: "nil type"}
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if d, ok := c.descriptors.Load(t); ok {
		return d.(*TypeDescriptor), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	building := make(map[reflect.Type]*TypeDescriptor)
	d, err := c.describeRecord(t, building)
	if err != nil {
		return nil, err
	}
	// Publish the whole batch only once every type in it is complete, so
	// recursive types never expose a half-built descriptor.
	for bt, bd := range building {
		c.descriptors.Store(bt, bd)
	}
	return d, nil
}

func (c *ObjectCodec) describeRecord(t reflect.Type, building map[reflect.Type]*TypeDescriptor) (*TypeDescriptor, error) {
	if d, ok := c.descriptors.Load(t); ok {
		return d.(*TypeDescriptor), nil
	}
	if d, ok := building[t]; ok {
		return d, nil
	}
	if t.Kind() != reflect.Struct {
		return nil, &DescriptorError{Type: t, Err: ErrUnsupportedType, Reason: "records must be structs"}
	}

	d := &TypeDescriptor{Type: t}
	building[t] = d
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		opts, err := parseTag(f.Tag.Get(tagName))
		if err != nil {
			return nil, &DescriptorError{Type: t, Field: f.Name, Err: ErrInvalidAnnotation, Reason: err.Error()}
		}
		if opts.skip {
			continue
		}
		vd, err := c.describeValue(f.Type, opts, building)
		if err != nil {
			return nil, locate(err, t, f.Name)
		}
		d.Fields = append(d.Fields, FieldDescriptor{Name: f.Name, Index: i, Value: *vd})
	}
	return d, nil
}

// locate fills in the outermost field that led to a structural error.
func locate(err error, t reflect.Type, field string) error {
	de, ok := err.(*DescriptorError)
	if !ok {
		return err
	}
	if de.Type == nil {
		de.Type, de.Field = t, field
	}
	return de
}

func structural(reason string, sentinel error) *DescriptorError {
	return &DescriptorError{Err: sentinel, Reason: reason}
}

func (c *ObjectCodec) describeValue(t reflect.Type, opts fieldOptions, building map[reflect.Type]*TypeDescriptor) (*ValueDescriptor, error) {
	if tc, ok := c.registry.lookupExact(t); ok {
		if opts.unsigned {
			return nil, structural("unsigned on custom type "+t.String(), ErrInvalidAnnotation)
		}
		nullable := opts.nullable || t.Kind() == reflect.Pointer
		if nullable && !nilable(t) {
			return nil, structural("nullable on non-nilable custom type "+t.String(), ErrInvalidAnnotation)
		}
		return &ValueDescriptor{Kind: KindCustom, Type: t, Nullable: nullable, Custom: tc}, nil
	}

	if t.Kind() == reflect.Pointer {
		if t.Elem().Kind() == reflect.Pointer {
			return nil, structural("pointer to pointer "+t.String(), ErrUnsupportedType)
		}
		inner := opts
		inner.nullable = false
		vd, err := c.describeValue(t.Elem(), inner, building)
		if err != nil {
			return nil, err
		}
		if vd.Nullable {
			return nil, structural("pointer to nullable "+t.String(), ErrUnsupportedType)
		}
		vd.Pointer = true
		vd.Nullable = true
		return vd, nil
	}

	vd := &ValueDescriptor{Type: t, Nullable: opts.nullable}
	if opts.nullable && t.Kind() != reflect.Slice {
		return nil, structural("nullable needs a pointer or slice, got "+t.String(), ErrInvalidAnnotation)
	}

	if isEnum(t) {
		if opts.unsigned {
			return nil, structural("unsigned on enum "+t.String(), ErrInvalidAnnotation)
		}
		n := reflect.Zero(t).Interface().(Enum).EnumLen()
		if n <= 0 {
			return nil, structural(fmt.Sprintf("enum %s has %d values", t, n), ErrUnsupportedType)
		}
		vd.Kind = KindEnum
		vd.EnumLen = n
		return vd, nil
	}

	if opts.unsigned && !isInteger(t.Kind()) && t.Kind() != reflect.Slice {
		return nil, structural("unsigned on non-integer "+t.String(), ErrInvalidAnnotation)
	}

	switch t.Kind() {
	case reflect.Bool:
		vd.Kind = KindBool
	case reflect.Int8, reflect.Uint8:
		vd.Kind = KindByte
	case reflect.Int16, reflect.Uint16:
		vd.Kind = KindShort
		vd.Unsigned = opts.unsigned || t.Kind() == reflect.Uint16
	case reflect.Int32, reflect.Uint32:
		vd.Kind = KindInt
		vd.Unsigned = opts.unsigned || t.Kind() == reflect.Uint32
	case reflect.Int64, reflect.Uint64:
		vd.Kind = KindLong
		vd.Unsigned = opts.unsigned || t.Kind() == reflect.Uint64
	case reflect.Int, reflect.Uint, reflect.Uintptr:
		return nil, structural(t.String()+" has platform-dependent width, use a sized integer", ErrUnsupportedType)
	case reflect.Float32:
		vd.Kind = KindFloat
	case reflect.Float64:
		vd.Kind = KindDouble
	case reflect.String:
		vd.Kind = KindString
	case reflect.Array:
		if !c.isRawByte(t.Elem()) {
			return nil, structural("arrays other than [N]byte are not supported: "+t.String(), ErrUnsupportedType)
		}
		vd.Kind = KindBytes
		vd.FixedLen = t.Len()
	case reflect.Slice:
		if c.isRawByte(t.Elem()) {
			if opts.unsigned {
				return nil, structural("unsigned on byte slice "+t.String(), ErrInvalidAnnotation)
			}
			vd.Kind = KindBytes
			break
		}
		elem, err := c.describeValue(t.Elem(), fieldOptions{unsigned: opts.unsigned}, building)
		if err != nil {
			return nil, err
		}
		vd.Kind = KindList
		vd.Elem = elem
	case reflect.Struct:
		if tc, ok := c.registry.Lookup(t); ok {
			vd.Kind = KindCustom
			vd.Custom = tc
			break
		}
		rd, err := c.describeRecord(t, building)
		if err != nil {
			return nil, err
		}
		vd.Kind = KindRecord
		vd.Record = rd
	default:
		return nil, structural(t.Kind().String()+" fields are not supported", ErrUnsupportedType)
	}
	return vd, nil
}

// isRawByte reports whether slices of t are byte strings rather than lists.
func (c *ObjectCodec) isRawByte(t reflect.Type) bool {
	if t.Kind() != reflect.Uint8 || isEnum(t) {
		return false
	}
	_, custom := c.registry.lookupExact(t)
	return !custom
}

func isEnum(t reflect.Type) bool {
	if !t.Implements(enumType) {
		return false
	}
	k := t.Kind()
	return isInteger(k) || k == reflect.Int || k == reflect.Uint
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return true
	}
	return false
}
