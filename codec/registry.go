package codec

import (
	"errors"
	"fmt"
	"reflect"
)

// TypeCodec encodes and decodes values of a type the built-in shapes do not
// cover. Implementations may call back into the object codec through the
// context to encode nested records.
type TypeCodec interface {
	EncodeValue(ctx *EncodeContext, v reflect.Value) error
	// DecodeValue returns a value assignable to t.
	DecodeValue(ctx *DecodeContext, t reflect.Type) (reflect.Value, error)
}

type interfaceCodec struct {
	iface reflect.Type
	codec TypeCodec
}

// Registry maps Go types to custom codecs. It is immutable once built and
// safe for concurrent use.
type Registry struct {
	exact      map[reflect.Type]TypeCodec
	fallbacks  map[reflect.Type][]reflect.Type
	interfaces []interfaceCodec
}

// RegistryBuilder collects registrations. It is not safe for concurrent use.
type RegistryBuilder struct {
	exact      map[reflect.Type]TypeCodec
	fallbacks  map[reflect.Type][]reflect.Type
	interfaces []interfaceCodec
	errs       []error
}

func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{
		exact:     make(map[reflect.Type]TypeCodec),
		fallbacks: make(map[reflect.Type][]reflect.Type),
	}
}

// Register binds tc to t. Interface types also take part in fallback lookup
// for structs implementing them, in registration order.
func (b *RegistryBuilder) Register(t reflect.Type, tc TypeCodec) *RegistryBuilder {
	switch {
	case t == nil:
		b.errs = append(b.errs, errors.New("codec: register nil type"))
		return b
	case tc == nil:
		b.errs = append(b.errs, fmt.Errorf("codec: register %s: nil codec", t))
		return b
	}
	if _, dup := b.exact[t]; dup {
		b.errs = append(b.errs, fmt.Errorf("codec: %s registered twice", t))
		return b
	}
	b.exact[t] = tc
	if t.Kind() == reflect.Interface {
		b.interfaces = append(b.interfaces, interfaceCodec{iface: t, codec: tc})
	}
	return b
}

// Fallback declares the types whose codecs serve t when t has none of its
// own, most specific first.
func (b *RegistryBuilder) Fallback(t reflect.Type, parents ...reflect.Type) *RegistryBuilder {
	if t == nil {
		b.errs = append(b.errs, errors.New("codec: fallback for nil type"))
		return b
	}
	for _, p := range parents {
		if p == nil || p == t {
			b.errs = append(b.errs, fmt.Errorf("codec: invalid fallback %v for %s", p, t))
			return b
		}
	}
	b.fallbacks[t] = append(b.fallbacks[t], parents...)
	return b
}

// Build freezes the registrations. The builder may be reused afterwards;
// the returned Registry does not share its maps.
func (b *RegistryBuilder) Build() (*Registry, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	r := &Registry{
		exact:      make(map[reflect.Type]TypeCodec, len(b.exact)),
		fallbacks:  make(map[reflect.Type][]reflect.Type, len(b.fallbacks)),
		interfaces: append([]interfaceCodec(nil), b.interfaces...),
	}
	for t, tc := range b.exact {
		r.exact[t] = tc
	}
	for t, ps := range b.fallbacks {
		r.fallbacks[t] = append([]reflect.Type(nil), ps...)
	}
	return r, nil
}

// RegisterFunc registers a codec for T built from two plain functions.
func RegisterFunc[T any](b *RegistryBuilder, enc func(*EncodeContext, T) error, dec func(*DecodeContext) (T, error)) *RegistryBuilder {
	t := reflect.TypeFor[T]()
	return b.Register(t, funcCodec[T]{enc: enc, dec: dec})
}

// Len reports the number of exact registrations.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.exact)
}

func (r *Registry) lookupExact(t reflect.Type) (TypeCodec, bool) {
	if r == nil {
		return nil, false
	}
	tc, ok := r.exact[t]
	return tc, ok
}

// Lookup finds the codec for t: an exact registration, then for struct types
// the declared fallbacks and finally registered interfaces. Embedding a
// registered type does not make its codec serve the outer struct; such
// structs are encoded field by field.
func (r *Registry) Lookup(t reflect.Type) (TypeCodec, bool) {
	if r == nil {
		return nil, false
	}
	if tc, ok := r.exact[t]; ok {
		return tc, true
	}
	if t.Kind() != reflect.Struct {
		return nil, false
	}
	if tc, ok := r.lookupAncestors(t, t, map[reflect.Type]bool{t: true}); ok {
		return tc, true
	}
	for _, ic := range r.interfaces {
		if t.Implements(ic.iface) || reflect.PointerTo(t).Implements(ic.iface) {
			return ic.codec, true
		}
	}
	return nil, false
}

func (r *Registry) lookupAncestors(root, t reflect.Type, seen map[reflect.Type]bool) (TypeCodec, bool) {
	for _, p := range r.fallbacks[t] {
		if seen[p] {
			continue
		}
		seen[p] = true
		if tc, ok := r.exact[p]; ok {
			return adaptAncestor(root, p, tc), true
		}
		if tc, ok := r.lookupAncestors(root, p, seen); ok {
			return tc, true
		}
	}
	return nil, false
}

// adaptAncestor narrows values of root to an embedded declared fallback when
// one exists, so the fallback's codec sees the type it was registered for.
func adaptAncestor(root, ancestor reflect.Type, tc TypeCodec) TypeCodec {
	index, ok := embedIndex(root, ancestor)
	if !ok {
		return tc
	}
	return embeddedCodec{inner: tc, ancestor: ancestor, index: index}
}

func embedIndex(t, target reflect.Type) ([]int, bool) {
	if t.Kind() != reflect.Struct {
		return nil, false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous || !f.IsExported() || f.Type.Kind() != reflect.Struct {
			continue
		}
		if f.Type == target {
			return []int{i}, true
		}
		if rest, ok := embedIndex(f.Type, target); ok {
			return append([]int{i}, rest...), true
		}
	}
	return nil, false
}

type embeddedCodec struct {
	inner    TypeCodec
	ancestor reflect.Type
	index    []int
}

func (c embeddedCodec) EncodeValue(ctx *EncodeContext, v reflect.Value) error {
	return c.inner.EncodeValue(ctx, v.FieldByIndex(c.index))
}

func (c embeddedCodec) DecodeValue(ctx *DecodeContext, t reflect.Type) (reflect.Value, error) {
	av, err := c.inner.DecodeValue(ctx, c.ancestor)
	if err != nil {
		return reflect.Value{}, err
	}
	av, err = assignable(av, c.ancestor)
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.New(t).Elem()
	out.FieldByIndex(c.index).Set(av)
	return out, nil
}

type funcCodec[T any] struct {
	enc func(*EncodeContext, T) error
	dec func(*DecodeContext) (T, error)
}

func (c funcCodec[T]) EncodeValue(ctx *EncodeContext, v reflect.Value) error {
	x, ok := asType[T](v)
	if !ok {
		return fmt.Errorf("%w: %s is not %s", ErrCustomCodec, v.Type(), reflect.TypeFor[T]())
	}
	return c.enc(ctx, x)
}

func (c funcCodec[T]) DecodeValue(ctx *DecodeContext, t reflect.Type) (reflect.Value, error) {
	x, err := c.dec(ctx)
	if err != nil {
		return reflect.Value{}, err
	}
	rv := reflect.ValueOf(&x).Elem()
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: nil %s", ErrCustomCodec, t)
		}
		rv = rv.Elem()
	}
	return assignable(rv, t)
}

func asType[T any](v reflect.Value) (T, bool) {
	var zero T
	if !v.IsValid() {
		return zero, false
	}
	if x, ok := v.Interface().(T); ok {
		return x, true
	}
	if v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		return zero, false
	}
	p := reflect.New(v.Type())
	p.Elem().Set(v)
	x, ok := p.Interface().(T)
	return x, ok
}

// assignable converts v to something assignable to t, dereferencing a
// pointer to t if needed.
func assignable(v reflect.Value, t reflect.Type) (reflect.Value, error) {
	switch {
	case v.Type().AssignableTo(t):
		return v, nil
	case v.Kind() == reflect.Pointer && !v.IsNil() && v.Type().Elem().AssignableTo(t):
		return v.Elem(), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: got %s, want %s", ErrCustomCodec, v.Type(), t)
}
