package packet

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"liquidnet/codec"
)

var (
	ErrUnknownPacket   = errors.New("packet: unknown packet")
	ErrDuplicatePacket = errors.New("packet: duplicate packet id")
)

type key struct {
	bound Bound
	id    byte
}

// Catalog maps (bound, id) to a packet struct type. It is immutable after
// NewCatalog and safe for concurrent use.
type Catalog struct {
	codec *codec.ObjectCodec
	types map[key]reflect.Type
}

// NewCatalog registers packets, given as zero values or pointers to them. It
// describes every type up front so a struct the codec cannot handle fails
// here rather than on the first frame.
func NewCatalog(c *codec.ObjectCodec, packets ...Packet) (*Catalog, error) {
	cat := &Catalog{
		codec: c,
		types: make(map[key]reflect.Type, len(packets)),
	}
	for _, p := range packets {
		if p == nil {
			return nil, errors.New("packet: nil packet in catalog")
		}
		t := reflect.TypeOf(p)
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if !p.Bound().Valid() {
			return nil, fmt.Errorf("packet: %s has invalid bound %s", t, p.Bound())
		}
		k := key{bound: p.Bound(), id: p.ID()}
		if prev, ok := cat.types[k]; ok {
			return nil, fmt.Errorf("%w: %s and %s both use %s-bound id %d", ErrDuplicatePacket, prev, t, k.bound, k.id)
		}
		if _, err := c.Describe(t); err != nil {
			return nil, fmt.Errorf("packet: %s: %w", t, err)
		}
		cat.types[k] = t
	}
	return cat, nil
}

func (c *Catalog) Codec() *codec.ObjectCodec {
	return c.codec
}

func (c *Catalog) Len() int {
	return len(c.types)
}

// Lookup returns the struct type registered for (bound, id).
func (c *Catalog) Lookup(bound Bound, id byte) (reflect.Type, bool) {
	t, ok := c.types[key{bound: bound, id: id}]
	return t, ok
}

// New returns a pointer to a fresh zero packet of the registered type.
func (c *Catalog) New(bound Bound, id byte) (Packet, error) {
	t, ok := c.Lookup(bound, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s-bound id %d", ErrUnknownPacket, bound, id)
	}
	p, ok := reflect.New(t).Interface().(Packet)
	if !ok {
		return nil, fmt.Errorf("packet: %s does not implement Packet", t)
	}
	return p, nil
}

// Decode decodes body with the object codec into a new packet of the
// registered type.
func (c *Catalog) Decode(bound Bound, id byte, body []byte) (Packet, error) {
	return c.DecodeWith(c.codec, bound, id, body)
}

// DecodeWith is Decode with an explicit codec, for frames that were not
// encoded with the object codec.
func (c *Catalog) DecodeWith(cd codec.Codec, bound Bound, id byte, body []byte) (Packet, error) {
	p, err := c.New(bound, id)
	if err != nil {
		return nil, err
	}
	if err := cd.Decode(body, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Encode encodes p with the object codec. p must be a registered packet.
func (c *Catalog) Encode(p Packet) ([]byte, error) {
	return c.EncodeWith(c.codec, p)
}

func (c *Catalog) EncodeWith(cd codec.Codec, p Packet) ([]byte, error) {
	if err := c.check(p); err != nil {
		return nil, err
	}
	return cd.Encode(p)
}

func (c *Catalog) check(p Packet) error {
	if p == nil {
		return fmt.Errorf("%w: nil", ErrUnknownPacket)
	}
	t := reflect.TypeOf(p)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if want, ok := c.Lookup(p.Bound(), p.ID()); !ok || want != t {
		return fmt.Errorf("%w: %s (%s-bound id %d)", ErrUnknownPacket, t, p.Bound(), p.ID())
	}
	return nil
}

// Entry describes one registered packet.
type Entry struct {
	Bound Bound
	ID    byte
	Type  reflect.Type
}

// Entries lists the registered packets ordered by bound, then id.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.types))
	for k, t := range c.types {
		out = append(out, Entry{Bound: k.bound, ID: k.id, Type: t})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bound != out[j].Bound {
			return out[i].Bound < out[j].Bound
		}
		return out[i].ID < out[j].ID
	})
	return out
}
