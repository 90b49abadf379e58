package packet

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"liquidnet/codec"
)

type ping struct {
	Nonce int64
}

func (ping) ID() byte     { return 1 }
func (ping) Bound() Bound { return BoundServer }

type pong struct {
	Nonce int64
}

func (pong) ID() byte     { return 1 }
func (pong) Bound() Bound { return BoundClient }

type clash struct{}

func (clash) ID() byte     { return 1 }
func (clash) Bound() Bound { return BoundServer }

type broken struct {
	N int
}

func (broken) ID() byte     { return 2 }
func (broken) Bound() Bound { return BoundServer }

type stray struct{}

func (stray) ID() byte     { return 9 }
func (stray) Bound() Bound { return BoundClient }

func TestCatalogRoundTrip(t *testing.T) {
	cat, err := NewCatalog(codec.NewObjectCodec(nil), ping{}, &pong{})
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("expected 2 packets, got %d", cat.Len())
	}

	body, err := cat.Encode(&ping{Nonce: 42})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	p, err := cat.Decode(BoundServer, 1, body)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if diff := cmp.Diff(&ping{Nonce: 42}, p); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	// Same id, other direction, other type.
	p, err = cat.Decode(BoundClient, 1, body)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if _, ok := p.(*pong); !ok {
		t.Fatalf("expected *pong, got %T", p)
	}
}

func TestCatalogJSON(t *testing.T) {
	cat, _ := NewCatalog(codec.NewObjectCodec(nil), ping{})
	body, err := cat.EncodeWith(&codec.JSONCodec{}, ping{Nonce: 7})
	if err != nil {
		t.Fatalf("EncodeWith failed: %v", err)
	}
	if string(body) != `{"Nonce":7}` {
		t.Fatalf("unexpected json %s", body)
	}
	p, err := cat.DecodeWith(&codec.JSONCodec{}, BoundServer, 1, body)
	if err != nil {
		t.Fatalf("DecodeWith failed: %v", err)
	}
	if p.(*ping).Nonce != 7 {
		t.Fatalf("unexpected packet %+v", p)
	}
}

func TestCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewCatalog(codec.NewObjectCodec(nil), ping{}, clash{})
	if !errors.Is(err, ErrDuplicatePacket) {
		t.Fatalf("expected ErrDuplicatePacket, got %v", err)
	}
}

func TestCatalogRejectsUnencodableTypes(t *testing.T) {
	_, err := NewCatalog(codec.NewObjectCodec(nil), broken{})
	if !codec.IsStructural(err) {
		t.Fatalf("expected a structural error, got %v", err)
	}
}

func TestCatalogUnknownPacket(t *testing.T) {
	cat, _ := NewCatalog(codec.NewObjectCodec(nil), ping{})
	if _, err := cat.Decode(BoundServer, 99, nil); !errors.Is(err, ErrUnknownPacket) {
		t.Fatalf("expected ErrUnknownPacket on decode, got %v", err)
	}
	if _, err := cat.Encode(stray{}); !errors.Is(err, ErrUnknownPacket) {
		t.Fatalf("expected ErrUnknownPacket on encode, got %v", err)
	}
}

func TestCatalogEntriesOrder(t *testing.T) {
	cat, _ := NewCatalog(codec.NewObjectCodec(nil), stray{}, ping{}, pong{})
	var got []string
	for _, e := range cat.Entries() {
		got = append(got, e.Bound.String()+":"+e.Type.Name())
	}
	want := []string{"client:pong", "client:stray", "server:ping"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestBound(t *testing.T) {
	if BoundClient.Opposite() != BoundServer || BoundServer.Opposite() != BoundClient {
		t.Fatalf("Opposite is not symmetric")
	}
	if Bound(7).Valid() {
		t.Fatalf("Bound(7) reported valid")
	}
	if Bound(7).String() != "bound(7)" {
		t.Fatalf("unexpected String %q", Bound(7).String())
	}
}
