// Package catalog holds the concrete packets exchanged between the game
// client and the online-features server, and the codecs for the library
// types they embed.
package catalog

import (
	"time"

	"github.com/google/uuid"

	"liquidnet/codec"
	"liquidnet/packet"
)

// Packets returns one zero value of every packet in the catalog.
func Packets() []packet.Packet {
	return []packet.Packet{
		C2SUpdateSkin{},
		C2SStopBeingFriends{},
		C2SInvitePartyMember{},
		S2CIncomingFriendRequestRejected{},
		S2CInvitePartyMemberResult{},
	}
}

// Registry returns the custom codecs packets in this catalog rely on:
// uuid.UUID as 16 raw bytes and time.Time as signed unix milliseconds.
func Registry() (*codec.Registry, error) {
	b := codec.NewRegistryBuilder()
	codec.RegisterFunc(b, encodeUUID, decodeUUID)
	codec.RegisterFunc(b, encodeTime, decodeTime)
	return b.Build()
}

// New builds the packet catalog with its object codec.
func New(opts ...codec.Option) (*packet.Catalog, error) {
	reg, err := Registry()
	if err != nil {
		return nil, err
	}
	return packet.NewCatalog(codec.NewObjectCodec(reg, opts...), Packets()...)
}

func encodeUUID(ctx *codec.EncodeContext, id uuid.UUID) error {
	ctx.Writer().WriteBytes(id[:])
	return nil
}

func decodeUUID(ctx *codec.DecodeContext) (uuid.UUID, error) {
	b, err := ctx.Reader().ReadBytes(16)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(b)
}

func encodeTime(ctx *codec.EncodeContext, t time.Time) error {
	ctx.Writer().WriteLong(t.UnixMilli())
	return nil
}

func decodeTime(ctx *codec.DecodeContext) (time.Time, error) {
	ms, err := ctx.Reader().ReadLong()
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
