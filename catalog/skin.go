package catalog

import "liquidnet/packet"

// SkinSize is the byte length of a 16x16 RGBA head skin.
const SkinSize = 16 * 16 * 4

// C2SUpdateSkin is sent when the player's head skin changes.
type C2SUpdateSkin struct {
	Skin []byte `json:"s"`
}

func (C2SUpdateSkin) ID() byte            { return 6 }
func (C2SUpdateSkin) Bound() packet.Bound { return packet.BoundServer }
