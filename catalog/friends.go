package catalog

import "liquidnet/packet"

// C2SStopBeingFriends ends the friendship with FriendID.
type C2SStopBeingFriends struct {
	FriendID int32 `wire:"unsigned" json:"i"`
}

func (C2SStopBeingFriends) ID() byte            { return 11 }
func (C2SStopBeingFriends) Bound() packet.Bound { return packet.BoundServer }

// S2CIncomingFriendRequestRejected tells the receiver of a friend request
// that the sender withdrew it.
type S2CIncomingFriendRequestRejected struct {
	From      string `json:"f"`
	RequestID int32  `wire:"unsigned" json:"i"`
}

func (S2CIncomingFriendRequestRejected) ID() byte            { return 21 }
func (S2CIncomingFriendRequestRejected) Bound() packet.Bound { return packet.BoundClient }
