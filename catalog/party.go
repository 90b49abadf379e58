package catalog

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"liquidnet/packet"
)

// InviteResult is the outcome of a party invitation.
type InviteResult uint8

const (
	InviteInvited InviteResult = iota
	InviteNotInAParty
	InviteAlreadyInAParty
	InviteNotEnoughRights
	InviteNotFound // receiver offline or not a friend
)

var inviteResultNames = [...]string{
	InviteInvited:         "invited",
	InviteNotInAParty:     "not_in_a_party",
	InviteAlreadyInAParty: "already_in_a_party",
	InviteNotEnoughRights: "not_enough_rights",
	InviteNotFound:        "not_found",
}

func (InviteResult) EnumLen() int { return len(inviteResultNames) }

func (r InviteResult) String() string {
	if int(r) < len(inviteResultNames) {
		return inviteResultNames[r]
	}
	return fmt.Sprintf("invite_result(%d)", uint8(r))
}

// InvitedMemberDto describes a pending party invitation. ExpiresAt travels
// as UTC unix milliseconds; finer precision and the location are not kept.
type InvitedMemberDto struct {
	InviteID  int32     `wire:"unsigned" json:"i"`
	Username  string    `json:"u"`
	PlayerID  uuid.UUID `json:"p"`
	ExpiresAt time.Time `json:"e"`
}

// C2SInvitePartyMember asks the server to invite Username to the sender's
// party.
type C2SInvitePartyMember struct {
	Username string `json:"u"`
}

func (C2SInvitePartyMember) ID() byte            { return 16 }
func (C2SInvitePartyMember) Bound() packet.Bound { return packet.BoundServer }

// S2CInvitePartyMemberResult answers C2SInvitePartyMember. Invite is set
// only when Result is InviteInvited.
type S2CInvitePartyMemberResult struct {
	Result InviteResult      `json:"r"`
	Invite *InvitedMemberDto `json:"i,omitempty"`
}

func (S2CInvitePartyMemberResult) ID() byte            { return 25 }
func (S2CInvitePartyMemberResult) Bound() packet.Bound { return packet.BoundClient }
