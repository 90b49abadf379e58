package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"liquidnet/catalog"
	"liquidnet/packet"
	"liquidnet/server"
)

const inviteTTL = time.Minute

// Online keeps just enough state to answer the online-features packets:
// head skins per session and party invitations.
type Online struct {
	logger *zap.Logger

	mu       sync.Mutex
	skins    map[string][]byte // session → skin
	nextID   int32
	invitees map[string]int32 // username → pending invite id
}

func NewOnline(logger *zap.Logger) *Online {
	return &Online{
		logger:   logger,
		skins:    make(map[string][]byte),
		invitees: make(map[string]int32),
	}
}

// Skin returns the skin a session uploaded last.
func (o *Online) Skin(sessionID string) ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	skin, ok := o.skins[sessionID]
	return skin, ok
}

func (o *Online) UpdateSkin(ctx context.Context, req *catalog.C2SUpdateSkin) (packet.Packet, error) {
	if len(req.Skin) != catalog.SkinSize {
		return nil, fmt.Errorf("skin must be %d bytes, got %d", catalog.SkinSize, len(req.Skin))
	}
	sess, ok := server.SessionFromContext(ctx)
	if !ok {
		return nil, errors.New("no session")
	}
	o.mu.Lock()
	o.skins[sess.ID] = req.Skin
	o.mu.Unlock()
	return nil, nil
}

func (o *Online) StopBeingFriends(ctx context.Context, req *catalog.C2SStopBeingFriends) (packet.Packet, error) {
	o.logger.Debug("friendship ended", zap.Int32("friend", req.FriendID))
	return nil, nil
}

// InvitePartyMember invites a player by name. A player with a pending invite
// cannot be invited again.
func (o *Online) InvitePartyMember(ctx context.Context, req *catalog.C2SInvitePartyMember) (packet.Packet, error) {
	if req.Username == "" {
		return catalog.S2CInvitePartyMemberResult{Result: catalog.InviteNotFound}, nil
	}

	o.mu.Lock()
	if _, pending := o.invitees[req.Username]; pending {
		o.mu.Unlock()
		return catalog.S2CInvitePartyMemberResult{Result: catalog.InviteAlreadyInAParty}, nil
	}
	o.nextID++
	id := o.nextID
	o.invitees[req.Username] = id
	o.mu.Unlock()

	return &catalog.S2CInvitePartyMemberResult{
		Result: catalog.InviteInvited,
		Invite: &catalog.InvitedMemberDto{
			InviteID:  id,
			Username:  req.Username,
			PlayerID:  uuid.NewSHA1(uuid.NameSpaceOID, []byte(req.Username)),
			ExpiresAt: time.Now().Add(inviteTTL).Truncate(time.Millisecond).UTC(),
		},
	}, nil
}
