package types

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// Actor is the authenticated caller of a settlement operation.
type Actor struct {
	UserID   uuid.UUID
	Role     enums.ActorRole
	SellerID *uuid.UUID
}

// Is reports whether the actor holds role.
func (a Actor) Is(role enums.ActorRole) bool {
	return a.Role == role
}

// OwnsSeller reports whether the actor acts for sellerID.
func (a Actor) OwnsSeller(sellerID uuid.UUID) bool {
	return a.Role == enums.ActorRoleSeller && a.SellerID != nil && *a.SellerID == sellerID
}
