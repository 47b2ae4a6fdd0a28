package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// AccessTokenPayload carries the actor data minted into a token.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	Role     enums.ActorRole
	SellerID *uuid.UUID
	JTI      string
}

// AccessTokenClaims is the JWT body verified on every request.
type AccessTokenClaims struct {
	UserID   uuid.UUID       `json:"user_id"`
	Role     enums.ActorRole `json:"role"`
	SellerID *uuid.UUID      `json:"seller_id,omitempty"`
	jwt.RegisteredClaims
}
