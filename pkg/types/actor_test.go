package types

import (
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

func TestActorOwnsSeller(t *testing.T) {
	t.Parallel()
	seller := uuid.New()
	actor := Actor{UserID: uuid.New(), Role: enums.ActorRoleSeller, SellerID: &seller}
	if !actor.OwnsSeller(seller) {
		t.Fatal("seller should own its id")
	}
	if actor.OwnsSeller(uuid.New()) {
		t.Fatal("seller must not own another seller")
	}
	buyer := Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer, SellerID: &seller}
	if buyer.OwnsSeller(seller) {
		t.Fatal("only sellers own seller ids")
	}
	if !buyer.Is(enums.ActorRoleBuyer) {
		t.Fatal("expected buyer role")
	}
}
