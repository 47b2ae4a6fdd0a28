package enums

import "fmt"

// ActorRole is carried in access tokens and gates settlement routes.
type ActorRole string

const (
	ActorRoleBuyer          ActorRole = "buyer"
	ActorRoleSeller         ActorRole = "seller"
	ActorRoleLogistics      ActorRole = "logistics"
	ActorRoleDisputeService ActorRole = "dispute_service"
)

var validActorRoles = []ActorRole{
	ActorRoleBuyer,
	ActorRoleSeller,
	ActorRoleLogistics,
	ActorRoleDisputeService,
}

// String implements fmt.Stringer.
func (a ActorRole) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ActorRole.
func (a ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
