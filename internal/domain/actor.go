package domain

import "github.com/google/uuid"

// Role distinguishes buyers from partners
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleShop   Role = "shop"
	RoleSystem Role = "system"
)

// Actor is the authenticated identity a core operation acts on behalf of
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// SystemActor is used by internal jobs
var SystemActor = Actor{Role: RoleSystem}
