package dto

import (
	"time"

	"github.com/fieldops/dispatch-service/internal/domain"
)

// CreateUserRequest payload for directory entries.
type CreateUserRequest struct {
	ID                        string      `json:"id"`
	Name                      string      `json:"name"`
	Role                      domain.Role `json:"role"`
	BackboneSpecialist        bool        `json:"backbone_specialist"`
	VendorSpecialist          bool        `json:"vendor_specialist"`
	PrioritizeHomeMaintenance bool        `json:"prioritize_home_maintenance"`
}

// UserResponse is a directory entry.
type UserResponse struct {
	ID                        string      `json:"id"`
	Name                      string      `json:"name"`
	Role                      domain.Role `json:"role"`
	Active                    bool        `json:"active"`
	BackboneSpecialist        bool        `json:"backbone_specialist"`
	VendorSpecialist          bool        `json:"vendor_specialist"`
	PrioritizeHomeMaintenance bool        `json:"prioritize_home_maintenance"`
}

// AuthResponse standard response for token endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
