package dto

import "github.com/noah-isme/campus-events-api/internal/models"

// PrincipalResponse describes the caller and what it may do.
type PrincipalResponse struct {
	models.Profile
	Capabilities []models.Capability `json:"capabilities"`
}

// NewPrincipalResponse flattens a resolved principal for the wire.
func NewPrincipalResponse(p *models.Principal) PrincipalResponse {
	return PrincipalResponse{Profile: p.Profile, Capabilities: p.Capabilities.List()}
}
