// Package partner holds the client collaborator boundary the invoicing
// ledger consumes. Client lifecycle management lives elsewhere; the ledger
// only reads clients to snapshot customer identity at draft creation.
package partner

import (
	"context"
	"strings"

	"github.com/lucia/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Client represents a tenant's customer record
type Client struct {
	shared.TenantAggregateRoot
	FirstName      string  `gorm:"size:100;not null"`
	LastName       string  `gorm:"size:100;not null"`
	Email          *string `gorm:"size:200"`
	Phone          *string `gorm:"size:30"`
	Address        *string `gorm:"size:300"`
	City           *string `gorm:"size:100"`
	PostalCode     *string `gorm:"size:10"`
	DocumentNumber *string `gorm:"size:20"` // NIF/CIF
	Active         bool    `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (Client) TableName() string {
	return "clients"
}

// FullName returns the display name used for customer snapshots
func (c *Client) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// FullAddress joins the address parts present, e.g. "Calle Mayor 1, Madrid, 28001"
func (c *Client) FullAddress() string {
	parts := make([]string, 0, 3)
	for _, p := range []*string{c.Address, c.City, c.PostalCode} {
		if p != nil && *p != "" {
			parts = append(parts, *p)
		}
	}
	return strings.Join(parts, ", ")
}

// ClientRepository is the read contract the invoicing ledger requires from
// the client collaborator
type ClientRepository interface {
	// FindByIDForTenant loads a client scoped to a tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Client, error)
}
