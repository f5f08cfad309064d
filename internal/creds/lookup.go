// Package creds is the device-credential collaborator consumed at
// handshake time. The gateway only reads accounts; provisioning belongs to
// the platform's CRUD services.
package creds

import (
	"context"
	"errors"
)

var ErrAccountNotFound = errors.New("creds: account not found")

type AccountStatus string

const (
	StatusActive   AccountStatus = "ACTIVE"
	StatusDisabled AccountStatus = "DISABLED"
)

// Account is the stored credential record for one device.
type Account struct {
	PrincipalID  string        `json:"principal_id"`
	PasswordHash string        `json:"password_hash"`
	Status       AccountStatus `json:"status"`
}

// DeviceInfo is the descriptive record attached to a device principal.
type DeviceInfo struct {
	OrgID       string `json:"org_id"`
	DisplayName string `json:"display_name"`
}

// Lookup resolves device accounts and their metadata. Used only during the
// handshake.
type Lookup interface {
	FindAccountByUsername(ctx context.Context, username string) (*Account, error)
	FindDeviceInfo(ctx context.Context, principalID string) (*DeviceInfo, error)
}
