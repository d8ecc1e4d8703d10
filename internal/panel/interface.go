package panel

import (
	"context"
	"errors"
)

// ErrUserNotFound is returned when the VPN system has no such user.
var ErrUserNotFound = errors.New("vpn user not found")

// PanelUser represents a user on the VPN system.
type PanelUser struct {
	Username          string `json:"username,omitempty"`
	Blocked           bool   `json:"blocked"`
	UsedDownloadBytes int64  `json:"used_download_bytes"`
	MaxDownloadBytes  int64  `json:"max_download_bytes"`
	RemainingDays     int    `json:"remaining_days"`
	ExpirationDays    int    `json:"expiration_days"`
}

// CreateUserRequest contains params for creating a user.
type CreateUserRequest struct {
	Username       string `json:"username"`
	TrafficGB      int    `json:"traffic_limit"`
	ExpirationDays int    `json:"expiration_days"`
}

// ProvisionResult describes a freshly created account.
type ProvisionResult struct {
	Username       string
	TrafficGB      int
	ExpirationDays int
	Output         string
}

// Provisioner defines the interface for the VPN account backend.
// The Hysteria2 CLI and the HTTP management API both implement it.
type Provisioner interface {
	// AddUser creates an account with a traffic quota and lifetime.
	AddUser(ctx context.Context, req CreateUserRequest) (*ProvisionResult, error)

	// UserURI returns the connection URI for a user.
	UserURI(ctx context.Context, username string, ipVersion int) (string, error)

	// ListUsers returns all accounts keyed by username.
	ListUsers(ctx context.Context) (map[string]PanelUser, error)

	// PanelType returns the backend identifier.
	PanelType() string
}
