package model

import "time"

// TLSMode selects how the transport establishes trust in the server.
type TLSMode string

const (
	// TLSSystem verifies against the system CA pool.
	TLSSystem TLSMode = "system"

	// TLSPinned trusts exactly one caller-supplied certificate, for
	// servers with self-signed or private-CA certificates.
	TLSPinned TLSMode = "pinned"

	// TLSInsecure disables verification entirely. Never a default; the
	// caller must opt in explicitly.
	TLSInsecure TLSMode = "insecure"
)

// SyncMode selects how an account learns about server-side changes.
type SyncMode string

const (
	// SyncModePush holds a long-lived Ping request.
	SyncModePush SyncMode = "push"

	// SyncModeScheduled polls on a fixed interval.
	SyncModeScheduled SyncMode = "scheduled"
)

// ProvisionState tracks the device-policy handshake per account.
type ProvisionState string

const (
	// ProvisionNone means no policy handshake has happened, or the
	// server invalidated the previous one.
	ProvisionNone ProvisionState = "none"

	// ProvisionTokenAcquired means phase one returned a temporary key
	// that still awaits acknowledgment.
	ProvisionTokenAcquired ProvisionState = "token-acquired"

	// ProvisionActive means the durable policy key is in force.
	ProvisionActive ProvisionState = "active"
)

// Account is one configured server identity. The policy key is empty until
// provisioning reaches the active state, and is cleared whenever the
// server demands provisioning again.
type Account struct {
	ID   string `db:"id"`
	Name string `db:"name"`

	Host string  `db:"host"`
	Port int     `db:"port"`
	TLS  TLSMode `db:"tls_mode"`

	Username string `db:"username"`

	// CredentialKey addresses the secret in the credential store; the
	// password itself is never persisted here.
	CredentialKey string `db:"credential_key"`

	// PinnedCertKey addresses the pinned certificate blob (PEM) in the
	// credential store when TLS is TLSPinned.
	PinnedCertKey string `db:"pinned_cert_key"`

	DeviceID   string `db:"device_id"`
	DeviceType string `db:"device_type"`

	PolicyKey      string         `db:"policy_key"`
	ProvisionState ProvisionState `db:"provision_state"`

	SyncMode     SyncMode `db:"sync_mode"`
	HeartbeatSec int      `db:"heartbeat_sec"`
	IntervalSec  int      `db:"interval_sec"`

	// FolderSyncKey is the hierarchy cursor, independent of per-folder
	// item cursors.
	FolderSyncKey string `db:"folder_sync_key"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Provisioned reports whether the account holds an active policy key.
func (a *Account) Provisioned() bool {
	return a.ProvisionState == ProvisionActive && a.PolicyKey != ""
}
