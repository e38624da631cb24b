package proto

// SyncBootstrapKey is the sync key sent on the first sync of a collection
// (and after a bootstrap, when the server rejected the stored key).
const SyncBootstrapKey = "0"

// PolicyType identifies the WBXML-expressed policy document the client
// requests during provisioning.
const PolicyType = "MS-EAS-Provisioning-WBXML"

// ProtocolVersion is the MS-ASProtocolVersion the client speaks.
const ProtocolVersion = "14.1"

// Sync command statuses (per collection).
const (
	SyncStatusOK             = 1
	SyncStatusInvalidSyncKey = 3
	SyncStatusProtocolError  = 4
	SyncStatusServerError    = 5
	SyncStatusConversionErr  = 6
	SyncStatusConflict       = 7
	SyncStatusObjectNotFound = 8
	SyncStatusFolderGone     = 12
)

// FolderSync statuses.
const (
	FolderStatusOK             = 1
	FolderStatusInvalidSyncKey = 9
)

// Ping statuses.
const (
	PingStatusExpired        = 1 // heartbeat elapsed, no changes
	PingStatusChanges        = 2 // listed folders changed
	PingStatusParamError     = 3
	PingStatusSyntaxError    = 4
	PingStatusHeartbeatRange = 5 // requested heartbeat out of range
	PingStatusTooManyFolders = 6
	PingStatusFolderSyncReq  = 7
)

// Provision statuses.
const (
	ProvStatusOK          = 1
	ProvStatusProtocolErr = 2
	ProvStatusServerErr   = 3
)

// MoveItems per-item statuses.
const (
	MoveStatusInvalidSrc = 1
	MoveStatusInvalidDst = 2
	MoveStatusOK         = 3
	MoveStatusSameFolder = 4
	MoveStatusFailed     = 5
)

// ItemOperations statuses.
const (
	ItemOpsStatusOK = 1
)

// HTTP status the server uses to demand provisioning.
const HTTPStatusNeedProvisioning = 449

// Payload statuses (protocol version 14+) that demand provisioning; they
// appear as the command's top-level Status regardless of command type.
const (
	statusPolicyRefresh = 142
	statusNoPolicyKey   = 143
	statusInvalidPolicy = 144
	statusDeviceBlocked = 129
	statusDeviceQuarant = 130
)

// PolicyDemanded reports whether a top-level command status is one of the
// provisioning-demanded codes.
func PolicyDemanded(status int) bool {
	switch status {
	case statusPolicyRefresh, statusNoPolicyKey, statusInvalidPolicy:
		return true
	}
	return false
}

// DeviceBlocked reports whether a top-level status means the server has
// blocked or quarantined the device; not recoverable by provisioning.
func DeviceBlocked(status int) bool {
	return status == statusDeviceBlocked || status == statusDeviceQuarant
}
