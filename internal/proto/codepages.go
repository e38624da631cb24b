// Package proto maps typed ActiveSync commands and responses onto the
// wbxml element trees that travel over the wire. Each command type knows
// how to build its request tree; each response type knows how to read one.
package proto

// WBXML codepages used by the protocol.
const (
	PageAirSync     = 0
	PageEmail       = 2
	PageCalendar    = 4
	PageMove        = 5
	PageFolder      = 7
	PageTasks       = 9
	PagePing        = 13
	PageProvision   = 14
	PageAirSyncBase = 17
	PageItemOps     = 20
)

// AirSync (page 0) tags.
const (
	AirSync             = 0x05
	AirSyncResponses    = 0x06
	AirSyncAdd          = 0x07
	AirSyncChange       = 0x08
	AirSyncDelete       = 0x09
	AirSyncFetch        = 0x0A
	AirSyncSyncKey      = 0x0B
	AirSyncClientID     = 0x0C
	AirSyncServerID     = 0x0D
	AirSyncStatus       = 0x0E
	AirSyncCollection   = 0x0F
	AirSyncClass        = 0x10
	AirSyncCollectionID = 0x12
	AirSyncGetChanges   = 0x13
	AirSyncMoreAvail    = 0x14
	AirSyncWindowSize   = 0x15
	AirSyncCommands     = 0x16
	AirSyncOptions      = 0x17
	AirSyncFilterType   = 0x18
	AirSyncCollections  = 0x1C
	AirSyncAppData      = 0x1D
	AirSyncDelAsMoves   = 0x1E
	AirSyncMIMESupport  = 0x22
)

// Email (page 2) tags.
const (
	EmailDateReceived = 0x0F
	EmailDisplayTo    = 0x11
	EmailImportance   = 0x12
	EmailMessageClass = 0x13
	EmailSubject      = 0x14
	EmailRead         = 0x15
	EmailTo           = 0x16
	EmailCc           = 0x17
	EmailFrom         = 0x18
	EmailReplyTo      = 0x19
	EmailFlag         = 0x3A
	EmailFlagStatus   = 0x3B
	EmailFlagType     = 0x3D
	EmailCompleteTime = 0x3E
)

// Calendar (page 4) tags.
const (
	CalTimeZone      = 0x05
	CalAllDayEvent   = 0x06
	CalBusyStatus    = 0x0D
	CalDTStamp       = 0x11
	CalEndTime       = 0x12
	CalLocation      = 0x19
	CalMeetingStatus = 0x1A
	CalReminder      = 0x22
	CalSensitivity   = 0x25
	CalSubject       = 0x26
	CalStartTime     = 0x27
	CalUID           = 0x28
)

// Move (page 5) tags.
const (
	MoveItems    = 0x05
	MoveMove     = 0x06
	MoveSrcMsgID = 0x07
	MoveSrcFldID = 0x08
	MoveDstFldID = 0x09
	MoveResponse = 0x0A
	MoveStatus   = 0x0B
	MoveDstMsgID = 0x0C
)

// FolderHierarchy (page 7) tags.
const (
	FolderDisplayName = 0x07
	FolderServerID    = 0x08
	FolderParentID    = 0x09
	FolderType        = 0x0A
	FolderStatus      = 0x0C
	FolderChanges     = 0x0E
	FolderAdd         = 0x0F
	FolderRemove      = 0x10
	FolderUpdate      = 0x11
	FolderSyncKey     = 0x12
	FolderSync        = 0x16
	FolderCount       = 0x17
)

// Tasks (page 9) tags.
const (
	TaskCategories    = 0x08
	TaskComplete      = 0x0A
	TaskDateCompleted = 0x0B
	TaskDueDate       = 0x0C
	TaskUTCDueDate    = 0x0D
	TaskImportance    = 0x0E
	TaskReminderSet   = 0x1C
	TaskReminderTime  = 0x1D
	TaskSensitivity   = 0x1E
	TaskStartDate     = 0x1F
	TaskUTCStartDate  = 0x20
	TaskSubject       = 0x21
)

// Ping (page 13) tags.
const (
	PingPing       = 0x05
	PingStatus     = 0x07
	PingHeartbeat  = 0x08
	PingFolders    = 0x09
	PingFolder     = 0x0A
	PingID         = 0x0B
	PingClass      = 0x0C
	PingMaxFolders = 0x0D
)

// Provision (page 14) tags.
const (
	ProvProvision  = 0x05
	ProvPolicies   = 0x06
	ProvPolicy     = 0x07
	ProvPolicyType = 0x08
	ProvPolicyKey  = 0x09
	ProvData       = 0x0A
	ProvStatus     = 0x0B
	ProvRemoteWipe = 0x0C
)

// AirSyncBase (page 17) tags.
const (
	BaseBodyPreference = 0x05
	BaseType           = 0x06
	BaseTruncationSize = 0x07
	BaseBody           = 0x0A
	BaseData           = 0x0B
	BaseEstimatedSize  = 0x0C
	BaseTruncated      = 0x0D
	BaseAttachments    = 0x0E
	BaseAttachment     = 0x0F
	BaseDisplayName    = 0x10
	BaseFileReference  = 0x11
	BaseMethod         = 0x12
	BaseNativeBodyType = 0x16
	BaseContentType    = 0x17
)

// ItemOperations (page 20) tags.
const (
	ItemOps           = 0x05
	ItemOpsFetch      = 0x06
	ItemOpsStore      = 0x07
	ItemOpsOptions    = 0x08
	ItemOpsRange      = 0x09
	ItemOpsTotal      = 0x0A
	ItemOpsProperties = 0x0B
	ItemOpsData       = 0x0C
	ItemOpsStatus     = 0x0D
	ItemOpsResponse   = 0x0E
)
