package model

import "time"

// FolderKind classifies a folder; it drives payload shape (mail vs
// calendar vs tasks) and delete semantics.
type FolderKind string

const (
	KindInbox    FolderKind = "inbox"
	KindDrafts   FolderKind = "drafts"
	KindSent     FolderKind = "sent"
	KindTrash    FolderKind = "trash"
	KindOutbox   FolderKind = "outbox"
	KindJunk     FolderKind = "junk"
	KindUserMail FolderKind = "user"
	KindCalendar FolderKind = "calendar"
	KindTasks    FolderKind = "tasks"
	KindContacts FolderKind = "contacts"
	KindNotes    FolderKind = "notes"
	KindOther    FolderKind = "other"
)

// KindFromTypeCode maps a FolderSync type code to a FolderKind. Junk is
// not a distinct type on the wire; servers expose it as a user folder and
// the UI layer may relabel it by display name.
func KindFromTypeCode(code int) FolderKind {
	switch code {
	case 1, 12:
		return KindUserMail
	case 2:
		return KindInbox
	case 3:
		return KindDrafts
	case 4:
		return KindTrash
	case 5:
		return KindSent
	case 6:
		return KindOutbox
	case 7, 15:
		return KindTasks
	case 8, 13:
		return KindCalendar
	case 9, 14:
		return KindContacts
	case 10:
		return KindNotes
	default:
		return KindOther
	}
}

// Class returns the AirSync class string for the folder kind, or "" for
// kinds this client does not synchronize.
func (k FolderKind) Class() string {
	switch k {
	case KindInbox, KindDrafts, KindSent, KindTrash, KindOutbox, KindJunk, KindUserMail:
		return "Email"
	case KindCalendar:
		return "Calendar"
	case KindTasks:
		return "Tasks"
	default:
		return ""
	}
}

// Syncable reports whether the engine synchronizes items of this kind.
func (k FolderKind) Syncable() bool {
	return k.Class() != ""
}

// Folder is one server folder of an account.
//
// SyncKey is the folder's sync cursor: an opaque, server-issued token that
// is only ever replaced by the value returned from the immediately
// preceding successful sync of this folder. Empty means never synced.
type Folder struct {
	ID          string     `db:"id"`
	AccountID   string     `db:"account_id"`
	ServerID    string     `db:"server_id"`
	ParentID    string     `db:"parent_id"`
	DisplayName string     `db:"display_name"`
	Kind        FolderKind `db:"kind"`
	SyncKey     string     `db:"sync_key"`
	LastSync    *time.Time `db:"last_sync"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}
