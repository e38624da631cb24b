package model

import "time"

// MutationOp enumerates the local intents the mutation queue translates
// into protocol commands.
type MutationOp string

const (
	OpMarkRead    MutationOp = "mark-read"
	OpMarkUnread  MutationOp = "mark-unread"
	OpFlag        MutationOp = "flag"
	OpUnflag      MutationOp = "unflag"
	OpComplete    MutationOp = "complete"
	OpUncomplete  MutationOp = "uncomplete"
	OpMove        MutationOp = "move"
	OpSoftDelete  MutationOp = "soft-delete"
	OpHardDelete  MutationOp = "hard-delete"
	OpRestore     MutationOp = "restore"
	OpReadReceipt MutationOp = "read-receipt"
)

// PendingMutation is a queued intent with at-least-once delivery. It is
// removed only after the server confirms it or permanently rejects it;
// ambiguous failures leave it queued with the item still dirty.
type PendingMutation struct {
	ID        string     `db:"id"`
	AccountID string     `db:"account_id"`
	FolderID  string     `db:"folder_id"`
	Op        MutationOp `db:"op"`

	// ItemServerIDs is the JSON-encoded target list.
	ItemServerIDs string `db:"item_server_ids"`

	// TargetFolderID is the destination server id for move/restore.
	TargetFolderID string `db:"target_folder_id"`

	Attempts  int       `db:"attempts"`
	CreatedAt time.Time `db:"created_at"`
}
