package store

import (
	"context"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
)

// ItemFilter controls filtering, sorting, and pagination for item queries.
type ItemFilter struct {
	Kind     *model.ItemKind
	Read     *bool
	Flagged  *bool
	Complete *bool
	Dirty    *bool
	Query    *string // search subject + preview
	SortBy   string  // "received_at", "due_date", "start_time", "subject", "updated_at"
	SortDesc bool
	Limit    int
	Offset   int
}

// ItemUpsert is one item write inside a change set, with any attachment
// references decoded alongside it.
type ItemUpsert struct {
	Item        model.Item
	Attachments []model.Attachment
}

// ChangeSet is the atomic unit of a sync apply step: item writes, item
// removals, and the folder's advanced sync cursor commit in one local
// transaction, so partial application is never observable. An empty
// NewSyncKey keeps the current cursor, for row restores that carry no
// sync response.
type ChangeSet struct {
	AccountID  string
	FolderID   string
	NewSyncKey string
	Upserts    []ItemUpsert
	Deletes    []string // server ids
}

// ItemPatch is a partial, optimistic item update. Nil fields are left
// untouched.
type ItemPatch struct {
	Read     *bool
	Flagged  *bool
	Complete *bool
}

// Store is the persistence boundary consumed by the sync core. All writes
// run inside folder- or item-scoped transactions; the UI layer observes
// changes via Subscribe instead of polling.
type Store interface {
	// === Accounts ===

	UpsertAccount(ctx context.Context, a *model.Account) error
	GetAccounts(ctx context.Context) ([]model.Account, error)
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)

	// DeleteAccount removes the account and cascades to its folders,
	// items, cursors, and pending mutations.
	DeleteAccount(ctx context.Context, id string) error

	// UpdatePolicyKey persists the provisioning outcome for an account.
	UpdatePolicyKey(ctx context.Context, accountID, policyKey string, state model.ProvisionState) error

	// === Folders ===

	// ApplyFolderChanges commits a FolderSync result: folder upserts,
	// removals, and the new hierarchy sync key, atomically.
	ApplyFolderChanges(ctx context.Context, accountID, newSyncKey string,
		upserts []model.Folder, deletes []string) error

	GetFolders(ctx context.Context, accountID string) ([]model.Folder, error)
	GetFolderByServerID(ctx context.Context, accountID, serverID string) (*model.Folder, error)

	// ResetFolder drops all cached items of a folder and clears its sync
	// cursor. Only the engine's bootstrap path may call this.
	ResetFolder(ctx context.Context, folderID string) error

	// === Items ===

	// ApplyItemChanges commits one sync apply step atomically.
	ApplyItemChanges(ctx context.Context, cs ChangeSet) error

	GetItems(ctx context.Context, folderID string, filter ItemFilter) ([]model.Item, error)
	GetItemByServerID(ctx context.Context, accountID, serverID string) (*model.Item, error)
	GetItemsByServerIDs(ctx context.Context, accountID string, serverIDs []string) ([]model.Item, error)

	// PatchItems applies an optimistic local mutation. dirty marks the
	// rows as awaiting server confirmation.
	PatchItems(ctx context.Context, accountID string, serverIDs []string, patch ItemPatch, dirty bool) error

	// ClearDirty acknowledges server confirmation of earlier patches.
	ClearDirty(ctx context.Context, accountID string, serverIDs []string) error

	// DeleteItems removes confirmed-deleted rows.
	DeleteItems(ctx context.Context, accountID string, serverIDs []string) error

	// MoveItem commits a confirmed move: new folder, and the new server
	// id when the server reissued one.
	MoveItem(ctx context.Context, accountID, serverID, dstFolderID, newServerID string) error

	GetAttachments(ctx context.Context, itemID string) ([]model.Attachment, error)

	// === Pending mutations ===

	EnqueueMutation(ctx context.Context, m *model.PendingMutation) error
	GetPendingMutations(ctx context.Context, accountID string) ([]model.PendingMutation, error)
	DeleteMutation(ctx context.Context, id string) error
	BumpMutationAttempts(ctx context.Context, id string) error

	// === Change observation ===

	// Subscribe registers an observer. The returned cancel func must be
	// called to release it. Events are delivered best-effort; a slow
	// subscriber drops events rather than blocking writers.
	Subscribe(buffer int) (<-chan Event, func())
}
