package model

import "time"

// ItemKind distinguishes the payload shape of a cached item.
type ItemKind string

const (
	ItemMail  ItemKind = "mail"
	ItemEvent ItemKind = "event"
	ItemTask  ItemKind = "task"
)

// Item is one cached message, event, or task. It belongs to exactly one
// folder; folder membership changes only when the server confirms a move.
//
// Dirty marks an item whose local state has been mutated optimistically
// and not yet confirmed by the server; the next sync pass's server state
// always wins over a stale optimistic guess.
type Item struct {
	ID        string   `db:"id"`
	AccountID string   `db:"account_id"`
	FolderID  string   `db:"folder_id"`
	ServerID  string   `db:"server_id"`
	Kind      ItemKind `db:"kind"`

	Subject string `db:"subject"`
	Preview string `db:"preview"`

	// Mail fields.
	From       string     `db:"from_addr"`
	To         string     `db:"to_addr"`
	Received   *time.Time `db:"received_at"`
	Read       bool       `db:"read"`
	Flagged    bool       `db:"flagged"`
	Importance int        `db:"importance"`

	// Event fields.
	Location  string     `db:"location"`
	StartTime *time.Time `db:"start_time"`
	EndTime   *time.Time `db:"end_time"`
	AllDay    bool       `db:"all_day"`

	// Task fields.
	Complete    bool       `db:"complete"`
	DueDate     *time.Time `db:"due_date"`
	CompletedAt *time.Time `db:"completed_at"`

	Dirty bool `db:"dirty"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Attachment records an attachment reference carried by a mail item. The
// file reference is an opaque server-issued locator passed verbatim to
// ItemOperations when the user requests a download.
type Attachment struct {
	ID            string `db:"id"`
	ItemID        string `db:"item_id"`
	DisplayName   string `db:"display_name"`
	FileReference string `db:"file_reference"`
	ContentType   string `db:"content_type"`
	EstimatedSize int64  `db:"estimated_size"`
	Method        int    `db:"method"`
}
