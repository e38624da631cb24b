package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	obs *observers
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys so account removal cascades.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, obs: newObservers()}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Subscribe registers a change observer.
func (s *SQLiteStore) Subscribe(buffer int) (<-chan Event, func()) {
	return s.obs.subscribe(buffer)
}

// UpsertAccount inserts or replaces an account. A missing ID gets a new
// UUID; a missing device ID likewise.
func (s *SQLiteStore) UpsertAccount(ctx context.Context, a *model.Account) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.DeviceID == "" {
		a.DeviceID = strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (
			id, name, host, port, tls_mode, username, credential_key,
			pinned_cert_key, device_id, device_type, policy_key,
			provision_state, sync_mode, heartbeat_sec, interval_sec,
			folder_sync_key, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			host = excluded.host,
			port = excluded.port,
			tls_mode = excluded.tls_mode,
			username = excluded.username,
			credential_key = excluded.credential_key,
			pinned_cert_key = excluded.pinned_cert_key,
			device_id = excluded.device_id,
			device_type = excluded.device_type,
			sync_mode = excluded.sync_mode,
			heartbeat_sec = excluded.heartbeat_sec,
			interval_sec = excluded.interval_sec,
			updated_at = excluded.updated_at`,
		a.ID, a.Name, a.Host, a.Port, string(a.TLS), a.Username, a.CredentialKey,
		a.PinnedCertKey, a.DeviceID, a.DeviceType, a.PolicyKey,
		string(a.ProvisionState), string(a.SyncMode), a.HeartbeatSec, a.IntervalSec,
		a.FolderSyncKey, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting account %s: %w", a.ID, err)
	}

	s.obs.publish(Event{Kind: EventAccountChanged, AccountID: a.ID})
	return nil
}

// GetAccounts retrieves all accounts ordered by name.
func (s *SQLiteStore) GetAccounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	err := s.db.SelectContext(ctx, &accounts, "SELECT * FROM accounts ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	return accounts, nil
}

// GetAccountByID retrieves a single account, or nil when absent.
func (s *SQLiteStore) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	var a model.Account
	err := s.db.GetContext(ctx, &a, "SELECT * FROM accounts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting account %s: %w", id, err)
	}
	return &a, nil
}

// DeleteAccount removes an account; foreign keys cascade to folders,
// items, attachments, and pending mutations.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting account %s: %w", id, err)
	}
	s.obs.publish(Event{Kind: EventAccountChanged, AccountID: id})
	return nil
}

// UpdatePolicyKey persists a provisioning outcome.
func (s *SQLiteStore) UpdatePolicyKey(ctx context.Context, accountID, policyKey string, state model.ProvisionState) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET policy_key = ?, provision_state = ?, updated_at = ?
		WHERE id = ?`,
		policyKey, string(state), time.Now().UTC(), accountID,
	)
	if err != nil {
		return fmt.Errorf("updating policy key for account %s: %w", accountID, err)
	}
	s.obs.publish(Event{Kind: EventAccountChanged, AccountID: accountID})
	return nil
}

// ApplyFolderChanges commits a FolderSync result atomically: folder
// upserts, removals, and the advanced hierarchy sync key.
func (s *SQLiteStore) ApplyFolderChanges(ctx context.Context, accountID, newSyncKey string,
	upserts []model.Folder, deletes []string) error {

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i := range upserts {
		f := &upserts[i]
		if f.ID == "" {
			f.ID = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO folders (
				id, account_id, server_id, parent_id, display_name,
				kind, sync_key, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(account_id, server_id) DO UPDATE SET
				parent_id = excluded.parent_id,
				display_name = excluded.display_name,
				kind = excluded.kind,
				updated_at = excluded.updated_at`,
			f.ID, accountID, f.ServerID, f.ParentID, f.DisplayName,
			string(f.Kind), f.SyncKey, now, now,
		)
		if err != nil {
			return fmt.Errorf("upserting folder %s: %w", f.ServerID, err)
		}
	}

	for _, serverID := range deletes {
		if _, err = tx.ExecContext(ctx,
			"DELETE FROM folders WHERE account_id = ? AND server_id = ?",
			accountID, serverID,
		); err != nil {
			return fmt.Errorf("deleting folder %s: %w", serverID, err)
		}
	}

	if _, err = tx.ExecContext(ctx,
		"UPDATE accounts SET folder_sync_key = ?, updated_at = ? WHERE id = ?",
		newSyncKey, now, accountID,
	); err != nil {
		return fmt.Errorf("advancing folder sync key: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing folder changes: %w", err)
	}

	s.obs.publish(Event{Kind: EventFoldersChanged, AccountID: accountID})
	return nil
}

// GetFolders retrieves all folders of an account.
func (s *SQLiteStore) GetFolders(ctx context.Context, accountID string) ([]model.Folder, error) {
	var folders []model.Folder
	err := s.db.SelectContext(ctx, &folders,
		"SELECT * FROM folders WHERE account_id = ? ORDER BY display_name", accountID)
	if err != nil {
		return nil, fmt.Errorf("querying folders: %w", err)
	}
	return folders, nil
}

// GetFolderByServerID retrieves one folder, or nil when absent.
func (s *SQLiteStore) GetFolderByServerID(ctx context.Context, accountID, serverID string) (*model.Folder, error) {
	var f model.Folder
	err := s.db.GetContext(ctx, &f,
		"SELECT * FROM folders WHERE account_id = ? AND server_id = ?", accountID, serverID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting folder %s: %w", serverID, err)
	}
	return &f, nil
}

// ResetFolder drops a folder's cached items and clears its cursor, both in
// one transaction. Publishes EventCacheDropped so observers know the local
// cache contents were discarded.
func (s *SQLiteStore) ResetFolder(ctx context.Context, folderID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, "DELETE FROM items WHERE folder_id = ?", folderID); err != nil {
		return fmt.Errorf("clearing items of folder %s: %w", folderID, err)
	}

	var accountID string
	if err = tx.GetContext(ctx, &accountID,
		"SELECT account_id FROM folders WHERE id = ?", folderID); err != nil {
		return fmt.Errorf("resolving folder %s: %w", folderID, err)
	}

	if _, err = tx.ExecContext(ctx,
		"UPDATE folders SET sync_key = '', updated_at = ? WHERE id = ?",
		time.Now().UTC(), folderID,
	); err != nil {
		return fmt.Errorf("clearing sync key of folder %s: %w", folderID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing folder reset: %w", err)
	}

	s.obs.publish(Event{Kind: EventCacheDropped, AccountID: accountID, FolderID: folderID})
	return nil
}

// ApplyItemChanges commits one sync apply step: upserts, deletes, and the
// folder's new cursor, atomically. Partial application is never visible.
func (s *SQLiteStore) ApplyItemChanges(ctx context.Context, cs ChangeSet) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	for _, up := range cs.Upserts {
		it := up.Item
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO items (
				id, account_id, folder_id, server_id, kind,
				subject, preview, from_addr, to_addr, received_at,
				read, flagged, importance, location, start_time,
				end_time, all_day, complete, due_date, completed_at,
				dirty, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(account_id, server_id) DO UPDATE SET
				folder_id = excluded.folder_id,
				subject = excluded.subject,
				preview = excluded.preview,
				from_addr = excluded.from_addr,
				to_addr = excluded.to_addr,
				received_at = excluded.received_at,
				read = excluded.read,
				flagged = excluded.flagged,
				importance = excluded.importance,
				location = excluded.location,
				start_time = excluded.start_time,
				end_time = excluded.end_time,
				all_day = excluded.all_day,
				complete = excluded.complete,
				due_date = excluded.due_date,
				completed_at = excluded.completed_at,
				dirty = excluded.dirty,
				updated_at = excluded.updated_at`,
			it.ID, cs.AccountID, cs.FolderID, it.ServerID, string(it.Kind),
			it.Subject, it.Preview, it.From, it.To, it.Received,
			boolToInt(it.Read), boolToInt(it.Flagged), it.Importance, it.Location, it.StartTime,
			it.EndTime, boolToInt(it.AllDay), boolToInt(it.Complete), it.DueDate, it.CompletedAt,
			boolToInt(it.Dirty), now, now,
		)
		if err != nil {
			return fmt.Errorf("upserting item %s: %w", it.ServerID, err)
		}

		if up.Attachments != nil {
			if _, err = tx.ExecContext(ctx, `
				DELETE FROM attachments WHERE item_id =
					(SELECT id FROM items WHERE account_id = ? AND server_id = ?)`,
				cs.AccountID, it.ServerID,
			); err != nil {
				return fmt.Errorf("clearing attachments of %s: %w", it.ServerID, err)
			}
			for _, att := range up.Attachments {
				if att.ID == "" {
					att.ID = uuid.New().String()
				}
				if _, err = tx.ExecContext(ctx, `
					INSERT INTO attachments (
						id, item_id, display_name, file_reference,
						content_type, estimated_size, method
					) VALUES (
						?,
						(SELECT id FROM items WHERE account_id = ? AND server_id = ?),
						?, ?, ?, ?, ?
					)`,
					att.ID, cs.AccountID, it.ServerID,
					att.DisplayName, att.FileReference,
					att.ContentType, att.EstimatedSize, att.Method,
				); err != nil {
					return fmt.Errorf("inserting attachment for %s: %w", it.ServerID, err)
				}
			}
		}
	}

	for _, serverID := range cs.Deletes {
		if _, err = tx.ExecContext(ctx,
			"DELETE FROM items WHERE account_id = ? AND server_id = ?",
			cs.AccountID, serverID,
		); err != nil {
			return fmt.Errorf("deleting item %s: %w", serverID, err)
		}
	}

	// Advance the cursor atomically with the item changes. The cursor is
	// only ever replaced by the value from a sync response; an empty
	// NewSyncKey means the change set carries no response and the cursor
	// stays as is.
	if cs.NewSyncKey != "" {
		if _, err = tx.ExecContext(ctx,
			"UPDATE folders SET sync_key = ?, last_sync = ?, updated_at = ? WHERE id = ?",
			cs.NewSyncKey, now, now, cs.FolderID,
		); err != nil {
			return fmt.Errorf("advancing sync key of folder %s: %w", cs.FolderID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing item changes: %w", err)
	}

	s.obs.publish(Event{Kind: EventItemsChanged, AccountID: cs.AccountID, FolderID: cs.FolderID})
	return nil
}

// GetItems retrieves items of a folder matching the filter.
func (s *SQLiteStore) GetItems(ctx context.Context, folderID string, filter ItemFilter) ([]model.Item, error) {
	conditions := []string{"folder_id = ?"}
	args := []interface{}{folderID}

	if filter.Kind != nil {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(*filter.Kind))
	}
	if filter.Read != nil {
		conditions = append(conditions, "read = ?")
		args = append(args, boolToInt(*filter.Read))
	}
	if filter.Flagged != nil {
		conditions = append(conditions, "flagged = ?")
		args = append(args, boolToInt(*filter.Flagged))
	}
	if filter.Complete != nil {
		conditions = append(conditions, "complete = ?")
		args = append(args, boolToInt(*filter.Complete))
	}
	if filter.Dirty != nil {
		conditions = append(conditions, "dirty = ?")
		args = append(args, boolToInt(*filter.Dirty))
	}
	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions, "(subject LIKE ? OR preview LIKE ?)")
		q := "%" + *filter.Query + "%"
		args = append(args, q, q)
	}

	query := "SELECT * FROM items WHERE " + strings.Join(conditions, " AND ")

	sortBy := "received_at"
	if filter.SortBy != "" {
		allowedSorts := map[string]bool{
			"received_at": true,
			"due_date":    true,
			"start_time":  true,
			"subject":     true,
			"updated_at":  true,
		}
		if allowedSorts[filter.SortBy] {
			sortBy = filter.SortBy
		}
	}

	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, direction)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	var items []model.Item
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	return items, nil
}

// GetItemByServerID retrieves one item, or nil when absent.
func (s *SQLiteStore) GetItemByServerID(ctx context.Context, accountID, serverID string) (*model.Item, error) {
	var it model.Item
	err := s.db.GetContext(ctx, &it,
		"SELECT * FROM items WHERE account_id = ? AND server_id = ?", accountID, serverID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item %s: %w", serverID, err)
	}
	return &it, nil
}

// GetItemsByServerIDs retrieves the subset of items that exist among the
// given server ids.
func (s *SQLiteStore) GetItemsByServerIDs(ctx context.Context, accountID string, serverIDs []string) ([]model.Item, error) {
	if len(serverIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		"SELECT * FROM items WHERE account_id = ? AND server_id IN (?)",
		accountID, serverIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("building item query: %w", err)
	}

	var items []model.Item
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying items by server id: %w", err)
	}
	return items, nil
}

// PatchItems applies an optimistic partial update to the given items and
// marks them dirty (or clean, when confirming).
func (s *SQLiteStore) PatchItems(ctx context.Context, accountID string, serverIDs []string, patch ItemPatch, dirty bool) error {
	if len(serverIDs) == 0 {
		return nil
	}

	sets := []string{"dirty = ?", "updated_at = ?"}
	args := []interface{}{boolToInt(dirty), time.Now().UTC()}

	if patch.Read != nil {
		sets = append(sets, "read = ?")
		args = append(args, boolToInt(*patch.Read))
	}
	if patch.Flagged != nil {
		sets = append(sets, "flagged = ?")
		args = append(args, boolToInt(*patch.Flagged))
	}
	if patch.Complete != nil {
		sets = append(sets, "complete = ?")
		args = append(args, boolToInt(*patch.Complete))
	}

	query := "UPDATE items SET " + strings.Join(sets, ", ") +
		" WHERE account_id = ? AND server_id IN (?)"
	args = append(args, accountID, serverIDs)

	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return fmt.Errorf("building patch query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), inArgs...); err != nil {
		return fmt.Errorf("patching items: %w", err)
	}

	s.obs.publish(Event{Kind: EventItemsChanged, AccountID: accountID})
	return nil
}

// ClearDirty acknowledges server confirmation.
func (s *SQLiteStore) ClearDirty(ctx context.Context, accountID string, serverIDs []string) error {
	if len(serverIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		"UPDATE items SET dirty = 0 WHERE account_id = ? AND server_id IN (?)",
		accountID, serverIDs,
	)
	if err != nil {
		return fmt.Errorf("building clear-dirty query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("clearing dirty markers: %w", err)
	}
	return nil
}

// DeleteItems removes confirmed-deleted items.
func (s *SQLiteStore) DeleteItems(ctx context.Context, accountID string, serverIDs []string) error {
	if len(serverIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		"DELETE FROM items WHERE account_id = ? AND server_id IN (?)",
		accountID, serverIDs,
	)
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("deleting items: %w", err)
	}
	s.obs.publish(Event{Kind: EventItemsChanged, AccountID: accountID})
	return nil
}

// MoveItem commits a confirmed move. When the server reissued the item
// under a new id, newServerID carries it; otherwise pass the old id.
func (s *SQLiteStore) MoveItem(ctx context.Context, accountID, serverID, dstFolderID, newServerID string) error {
	if newServerID == "" {
		newServerID = serverID
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET folder_id = ?, server_id = ?, dirty = 0, updated_at = ?
		WHERE account_id = ? AND server_id = ?`,
		dstFolderID, newServerID, time.Now().UTC(), accountID, serverID,
	)
	if err != nil {
		return fmt.Errorf("moving item %s: %w", serverID, err)
	}
	s.obs.publish(Event{Kind: EventItemsChanged, AccountID: accountID, FolderID: dstFolderID})
	return nil
}

// GetAttachments retrieves the attachment references of an item.
func (s *SQLiteStore) GetAttachments(ctx context.Context, itemID string) ([]model.Attachment, error) {
	var atts []model.Attachment
	err := s.db.SelectContext(ctx, &atts,
		"SELECT * FROM attachments WHERE item_id = ? ORDER BY display_name", itemID)
	if err != nil {
		return nil, fmt.Errorf("querying attachments: %w", err)
	}
	return atts, nil
}

// EnqueueMutation inserts a pending mutation record.
func (s *SQLiteStore) EnqueueMutation(ctx context.Context, m *model.PendingMutation) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_mutations (
			id, account_id, folder_id, op, item_server_ids,
			target_folder_id, attempts, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AccountID, m.FolderID, string(m.Op), m.ItemServerIDs,
		m.TargetFolderID, m.Attempts, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueueing mutation: %w", err)
	}
	return nil
}

// GetPendingMutations retrieves queued mutations oldest first.
func (s *SQLiteStore) GetPendingMutations(ctx context.Context, accountID string) ([]model.PendingMutation, error) {
	var muts []model.PendingMutation
	err := s.db.SelectContext(ctx, &muts,
		"SELECT * FROM pending_mutations WHERE account_id = ? ORDER BY created_at", accountID)
	if err != nil {
		return nil, fmt.Errorf("querying pending mutations: %w", err)
	}
	return muts, nil
}

// DeleteMutation removes a confirmed or permanently rejected mutation.
func (s *SQLiteStore) DeleteMutation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM pending_mutations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting mutation %s: %w", id, err)
	}
	return nil
}

// BumpMutationAttempts increments a mutation's delivery counter.
func (s *SQLiteStore) BumpMutationAttempts(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE pending_mutations SET attempts = attempts + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("bumping mutation %s: %w", id, err)
	}
	return nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
