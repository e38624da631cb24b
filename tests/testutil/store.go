package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewTestAccount inserts a minimal account and returns it.
func NewTestAccount(t *testing.T, s store.Store) *model.Account {
	t.Helper()

	a := &model.Account{
		ID:             uuid.New().String(),
		Name:           "test",
		Host:           "mail.example.com",
		Port:           443,
		TLS:            model.TLSSystem,
		Username:       "user@example.com",
		CredentialKey:  "test-cred",
		DeviceID:       "device1",
		DeviceType:     "EasClient",
		ProvisionState: model.ProvisionNone,
		SyncMode:       model.SyncModePush,
		HeartbeatSec:   480,
		IntervalSec:    300,
	}
	if err := s.UpsertAccount(context.Background(), a); err != nil {
		t.Fatalf("inserting test account: %v", err)
	}
	return a
}

// NewTestFolder inserts one folder for the account and returns it.
func NewTestFolder(t *testing.T, s store.Store, accountID, serverID string, kind model.FolderKind) *model.Folder {
	t.Helper()

	ctx := context.Background()
	err := s.ApplyFolderChanges(ctx, accountID, "1", []model.Folder{{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		ServerID:    serverID,
		DisplayName: serverID,
		Kind:        kind,
	}}, nil)
	if err != nil {
		t.Fatalf("inserting test folder: %v", err)
	}
	f, err := s.GetFolderByServerID(ctx, accountID, serverID)
	if err != nil || f == nil {
		t.Fatalf("reading back test folder: %v", err)
	}
	return f
}

// NewTestItem inserts one mail item into the folder and returns it.
func NewTestItem(t *testing.T, s store.Store, accountID string, folder *model.Folder, serverID string) *model.Item {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()
	item := model.Item{
		ID:        uuid.New().String(),
		AccountID: accountID,
		FolderID:  folder.ID,
		ServerID:  serverID,
		Kind:      model.ItemMail,
		Subject:   "subject " + serverID,
		From:      "sender@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.ApplyItemChanges(ctx, store.ChangeSet{
		AccountID:  accountID,
		FolderID:   folder.ID,
		NewSyncKey: folder.SyncKey,
		Upserts:    []store.ItemUpsert{{Item: item}},
	})
	if err != nil {
		t.Fatalf("inserting test item: %v", err)
	}
	got, err := s.GetItemByServerID(ctx, accountID, serverID)
	if err != nil || got == nil {
		t.Fatalf("reading back test item: %v", err)
	}
	return got
}
