// Package engine runs the per-folder synchronization cycle: fetch changes
// with the folder's cursor, apply them to the store in one transaction,
// and advance the cursor. It loops while the server reports more and
// re-bootstraps when the server rejects a stale cursor.
package engine

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/proto"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/store"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

// Executor sends one typed command. Satisfied by *executor.Executor.
type Executor interface {
	Execute(ctx context.Context, account *model.Account, cmd proto.Command) (*wbxml.Element, error)
}

// PassResult summarizes one sync pass over a folder.
type PassResult struct {
	Added   int
	Changed int
	Deleted int

	// Bootstrapped is set when the pass discarded the local cache and
	// refetched from scratch because the server rejected the cursor.
	Bootstrapped bool
}

const (
	defaultWindowSize = 100
	defaultWorkers    = 4
)

// Engine synchronizes folders for any number of accounts. Passes for the
// same folder are strictly sequential; passes across folders run
// concurrently up to a bounded worker count.
type Engine struct {
	store    store.Store
	exec     Executor
	log      *logrus.Logger
	appliers map[string]Applier
	locks    *keyedMutex

	// WindowSize caps the server-side change count per fetch.
	WindowSize int

	// Workers bounds concurrent folder passes in SyncAll.
	Workers int
}

// New builds an Engine with the standard mail, calendar, and task
// appliers registered.
func New(st store.Store, exec Executor, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		store: st,
		exec:  exec,
		log:   log,
		appliers: map[string]Applier{
			"Email":    MailApplier{},
			"Calendar": CalendarApplier{},
			"Tasks":    TaskApplier{},
		},
		locks:      newKeyedMutex(),
		WindowSize: defaultWindowSize,
		Workers:    defaultWorkers,
	}
}

// SyncHierarchy runs a FolderSync pass, reconciling the folder list and
// advancing the hierarchy cursor. A rejected hierarchy key restarts once
// from the bootstrap sentinel.
func (e *Engine) SyncHierarchy(ctx context.Context, account *model.Account) error {
	retried := false
	for {
		root, err := e.exec.Execute(ctx, account, &proto.FolderSyncRequest{SyncKey: account.FolderSyncKey})
		if err != nil {
			return err
		}
		if root == nil {
			return nil
		}

		resp, err := proto.ParseFolderSyncResponse(root)
		if err != nil {
			return err
		}

		switch resp.Status {
		case proto.FolderStatusOK:
		case proto.FolderStatusInvalidSyncKey:
			if retried {
				return errs.CursorInvalid("foldersync", "hierarchy")
			}
			e.log.WithField("account", account.ID).
				Warn("hierarchy sync key rejected; refetching folder list")
			account.FolderSyncKey = ""
			retried = true
			continue
		default:
			return errs.ServerRejected("foldersync", resp.Status, "server rejected folder sync")
		}

		if resp.SyncKey == "" {
			return errs.Protocol("foldersync", "response carries no sync key")
		}

		var upserts []model.Folder
		for _, fc := range append(resp.Adds, resp.Updates...) {
			upserts = append(upserts, model.Folder{
				AccountID:   account.ID,
				ServerID:    fc.ServerID,
				ParentID:    fc.ParentID,
				DisplayName: fc.DisplayName,
				Kind:        model.KindFromTypeCode(fc.Type),
			})
		}

		if err := e.store.ApplyFolderChanges(ctx, account.ID, resp.SyncKey, upserts, resp.Deletes); err != nil {
			return err
		}
		account.FolderSyncKey = resp.SyncKey

		e.log.WithFields(logrus.Fields{
			"account": account.ID,
			"added":   len(resp.Adds),
			"updated": len(resp.Updates),
			"deleted": len(resp.Deletes),
		}).Info("folder hierarchy synchronized")
		return nil
	}
}

// SyncFolder runs one full sync pass over a folder: it loops fetch and
// apply until the server reports no more changes, without yielding the
// folder to other work in between. The folder's SyncKey field is advanced
// in step with the store.
func (e *Engine) SyncFolder(ctx context.Context, account *model.Account, folder *model.Folder) (*PassResult, error) {
	class := folder.Kind.Class()
	if class == "" {
		return nil, errs.ServerRejected("sync", 0, "folder kind "+string(folder.Kind)+" is not synchronized")
	}
	applier, ok := e.appliers[class]
	if !ok {
		return nil, errs.Protocol("sync", "no applier for class %s", class)
	}

	unlock := e.locks.lock(account.ID + "/" + folder.ID)
	defer unlock()

	res := &PassResult{}
	bootstrapped := false

	for {
		syncKey := folder.SyncKey
		priming := syncKey == ""
		if priming {
			// First contact establishes a cursor; changes follow on
			// the next iteration.
			syncKey = proto.SyncBootstrapKey
		}

		req := &proto.SyncRequest{Collections: []proto.SyncCollection{{
			CollectionID: folder.ServerID,
			SyncKey:      syncKey,
			GetChanges:   !priming,
			WindowSize:   e.WindowSize,
			MIMESupport:  class == "Email" && !priming,
		}}}

		root, err := e.exec.Execute(ctx, account, req)
		if err != nil {
			return res, err
		}
		if root == nil {
			// Empty response body: nothing changed server-side.
			return res, nil
		}

		resp, err := proto.ParseSyncResponse(root)
		if err != nil {
			return res, err
		}

		cr := resp.Collection(folder.ServerID)
		if cr == nil {
			if resp.Status > 0 && resp.Status != proto.SyncStatusOK {
				return res, errs.ServerRejected("sync", resp.Status, "server rejected sync request")
			}
			return res, errs.Protocol("sync", "response missing collection %s", folder.ServerID)
		}

		switch cr.Status {
		case proto.SyncStatusOK:
		case proto.SyncStatusInvalidSyncKey:
			if bootstrapped {
				return res, errs.CursorInvalid("sync", folder.ServerID)
			}
			// The only path that drops local cache contents. Loud on
			// purpose: data was discarded, even though we recover.
			e.log.WithFields(logrus.Fields{
				"account": account.ID,
				"folder":  folder.ServerID,
			}).Warn("sync key rejected; discarding cached items and bootstrapping")

			if err := e.store.ResetFolder(ctx, folder.ID); err != nil {
				return res, err
			}
			folder.SyncKey = ""
			bootstrapped = true
			res.Bootstrapped = true
			continue
		case proto.SyncStatusFolderGone:
			return res, errs.ServerRejected("sync", cr.Status, "folder hierarchy out of date; run a folder sync")
		default:
			return res, errs.ServerRejected("sync", cr.Status, "server rejected folder sync pass")
		}

		if cr.SyncKey == "" {
			return res, errs.Protocol("sync", "response carries no sync key for %s", folder.ServerID)
		}

		cs, err := e.buildChangeSet(ctx, account, folder, applier, cr)
		if err != nil {
			return res, err
		}
		if err := e.store.ApplyItemChanges(ctx, *cs); err != nil {
			return res, err
		}
		folder.SyncKey = cr.SyncKey

		res.Added += len(cr.Adds)
		res.Changed += len(cr.Changes)
		res.Deleted += len(cr.Deletes) + len(cr.SoftDeletes)

		if priming || cr.MoreAvailable {
			continue
		}

		e.log.WithFields(logrus.Fields{
			"account": account.ID,
			"folder":  folder.ServerID,
			"added":   res.Added,
			"changed": res.Changed,
			"deleted": res.Deleted,
		}).Debug("sync pass complete")
		return res, nil
	}
}

// buildChangeSet turns a collection response into one atomic store write.
func (e *Engine) buildChangeSet(ctx context.Context, account *model.Account, folder *model.Folder,
	applier Applier, cr *proto.SyncCollectionResponse) (*store.ChangeSet, error) {

	cs := &store.ChangeSet{
		AccountID:  account.ID,
		FolderID:   folder.ID,
		NewSyncKey: cr.SyncKey,
	}

	for _, add := range cr.Adds {
		item := model.Item{
			AccountID: account.ID,
			FolderID:  folder.ID,
			ServerID:  add.ServerID,
			Kind:      applier.Kind(),
		}
		var atts []model.Attachment
		if add.Data != nil {
			var err error
			if atts, err = applier.Apply(add.Data, &item); err != nil {
				return nil, err
			}
		}
		cs.Upserts = append(cs.Upserts, store.ItemUpsert{Item: item, Attachments: atts})
	}

	for _, change := range cr.Changes {
		item := model.Item{
			AccountID: account.ID,
			FolderID:  folder.ID,
			ServerID:  change.ServerID,
			Kind:      applier.Kind(),
		}
		if existing, err := e.store.GetItemByServerID(ctx, account.ID, change.ServerID); err != nil {
			return nil, err
		} else if existing != nil {
			item = *existing
		}
		// Server state supersedes any unconfirmed optimistic guess.
		item.Dirty = false

		var atts []model.Attachment
		if change.Data != nil {
			var err error
			if atts, err = applier.Apply(change.Data, &item); err != nil {
				return nil, err
			}
		}
		cs.Upserts = append(cs.Upserts, store.ItemUpsert{Item: item, Attachments: atts})
	}

	cs.Deletes = append(cs.Deletes, cr.Deletes...)
	cs.Deletes = append(cs.Deletes, cr.SoftDeletes...)

	return cs, nil
}

// LockFolder serializes external work (the mutation queue's cursor-bearing
// commands) against sync passes for the same folder. The returned func
// releases the lock.
func (e *Engine) LockFolder(accountID, folderID string) func() {
	return e.locks.lock(accountID + "/" + folderID)
}

// SyncFolderByServerID resolves a folder and runs one pass over it; used
// by the push channel when the server names changed folders.
func (e *Engine) SyncFolderByServerID(ctx context.Context, account *model.Account, serverID string) (*PassResult, error) {
	folder, err := e.store.GetFolderByServerID(ctx, account.ID, serverID)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, errs.ServerRejected("sync", 0, "unknown folder "+serverID)
	}
	return e.SyncFolder(ctx, account, folder)
}

// SyncAll refreshes the hierarchy, then runs one pass over every
// syncable folder with a bounded worker pool. Within a folder passes stay
// sequential (the per-folder lock); across folders they run concurrently.
func (e *Engine) SyncAll(ctx context.Context, account *model.Account) error {
	if err := e.SyncHierarchy(ctx, account); err != nil {
		return err
	}

	folders, err := e.store.GetFolders(ctx, account.ID)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Workers)

	for i := range folders {
		folder := folders[i]
		if !folder.Kind.Syncable() {
			continue
		}
		g.Go(func() error {
			_, err := e.SyncFolder(gctx, account, &folder)
			return err
		})
	}

	return g.Wait()
}
