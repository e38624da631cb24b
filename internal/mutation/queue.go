// Package mutation translates local user intents (read, flag, move,
// delete, restore) into outbound protocol commands and reconciles the
// local cache with the server's verdict. Local changes apply
// optimistically with a dirty marker; confirmation clears the marker,
// rejection rolls the change back, and ambiguous failures leave the item
// dirty for the next sync pass to settle.
//
// Every intent is also journaled as a pending mutation before it goes on
// the wire. Confirmed and permanently rejected intents are removed;
// ambiguous ones stay queued and Flush redelivers them, so an intent is
// delivered at least once across restarts.
package mutation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

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

// FolderLocker serializes cursor-bearing work per folder. Satisfied by
// *engine.Engine.
type FolderLocker interface {
	LockFolder(accountID, folderID string) func()
}

// ProgressFunc reports incremental batch progress. It is invoked on the
// queue's calling goroutine.
type ProgressFunc func(done, total int)

// DeleteMode selects the semantics of a delete. The caller decides:
// deleting inside trash, drafts, or spam folders typically maps to
// permanent, elsewhere to soft. The queue never infers it.
type DeleteMode int

const (
	// DeleteSoft moves items to the trash folder server-side.
	DeleteSoft DeleteMode = iota

	// DeletePermanent removes items outright.
	DeletePermanent
)

const (
	defaultSubBatchSize = 50

	// maxAttempts bounds redelivery of a journaled intent before Flush
	// abandons it.
	maxAttempts = 5
)

// Queue applies local mutations against the server.
type Queue struct {
	store store.Store
	exec  Executor
	locks FolderLocker
	log   *logrus.Logger

	// SubBatchSize bounds one wire request in batch deletes.
	SubBatchSize int
}

// New builds a Queue.
func New(st store.Store, exec Executor, locks FolderLocker, log *logrus.Logger) *Queue {
	if log == nil {
		log = logrus.New()
	}
	return &Queue{
		store:        st,
		exec:         exec,
		locks:        locks,
		log:          log,
		SubBatchSize: defaultSubBatchSize,
	}
}

// MarkRead sets or clears the read state of the given mail items.
func (q *Queue) MarkRead(ctx context.Context, account *model.Account, folder *model.Folder, serverIDs []string, read bool) error {
	op := model.OpMarkRead
	if !read {
		op = model.OpMarkUnread
	}
	return q.journaled(ctx, account, folder.ID, op, serverIDs, "", func() error {
		return q.markRead(ctx, account, folder, serverIDs, read)
	})
}

func (q *Queue) markRead(ctx context.Context, account *model.Account, folder *model.Folder, serverIDs []string, read bool) error {
	data := wbxml.New(proto.PageAirSync, proto.AirSyncAppData)
	data.AddText(proto.PageEmail, proto.EmailRead, boolText(read))
	return q.patchOp(ctx, account, folder, serverIDs, store.ItemPatch{Read: &read}, data)
}

// Flag sets or clears the follow-up flag of the given mail items.
func (q *Queue) Flag(ctx context.Context, account *model.Account, folder *model.Folder, serverIDs []string, flagged bool) error {
	op := model.OpFlag
	if !flagged {
		op = model.OpUnflag
	}
	return q.journaled(ctx, account, folder.ID, op, serverIDs, "", func() error {
		return q.flag(ctx, account, folder, serverIDs, flagged)
	})
}

func (q *Queue) flag(ctx context.Context, account *model.Account, folder *model.Folder, serverIDs []string, flagged bool) error {
	data := wbxml.New(proto.PageAirSync, proto.AirSyncAppData)
	flag := wbxml.New(proto.PageEmail, proto.EmailFlag)
	if flagged {
		flag.AddText(proto.PageEmail, proto.EmailFlagStatus, "2")
		flag.AddText(proto.PageEmail, proto.EmailFlagType, "Flag for follow up")
	}
	data.Add(flag)
	return q.patchOp(ctx, account, folder, serverIDs, store.ItemPatch{Flagged: &flagged}, data)
}

// Complete sets or clears the completion state of the given task items.
func (q *Queue) Complete(ctx context.Context, account *model.Account, folder *model.Folder, serverIDs []string, complete bool) error {
	op := model.OpComplete
	if !complete {
		op = model.OpUncomplete
	}
	return q.journaled(ctx, account, folder.ID, op, serverIDs, "", func() error {
		return q.complete(ctx, account, folder, serverIDs, complete)
	})
}

func (q *Queue) complete(ctx context.Context, account *model.Account, folder *model.Folder, serverIDs []string, complete bool) error {
	data := wbxml.New(proto.PageAirSync, proto.AirSyncAppData)
	data.AddText(proto.PageTasks, proto.TaskComplete, boolText(complete))
	if complete {
		data.AddText(proto.PageTasks, proto.TaskDateCompleted,
			time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	}
	return q.patchOp(ctx, account, folder, serverIDs, store.ItemPatch{Complete: &complete}, data)
}

// patchOp runs the shared optimistic-change cycle: snapshot, optimistic
// patch with dirty markers, one Sync Change command per item, then
// confirm or roll back per the server's acks.
func (q *Queue) patchOp(ctx context.Context, account *model.Account, folder *model.Folder,
	serverIDs []string, patch store.ItemPatch, data *wbxml.Element) error {

	if len(serverIDs) == 0 {
		return nil
	}

	snapshot, err := q.store.GetItemsByServerIDs(ctx, account.ID, serverIDs)
	if err != nil {
		return err
	}

	// Optimistic: the UI reflects the intent immediately.
	if err := q.store.PatchItems(ctx, account.ID, serverIDs, patch, true); err != nil {
		return err
	}

	commands := make([]proto.ClientCommand, 0, len(serverIDs))
	for _, id := range serverIDs {
		commands = append(commands, proto.ClientCommand{
			Type:     proto.ClientChange,
			ServerID: id,
			Data:     data,
		})
	}

	cr, err := q.sendCollectionCommands(ctx, account, folder, commands, nil)
	if err != nil {
		// Ambiguous or failed: items stay dirty; the next sync pass
		// reconciles actual server state.
		return err
	}

	// Changes succeed silently; the server lists only failures.
	failed := map[string]int{}
	for _, ack := range cr.Acks {
		if ack.Type == proto.ClientChange && ack.Status != proto.SyncStatusOK {
			failed[ack.ServerID] = ack.Status
		}
	}

	var confirmed []string
	for _, id := range serverIDs {
		if _, bad := failed[id]; !bad {
			confirmed = append(confirmed, id)
		}
	}
	if err := q.store.ClearDirty(ctx, account.ID, confirmed); err != nil {
		return err
	}

	if len(failed) > 0 {
		if err := q.rollback(ctx, account, snapshot, failed); err != nil {
			return err
		}
		return errs.ServerRejected("sync", firstStatus(failed),
			fmt.Sprintf("server rejected %d of %d changes", len(failed), len(serverIDs)))
	}
	return nil
}

// rollback restores rejected items to their last-known server state.
func (q *Queue) rollback(ctx context.Context, account *model.Account, snapshot []model.Item, failed map[string]int) error {
	for _, it := range snapshot {
		if _, bad := failed[it.ServerID]; !bad {
			continue
		}
		read, flagged, complete := it.Read, it.Flagged, it.Complete
		patch := store.ItemPatch{Read: &read, Flagged: &flagged, Complete: &complete}
		if err := q.store.PatchItems(ctx, account.ID, []string{it.ServerID}, patch, false); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes items with the given semantics, in bounded sub-batches,
// reporting progress after each. A mid-batch failure leaves earlier
// sub-batches deleted and later ones untouched; the returned error says
// how far it got. Cancellation takes effect between sub-batches.
func (q *Queue) Delete(ctx context.Context, account *model.Account, folder *model.Folder,
	serverIDs []string, mode DeleteMode, progress ProgressFunc) error {

	op := model.OpSoftDelete
	if mode == DeletePermanent {
		op = model.OpHardDelete
	}
	return q.journaled(ctx, account, folder.ID, op, serverIDs, "", func() error {
		return q.delete(ctx, account, folder, serverIDs, mode, progress)
	})
}

func (q *Queue) delete(ctx context.Context, account *model.Account, folder *model.Folder,
	serverIDs []string, mode DeleteMode, progress ProgressFunc) error {

	total := len(serverIDs)
	if total == 0 {
		return nil
	}

	size := q.SubBatchSize
	if size <= 0 {
		size = defaultSubBatchSize
	}

	done := 0
	for start := 0; start < total; start += size {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("delete cancelled after %d of %d items: %w", done, total, err)
		}

		end := start + size
		if end > total {
			end = total
		}
		chunk := serverIDs[start:end]

		if err := q.deleteChunk(ctx, account, folder, chunk, mode); err != nil {
			return fmt.Errorf("deleted %d of %d items: %w", done, total, err)
		}

		done = end
		if progress != nil {
			progress(done, total)
		}
	}
	return nil
}

// deleteChunk deletes one sub-batch via Sync Delete commands.
func (q *Queue) deleteChunk(ctx context.Context, account *model.Account, folder *model.Folder,
	serverIDs []string, mode DeleteMode) error {

	snapshot, err := q.store.GetItemsByServerIDs(ctx, account.ID, serverIDs)
	if err != nil {
		return err
	}

	// Optimistic local delete; rejected ids are re-inserted below.
	if err := q.store.DeleteItems(ctx, account.ID, serverIDs); err != nil {
		return err
	}

	commands := make([]proto.ClientCommand, 0, len(serverIDs))
	for _, id := range serverIDs {
		commands = append(commands, proto.ClientCommand{Type: proto.ClientDelete, ServerID: id})
	}

	asMoves := mode == DeleteSoft
	cr, err := q.sendCollectionCommands(ctx, account, folder, commands, &asMoves)
	if err != nil {
		// Ambiguous: restore the rows, the server may still hold them.
		// The journal redelivers the intent later.
		if restoreErr := q.reinsert(ctx, account, folder, snapshot, nil); restoreErr != nil {
			return restoreErr
		}
		return err
	}

	failed := map[string]int{}
	for _, ack := range cr.Acks {
		if ack.Type == proto.ClientDelete && ack.Status != proto.SyncStatusOK {
			failed[ack.ServerID] = ack.Status
		}
	}
	if len(failed) == 0 {
		return nil
	}

	if err := q.reinsert(ctx, account, folder, snapshot, failed); err != nil {
		return err
	}
	return errs.ServerRejected("sync", firstStatus(failed),
		fmt.Sprintf("server rejected %d of %d deletes", len(failed), len(serverIDs)))
}

// reinsert puts optimistically deleted rows back. A nil filter restores
// the whole snapshot; otherwise only the listed server ids come back.
// The change set carries no sync key: the folder lock is already
// released here and a sync pass may have advanced the cursor, so the
// restore must not write it.
func (q *Queue) reinsert(ctx context.Context, account *model.Account, folder *model.Folder,
	snapshot []model.Item, only map[string]int) error {

	restore := store.ChangeSet{
		AccountID: account.ID,
		FolderID:  folder.ID,
	}
	for _, it := range snapshot {
		if only != nil {
			if _, keep := only[it.ServerID]; !keep {
				continue
			}
		}
		it.Dirty = false
		restore.Upserts = append(restore.Upserts, store.ItemUpsert{Item: it})
	}
	if len(restore.Upserts) == 0 {
		return nil
	}
	return q.store.ApplyItemChanges(ctx, restore)
}

// Move relocates items to another folder. Folder membership changes only
// on the confirmed response; until then the items are merely dirty.
func (q *Queue) Move(ctx context.Context, account *model.Account, src, dst *model.Folder, serverIDs []string) error {
	return q.journaled(ctx, account, src.ID, model.OpMove, serverIDs, dst.ID, func() error {
		return q.move(ctx, account, src, dst, serverIDs)
	})
}

func (q *Queue) move(ctx context.Context, account *model.Account, src, dst *model.Folder, serverIDs []string) error {
	if len(serverIDs) == 0 {
		return nil
	}

	if err := q.store.PatchItems(ctx, account.ID, serverIDs, store.ItemPatch{}, true); err != nil {
		return err
	}

	req := &proto.MoveItemsRequest{}
	for _, id := range serverIDs {
		req.Moves = append(req.Moves, proto.Move{
			SrcMsgID: id,
			SrcFldID: src.ServerID,
			DstFldID: dst.ServerID,
		})
	}

	root, err := q.exec.Execute(ctx, account, req)
	if err != nil {
		return err
	}
	resp, err := proto.ParseMoveItemsResponse(root)
	if err != nil {
		return err
	}

	var rejected int
	for _, id := range serverIDs {
		result := resp.Result(id)
		if result == nil || result.Status != proto.MoveStatusOK {
			// Unmoved server-side; drop the dirty marker.
			if err := q.store.ClearDirty(ctx, account.ID, []string{id}); err != nil {
				return err
			}
			rejected++
			continue
		}
		if err := q.store.MoveItem(ctx, account.ID, id, dst.ID, result.DstMsgID); err != nil {
			return err
		}
	}

	if rejected > 0 {
		return errs.ServerRejected("moveitems", 0,
			fmt.Sprintf("server rejected %d of %d moves", rejected, len(serverIDs)))
	}
	return nil
}

// Restore moves items out of the trash back into a destination folder.
func (q *Queue) Restore(ctx context.Context, account *model.Account, trash, dst *model.Folder, serverIDs []string) error {
	return q.journaled(ctx, account, trash.ID, model.OpRestore, serverIDs, dst.ID, func() error {
		return q.move(ctx, account, trash, dst, serverIDs)
	})
}

// SendReadReceipt transmits a disposition notification for one message.
func (q *Queue) SendReadReceipt(ctx context.Context, account *model.Account, item *model.Item) error {
	return q.journaled(ctx, account, item.FolderID, model.OpReadReceipt, []string{item.ServerID}, "", func() error {
		return q.sendReadReceipt(ctx, account, item)
	})
}

func (q *Queue) sendReadReceipt(ctx context.Context, account *model.Account, item *model.Item) error {
	mime := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Read: %s\r\n"+
			"Content-Type: message/disposition-notification\r\nMIME-Version: 1.0\r\n\r\n"+
			"Reporting-UA: easclient\r\nFinal-Recipient: rfc822;%s\r\n"+
			"Disposition: manual-action/MDN-sent-manually; displayed\r\n",
		account.Username, item.From, item.Subject, account.Username,
	)

	root, err := q.exec.Execute(ctx, account, &proto.SendMailRequest{
		ClientID: uuid.New().String(),
		MIME:     []byte(mime),
	})
	if err != nil {
		return err
	}
	// An empty response body means accepted.
	if root != nil {
		if status := intChildText(root); status > 1 {
			return errs.ServerRejected("sendmail", status, "server refused the read receipt")
		}
	}
	return nil
}

// journaled runs fn under at-least-once delivery: the intent is persisted
// first, removed on confirmation or permanent rejection, and kept (with a
// bumped attempt count) on ambiguous failure so Flush can redeliver it.
func (q *Queue) journaled(ctx context.Context, account *model.Account, folderID string,
	op model.MutationOp, serverIDs []string, targetFolderID string, fn func() error) error {

	if len(serverIDs) == 0 {
		return nil
	}

	ids, err := json.Marshal(serverIDs)
	if err != nil {
		return err
	}
	m := &model.PendingMutation{
		ID:             uuid.New().String(),
		AccountID:      account.ID,
		FolderID:       folderID,
		Op:             op,
		ItemServerIDs:  string(ids),
		TargetFolderID: targetFolderID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := q.store.EnqueueMutation(ctx, m); err != nil {
		return err
	}

	return q.settle(ctx, m.ID, fn())
}

// settle resolves a journal entry against the outcome of its delivery.
func (q *Queue) settle(ctx context.Context, mutationID string, opErr error) error {
	if opErr == nil || !retryable(opErr) {
		// Confirmed, or the server gave a definitive no. Either way the
		// intent is settled.
		if err := q.store.DeleteMutation(ctx, mutationID); err != nil {
			return err
		}
		return opErr
	}
	if err := q.store.BumpMutationAttempts(ctx, mutationID); err != nil {
		return err
	}
	return opErr
}

// retryable reports whether a delivery failure is worth redelivering:
// transient transport trouble, or a cursor conflict the next sync pass
// resolves.
func retryable(err error) bool {
	if errs.IsTemporary(err) {
		return true
	}
	return errs.KindOf(err) == errs.KindCursorInvalid
}

// Flush redelivers every journaled intent for the account, oldest first.
// Intents that exhausted their attempts are dropped with a warning. Call
// it at startup and after connectivity returns.
func (q *Queue) Flush(ctx context.Context, account *model.Account) error {
	pending, err := q.store.GetPendingMutations(ctx, account.ID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	folders, err := q.store.GetFolders(ctx, account.ID)
	if err != nil {
		return err
	}
	byID := make(map[string]*model.Folder, len(folders))
	for i := range folders {
		byID[folders[i].ID] = &folders[i]
	}

	for i := range pending {
		m := &pending[i]
		log := q.log.WithFields(logrus.Fields{
			"account":  account.ID,
			"op":       m.Op,
			"attempts": m.Attempts,
		})

		if m.Attempts >= maxAttempts {
			log.Warn("abandoning mutation after repeated delivery failures")
			if err := q.store.DeleteMutation(ctx, m.ID); err != nil {
				return err
			}
			continue
		}

		var serverIDs []string
		if err := json.Unmarshal([]byte(m.ItemServerIDs), &serverIDs); err != nil {
			log.WithError(err).Warn("dropping malformed mutation record")
			if err := q.store.DeleteMutation(ctx, m.ID); err != nil {
				return err
			}
			continue
		}

		if err := q.settle(ctx, m.ID, q.redeliver(ctx, account, m, byID, serverIDs)); err != nil {
			if retryable(err) {
				return err
			}
			log.WithError(err).Warn("mutation rejected by server")
		}
	}
	return nil
}

// redeliver replays one journaled intent.
func (q *Queue) redeliver(ctx context.Context, account *model.Account, m *model.PendingMutation,
	folders map[string]*model.Folder, serverIDs []string) error {

	folder := folders[m.FolderID]
	if folder == nil {
		return errs.ServerRejected("mutation", 0, "folder no longer exists")
	}

	switch m.Op {
	case model.OpMarkRead:
		return q.markRead(ctx, account, folder, serverIDs, true)
	case model.OpMarkUnread:
		return q.markRead(ctx, account, folder, serverIDs, false)
	case model.OpFlag:
		return q.flag(ctx, account, folder, serverIDs, true)
	case model.OpUnflag:
		return q.flag(ctx, account, folder, serverIDs, false)
	case model.OpComplete:
		return q.complete(ctx, account, folder, serverIDs, true)
	case model.OpUncomplete:
		return q.complete(ctx, account, folder, serverIDs, false)
	case model.OpSoftDelete:
		return q.delete(ctx, account, folder, serverIDs, DeleteSoft, nil)
	case model.OpHardDelete:
		return q.delete(ctx, account, folder, serverIDs, DeletePermanent, nil)
	case model.OpMove, model.OpRestore:
		dst := folders[m.TargetFolderID]
		if dst == nil {
			return errs.ServerRejected("moveitems", 0, "destination folder no longer exists")
		}
		return q.move(ctx, account, folder, dst, serverIDs)
	case model.OpReadReceipt:
		item, err := q.store.GetItemByServerID(ctx, account.ID, serverIDs[0])
		if err != nil {
			return err
		}
		if item == nil {
			return errs.ServerRejected("sendmail", 0, "message no longer exists")
		}
		return q.sendReadReceipt(ctx, account, item)
	default:
		return errs.ServerRejected("mutation", 0, "unknown mutation op "+string(m.Op))
	}
}

// sendCollectionCommands runs one cursor-bearing Sync exchange for a
// folder under its lock, advancing the folder cursor with the response.
func (q *Queue) sendCollectionCommands(ctx context.Context, account *model.Account, folder *model.Folder,
	commands []proto.ClientCommand, deletionsAsMoves *bool) (*proto.SyncCollectionResponse, error) {

	unlock := q.locks.LockFolder(account.ID, folder.ID)
	defer unlock()

	// Re-read the folder: a sync pass may have advanced the cursor
	// while we waited on the lock.
	fresh, err := q.store.GetFolderByServerID(ctx, account.ID, folder.ServerID)
	if err != nil {
		return nil, err
	}
	if fresh != nil {
		folder.SyncKey = fresh.SyncKey
	}
	if folder.SyncKey == "" {
		return nil, errs.CursorInvalid("sync", folder.ServerID)
	}

	req := &proto.SyncRequest{Collections: []proto.SyncCollection{{
		CollectionID:     folder.ServerID,
		SyncKey:          folder.SyncKey,
		DeletionsAsMoves: deletionsAsMoves,
		Commands:         commands,
	}}}

	root, err := q.exec.Execute(ctx, account, req)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, errs.Protocol("sync", "empty response to a command-bearing sync")
	}

	resp, err := proto.ParseSyncResponse(root)
	if err != nil {
		return nil, err
	}
	cr := resp.Collection(folder.ServerID)
	if cr == nil {
		return nil, errs.Protocol("sync", "response missing collection %s", folder.ServerID)
	}

	switch cr.Status {
	case proto.SyncStatusOK:
	case proto.SyncStatusInvalidSyncKey:
		// The engine's next pass will bootstrap; items stay dirty.
		return nil, errs.CursorInvalid("sync", folder.ServerID)
	default:
		return nil, errs.ServerRejected("sync", cr.Status, "server rejected the mutation sync")
	}

	if cr.SyncKey != "" && cr.SyncKey != folder.SyncKey {
		// Commit the advanced cursor atomically, even with no item
		// payload attached.
		if err := q.store.ApplyItemChanges(ctx, store.ChangeSet{
			AccountID:  account.ID,
			FolderID:   folder.ID,
			NewSyncKey: cr.SyncKey,
		}); err != nil {
			return nil, err
		}
		folder.SyncKey = cr.SyncKey
	}

	return cr, nil
}

func boolText(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func firstStatus(m map[string]int) int {
	for _, v := range m {
		return v
	}
	return 0
}

// intChildText pulls the top-level status of a SendMail error response.
func intChildText(root *wbxml.Element) int {
	if root == nil {
		return 0
	}
	s := root.ChildText(proto.PageComposeMail, proto.ComposeStatus)
	n := 0
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return 0
		}
		n = n*10 + int(ch-'0')
	}
	return n
}
