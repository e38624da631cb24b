package mutation_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/mutation"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/proto"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/store"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
	"github.com/DedovMosol/IwoMailClient-sub004/tests/testutil"
)

// fakeExec replays one canned reply per call, recording every command.
type fakeExec struct {
	mu      sync.Mutex
	replies []execReply
	reqs    []proto.Command
}

type execReply struct {
	root *wbxml.Element
	err  error
}

func (f *fakeExec) Execute(_ context.Context, _ *model.Account, cmd proto.Command) (*wbxml.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, cmd)
	if len(f.replies) == 0 {
		return nil, errs.Protocol("test", "unexpected request %s", cmd.Name())
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.root, r.err
}

// noopLocks satisfies FolderLocker without an engine.
type noopLocks struct{}

func (noopLocks) LockFolder(_, _ string) func() { return func() {} }

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newQueue(t *testing.T, st store.Store, exec *fakeExec) *mutation.Queue {
	t.Helper()
	return mutation.New(st, exec, noopLocks{}, quietLog())
}

// setCursor gives the stored folder a live sync cursor.
func setCursor(t *testing.T, st store.Store, accountID string, folder *model.Folder, key string) {
	t.Helper()
	err := st.ApplyItemChanges(context.Background(), store.ChangeSet{
		AccountID:  accountID,
		FolderID:   folder.ID,
		NewSyncKey: key,
	})
	require.NoError(t, err)
	folder.SyncKey = key
}

type ack struct {
	tag      byte
	serverID string
	status   int
}

func syncReply(id, syncKey string, status int, acks ...ack) execReply {
	coll := wbxml.New(proto.PageAirSync, proto.AirSyncCollection).
		AddText(proto.PageAirSync, proto.AirSyncSyncKey, syncKey).
		AddText(proto.PageAirSync, proto.AirSyncCollectionID, id).
		AddText(proto.PageAirSync, proto.AirSyncStatus, strconv.Itoa(status))
	if len(acks) > 0 {
		resps := wbxml.New(proto.PageAirSync, proto.AirSyncResponses)
		for _, a := range acks {
			resps.Add(wbxml.New(proto.PageAirSync, a.tag).
				AddText(proto.PageAirSync, proto.AirSyncServerID, a.serverID).
				AddText(proto.PageAirSync, proto.AirSyncStatus, strconv.Itoa(a.status)))
		}
		coll.Add(resps)
	}
	root := wbxml.New(proto.PageAirSync, proto.AirSync).
		AddText(proto.PageAirSync, proto.AirSyncStatus, "1").
		Add(wbxml.New(proto.PageAirSync, proto.AirSyncCollections).Add(coll))
	return execReply{root: root}
}

func moveReply(results ...proto.MoveResult) execReply {
	root := wbxml.New(proto.PageMove, proto.MoveItems)
	for _, r := range results {
		root.Add(wbxml.New(proto.PageMove, proto.MoveResponse).
			AddText(proto.PageMove, proto.MoveSrcMsgID, r.SrcMsgID).
			AddText(proto.PageMove, proto.MoveStatus, strconv.Itoa(r.Status)).
			AddText(proto.PageMove, proto.MoveDstMsgID, r.DstMsgID))
	}
	return execReply{root: root}
}

func pendingCount(t *testing.T, st store.Store, accountID string) int {
	t.Helper()
	muts, err := st.GetPendingMutations(context.Background(), accountID)
	require.NoError(t, err)
	return len(muts)
}

func TestMarkReadConfirmed(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	folder := testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)
	testutil.NewTestItem(t, st, account.ID, folder, "f1:1")
	testutil.NewTestItem(t, st, account.ID, folder, "f1:2")
	setCursor(t, st, account.ID, folder, "5")

	exec := &fakeExec{replies: []execReply{
		syncReply("f1", "6", proto.SyncStatusOK),
	}}
	q := newQueue(t, st, exec)

	ctx := context.Background()
	require.NoError(t, q.MarkRead(ctx, account, folder, []string{"f1:1", "f1:2"}, true))

	for _, id := range []string{"f1:1", "f1:2"} {
		it, err := st.GetItemByServerID(ctx, account.ID, id)
		require.NoError(t, err)
		require.True(t, it.Read)
		require.False(t, it.Dirty)
	}

	req := exec.reqs[0].(*proto.SyncRequest)
	coll := req.Collections[0]
	require.Equal(t, "5", coll.SyncKey)
	require.Len(t, coll.Commands, 2)
	require.Equal(t, proto.ClientChange, coll.Commands[0].Type)

	stored, err := st.GetFolderByServerID(ctx, account.ID, "f1")
	require.NoError(t, err)
	require.Equal(t, "6", stored.SyncKey, "cursor advances with the command response")

	require.Zero(t, pendingCount(t, st, account.ID), "confirmed intent leaves the journal")
}

func TestMarkReadRejectedRollsBack(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	folder := testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)
	testutil.NewTestItem(t, st, account.ID, folder, "f1:1")
	testutil.NewTestItem(t, st, account.ID, folder, "f1:2")
	setCursor(t, st, account.ID, folder, "5")

	exec := &fakeExec{replies: []execReply{
		syncReply("f1", "6", proto.SyncStatusOK,
			ack{proto.AirSyncChange, "f1:1", proto.SyncStatusObjectNotFound}),
	}}
	q := newQueue(t, st, exec)

	ctx := context.Background()
	err := q.MarkRead(ctx, account, folder, []string{"f1:1", "f1:2"}, true)
	require.Error(t, err)
	require.Equal(t, errs.KindServerRejected, errs.KindOf(err))

	rejected, err2 := st.GetItemByServerID(ctx, account.ID, "f1:1")
	require.NoError(t, err2)
	require.False(t, rejected.Read, "rejected change rolls back")
	require.False(t, rejected.Dirty)

	confirmed, err2 := st.GetItemByServerID(ctx, account.ID, "f1:2")
	require.NoError(t, err2)
	require.True(t, confirmed.Read)
	require.False(t, confirmed.Dirty)

	require.Zero(t, pendingCount(t, st, account.ID), "a definitive no settles the intent")
}

func TestMarkReadAmbiguousStaysDirtyAndJournaled(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	folder := testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)
	testutil.NewTestItem(t, st, account.ID, folder, "f1:1")
	setCursor(t, st, account.ID, folder, "5")

	exec := &fakeExec{replies: []execReply{
		{err: errs.Transport("http", true, errors.New("connection reset"))},
	}}
	q := newQueue(t, st, exec)

	ctx := context.Background()
	err := q.MarkRead(ctx, account, folder, []string{"f1:1"}, true)
	require.Error(t, err)
	require.True(t, errs.IsTemporary(err))

	it, err2 := st.GetItemByServerID(ctx, account.ID, "f1:1")
	require.NoError(t, err2)
	require.True(t, it.Read, "the optimistic change stays visible")
	require.True(t, it.Dirty, "unconfirmed change keeps the dirty marker")

	muts, err2 := st.GetPendingMutations(ctx, account.ID)
	require.NoError(t, err2)
	require.Len(t, muts, 1)
	require.Equal(t, model.OpMarkRead, muts[0].Op)
	require.Equal(t, 1, muts[0].Attempts)
}

func TestMutationRequiresCursor(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	folder := testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)
	testutil.NewTestItem(t, st, account.ID, folder, "f1:1")
	// The folder was never synced; its cursor is empty.

	exec := &fakeExec{}
	q := newQueue(t, st, exec)

	err := q.Flag(context.Background(), account, folder, []string{"f1:1"}, true)
	require.Error(t, err)
	require.Equal(t, errs.KindCursorInvalid, errs.KindOf(err))
	require.Empty(t, exec.reqs, "no wire traffic without a cursor")
	require.Equal(t, 1, pendingCount(t, st, account.ID), "the intent waits for the next sync")
}

func TestDeleteRunsInSubBatches(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	folder := testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)

	var ids []string
	for i := 0; i < 120; i++ {
		id := fmt.Sprintf("f1:%d", i)
		testutil.NewTestItem(t, st, account.ID, folder, id)
		ids = append(ids, id)
	}
	setCursor(t, st, account.ID, folder, "5")

	exec := &fakeExec{replies: []execReply{
		syncReply("f1", "6", proto.SyncStatusOK),
		syncReply("f1", "7", proto.SyncStatusOK),
		syncReply("f1", "8", proto.SyncStatusOK),
	}}
	q := newQueue(t, st, exec)

	var progress [][2]int
	ctx := context.Background()
	err := q.Delete(ctx, account, folder, ids, mutation.DeleteSoft, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	require.NoError(t, err)
	require.Equal(t, [][2]int{{50, 120}, {100, 120}, {120, 120}}, progress)

	require.Len(t, exec.reqs, 3)
	first := exec.reqs[0].(*proto.SyncRequest).Collections[0]
	require.Len(t, first.Commands, 50)
	require.Equal(t, proto.ClientDelete, first.Commands[0].Type)
	require.NotNil(t, first.DeletionsAsMoves)
	require.True(t, *first.DeletionsAsMoves, "soft delete lands in trash")
	last := exec.reqs[2].(*proto.SyncRequest).Collections[0]
	require.Len(t, last.Commands, 20)

	items, err := st.GetItems(ctx, folder.ID, store.ItemFilter{})
	require.NoError(t, err)
	require.Empty(t, items)
	require.Zero(t, pendingCount(t, st, account.ID))
}

func TestDeleteMidBatchFailure(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	folder := testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)

	var ids []string
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("f1:%d", i)
		testutil.NewTestItem(t, st, account.ID, folder, id)
		ids = append(ids, id)
	}
	setCursor(t, st, account.ID, folder, "5")

	exec := &fakeExec{replies: []execReply{
		syncReply("f1", "6", proto.SyncStatusOK),
		{err: errs.Transport("http", true, errors.New("timeout"))},
	}}
	q := newQueue(t, st, exec)

	ctx := context.Background()
	err := q.Delete(ctx, account, folder, ids, mutation.DeletePermanent, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "deleted 50 of 100 items")
	require.True(t, errs.IsTemporary(err), "classification survives the progress wrapper")

	items, err := st.GetItems(ctx, folder.ID, store.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, items, 50, "the failed sub-batch is restored, earlier ones stay deleted")

	hard := exec.reqs[0].(*proto.SyncRequest).Collections[0]
	require.NotNil(t, hard.DeletionsAsMoves)
	require.False(t, *hard.DeletionsAsMoves)

	require.Equal(t, 1, pendingCount(t, st, account.ID), "the intent stays queued for redelivery")
}

func TestDeleteRejectedReinsertsOnlyFailed(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	folder := testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)
	testutil.NewTestItem(t, st, account.ID, folder, "f1:1")
	testutil.NewTestItem(t, st, account.ID, folder, "f1:2")
	setCursor(t, st, account.ID, folder, "5")

	exec := &fakeExec{replies: []execReply{
		syncReply("f1", "6", proto.SyncStatusOK,
			ack{proto.AirSyncDelete, "f1:2", proto.SyncStatusObjectNotFound}),
	}}
	q := newQueue(t, st, exec)

	ctx := context.Background()
	err := q.Delete(ctx, account, folder, []string{"f1:1", "f1:2"}, mutation.DeleteSoft, nil)
	require.Error(t, err)
	require.Equal(t, errs.KindServerRejected, errs.KindOf(err))

	gone, err2 := st.GetItemByServerID(ctx, account.ID, "f1:1")
	require.NoError(t, err2)
	require.Nil(t, gone)

	back, err2 := st.GetItemByServerID(ctx, account.ID, "f1:2")
	require.NoError(t, err2)
	require.NotNil(t, back, "the rejected id comes back")
	require.False(t, back.Dirty)

	require.Zero(t, pendingCount(t, st, account.ID))
}

// hookLocks runs a callback when the folder lock is released.
type hookLocks struct {
	onUnlock func()
}

func (h hookLocks) LockFolder(_, _ string) func() { return h.onUnlock }

func TestDeleteRestoreKeepsAdvancedCursor(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	folder := testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)
	testutil.NewTestItem(t, st, account.ID, folder, "f1:1")
	setCursor(t, st, account.ID, folder, "5")

	// A sync pass grabs the lock the moment the delete releases it and
	// commits a newer cursor before the restore runs.
	locks := hookLocks{onUnlock: func() {
		err := st.ApplyItemChanges(context.Background(), store.ChangeSet{
			AccountID:  account.ID,
			FolderID:   folder.ID,
			NewSyncKey: "6",
		})
		require.NoError(t, err)
	}}

	exec := &fakeExec{replies: []execReply{
		{err: errs.Transport("sync", true, errors.New("connection reset"))},
	}}
	q := mutation.New(st, exec, locks, quietLog())

	ctx := context.Background()
	err := q.Delete(ctx, account, folder, []string{"f1:1"}, mutation.DeleteSoft, nil)
	require.Error(t, err)
	require.True(t, errs.IsTemporary(err))

	restored, err2 := st.GetItemByServerID(ctx, account.ID, "f1:1")
	require.NoError(t, err2)
	require.NotNil(t, restored, "ambiguous delete restores the row")

	stored, err2 := st.GetFolderByServerID(ctx, account.ID, "f1")
	require.NoError(t, err2)
	require.Equal(t, "6", stored.SyncKey, "restore leaves the newer cursor alone")
}

func TestMoveConfirmed(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	inbox := testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)
	archive := testutil.NewTestFolder(t, st, account.ID, "f2", model.KindUserMail)
	testutil.NewTestItem(t, st, account.ID, inbox, "f1:1")
	testutil.NewTestItem(t, st, account.ID, inbox, "f1:2")

	exec := &fakeExec{replies: []execReply{
		moveReply(
			proto.MoveResult{SrcMsgID: "f1:1", Status: proto.MoveStatusOK, DstMsgID: "f2:9"},
			proto.MoveResult{SrcMsgID: "f1:2", Status: proto.MoveStatusOK, DstMsgID: "f2:10"},
		),
	}}
	q := newQueue(t, st, exec)

	ctx := context.Background()
	require.NoError(t, q.Move(ctx, account, inbox, archive, []string{"f1:1", "f1:2"}))

	req := exec.reqs[0].(*proto.MoveItemsRequest)
	require.Len(t, req.Moves, 2)
	require.Equal(t, "f1", req.Moves[0].SrcFldID)
	require.Equal(t, "f2", req.Moves[0].DstFldID)

	moved, err := st.GetItemByServerID(ctx, account.ID, "f2:9")
	require.NoError(t, err)
	require.NotNil(t, moved, "the item lives under the reissued id")
	require.Equal(t, archive.ID, moved.FolderID)
	require.False(t, moved.Dirty)

	require.Zero(t, pendingCount(t, st, account.ID))
}

func TestMoveRejectedKeepsItemInPlace(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	inbox := testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)
	archive := testutil.NewTestFolder(t, st, account.ID, "f2", model.KindUserMail)
	testutil.NewTestItem(t, st, account.ID, inbox, "f1:1")

	exec := &fakeExec{replies: []execReply{
		moveReply(proto.MoveResult{SrcMsgID: "f1:1", Status: proto.MoveStatusFailed}),
	}}
	q := newQueue(t, st, exec)

	ctx := context.Background()
	err := q.Move(ctx, account, inbox, archive, []string{"f1:1"})
	require.Error(t, err)
	require.Equal(t, errs.KindServerRejected, errs.KindOf(err))

	it, err2 := st.GetItemByServerID(ctx, account.ID, "f1:1")
	require.NoError(t, err2)
	require.Equal(t, inbox.ID, it.FolderID)
	require.False(t, it.Dirty)

	require.Zero(t, pendingCount(t, st, account.ID))
}

func TestFlushRedeliversQueuedIntent(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	folder := testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)
	testutil.NewTestItem(t, st, account.ID, folder, "f1:1")
	setCursor(t, st, account.ID, folder, "5")

	ctx := context.Background()
	require.NoError(t, st.EnqueueMutation(ctx, &model.PendingMutation{
		AccountID:     account.ID,
		FolderID:      folder.ID,
		Op:            model.OpMarkRead,
		ItemServerIDs: `["f1:1"]`,
		Attempts:      2,
	}))

	exec := &fakeExec{replies: []execReply{
		syncReply("f1", "6", proto.SyncStatusOK),
	}}
	q := newQueue(t, st, exec)

	require.NoError(t, q.Flush(ctx, account))
	require.Len(t, exec.reqs, 1)

	it, err := st.GetItemByServerID(ctx, account.ID, "f1:1")
	require.NoError(t, err)
	require.True(t, it.Read)
	require.False(t, it.Dirty)

	require.Zero(t, pendingCount(t, st, account.ID))
}

func TestFlushStopsOnRetryableFailure(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	folder := testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)
	testutil.NewTestItem(t, st, account.ID, folder, "f1:1")
	setCursor(t, st, account.ID, folder, "5")

	ctx := context.Background()
	require.NoError(t, st.EnqueueMutation(ctx, &model.PendingMutation{
		AccountID:     account.ID,
		FolderID:      folder.ID,
		Op:            model.OpFlag,
		ItemServerIDs: `["f1:1"]`,
	}))

	exec := &fakeExec{replies: []execReply{
		{err: errs.Transport("http", true, errors.New("offline"))},
	}}
	q := newQueue(t, st, exec)

	err := q.Flush(ctx, account)
	require.Error(t, err)
	require.True(t, errs.IsTemporary(err))

	muts, err2 := st.GetPendingMutations(ctx, account.ID)
	require.NoError(t, err2)
	require.Len(t, muts, 1)
	require.Equal(t, 1, muts[0].Attempts)
}

func TestFlushAbandonsExhaustedIntent(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	folder := testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)

	ctx := context.Background()
	require.NoError(t, st.EnqueueMutation(ctx, &model.PendingMutation{
		AccountID:     account.ID,
		FolderID:      folder.ID,
		Op:            model.OpMarkRead,
		ItemServerIDs: `["f1:1"]`,
		Attempts:      5,
	}))

	exec := &fakeExec{}
	q := newQueue(t, st, exec)

	require.NoError(t, q.Flush(ctx, account))
	require.Empty(t, exec.reqs, "an exhausted intent never goes back on the wire")
	require.Zero(t, pendingCount(t, st, account.ID))
}

func TestFlushDropsMalformedRecord(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	folder := testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)

	ctx := context.Background()
	require.NoError(t, st.EnqueueMutation(ctx, &model.PendingMutation{
		AccountID:     account.ID,
		FolderID:      folder.ID,
		Op:            model.OpMarkRead,
		ItemServerIDs: `not json`,
	}))

	q := newQueue(t, st, &fakeExec{})
	require.NoError(t, q.Flush(ctx, account))
	require.Zero(t, pendingCount(t, st, account.ID))
}
