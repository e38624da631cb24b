package push_test

import (
	"context"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/engine"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/proto"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/push"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
	"github.com/DedovMosol/IwoMailClient-sub004/tests/testutil"
)

type execReply struct {
	root *wbxml.Element
	err  error
}

// pingExec replays canned replies; once exhausted it parks like a real
// long-poll until the context is cancelled. Every request is announced
// on got.
type pingExec struct {
	mu       sync.Mutex
	replies  []execReply
	reqs     []*proto.PingRequest
	timeouts []time.Duration
	got      chan struct{}
}

func newPingExec(replies ...execReply) *pingExec {
	return &pingExec{replies: replies, got: make(chan struct{}, 16)}
}

func (f *pingExec) ExecuteTimeout(ctx context.Context, _ *model.Account, cmd proto.Command, timeout time.Duration) (*wbxml.Element, error) {
	f.mu.Lock()
	if pr, ok := cmd.(*proto.PingRequest); ok {
		f.reqs = append(f.reqs, pr)
	}
	f.timeouts = append(f.timeouts, timeout)
	var r *execReply
	if len(f.replies) > 0 {
		rr := f.replies[0]
		f.replies = f.replies[1:]
		r = &rr
	}
	f.mu.Unlock()

	select {
	case f.got <- struct{}{}:
	default:
	}

	if r == nil {
		<-ctx.Done()
		return nil, errs.Transport("ping", true, ctx.Err())
	}
	return r.root, r.err
}

// fakeSyncer records hierarchy and folder syncs.
type fakeSyncer struct {
	mu          sync.Mutex
	hierarchy   int
	onHierarchy func(ctx context.Context) error
	synced      chan string
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{synced: make(chan string, 16)}
}

func (f *fakeSyncer) SyncHierarchy(ctx context.Context, _ *model.Account) error {
	f.mu.Lock()
	f.hierarchy++
	fn := f.onHierarchy
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return nil
}

func (f *fakeSyncer) SyncFolderByServerID(_ context.Context, _ *model.Account, serverID string) (*engine.PassResult, error) {
	f.synced <- serverID
	return &engine.PassResult{}, nil
}

func (f *fakeSyncer) hierarchyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hierarchy
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func pingReply(status int) execReply {
	root := wbxml.New(proto.PagePing, proto.PingPing).
		AddText(proto.PagePing, proto.PingStatus, strconv.Itoa(status))
	return execReply{root: root}
}

func pingChanges(serverIDs ...string) execReply {
	folders := wbxml.New(proto.PagePing, proto.PingFolders)
	for _, id := range serverIDs {
		folders.Add(wbxml.NewText(proto.PagePing, proto.PingFolder, id))
	}
	root := wbxml.New(proto.PagePing, proto.PingPing).
		AddText(proto.PagePing, proto.PingStatus, strconv.Itoa(proto.PingStatusChanges)).
		Add(folders)
	return execReply{root: root}
}

func pingClamp(heartbeatSec int) execReply {
	root := wbxml.New(proto.PagePing, proto.PingPing).
		AddText(proto.PagePing, proto.PingStatus, strconv.Itoa(proto.PingStatusHeartbeatRange)).
		AddText(proto.PagePing, proto.PingHeartbeat, strconv.Itoa(heartbeatSec))
	return execReply{root: root}
}

func waitFor(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

func TestChannelSyncsChangedFolders(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)
	testutil.NewTestFolder(t, st, account.ID, "f2", model.KindCalendar)

	exec := newPingExec(pingChanges("f1", "f2"))
	syncer := newFakeSyncer()
	ch := push.NewChannel(st, exec, syncer, account, quietLog())

	ch.Start()
	defer ch.Stop()

	var synced []string
	for len(synced) < 2 {
		select {
		case id := <-syncer.synced:
			synced = append(synced, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("synced only %v", synced)
		}
	}
	require.ElementsMatch(t, []string{"f1", "f2"}, synced)

	exec.mu.Lock()
	defer exec.mu.Unlock()
	require.NotEmpty(t, exec.reqs)
	req := exec.reqs[0]
	require.Equal(t, 480, req.HeartbeatSec)
	require.ElementsMatch(t, []proto.WatchFolder{
		{ServerID: "f1", Class: "Email"},
		{ServerID: "f2", Class: "Calendar"},
	}, req.Folders)
	require.Equal(t, 480*time.Second+30*time.Second, exec.timeouts[0])
}

func TestChannelReissuesAfterQuietHeartbeat(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)

	exec := newPingExec(pingReply(proto.PingStatusExpired))
	ch := push.NewChannel(st, exec, newFakeSyncer(), account, quietLog())

	ch.Start()
	defer ch.Stop()

	waitFor(t, exec.got, "no first poll")
	waitFor(t, exec.got, "poll not reissued after expiry")

	require.Equal(t, push.StateListening, ch.State())
}

func TestChannelAdoptsClampedHeartbeat(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	account.HeartbeatSec = 900
	testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)

	exec := newPingExec(pingClamp(600))
	ch := push.NewChannel(st, exec, newFakeSyncer(), account, quietLog())

	ch.Start()
	defer ch.Stop()

	waitFor(t, exec.got, "no first poll")
	waitFor(t, exec.got, "no poll after clamp")

	exec.mu.Lock()
	defer exec.mu.Unlock()
	require.Equal(t, 900, exec.reqs[0].HeartbeatSec)
	require.Equal(t, 600, exec.reqs[1].HeartbeatSec, "the clamped value sticks")
	require.Equal(t, 600*time.Second+30*time.Second, exec.timeouts[1])
}

func TestChannelRefreshesHierarchyOnDemand(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)

	exec := newPingExec(pingReply(proto.PingStatusFolderSyncReq))
	syncer := newFakeSyncer()
	ch := push.NewChannel(st, exec, syncer, account, quietLog())

	ch.Start()
	defer ch.Stop()

	waitFor(t, exec.got, "no first poll")
	waitFor(t, exec.got, "no poll after hierarchy refresh")

	require.Equal(t, 1, syncer.hierarchyCount())
}

func TestChannelBootstrapsEmptyWatchList(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)

	syncer := newFakeSyncer()
	syncer.onHierarchy = func(ctx context.Context) error {
		// The hierarchy pass discovers the first syncable folder.
		return st.ApplyFolderChanges(ctx, account.ID, "h1", []model.Folder{
			{ServerID: "f1", DisplayName: "Inbox", Kind: model.KindInbox},
		}, nil)
	}

	exec := newPingExec()
	ch := push.NewChannel(st, exec, syncer, account, quietLog())

	ch.Start()
	defer ch.Stop()

	waitFor(t, exec.got, "no poll after hierarchy bootstrap")

	require.Equal(t, 1, syncer.hierarchyCount())
	exec.mu.Lock()
	defer exec.mu.Unlock()
	require.Equal(t, []proto.WatchFolder{{ServerID: "f1", Class: "Email"}}, exec.reqs[0].Folders)
}

func TestChannelStartStopLifecycle(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	testutil.NewTestFolder(t, st, account.ID, "f1", model.KindInbox)

	exec := newPingExec()
	ch := push.NewChannel(st, exec, newFakeSyncer(), account, quietLog())
	require.Equal(t, push.StateStopped, ch.State())

	ch.Start()
	ch.Start() // no-op
	waitFor(t, exec.got, "no poll after start")

	time.Sleep(50 * time.Millisecond)
	exec.mu.Lock()
	polls := len(exec.reqs)
	exec.mu.Unlock()
	require.Equal(t, 1, polls, "a second Start must not spawn a second loop")

	ch.Stop()
	require.Equal(t, push.StateStopped, ch.State())

	// A stopped channel restarts cleanly.
	ch.Start()
	waitFor(t, exec.got, "no poll after restart")
	ch.Stop()
}

// countingSyncer signals each full pass.
type countingSyncer struct {
	passes chan struct{}
}

func (c *countingSyncer) SyncAll(context.Context, *model.Account) error {
	c.passes <- struct{}{}
	return nil
}

func TestSchedulerRunsInitialPassAndTrigger(t *testing.T) {
	account := &model.Account{ID: "a1", IntervalSec: 3600}
	syncer := &countingSyncer{passes: make(chan struct{}, 16)}
	s := push.NewScheduler(syncer, account, quietLog())

	s.Start()
	defer s.Stop()

	waitFor(t, syncer.passes, "no initial pass")

	s.Trigger()
	waitFor(t, syncer.passes, "no pass after trigger")
}

// blockingSyncer parks each pass until release closes.
type blockingSyncer struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSyncer) SyncAll(context.Context, *model.Account) error {
	b.started <- struct{}{}
	<-b.release
	return nil
}

func TestSchedulerStopWaitsForInFlightPass(t *testing.T) {
	account := &model.Account{ID: "a1", IntervalSec: 3600}
	syncer := &blockingSyncer{started: make(chan struct{}, 16), release: make(chan struct{})}
	s := push.NewScheduler(syncer, account, quietLog())

	s.Start()
	waitFor(t, syncer.started, "no initial pass")

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a pass was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(syncer.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop never returned after the pass finished")
	}

	// A restart after a mid-pass Stop drives exactly one loop: one
	// initial pass plus one per trigger, with no stray passes from the
	// previous loop.
	s.Start()
	waitFor(t, syncer.started, "no pass after restart")
	s.Trigger()
	waitFor(t, syncer.started, "no pass after trigger")

	time.Sleep(100 * time.Millisecond)
	select {
	case <-syncer.started:
		t.Fatal("duplicate scheduler loop after restart")
	default:
	}
	s.Stop()
}

func TestSchedulerStopHaltsPasses(t *testing.T) {
	account := &model.Account{ID: "a1", IntervalSec: 3600}
	syncer := &countingSyncer{passes: make(chan struct{}, 16)}
	s := push.NewScheduler(syncer, account, quietLog())

	s.Start()
	waitFor(t, syncer.passes, "no initial pass")
	s.Stop()

	s.Trigger()
	select {
	case <-syncer.passes:
		t.Fatal("pass after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}
