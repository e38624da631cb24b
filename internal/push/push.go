// Package push keeps a mailbox current without polling. A Channel holds
// one Ping long-poll open per account; the server answers when a watched
// folder changes, and the channel triggers a sync pass for exactly those
// folders before reissuing the poll. Scheduler is the fallback for
// accounts configured with fixed-interval sync instead.
package push

import (
	"context"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/engine"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/proto"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/store"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

// State is the lifecycle phase of a push channel.
type State int

const (
	StateStopped State = iota
	StateConnecting
	StateListening
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	default:
		return "stopped"
	}
}

// Executor issues one command with an explicit deadline. Satisfied by
// *executor.Executor.
type Executor interface {
	ExecuteTimeout(ctx context.Context, account *model.Account, cmd proto.Command, timeout time.Duration) (*wbxml.Element, error)
}

// Syncer runs sync passes when the channel learns of changes. Satisfied
// by *engine.Engine.
type Syncer interface {
	SyncHierarchy(ctx context.Context, account *model.Account) error
	SyncFolderByServerID(ctx context.Context, account *model.Account, serverID string) (*engine.PassResult, error)
}

const (
	defaultHeartbeatSec = 480

	// responseGrace pads the HTTP deadline past the heartbeat so a
	// server answering at the last second is not cut off.
	responseGrace = 30 * time.Second

	backoffInitial = 5 * time.Second
	backoffMax     = 5 * time.Minute
)

// Channel maintains the push long-poll for one account.
type Channel struct {
	store  store.Store
	exec   Executor
	syncer Syncer
	log    *logrus.Logger

	account *model.Account

	mu     gosync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	heartbeatSec int
}

// NewChannel builds a stopped channel for the account.
func NewChannel(st store.Store, exec Executor, syncer Syncer, account *model.Account, log *logrus.Logger) *Channel {
	if log == nil {
		log = logrus.New()
	}
	hb := account.HeartbeatSec
	if hb <= 0 {
		hb = defaultHeartbeatSec
	}
	return &Channel{
		store:        st,
		exec:         exec,
		syncer:       syncer,
		log:          log,
		account:      account,
		heartbeatSec: hb,
	}
}

// State reports the channel's current phase.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start launches the long-poll loop. Calling Start on a running channel
// is a no-op.
func (c *Channel) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateStopped {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = StateConnecting

	go c.run(ctx)
}

// Stop cancels any in-flight poll and waits for the loop to exit. A
// stopped channel can be started again.
func (c *Channel) Stop() {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done

	c.mu.Lock()
	c.state = StateStopped
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	log := c.log.WithField("account", c.account.ID)
	backoff := backoffInitial

	for ctx.Err() == nil {
		err := c.poll(ctx, log)
		if err == nil {
			backoff = backoffInitial
			continue
		}
		if ctx.Err() != nil {
			return
		}

		log.WithError(err).WithField("backoff", backoff).Warn("push poll failed")
		c.setState(StateConnecting)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

// poll issues one Ping round and reacts to its status.
func (c *Channel) poll(ctx context.Context, log *logrus.Entry) error {
	c.setState(StateConnecting)

	folders, err := c.watchList(ctx)
	if err != nil {
		return err
	}
	if len(folders) == 0 {
		// Nothing to watch until the hierarchy syncs.
		if err := c.syncer.SyncHierarchy(ctx, c.account); err != nil {
			return err
		}
		if folders, err = c.watchList(ctx); err != nil {
			return err
		}
		if len(folders) == 0 {
			return errs.Protocol("ping", "account has no syncable folders")
		}
	}

	req := &proto.PingRequest{HeartbeatSec: c.heartbeatSec, Folders: folders}
	timeout := time.Duration(c.heartbeatSec)*time.Second + responseGrace

	c.setState(StateListening)
	root, err := c.exec.ExecuteTimeout(ctx, c.account, req, timeout)
	if err != nil {
		return err
	}
	if root == nil {
		return errs.Protocol("ping", "empty ping response")
	}
	resp, err := proto.ParsePingResponse(root)
	if err != nil {
		return err
	}

	switch resp.Status {
	case proto.PingStatusExpired:
		// Quiet heartbeat; reissue immediately.
		return nil

	case proto.PingStatusChanges:
		for _, serverID := range resp.ChangedFolders {
			if _, err := c.syncer.SyncFolderByServerID(ctx, c.account, serverID); err != nil {
				log.WithError(err).WithField("folder", serverID).Warn("sync after push notification failed")
			}
		}
		return nil

	case proto.PingStatusHeartbeatRange:
		if resp.HeartbeatSec > 0 {
			log.WithField("heartbeat", resp.HeartbeatSec).Info("server clamped push heartbeat")
			c.heartbeatSec = resp.HeartbeatSec
		}
		return nil

	case proto.PingStatusFolderSyncReq:
		if err := c.syncer.SyncHierarchy(ctx, c.account); err != nil {
			return err
		}
		return nil

	default:
		return errs.ServerRejected("ping", resp.Status, "server rejected the ping")
	}
}

// watchList selects the folders worth a push subscription.
func (c *Channel) watchList(ctx context.Context) ([]proto.WatchFolder, error) {
	folders, err := c.store.GetFolders(ctx, c.account.ID)
	if err != nil {
		return nil, err
	}
	var out []proto.WatchFolder
	for _, f := range folders {
		if !f.Kind.Syncable() {
			continue
		}
		out = append(out, proto.WatchFolder{ServerID: f.ServerID, Class: f.Kind.Class()})
	}
	return out, nil
}
