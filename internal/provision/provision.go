// Package provision owns the device-policy handshake: a two-phase
// Provision exchange that yields the durable policy key every other
// command must carry.
package provision

import (
	"context"
	gosync "sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/proto"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/store"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/transport"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

// Sender issues one transport request. Satisfied by *transport.Client;
// tests inject fakes.
type Sender interface {
	Send(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Provisioner drives the handshake per account. Concurrent callers for
// the same account share a single in-flight attempt; at most one
// provisioning command sequence is ever outstanding per account. A
// per-account lock guards the account's policy fields, so folder
// workers sharing one Account never race the handshake: Ensure and
// Invalidate are the only writers, and PolicyKey is the reader.
type Provisioner struct {
	sender Sender
	store  store.Store
	log    *logrus.Logger
	group  singleflight.Group

	mu    gosync.Mutex
	locks map[string]*gosync.Mutex
}

// New builds a Provisioner.
func New(sender Sender, st store.Store, log *logrus.Logger) *Provisioner {
	if log == nil {
		log = logrus.New()
	}
	return &Provisioner{
		sender: sender,
		store:  st,
		log:    log,
		locks:  make(map[string]*gosync.Mutex),
	}
}

// lockFor returns the account's state lock, creating it on first use.
func (p *Provisioner) lockFor(accountID string) *gosync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[accountID]
	if !ok {
		l = &gosync.Mutex{}
		p.locks[accountID] = l
	}
	return l
}

// PolicyKey reads the account's current policy key under its state
// lock. Request builders go through here instead of the struct field so
// a concurrent handshake never races them.
func (p *Provisioner) PolicyKey(account *model.Account) string {
	l := p.lockFor(account.ID)
	l.Lock()
	defer l.Unlock()
	return account.PolicyKey
}

// Ensure returns an active policy key for the account, running the
// handshake if none is in force. Concurrent callers await the same
// attempt and observe the same key.
func (p *Provisioner) Ensure(ctx context.Context, account *model.Account) (string, error) {
	l := p.lockFor(account.ID)
	l.Lock()
	if account.Provisioned() {
		key := account.PolicyKey
		l.Unlock()
		return key, nil
	}
	l.Unlock()

	v, err, _ := p.group.Do(account.ID, func() (interface{}, error) {
		return p.provision(ctx, account)
	})
	if err != nil {
		return "", err
	}

	key := v.(string)
	l.Lock()
	account.PolicyKey = key
	account.ProvisionState = model.ProvisionActive
	l.Unlock()
	return key, nil
}

// Invalidate clears the stored policy key after the server demanded
// provisioning again. The next Ensure restarts the handshake from None.
func (p *Provisioner) Invalidate(ctx context.Context, account *model.Account) error {
	p.log.WithField("account", account.ID).Warn("policy key invalidated by server")
	l := p.lockFor(account.ID)
	l.Lock()
	account.PolicyKey = ""
	account.ProvisionState = model.ProvisionNone
	l.Unlock()
	return p.store.UpdatePolicyKey(ctx, account.ID, "", model.ProvisionNone)
}

// provision runs both phases and persists each transition.
func (p *Provisioner) provision(ctx context.Context, account *model.Account) (string, error) {
	// Phase one: request the policy with the null key.
	resp, err := p.exchange(ctx, &proto.ProvisionRequest{}, "0")
	if err != nil {
		return "", err
	}
	if resp.Status != proto.ProvStatusOK || resp.PolicyStatus != proto.ProvStatusOK {
		return "", errs.ServerRejected("provision", resp.Status, "server refused policy request")
	}
	if resp.RemoteWipe {
		p.log.WithField("account", account.ID).Warn("server directed a remote wipe")
		return "", errs.ServerRejected("provision", resp.Status, "server directed a remote wipe")
	}
	tempKey := resp.PolicyKey
	if tempKey == "" {
		return "", errs.Protocol("provision", "phase one returned no policy key")
	}

	if err := p.store.UpdatePolicyKey(ctx, account.ID, tempKey, model.ProvisionTokenAcquired); err != nil {
		return "", err
	}

	// Phase two: acknowledge the policy with the temporary key.
	resp, err = p.exchange(ctx, &proto.ProvisionRequest{
		PolicyKey: tempKey,
		AckStatus: proto.ProvStatusOK,
	}, tempKey)
	if err != nil {
		return "", err
	}
	if resp.Status != proto.ProvStatusOK || resp.PolicyStatus != proto.ProvStatusOK {
		return "", errs.ServerRejected("provision", resp.Status, "server refused policy acknowledgment")
	}
	finalKey := resp.PolicyKey
	if finalKey == "" {
		return "", errs.Protocol("provision", "phase two returned no policy key")
	}

	if err := p.store.UpdatePolicyKey(ctx, account.ID, finalKey, model.ProvisionActive); err != nil {
		return "", err
	}

	p.log.WithField("account", account.ID).Info("provisioning complete")
	return finalKey, nil
}

// exchange encodes, sends, and decodes one Provision round trip.
func (p *Provisioner) exchange(ctx context.Context, req *proto.ProvisionRequest, policyKey string) (*proto.ProvisionResponse, error) {
	tree, err := req.Encode()
	if err != nil {
		return nil, err
	}
	body, err := wbxml.Encode(tree)
	if err != nil {
		return nil, err
	}

	resp, err := p.sender.Send(ctx, transport.Request{
		Command:   req.Name(),
		PolicyKey: policyKey,
		Body:      body,
	})
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, errs.ServerRejected("provision", resp.Status, "unexpected HTTP status during provisioning")
	}

	root, err := wbxml.Decode(resp.Body)
	if err != nil {
		return nil, err
	}
	return proto.ParseProvisionResponse(root)
}
