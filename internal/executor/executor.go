// Package executor sends typed commands over the transport, transparently
// resolving provisioning demands and retrying transient failures with
// bounded exponential backoff.
package executor

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/proto"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/transport"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

// Sender issues one transport request. Satisfied by *transport.Client.
type Sender interface {
	Send(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Provisioner re-acquires policy keys on demand and guards reads of the
// account's current key. Satisfied by *provision.Provisioner.
type Provisioner interface {
	PolicyKey(account *model.Account) string
	Ensure(ctx context.Context, account *model.Account) (string, error)
	Invalidate(ctx context.Context, account *model.Account) error
}

// Options tune the retry policy.
type Options struct {
	// MaxAttempts bounds tries for transient failures (timeouts, 5xx).
	MaxAttempts int

	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration
}

// Executor wraps transport and codec behind a single Execute call.
type Executor struct {
	sender Sender
	prov   Provisioner
	log    *logrus.Logger
	opts   Options
}

// New builds an Executor. Zero option fields get defaults (3 attempts,
// 500ms base).
func New(sender Sender, prov Provisioner, log *logrus.Logger, opts Options) *Executor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if log == nil {
		log = logrus.New()
	}
	return &Executor{sender: sender, prov: prov, log: log, opts: opts}
}

// Execute encodes and sends cmd for the account, decoding the response
// tree. A "policy required" signal (HTTP 449 or an in-payload status)
// triggers one transparent provisioning pass and one retry of the
// original command; a second demand surfaces as a terminal error. An
// empty 2xx body decodes to a nil tree, which callers treat as "no
// changes".
//
// Execute may update the account's stored policy key. It never touches
// folder or item state; interpreting the decoded tree is the caller's
// job.
func (x *Executor) Execute(ctx context.Context, account *model.Account, cmd proto.Command) (*wbxml.Element, error) {
	return x.execute(ctx, account, cmd, 0)
}

// ExecuteTimeout is Execute with a per-request read timeout override,
// used by the push channel's long poll.
func (x *Executor) ExecuteTimeout(ctx context.Context, account *model.Account, cmd proto.Command, timeout time.Duration) (*wbxml.Element, error) {
	return x.execute(ctx, account, cmd, timeout)
}

func (x *Executor) execute(ctx context.Context, account *model.Account, cmd proto.Command, timeout time.Duration) (*wbxml.Element, error) {
	tree, err := cmd.Encode()
	if err != nil {
		return nil, err
	}
	body, err := wbxml.Encode(tree)
	if err != nil {
		return nil, err
	}

	policyRetried := false
	attempt := 0

	for {
		resp, err := x.sender.Send(ctx, transport.Request{
			Command:   cmd.Name(),
			PolicyKey: x.prov.PolicyKey(account),
			Body:      body,
			Timeout:   timeout,
		})

		switch {
		case err != nil:
			if !errs.IsTemporary(err) {
				return nil, err
			}
			attempt++
			if attempt >= x.opts.MaxAttempts {
				return nil, err
			}
			if err := x.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue

		case resp.Status == proto.HTTPStatusNeedProvisioning:
			if policyRetried {
				return nil, errs.PolicyRequired(cmd.Name(), resp.Status)
			}
			if err := x.reprovision(ctx, account, cmd.Name()); err != nil {
				return nil, err
			}
			policyRetried = true
			continue

		case isTransientStatus(resp.Status):
			attempt++
			if attempt >= x.opts.MaxAttempts {
				return nil, errs.Transport(cmd.Name(), true,
					errs.ServerRejected(cmd.Name(), resp.Status, "server unavailable"))
			}
			if err := x.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue

		case resp.Status == http.StatusUnauthorized:
			return nil, errs.ServerRejected(cmd.Name(), resp.Status, "authentication failed; check credentials")

		case resp.Status < 200 || resp.Status >= 300:
			return nil, errs.ServerRejected(cmd.Name(), resp.Status, "server rejected the request")
		}

		if len(resp.Body) == 0 {
			return nil, nil
		}

		root, err := wbxml.Decode(resp.Body)
		if err != nil {
			return nil, err
		}

		if status := proto.TopStatus(root); status > 0 {
			if proto.PolicyDemanded(status) {
				if policyRetried {
					return nil, errs.PolicyRequired(cmd.Name(), status)
				}
				if err := x.reprovision(ctx, account, cmd.Name()); err != nil {
					return nil, err
				}
				policyRetried = true
				continue
			}
			if proto.DeviceBlocked(status) {
				return nil, errs.ServerRejected(cmd.Name(), status, "device blocked by server policy")
			}
		}

		return root, nil
	}
}

// reprovision invalidates the current key and drives the provisioner.
func (x *Executor) reprovision(ctx context.Context, account *model.Account, op string) error {
	x.log.WithFields(logrus.Fields{
		"account": account.ID,
		"cmd":     op,
	}).Info("server demands provisioning; acquiring policy key")

	if err := x.prov.Invalidate(ctx, account); err != nil {
		return err
	}
	_, err := x.prov.Ensure(ctx, account)
	return err
}

// backoff sleeps for BackoffBase doubled per attempt, honoring ctx.
func (x *Executor) backoff(ctx context.Context, attempt int) error {
	delay := x.opts.BackoffBase << (attempt - 1)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errs.Transport("backoff", false, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// isTransientStatus reports whether an HTTP status falls under the retry
// policy: 5xx plus the two throttling statuses.
func isTransientStatus(status int) bool {
	if status >= 500 && status <= 599 {
		return true
	}
	return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}
