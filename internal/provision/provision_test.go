package provision

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/proto"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/transport"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
	"github.com/DedovMosol/IwoMailClient-sub004/tests/testutil"
)

// policyServer fakes the server side of the handshake: phase one issues a
// temporary key, phase two issues the final key when the temporary key
// comes back acknowledged.
type policyServer struct {
	mu       sync.Mutex
	requests []transport.Request
	calls    int32

	tempKey  string
	finalKey string
	wipe     bool

	// gate, when set, holds every response until the channel closes.
	gate chan struct{}
}

func (s *policyServer) Send(ctx context.Context, req transport.Request) (*transport.Response, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	policy := wbxml.New(proto.PageProvision, proto.ProvPolicy).
		AddText(proto.PageProvision, proto.ProvStatus, "1")
	if req.PolicyKey == proto.SyncBootstrapKey {
		policy.AddText(proto.PageProvision, proto.ProvPolicyKey, s.tempKey)
	} else {
		policy.AddText(proto.PageProvision, proto.ProvPolicyKey, s.finalKey)
	}

	root := wbxml.New(proto.PageProvision, proto.ProvProvision).
		AddText(proto.PageProvision, proto.ProvStatus, "1").
		Add(wbxml.New(proto.PageProvision, proto.ProvPolicies).Add(policy))
	if s.wipe {
		root.Add(wbxml.New(proto.PageProvision, proto.ProvRemoteWipe))
	}

	body, err := wbxml.Encode(root)
	if err != nil {
		return nil, err
	}
	return &transport.Response{Status: 200, Body: body}, nil
}

func TestEnsureRunsBothPhases(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	server := &policyServer{tempKey: "temp-1", finalKey: "final-1"}
	p := New(server, st, nil)

	key, err := p.Ensure(context.Background(), account)
	require.NoError(t, err)
	require.Equal(t, "final-1", key)
	require.Equal(t, "final-1", account.PolicyKey)
	require.Equal(t, model.ProvisionActive, account.ProvisionState)

	// Phase one carries the null key, phase two the temporary key.
	require.Len(t, server.requests, 2)
	require.Equal(t, proto.SyncBootstrapKey, server.requests[0].PolicyKey)
	require.Equal(t, "temp-1", server.requests[1].PolicyKey)

	// The final key is persisted.
	stored, err := st.GetAccountByID(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, "final-1", stored.PolicyKey)
	require.Equal(t, model.ProvisionActive, stored.ProvisionState)
}

func TestEnsureShortCircuitsWhenProvisioned(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	account.PolicyKey = "existing"
	account.ProvisionState = model.ProvisionActive

	server := &policyServer{tempKey: "temp-1", finalKey: "final-1"}
	p := New(server, st, nil)

	key, err := p.Ensure(context.Background(), account)
	require.NoError(t, err)
	require.Equal(t, "existing", key)
	require.Zero(t, atomic.LoadInt32(&server.calls))
}

func TestEnsureConcurrentCallersShareOneHandshake(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	server := &policyServer{tempKey: "temp-1", finalKey: "final-1", gate: make(chan struct{})}
	p := New(server, st, nil)

	const callers = 8
	var wg sync.WaitGroup
	keys := make([]string, callers)
	errsOut := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every caller shares one Account pointer, like concurrent
			// folder workers do.
			keys[i], errsOut[i] = p.Ensure(context.Background(), account)
		}(i)
	}

	// Let every caller join the in-flight handshake before the server
	// answers.
	time.Sleep(50 * time.Millisecond)
	close(server.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errsOut[i])
		require.Equal(t, "final-1", keys[i])
	}

	// One handshake: exactly two wire calls regardless of caller count.
	require.Equal(t, int32(2), atomic.LoadInt32(&server.calls))
	require.Equal(t, "final-1", account.PolicyKey)
	require.Equal(t, model.ProvisionActive, account.ProvisionState)
}

func TestPolicyKeyReadsDoNotRaceHandshake(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	server := &policyServer{tempKey: "temp-1", finalKey: "final-1", gate: make(chan struct{})}
	p := New(server, st, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = p.Ensure(context.Background(), account)
	}()

	// Readers building requests while the handshake is in flight must
	// never observe a torn write.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := p.PolicyKey(account)
				require.Contains(t, []string{"", "final-1"}, key)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(server.gate)
	wg.Wait()

	require.Equal(t, "final-1", p.PolicyKey(account))
}

func TestEnsureRemoteWipe(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	server := &policyServer{tempKey: "temp-1", finalKey: "final-1", wipe: true}
	p := New(server, st, nil)

	_, err := p.Ensure(context.Background(), account)
	require.Error(t, err)
	require.Equal(t, errs.KindServerRejected, errs.KindOf(err))
}

func TestInvalidate(t *testing.T) {
	st := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, st)
	account.PolicyKey = "stale"
	account.ProvisionState = model.ProvisionActive
	require.NoError(t, st.UpdatePolicyKey(context.Background(), account.ID, "stale", model.ProvisionActive))

	p := New(&policyServer{}, st, nil)
	require.NoError(t, p.Invalidate(context.Background(), account))

	require.Empty(t, account.PolicyKey)
	require.Equal(t, model.ProvisionNone, account.ProvisionState)

	stored, err := st.GetAccountByID(context.Background(), account.ID)
	require.NoError(t, err)
	require.Empty(t, stored.PolicyKey)
	require.Equal(t, model.ProvisionNone, stored.ProvisionState)
}
