package executor

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/proto"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/transport"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

// scripted replays one canned outcome per call, recording every request.
type scripted struct {
	outcomes []outcome
	requests []transport.Request
}

type outcome struct {
	resp *transport.Response
	err  error
}

func (s *scripted) Send(ctx context.Context, req transport.Request) (*transport.Response, error) {
	s.requests = append(s.requests, req)
	if len(s.outcomes) == 0 {
		return nil, errors.New("scripted sender exhausted")
	}
	out := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	return out.resp, out.err
}

// fakeProv hands out sequential policy keys.
type fakeProv struct {
	ensures     int
	invalidates int
	key         string
	err         error
}

func (p *fakeProv) PolicyKey(account *model.Account) string {
	return account.PolicyKey
}

func (p *fakeProv) Ensure(ctx context.Context, account *model.Account) (string, error) {
	p.ensures++
	if p.err != nil {
		return "", p.err
	}
	account.PolicyKey = p.key
	account.ProvisionState = model.ProvisionActive
	return p.key, nil
}

func (p *fakeProv) Invalidate(ctx context.Context, account *model.Account) error {
	p.invalidates++
	account.PolicyKey = ""
	account.ProvisionState = model.ProvisionNone
	return nil
}

func okBody(t *testing.T) []byte {
	t.Helper()
	body, err := wbxml.Encode(wbxml.New(proto.PageFolder, proto.FolderSync).
		AddText(proto.PageFolder, proto.FolderStatus, "1").
		AddText(proto.PageFolder, proto.FolderSyncKey, "1"))
	require.NoError(t, err)
	return body
}

func testAccount() *model.Account {
	return &model.Account{ID: "a1", PolicyKey: "key-1", ProvisionState: model.ProvisionActive}
}

func fastOptions() Options {
	return Options{MaxAttempts: 3, BackoffBase: time.Millisecond}
}

func TestExecuteSuccess(t *testing.T) {
	sender := &scripted{outcomes: []outcome{
		{resp: &transport.Response{Status: 200, Body: okBody(t)}},
	}}
	x := New(sender, &fakeProv{}, nil, fastOptions())

	root, err := x.Execute(context.Background(), testAccount(), &proto.FolderSyncRequest{})
	require.NoError(t, err)
	require.NotNil(t, root)
	require.Len(t, sender.requests, 1)
	require.Equal(t, "FolderSync", sender.requests[0].Command)
	require.Equal(t, "key-1", sender.requests[0].PolicyKey)
}

func TestExecuteEmptyBodyMeansNoChanges(t *testing.T) {
	sender := &scripted{outcomes: []outcome{
		{resp: &transport.Response{Status: 200}},
	}}
	x := New(sender, &fakeProv{}, nil, fastOptions())

	root, err := x.Execute(context.Background(), testAccount(), &proto.FolderSyncRequest{})
	require.NoError(t, err)
	require.Nil(t, root)
}

func TestExecutePolicyChallengeRetriesOnce(t *testing.T) {
	sender := &scripted{outcomes: []outcome{
		{resp: &transport.Response{Status: proto.HTTPStatusNeedProvisioning}},
		{resp: &transport.Response{Status: 200, Body: okBody(t)}},
	}}
	prov := &fakeProv{key: "key-2"}
	x := New(sender, prov, nil, fastOptions())
	account := testAccount()

	root, err := x.Execute(context.Background(), account, &proto.FolderSyncRequest{})
	require.NoError(t, err)
	require.NotNil(t, root)

	// Exactly one provisioning round and exactly two transmissions of the
	// original command.
	require.Equal(t, 1, prov.invalidates)
	require.Equal(t, 1, prov.ensures)
	require.Len(t, sender.requests, 2)
	require.Equal(t, "key-1", sender.requests[0].PolicyKey)
	require.Equal(t, "key-2", sender.requests[1].PolicyKey)
}

func TestExecutePolicyLoopIsTerminal(t *testing.T) {
	sender := &scripted{outcomes: []outcome{
		{resp: &transport.Response{Status: proto.HTTPStatusNeedProvisioning}},
		{resp: &transport.Response{Status: proto.HTTPStatusNeedProvisioning}},
	}}
	prov := &fakeProv{key: "key-2"}
	x := New(sender, prov, nil, fastOptions())

	_, err := x.Execute(context.Background(), testAccount(), &proto.FolderSyncRequest{})
	require.Error(t, err)
	require.Equal(t, errs.KindPolicyRequired, errs.KindOf(err))
	require.Len(t, sender.requests, 2)
	require.Equal(t, 1, prov.ensures)
}

func TestExecuteInPayloadPolicyDemand(t *testing.T) {
	demand, err := wbxml.Encode(wbxml.New(proto.PageFolder, proto.FolderSync).
		AddText(proto.PageFolder, proto.FolderStatus, "142"))
	require.NoError(t, err)

	sender := &scripted{outcomes: []outcome{
		{resp: &transport.Response{Status: 200, Body: demand}},
		{resp: &transport.Response{Status: 200, Body: okBody(t)}},
	}}
	prov := &fakeProv{key: "key-2"}
	x := New(sender, prov, nil, fastOptions())

	root, err := x.Execute(context.Background(), testAccount(), &proto.FolderSyncRequest{})
	require.NoError(t, err)
	require.NotNil(t, root)
	require.Equal(t, 1, prov.ensures)
	require.Len(t, sender.requests, 2)
}

func TestExecuteRetriesTemporaryErrors(t *testing.T) {
	sender := &scripted{outcomes: []outcome{
		{err: errs.Transport("sync", true, errors.New("timeout"))},
		{err: errs.Transport("sync", true, errors.New("timeout"))},
		{resp: &transport.Response{Status: 200, Body: okBody(t)}},
	}}
	x := New(sender, &fakeProv{}, nil, fastOptions())

	root, err := x.Execute(context.Background(), testAccount(), &proto.FolderSyncRequest{})
	require.NoError(t, err)
	require.NotNil(t, root)
	require.Len(t, sender.requests, 3)
}

func TestExecuteGivesUpAfterMaxAttempts(t *testing.T) {
	sender := &scripted{outcomes: []outcome{
		{err: errs.Transport("sync", true, errors.New("timeout"))},
		{err: errs.Transport("sync", true, errors.New("timeout"))},
		{err: errs.Transport("sync", true, errors.New("timeout"))},
	}}
	x := New(sender, &fakeProv{}, nil, fastOptions())

	_, err := x.Execute(context.Background(), testAccount(), &proto.FolderSyncRequest{})
	require.Error(t, err)
	require.True(t, errs.IsTemporary(err))
	require.Len(t, sender.requests, 3)
}

func TestExecuteDoesNotRetryPermanentErrors(t *testing.T) {
	sender := &scripted{outcomes: []outcome{
		{err: errs.Transport("sync", false, errors.New("bad certificate"))},
	}}
	x := New(sender, &fakeProv{}, nil, fastOptions())

	_, err := x.Execute(context.Background(), testAccount(), &proto.FolderSyncRequest{})
	require.Error(t, err)
	require.Len(t, sender.requests, 1)
}

func TestExecuteRetriesServerBusy(t *testing.T) {
	sender := &scripted{outcomes: []outcome{
		{resp: &transport.Response{Status: http.StatusServiceUnavailable}},
		{resp: &transport.Response{Status: 200, Body: okBody(t)}},
	}}
	x := New(sender, &fakeProv{}, nil, fastOptions())

	root, err := x.Execute(context.Background(), testAccount(), &proto.FolderSyncRequest{})
	require.NoError(t, err)
	require.NotNil(t, root)
	require.Len(t, sender.requests, 2)
}

func TestExecuteAuthFailureIsTerminal(t *testing.T) {
	sender := &scripted{outcomes: []outcome{
		{resp: &transport.Response{Status: http.StatusUnauthorized}},
	}}
	x := New(sender, &fakeProv{}, nil, fastOptions())

	_, err := x.Execute(context.Background(), testAccount(), &proto.FolderSyncRequest{})
	require.Error(t, err)
	require.Equal(t, errs.KindServerRejected, errs.KindOf(err))
	require.Len(t, sender.requests, 1)
}

func TestExecuteDeviceBlocked(t *testing.T) {
	blocked, err := wbxml.Encode(wbxml.New(proto.PageFolder, proto.FolderSync).
		AddText(proto.PageFolder, proto.FolderStatus, "129"))
	require.NoError(t, err)

	sender := &scripted{outcomes: []outcome{
		{resp: &transport.Response{Status: 200, Body: blocked}},
	}}
	prov := &fakeProv{}
	x := New(sender, prov, nil, fastOptions())

	_, err = x.Execute(context.Background(), testAccount(), &proto.FolderSyncRequest{})
	require.Error(t, err)
	require.Equal(t, errs.KindServerRejected, errs.KindOf(err))
	require.Zero(t, prov.ensures, "blocked devices must not trigger provisioning")
}

func TestExecuteTimeoutPassedThrough(t *testing.T) {
	sender := &scripted{outcomes: []outcome{
		{resp: &transport.Response{Status: 200, Body: okBody(t)}},
	}}
	x := New(sender, &fakeProv{}, nil, fastOptions())

	_, err := x.ExecuteTimeout(context.Background(), testAccount(), &proto.FolderSyncRequest{}, 42*time.Second)
	require.NoError(t, err)
	require.Equal(t, 42*time.Second, sender.requests[0].Timeout)
}
