package maintenance

import (
	"context"
	"errors"
	"net/http"
	"os"
	"slices"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/jenkins-maintenance/internal/jenkins"
	"github.com/edvin/jenkins-maintenance/internal/jenkins/jenkinstest"
	"github.com/edvin/jenkins-maintenance/internal/ledger"
)

func TestPrepareResume_IsIdempotent(t *testing.T) {
	srv := jenkinstest.New(t)
	srv.AddBuiltInNode(false, true)
	srv.AddNode("agent-1", false, true)
	srv.AddNode("agent-2", true, true)
	c := newController(t, srv, false)
	store := tempStore(t)
	ctx := context.Background()

	report, err := c.Prepare(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(ActionApplied))
	assert.Equal(t, 1, report.Count(NoActionNeeded))

	assert.True(t, srv.NodeOffline(jenkins.BuiltInNodeName))
	assert.True(t, srv.NodeOffline("agent-1"))
	assert.True(t, srv.NodeOffline("agent-2"))

	l, found := readLedger(t, store, ledger.VariantPrepare)
	require.True(t, found)
	assert.Equal(t, []string{jenkins.BuiltInNodeName, "agent-1"}, slices.Collect(l.All(ledger.Nodes)))

	report, err = c.Resume(ctx, store, ProbeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(ActionApplied))

	assert.False(t, srv.NodeOffline(jenkins.BuiltInNodeName))
	assert.False(t, srv.NodeOffline("agent-1"))
	assert.True(t, srv.NodeOffline("agent-2"), "a node offline before prepare stays offline")

	_, err = os.Stat(store.Location())
	assert.True(t, os.IsNotExist(err), "resume consumes the ledger")

	mutations := len(srv.Mutations())
	report, err = c.Resume(ctx, store, ProbeOptions{})
	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
	assert.Len(t, srv.Mutations(), mutations)
}

func TestPrepare_ToggleFailureIsStillRecorded(t *testing.T) {
	srv := jenkinstest.New(t)
	srv.AddNode("agent-1", false, true)
	srv.AddNode("agent-2", false, true)
	srv.FailOn(http.MethodPost, "/computer/agent-1/toggleOffline", http.StatusInternalServerError)
	store := tempStore(t)

	report, err := newController(t, srv, false).Prepare(context.Background(), store)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, 1, report.Failed())
	assert.True(t, srv.NodeOffline("agent-2"))

	l, _ := readLedger(t, store, ledger.VariantPrepare)
	assert.True(t, l.Has(ledger.Nodes, "agent-1"))
	assert.True(t, l.Has(ledger.Nodes, "agent-2"))
}

func TestPrepare_DryRunWritesEmptyLedger(t *testing.T) {
	gw := &mockGateway{}
	gw.On("ListNodes", mock.Anything).Return([]jenkins.Node{
		{Name: "agent-1"},
		{Name: "agent-2", Offline: true},
	}, nil)
	store := tempStore(t)

	report, err := New(gw, zerolog.Nop(), Options{DryRun: true}).Prepare(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(ActionSimulated))
	assert.Equal(t, 1, report.Count(NoActionNeeded))
	assertNoMutations(t, gw)

	l, found := readLedger(t, store, ledger.VariantPrepare)
	assert.True(t, found)
	assert.True(t, l.Empty())
}

func TestPrepare_NodeListingRefused(t *testing.T) {
	srv := jenkinstest.New(t)
	srv.FailOn(http.MethodGet, "/computer/api/json", http.StatusForbidden)
	store := tempStore(t)

	_, err := newController(t, srv, false).Prepare(context.Background(), store)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, ExitGeneralError, ExitCode(err))

	l, found := readLedger(t, store, ledger.VariantPrepare)
	assert.True(t, found)
	assert.True(t, l.Empty())
}

func TestResume_SkipsMissingAndOnlineNodes(t *testing.T) {
	srv := jenkinstest.New(t)
	srv.AddNode("agent-1", false, true)
	srv.AddNode("agent-2", false, true)
	srv.AddNode("agent-3", false, true)
	c := newController(t, srv, false)
	store := tempStore(t)
	ctx := context.Background()

	_, err := c.Prepare(ctx, store)
	require.NoError(t, err)

	srv.RemoveNode("agent-1")
	srv.SetNodeOffline("agent-2", false)

	report, err := c.Resume(ctx, store, ProbeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []Outcome{
		{Kind: EntityNode, ID: "agent-1", State: Missing, Detail: "not found"},
		{Kind: EntityNode, ID: "agent-2", State: NoActionNeeded, Detail: "already online"},
		{Kind: EntityNode, ID: "agent-3", State: ActionApplied, Detail: "bring node online"},
	}, report.Outcomes)
	assert.False(t, srv.NodeOffline("agent-3"))

	_, found := readLedger(t, store, ledger.VariantPrepare)
	assert.False(t, found)
}

func TestResume_FailureKeepsLedger(t *testing.T) {
	srv := jenkinstest.New(t)
	srv.AddNode("agent-1", false, true)
	c := newController(t, srv, false)
	store := tempStore(t)
	ctx := context.Background()

	_, err := c.Prepare(ctx, store)
	require.NoError(t, err)

	srv.FailOn(http.MethodPost, "/computer/agent-1/toggleOffline", http.StatusBadGateway)
	_, err = c.Resume(ctx, store, ProbeOptions{})
	assert.ErrorIs(t, err, ErrIncomplete)

	l, found := readLedger(t, store, ledger.VariantPrepare)
	require.True(t, found)
	assert.True(t, l.Has(ledger.Nodes, "agent-1"))
}

func TestResume_DryRun(t *testing.T) {
	store := tempStore(t)
	l := ledger.New(ledger.VariantPrepare)
	l.Record(ledger.Nodes, "agent-1")
	l.Record(ledger.Nodes, "agent-2")
	require.NoError(t, ledger.Write(context.Background(), store, l))

	gw := &mockGateway{}
	gw.On("GetNode", mock.Anything, "agent-1").Return(&jenkins.Node{Name: "agent-1", Offline: true}, nil)
	gw.On("GetNode", mock.Anything, "agent-2").Return(&jenkins.Node{Name: "agent-2"}, nil)

	report, err := New(gw, zerolog.Nop(), Options{DryRun: true}).Resume(context.Background(), store, ProbeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(ActionSimulated))
	assert.Equal(t, 1, report.Count(NoActionNeeded))
	assertNoMutations(t, gw)

	_, found := readLedger(t, store, ledger.VariantPrepare)
	assert.True(t, found, "a dry run keeps the ledger")
}

func TestResume_EmptyLedgerFileIsAConfigurationError(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.Touch(context.Background()))

	_, err := New(&mockGateway{}, zerolog.Nop(), Options{}).Resume(context.Background(), store, ProbeOptions{})
	assert.ErrorIs(t, err, ledger.ErrEmptyFile)
	assert.Equal(t, ExitGeneralError, ExitCode(err))
}

func TestResume_MalformedLedgerIsUnexpected(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.Save(context.Background(), []byte("{nope")))

	_, err := New(&mockGateway{}, zerolog.Nop(), Options{}).Resume(context.Background(), store, ProbeOptions{})
	require.Error(t, err)
	assert.Equal(t, ExitUnexpected, ExitCode(err))
}

func TestResume_TransportErrorKeepsLedger(t *testing.T) {
	store := tempStore(t)
	l := ledger.New(ledger.VariantPrepare)
	l.Record(ledger.Nodes, "agent-1")
	require.NoError(t, ledger.Write(context.Background(), store, l))

	gw := &mockGateway{}
	gw.On("GetNode", mock.Anything, "agent-1").Return(nil, errors.New("connection refused"))

	_, err := New(gw, zerolog.Nop(), Options{}).Resume(context.Background(), store, ProbeOptions{})
	require.Error(t, err)
	assert.Equal(t, ExitUnexpected, ExitCode(err))

	_, found := readLedger(t, store, ledger.VariantPrepare)
	assert.True(t, found)
}

func TestResume_KillLedgerRestoresNodesAndKeepsLedger(t *testing.T) {
	srv := jenkinstest.New(t)
	srv.AddWorkflow("app", true)
	srv.AddNode("agent-1", false, true)
	c := newController(t, srv, false)
	store := tempStore(t)
	ctx := context.Background()

	_, err := c.Kill(ctx, store, KillOptions{})
	require.NoError(t, err)
	require.True(t, srv.NodeOffline("agent-1"))

	report, err := c.Resume(ctx, store, ProbeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(ActionApplied))
	assert.False(t, srv.NodeOffline("agent-1"))

	l, found := readLedger(t, store, ledger.VariantKill)
	require.True(t, found, "resurrect still needs the workflows")
	assert.True(t, l.Has(ledger.Workflows, srv.JobURL("app")))

	_, err = c.Resurrect(ctx, store)
	require.NoError(t, err)
	assert.True(t, srv.JobEnabled("app"))
	_, found = readLedger(t, store, ledger.VariantKill)
	assert.False(t, found)
}
