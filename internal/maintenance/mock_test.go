package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/jenkins-maintenance/internal/jenkins"
	"github.com/edvin/jenkins-maintenance/internal/jenkins/jenkinstest"
	"github.com/edvin/jenkins-maintenance/internal/ledger"
)

// mockGateway implements Gateway for tests that need exact call control.
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) ListTopLevelJobs(ctx context.Context) ([]jenkins.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]jenkins.Job), args.Error(1)
}

func (m *mockGateway) GetJobByURL(ctx context.Context, jobURL string) (*jenkins.Job, error) {
	args := m.Called(ctx, jobURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jenkins.Job), args.Error(1)
}

func (m *mockGateway) ListNodes(ctx context.Context) ([]jenkins.Node, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]jenkins.Node), args.Error(1)
}

func (m *mockGateway) GetNode(ctx context.Context, name string) (*jenkins.Node, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jenkins.Node), args.Error(1)
}

func (m *mockGateway) ToggleNodeOffline(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *mockGateway) DisableJob(ctx context.Context, jobURL string) (bool, error) {
	args := m.Called(ctx, jobURL)
	return args.Bool(0), args.Error(1)
}

func (m *mockGateway) EnableJob(ctx context.Context, jobURL string) (bool, error) {
	args := m.Called(ctx, jobURL)
	return args.Bool(0), args.Error(1)
}

func (m *mockGateway) GetBuildQueue(ctx context.Context) (*jenkins.BuildQueue, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jenkins.BuildQueue), args.Error(1)
}

func (m *mockGateway) CancelQueueItem(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockGateway) KillBuild(ctx context.Context, jobURL string, number int) (bool, error) {
	args := m.Called(ctx, jobURL, number)
	return args.Bool(0), args.Error(1)
}

func (m *mockGateway) StopBuild(ctx context.Context, jobURL string, number int) (bool, error) {
	args := m.Called(ctx, jobURL, number)
	return args.Bool(0), args.Error(1)
}

func (m *mockGateway) QuietDown(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockGateway) CancelQuietDown(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

// assertNoMutations fails the test if any state-changing call was made.
func assertNoMutations(t *testing.T, gw *mockGateway) {
	t.Helper()
	gw.AssertNotCalled(t, "ToggleNodeOffline", mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "DisableJob", mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "EnableJob", mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "CancelQueueItem", mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "KillBuild", mock.Anything, mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "StopBuild", mock.Anything, mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "QuietDown", mock.Anything)
	gw.AssertNotCalled(t, "CancelQuietDown", mock.Anything)
}

func workflow(url string, enabled jenkins.Enablement, builds ...jenkins.Build) jenkins.Job {
	return jenkins.NewWorkflowJob(jenkins.Workflow{URL: url, Name: url, Enabled: enabled, Builds: builds})
}

func newClient(t *testing.T, srv *jenkinstest.Server) *jenkins.Client {
	t.Helper()
	c, err := jenkins.NewClient(jenkins.Settings{
		URL:      srv.URL,
		Username: srv.Username,
		Token:    srv.Token,
		Timeout:  5 * time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func newController(t *testing.T, srv *jenkinstest.Server, dryRun bool) *Controller {
	t.Helper()
	return New(newClient(t, srv), zerolog.Nop(), Options{DryRun: dryRun})
}

func tempStore(t *testing.T) *ledger.FileStore {
	t.Helper()
	return ledger.NewFileStore(filepath.Join(t.TempDir(), "maintenance.json"))
}

func readLedger(t *testing.T, store ledger.Store, v ledger.Variant) (*ledger.Ledger, bool) {
	t.Helper()
	l, found, err := ledger.Read(context.Background(), store, v)
	require.NoError(t, err)
	return l, found
}
