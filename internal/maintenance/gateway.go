// Package maintenance quiesces a Jenkins controller for a maintenance window
// and restores it afterwards, driven by a ledger of what was changed.
package maintenance

import (
	"context"

	"github.com/edvin/jenkins-maintenance/internal/jenkins"
)

// Gateway is the subset of the Jenkins remote API the operations need.
// *jenkins.Client implements it.
//
// Boolean calls report whether Jenkins accepted the request. Lookups return
// nil when Jenkins refused to answer. Only transport failures are errors.
type Gateway interface {
	ListTopLevelJobs(ctx context.Context) ([]jenkins.Job, error)
	GetJobByURL(ctx context.Context, jobURL string) (*jenkins.Job, error)
	ListNodes(ctx context.Context) ([]jenkins.Node, error)
	GetNode(ctx context.Context, name string) (*jenkins.Node, error)
	ToggleNodeOffline(ctx context.Context, name string) (bool, error)
	DisableJob(ctx context.Context, jobURL string) (bool, error)
	EnableJob(ctx context.Context, jobURL string) (bool, error)
	GetBuildQueue(ctx context.Context) (*jenkins.BuildQueue, error)
	CancelQueueItem(ctx context.Context, id int64) (bool, error)
	KillBuild(ctx context.Context, jobURL string, number int) (bool, error)
	StopBuild(ctx context.Context, jobURL string, number int) (bool, error)
	QuietDown(ctx context.Context) (bool, error)
	CancelQuietDown(ctx context.Context) (bool, error)
}

var _ Gateway = (*jenkins.Client)(nil)
