package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/edvin/jenkins-maintenance/internal/jenkins/jenkinstest"
	"github.com/edvin/jenkins-maintenance/internal/ledger"
	"github.com/edvin/jenkins-maintenance/internal/maintenance"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"JENKINS_URL", "JENKINS_USERNAME", "JENKINS_TOKEN", "JENKINS_HTTP_TIMEOUT", "LOG_LEVEL",
		"LEDGER_S3_ENDPOINT", "LEDGER_S3_REGION", "LEDGER_S3_ACCESS_KEY", "LEDGER_S3_SECRET_KEY", "LEDGER_S3_PATH_STYLE",
	} {
		t.Setenv(key, "")
	}
}

type result struct {
	code   int
	stdout string
	stderr string
}

func execute(t *testing.T, srv *jenkinstest.Server, args ...string) result {
	t.Helper()
	if srv != nil {
		args = append(args, "--uri", srv.URL, "-u", srv.Username, "-t", srv.Token)
	}
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func readLedger(t *testing.T, path string, v ledger.Variant) (*ledger.Ledger, bool) {
	t.Helper()
	store, err := ledger.OpenStore(path, ledger.S3Settings{})
	require.NoError(t, err)
	l, found, err := ledger.Read(context.Background(), store, v)
	require.NoError(t, err)
	return l, found
}

func TestPrepareThenResume(t *testing.T) {
	clearEnv(t)
	srv := jenkinstest.New(t)
	srv.AddNode("agent-1", false, true)
	srv.AddNode("agent-2", true, true)
	file := filepath.Join(t.TempDir(), "maintenance.json")

	res := execute(t, srv, "prepare", "-m", file)
	require.Equal(t, maintenance.ExitOK, res.code, res.stderr)
	assert.True(t, srv.NodeOffline("agent-1"))

	l, found := readLedger(t, file, ledger.VariantPrepare)
	require.True(t, found)
	assert.True(t, l.Has(ledger.Nodes, "agent-1"))
	assert.False(t, l.Has(ledger.Nodes, "agent-2"))

	res = execute(t, srv, "resume", "-m", file)
	require.Equal(t, maintenance.ExitOK, res.code, res.stderr)
	assert.False(t, srv.NodeOffline("agent-1"))
	assert.True(t, srv.NodeOffline("agent-2"))

	_, err := os.Stat(file)
	assert.True(t, os.IsNotExist(err), "ledger should be deleted after a clean resume")
}

func TestPrepare_SafeChangesNothing(t *testing.T) {
	clearEnv(t)
	srv := jenkinstest.New(t)
	srv.AddNode("agent-1", false, true)
	file := filepath.Join(t.TempDir(), "maintenance.json")

	res := execute(t, srv, "prepare", "-m", file, "--safe")
	require.Equal(t, maintenance.ExitOK, res.code, res.stderr)
	assert.Empty(t, srv.Mutations())

	l, found := readLedger(t, file, ledger.VariantPrepare)
	assert.True(t, found)
	assert.True(t, l.Empty())
}

func TestPrepare_RequiresMaintenanceFile(t *testing.T) {
	clearEnv(t)
	srv := jenkinstest.New(t)

	res := execute(t, srv, "prepare")
	assert.Equal(t, maintenance.ExitGeneralError, res.code)
	assert.Contains(t, res.stderr, "maintenance-file")
	assert.Empty(t, srv.Calls())
}

func TestMissingConnectionSettings(t *testing.T) {
	clearEnv(t)

	res := execute(t, nil, "check-empty")
	assert.Equal(t, maintenance.ExitGeneralError, res.code)
	assert.Contains(t, res.stderr, "invalid configuration")
}

func TestConfigFileAndEnvironment(t *testing.T) {
	clearEnv(t)
	srv := jenkinstest.New(t)
	srv.AddNode("agent-1", false, true)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: "+srv.URL+"\nusername: admin\n"), 0o600))
	t.Setenv("JENKINS_TOKEN", srv.Token)

	res := execute(t, nil, "check-empty", "--config", path)
	assert.Equal(t, maintenance.ExitOK, res.code, res.stderr)
}

func TestUnknownCommand(t *testing.T) {
	clearEnv(t)

	res := execute(t, nil, "reboot")
	assert.Equal(t, maintenance.ExitGeneralError, res.code)
	assert.Contains(t, res.stderr, "--help")
}

func TestCheckEmpty(t *testing.T) {
	clearEnv(t)

	t.Run("idle", func(t *testing.T) {
		srv := jenkinstest.New(t)
		srv.AddNode("agent-1", false, true)
		assert.Equal(t, maintenance.ExitOK, execute(t, srv, "check-empty").code)
	})

	t.Run("queued item", func(t *testing.T) {
		srv := jenkinstest.New(t)
		srv.AddNode("agent-1", false, true)
		srv.AddQueueItem(7)
		assert.Equal(t, maintenance.ExitGeneralError, execute(t, srv, "check-empty").code)
	})

	t.Run("jenkins down", func(t *testing.T) {
		srv := jenkinstest.New(t)
		srv.Close()
		assert.Equal(t, maintenance.ExitUnexpected, execute(t, srv, "check-empty").code)
	})
}

func TestInfo_WritesStdoutAndFile(t *testing.T) {
	clearEnv(t)
	srv := jenkinstest.New(t)
	srv.AddBuiltInNode(false, true)
	srv.AddWorkflow("deploy", true)
	srv.AddFolder("team")
	srv.AddWorkflow("team/build", false)
	out := filepath.Join(t.TempDir(), "info.json")

	res := execute(t, srv, "info", "--info-file", out, "--concurrency", "2")
	require.Equal(t, maintenance.ExitOK, res.code, res.stderr)

	var doc struct {
		Nodes     []map[string]any
		WorkFlows []map[string]any
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &doc))
	assert.Len(t, doc.Nodes, 1)
	assert.Len(t, doc.WorkFlows, 2)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, res.stdout, string(data))
	assert.Empty(t, srv.Mutations())
}

func TestInfo_YAML(t *testing.T) {
	clearEnv(t)
	srv := jenkinstest.New(t)
	srv.AddNode("agent-1", true, true)

	res := execute(t, srv, "info", "--format", "yaml")
	require.Equal(t, maintenance.ExitOK, res.code, res.stderr)

	var doc struct {
		Nodes     []map[string]any `yaml:"nodes"`
		Workflows []map[string]any `yaml:"workflows"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(res.stdout), &doc))
	assert.Len(t, doc.Nodes, 1)
	assert.Empty(t, doc.Workflows)
}

func TestInfo_UnknownFormat(t *testing.T) {
	clearEnv(t)
	srv := jenkinstest.New(t)

	res := execute(t, srv, "info", "--format", "xml")
	assert.Equal(t, maintenance.ExitGeneralError, res.code)
	assert.Empty(t, srv.Calls())
}

func TestKill_DefaultsToSafe(t *testing.T) {
	clearEnv(t)
	srv := jenkinstest.New(t)
	srv.AddWorkflow("deploy", true)
	srv.AddNode("agent-1", false, true)
	srv.AddQueueItem(3)
	file := filepath.Join(t.TempDir(), "kill.json")

	res := execute(t, srv, "kill", "-m", file)
	require.Equal(t, maintenance.ExitOK, res.code, res.stderr)
	assert.Empty(t, srv.Mutations())

	l, found := readLedger(t, file, ledger.VariantKill)
	require.True(t, found)
	assert.True(t, l.Has(ledger.Workflows, srv.JobURL("deploy")))
	assert.True(t, l.Has(ledger.Nodes, "agent-1"))
}

func TestKillThenResurrect(t *testing.T) {
	clearEnv(t)
	srv := jenkinstest.New(t)
	srv.AddWorkflow("deploy", true)
	srv.AddWorkflow("retired", false)
	srv.AddNode("agent-1", false, true)
	file := filepath.Join(t.TempDir(), "kill.json")

	res := execute(t, srv, "kill", "-m", file, "--safe=false")
	require.Equal(t, maintenance.ExitOK, res.code, res.stderr)
	assert.False(t, srv.JobEnabled("deploy"))
	assert.True(t, srv.NodeOffline("agent-1"))
	assert.True(t, srv.QuietingDown())

	res = execute(t, srv, "resurrect", "-m", file, "--safe=false")
	require.Equal(t, maintenance.ExitOK, res.code, res.stderr)
	assert.True(t, srv.JobEnabled("deploy"))
	assert.False(t, srv.JobEnabled("retired"))
	assert.False(t, srv.NodeOffline("agent-1"))
	assert.False(t, srv.QuietingDown())
}

func TestHiddenCommandsStayOutOfHelp(t *testing.T) {
	clearEnv(t)

	res := execute(t, nil, "--help")
	require.Equal(t, maintenance.ExitOK, res.code)
	assert.Contains(t, res.stdout, "prepare")
	assert.Contains(t, res.stdout, "check-empty")
	assert.NotContains(t, res.stdout, "greater-resurrect")
	assert.NotContains(t, res.stdout, "kill")
}

func TestQuietDown_Refused(t *testing.T) {
	clearEnv(t)
	srv := jenkinstest.New(t)
	srv.FailOn(http.MethodPost, "/quietDown", http.StatusForbidden)

	assert.Equal(t, maintenance.ExitGeneralError, execute(t, srv, "quiet-down").code)
}

func TestMetricsFile(t *testing.T) {
	clearEnv(t)
	srv := jenkinstest.New(t)
	srv.AddNode("agent-1", false, true)
	dir := t.TempDir()
	metricsFile := filepath.Join(dir, "maintenance.prom")

	res := execute(t, srv, "prepare", "-m", filepath.Join(dir, "ledger.json"), "--metrics-file", metricsFile)
	require.Equal(t, maintenance.ExitOK, res.code, res.stderr)

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `jenkins_maintenance_entity_outcomes_total{kind="node",operation="prepare",outcome="applied"} 1`)
	assert.Contains(t, string(data), "jenkins_maintenance_operation_duration_seconds")
}
