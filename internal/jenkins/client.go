package jenkins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var validate = validator.New()

// Settings are the connection parameters of a Jenkins controller.
type Settings struct {
	URL      string `validate:"required,url"`
	Username string `validate:"required"`
	Token    string `validate:"required"`
	Timeout  time.Duration
}

// Client talks to the Jenkins remote access API. It can only be built from
// validated settings.
//
// Calls that mutate state or look up a single entity never fail on a
// non-success HTTP status: the status is logged and converted to false or
// nil. Transport and decoding problems are returned as errors.
type Client struct {
	baseURL    *url.URL
	username   string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

type response struct {
	StatusCode int
	Body       []byte
}

// ok accepts redirects: Jenkins answers most POST actions with a redirect
// to the entity page.
func (r *response) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 400
}

func (r *response) success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// NewClient validates the settings and returns a ready client.
func NewClient(s Settings, logger zerolog.Logger) (*Client, error) {
	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("jenkins settings: %w", err)
	}
	base, err := url.Parse(withSlash(s.URL))
	if err != nil {
		return nil, fmt.Errorf("parse jenkins url: %w", err)
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  base,
		username: s.Username,
		token:    s.Token,
		httpClient: &http.Client{
			Timeout: timeout,
			// A redirect after a POST action is its success signal and is
			// not followed. Reads follow redirects as usual.
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if via[0].Method != http.MethodGet {
					return http.ErrUseLastResponse
				}
				if len(via) >= 10 {
					return errors.New("stopped after 10 redirects")
				}
				return nil
			},
		},
		logger: logger.With().Str("component", "jenkins-client").Logger(),
	}, nil
}

// BaseURL returns the controller root, always ending in a slash.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values) (*response, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", path, err)
	}
	target := c.baseURL.ResolveReference(ref)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &response{StatusCode: resp.StatusCode, Body: body}, nil
}

func (c *Client) logFailure(resp *response, msg string, fields func(*zerolog.Event) *zerolog.Event) {
	ev := c.logger.Error().Int("status", resp.StatusCode).Str("reason", http.StatusText(resp.StatusCode))
	if fields != nil {
		ev = fields(ev)
	}
	ev.Msg(msg)
	c.logger.Debug().Bytes("body", resp.Body).Msg("full response")
}

func (c *Client) post(ctx context.Context, path string, query url.Values, msg string, fields func(*zerolog.Event) *zerolog.Event) (bool, error) {
	resp, err := c.do(ctx, http.MethodPost, path, query)
	if err != nil {
		return false, err
	}
	if !resp.ok() {
		c.logFailure(resp, msg, fields)
		return false, nil
	}
	return true, nil
}

// getJSON decodes a successful response into v. found is false when the
// server answered with a non-success status.
func (c *Client) getJSON(ctx context.Context, path, tree string, v any, msg string, fields func(*zerolog.Event) *zerolog.Event) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, path, url.Values{"tree": {tree}})
	if err != nil {
		return false, err
	}
	if !resp.success() {
		c.logFailure(resp, msg, fields)
		return false, nil
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

func str(key, val string) func(*zerolog.Event) *zerolog.Event {
	return func(e *zerolog.Event) *zerolog.Event { return e.Str(key, val) }
}

// ListTopLevelJobs returns the classified entries of the root view.
func (c *Client) ListTopLevelJobs(ctx context.Context) ([]Job, error) {
	var page struct {
		Jobs []rawJob `json:"jobs"`
	}
	found, err := c.getJSON(ctx, "api/json", "jobs["+jobTree+"]", &page, "failed to list jobs", nil)
	if err != nil || !found {
		return nil, err
	}
	jobs := make([]Job, 0, len(page.Jobs))
	for _, raw := range page.Jobs {
		jobs = append(jobs, raw.classify())
	}
	return jobs, nil
}

// GetJobByURL fetches one job. It returns nil when the server refuses.
func (c *Client) GetJobByURL(ctx context.Context, jobURL string) (*Job, error) {
	var raw rawJob
	found, err := c.getJSON(ctx, withSlash(jobURL)+"api/json", jobTree, &raw, "failed to get job", str("job", jobURL))
	if err != nil || !found {
		return nil, err
	}
	job := raw.classify()
	if job.URL == "" {
		job.URL = withSlash(jobURL)
	}
	return &job, nil
}

// ListNodes returns every node, the built-in one included.
func (c *Client) ListNodes(ctx context.Context) ([]Node, error) {
	var page struct {
		Computer []rawNode `json:"computer"`
	}
	found, err := c.getJSON(ctx, "computer/api/json", "computer["+nodeTree+"]", &page, "failed to list nodes", nil)
	if err != nil || !found {
		return nil, err
	}
	nodes := make([]Node, 0, len(page.Computer))
	for _, raw := range page.Computer {
		nodes = append(nodes, raw.node())
	}
	return nodes, nil
}

// GetNode fetches a node by name. It returns nil when the node is unknown.
func (c *Client) GetNode(ctx context.Context, name string) (*Node, error) {
	var raw rawNode
	found, err := c.getJSON(ctx, nodePath(name)+"api/json", nodeTree, &raw, "failed to get node", str("node", name))
	if err != nil || !found {
		return nil, err
	}
	n := raw.node()
	return &n, nil
}

// ToggleNodeOffline flips the online/offline state of a node.
func (c *Client) ToggleNodeOffline(ctx context.Context, name string) (bool, error) {
	return c.post(ctx, nodePath(name)+"toggleOffline", nil, "failed to toggle node", str("node", name))
}

// DisableJob disables a workflow.
func (c *Client) DisableJob(ctx context.Context, jobURL string) (bool, error) {
	return c.post(ctx, withSlash(jobURL)+"disable", nil, "failed to disable job", str("job", jobURL))
}

// EnableJob enables a workflow. Enabling an enabled workflow is harmless.
func (c *Client) EnableJob(ctx context.Context, jobURL string) (bool, error) {
	return c.post(ctx, withSlash(jobURL)+"enable", nil, "failed to enable job", str("job", jobURL))
}

// GetBuildQueue returns the build queue, or nil when it is unavailable.
func (c *Client) GetBuildQueue(ctx context.Context) (*BuildQueue, error) {
	var q BuildQueue
	found, err := c.getJSON(ctx, "queue/api/json", queueTree, &q, "failed to get the build queue", nil)
	if err != nil || !found {
		return nil, err
	}
	return &q, nil
}

// CancelQueueItem removes an item from the build queue.
func (c *Client) CancelQueueItem(ctx context.Context, id int64) (bool, error) {
	idStr := strconv.FormatInt(id, 10)
	return c.post(ctx, "queue/cancelItem", url.Values{"id": {idStr}}, "failed to cancel queue item", str("id", idStr))
}

// KillBuild hard-kills a running build.
func (c *Client) KillBuild(ctx context.Context, jobURL string, number int) (bool, error) {
	return c.buildAction(ctx, jobURL, number, "kill")
}

// StopBuild asks a running build to abort.
func (c *Client) StopBuild(ctx context.Context, jobURL string, number int) (bool, error) {
	return c.buildAction(ctx, jobURL, number, "stop")
}

func (c *Client) buildAction(ctx context.Context, jobURL string, number int, action string) (bool, error) {
	path := fmt.Sprintf("%s%d/%s", withSlash(jobURL), number, action)
	return c.post(ctx, path, nil, "failed to "+action+" build", func(e *zerolog.Event) *zerolog.Event {
		return e.Str("job", jobURL).Int("build", number)
	})
}

// QuietDown stops the controller from starting new builds.
func (c *Client) QuietDown(ctx context.Context) (bool, error) {
	ok, err := c.post(ctx, "quietDown", nil, "failed to put Jenkins in quiet mode", nil)
	if ok {
		c.logger.Info().Msg("jenkins is now in quiet mode")
	}
	return ok, err
}

// CancelQuietDown lets the controller start builds again.
func (c *Client) CancelQuietDown(ctx context.Context) (bool, error) {
	ok, err := c.post(ctx, "cancelQuietDown", nil, "failed to cancel quiet mode", nil)
	if ok {
		c.logger.Info().Msg("jenkins is now out of quiet mode")
	}
	return ok, err
}

func nodePath(name string) string {
	return "computer/" + url.PathEscape(name) + "/"
}

func withSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
