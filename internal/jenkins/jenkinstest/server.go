// Package jenkinstest provides an in-process Jenkins controller that speaks
// the subset of the remote access API used by the jenkins client.
package jenkinstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/jenkins-maintenance/internal/jenkins"
)

const (
	WorkflowClass  = "org.jenkinsci.plugins.workflow.job.WorkflowJob"
	FreestyleClass = "hudson.model.FreeStyleProject"
	FolderClass    = "com.cloudbees.hudson.plugins.folder.Folder"
	OrgFolderClass = "jenkins.branch.OrganizationFolder"
	MatrixConfig   = "hudson.matrix.MatrixConfiguration"
	SlaveClass     = "hudson.slaves.SlaveComputer"
	MasterClass    = "hudson.model.Hudson$MasterComputer"
)

// Call is one request received by the server.
type Call struct {
	Method string
	Path   string
}

type job struct {
	path     string
	class    string
	disabled bool
	builds   []jenkins.Build
}

type node struct {
	name    string
	builtIn bool
	offline bool
	idle    bool
}

// Server is a fake Jenkins controller. All methods are safe for concurrent
// use.
type Server struct {
	*httptest.Server

	Username string
	Token    string

	mu       sync.Mutex
	order    []string
	jobs     map[string]*job
	nodes    []*node
	queue    []int64
	quiet    bool
	calls    []Call
	failures map[Call]int
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		Username: "admin",
		Token:    "secret",
		jobs:     make(map[string]*job),
		failures: make(map[Call]int),
	}

	r := chi.NewRouter()
	r.Use(s.record, s.auth, s.failInjected)
	r.Get("/api/json", s.handleRoot)
	r.Post("/quietDown", s.handleQuiet(true))
	r.Post("/cancelQuietDown", s.handleQuiet(false))
	r.Get("/computer/api/json", s.handleNodes)
	r.Get("/computer/{name}/api/json", s.handleNode)
	r.Post("/computer/{name}/toggleOffline", s.handleToggle)
	r.Get("/queue/api/json", s.handleQueue)
	r.Post("/queue/cancelItem", s.handleCancelItem)
	r.HandleFunc("/job/*", s.handleJob)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// JobPath converts "team/app" into the Jenkins path "/job/team/job/app/".
func JobPath(name string) string {
	var b strings.Builder
	for _, seg := range strings.Split(strings.Trim(name, "/"), "/") {
		b.WriteString("/job/")
		b.WriteString(seg)
	}
	b.WriteString("/")
	return b.String()
}

// JobURL returns the absolute URL the server reports for a job name.
func (s *Server) JobURL(name string) string {
	return s.URL + JobPath(name)
}

// AddWorkflow registers a pipeline job.
func (s *Server) AddWorkflow(name string, enabled bool, builds ...jenkins.Build) {
	s.AddJob(name, WorkflowClass, enabled, builds...)
}

// AddFolder registers a folder.
func (s *Server) AddFolder(name string) {
	s.AddJob(name, FolderClass, true)
}

// AddJob registers a job of an arbitrary class.
func (s *Server) AddJob(name, class string, enabled bool, builds ...jenkins.Build) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := JobPath(name)
	if _, ok := s.jobs[p]; !ok {
		s.order = append(s.order, p)
	}
	s.jobs[p] = &job{path: p, class: class, disabled: !enabled, builds: builds}
}

// AddNode registers an agent node.
func (s *Server) AddNode(name string, offline, idle bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = append(s.nodes, &node{name: name, offline: offline, idle: idle})
}

// AddBuiltInNode registers the controller's own node.
func (s *Server) AddBuiltInNode(offline, idle bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = append(s.nodes, &node{name: "Built-In Node", builtIn: true, offline: offline, idle: idle})
}

// RemoveNode deletes a node.
func (s *Server) RemoveNode(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.nodes {
		if n.name == name {
			s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)
			return
		}
	}
}

// AddQueueItem puts an item in the build queue.
func (s *Server) AddQueueItem(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, id)
}

// FailOn makes every request matching method and path answer with status.
func (s *Server) FailOn(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[Call{Method: method, Path: path}] = status
}

// SetJobEnabled changes a job's state as an unrelated actor would.
func (s *Server) SetJobEnabled(name string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[JobPath(name)]; ok {
		j.disabled = !enabled
	}
}

// JobEnabled reports whether a job is currently enabled.
func (s *Server) JobEnabled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[JobPath(name)]
	return ok && !j.disabled
}

// Building reports whether a job's build is still running.
func (s *Server) Building(name string, number int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[JobPath(name)]
	if !ok {
		return false
	}
	for _, b := range j.builds {
		if b.Number == number {
			return b.Building
		}
	}
	return false
}

// NodeOffline reports whether a node is offline. Use jenkins.BuiltInNodeName
// for the controller node.
func (s *Server) NodeOffline(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.findNode(name)
	return n != nil && n.offline
}

// SetNodeOffline changes a node's state as an unrelated actor would.
func (s *Server) SetNodeOffline(name string, offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.findNode(name); n != nil {
		n.offline = offline
	}
}

// QuietingDown reports whether quiet mode is active.
func (s *Server) QuietingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quiet
}

// QueueLen returns the number of queued items.
func (s *Server) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Calls returns every request received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Mutations returns the state-changing requests received so far.
func (s *Server) Mutations() []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == http.MethodPost {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) findNode(name string) *node {
	for _, n := range s.nodes {
		if n.name == name || (n.builtIn && name == jenkins.BuiltInNodeName) {
			return n
		}
	}
	return nil
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, token, ok := r.BasicAuth()
		if !ok || user != s.Username || token != s.Token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) failInjected(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status, ok := s.failures[Call{Method: r.Method, Path: r.URL.Path}]
		s.mu.Unlock()
		if ok {
			http.Error(w, "injected failure", status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) base(r *http.Request) string {
	return "http://" + r.Host
}

func (s *Server) jobJSON(r *http.Request, j *job) map[string]any {
	name := j.path[strings.LastIndex(strings.TrimSuffix(j.path, "/"), "/")+1 : len(j.path)-1]
	out := map[string]any{
		"_class":      j.class,
		"name":        name,
		"displayName": name,
		"url":         s.base(r) + j.path,
	}
	switch jenkins.Classify(j.class) {
	case jenkins.KindWorkflow:
		color := "blue"
		if j.disabled {
			color = "disabled"
		}
		out["color"] = color
		out["buildable"] = !j.disabled
		builds := make([]map[string]any, 0, len(j.builds))
		for _, b := range j.builds {
			builds = append(builds, map[string]any{"number": b.Number, "building": b.Building})
		}
		out["builds"] = builds
	case jenkins.KindFolder:
		children := []map[string]any{}
		for _, p := range s.order {
			if parentPath(p) == j.path {
				children = append(children, map[string]any{"url": s.base(r) + p})
			}
		}
		out["jobs"] = children
	}
	return out
}

func parentPath(p string) string {
	trimmed := strings.TrimSuffix(p, "/")
	i := strings.LastIndex(trimmed, "/job/")
	if i <= 0 {
		return ""
	}
	return trimmed[:i] + "/"
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := []map[string]any{}
	for _, p := range s.order {
		if parentPath(p) == "" {
			jobs = append(jobs, s.jobJSON(r, s.jobs[p]))
		}
	}
	writeJSON(w, map[string]any{"jobs": jobs})
}

func (s *Server) handleQuiet(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.quiet = on
		s.mu.Unlock()
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func (s *Server) nodeJSON(n *node) map[string]any {
	class := SlaveClass
	if n.builtIn {
		class = MasterClass
	}
	return map[string]any{"_class": class, "displayName": n.name, "offline": n.offline, "idle": n.idle}
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	computers := []map[string]any{}
	for _, n := range s.nodes {
		computers = append(computers, s.nodeJSON(n))
	}
	writeJSON(w, map[string]any{"computer": computers})
}

func (s *Server) nodeParam(r *http.Request) *node {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		return nil
	}
	return s.findNode(name)
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.nodeParam(r)
	if n == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, s.nodeJSON(n))
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.nodeParam(r)
	if n == nil {
		http.NotFound(w, r)
		return
	}
	n.offline = !n.offline
	http.Redirect(w, r, "/computer/", http.StatusFound)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := []map[string]any{}
	for _, id := range s.queue {
		items = append(items, map[string]any{"id": id, "why": "Waiting for next available executor"})
	}
	writeJSON(w, map[string]any{"items": items})
}

func (s *Server) handleCancelItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, q := range s.queue {
		if q == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	http.NotFound(w, r)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Method == http.MethodGet && strings.HasSuffix(p, "/api/json") {
		j, ok := s.jobs[strings.TrimSuffix(p, "api/json")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, s.jobJSON(r, j))
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	trimmed := strings.TrimSuffix(p, "/")
	action := trimmed[strings.LastIndex(trimmed, "/")+1:]
	rest := trimmed[:strings.LastIndex(trimmed, "/")+1]

	switch action {
	case "disable", "enable":
		j, ok := s.jobs[rest]
		if !ok {
			http.NotFound(w, r)
			return
		}
		j.disabled = action == "disable"
		http.Redirect(w, r, rest, http.StatusFound)
	case "kill", "stop":
		numStr := strings.TrimSuffix(rest, "/")
		number, err := strconv.Atoi(numStr[strings.LastIndex(numStr, "/")+1:])
		if err != nil {
			http.NotFound(w, r)
			return
		}
		j, ok := s.jobs[numStr[:strings.LastIndex(numStr, "/")+1]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		for i := range j.builds {
			if j.builds[i].Number == number {
				j.builds[i].Building = false
			}
		}
		w.WriteHeader(http.StatusOK)
	default:
		http.NotFound(w, r)
	}
}
