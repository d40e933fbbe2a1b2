package jenkins

import (
	"strings"
)

// BuiltInNodeName is the name Jenkins uses to address the controller's own
// executor node.
const BuiltInNodeName = "(built-in)"

// tree filters keep API responses down to the fields the tool reads.
const (
	jobTree   = "_class,name,url,displayName,color,buildable,builds[number,building],jobs[url]"
	nodeTree  = "_class,displayName,offline,idle"
	queueTree = "items[id,why,task[name,url]]"
)

// Kind classifies an inventory entry by the `_class` Jenkins reports for it.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindWorkflow
	KindFolder
)

func (k Kind) String() string {
	switch k {
	case KindWorkflow:
		return "workflow"
	case KindFolder:
		return "folder"
	default:
		return "unrecognized"
	}
}

// Classify maps a Jenkins `_class` value onto the closed set of kinds the
// tool manages. Only the last dot-separated segment is significant.
func Classify(class string) Kind {
	if class == "" {
		return KindUnrecognized
	}
	name := class
	if i := strings.LastIndexByte(class, '.'); i >= 0 {
		name = class[i+1:]
	}
	switch strings.ToLower(name) {
	case "workflowjob", "workflowmultibranchproject", "freestyleproject", "matrixproject":
		return KindWorkflow
	case "folder", "organizationfolder":
		return KindFolder
	default:
		return KindUnrecognized
	}
}

// Enablement is the tri-state enabled flag of a workflow. It is only
// authoritative at the moment the workflow was fetched.
type Enablement int

const (
	EnablementUnknown Enablement = iota
	Enabled
	Disabled
)

func (e Enablement) String() string {
	switch e {
	case Enabled:
		return "enabled"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}

func (e Enablement) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Build is one known build of a workflow.
type Build struct {
	Number   int  `json:"number" yaml:"number"`
	Building bool `json:"building" yaml:"building"`
}

// Workflow is a leaf job that can be enabled, disabled and run builds.
type Workflow struct {
	URL         string     `json:"url" yaml:"url"`
	Name        string     `json:"name" yaml:"name"`
	DisplayName string     `json:"displayName" yaml:"displayName"`
	Enabled     Enablement `json:"enabled" yaml:"enabled"`
	Builds      []Build    `json:"builds,omitempty" yaml:"builds,omitempty"`
}

// RunningBuilds returns the builds flagged as currently building.
func (w Workflow) RunningBuilds() []Build {
	var running []Build
	for _, b := range w.Builds {
		if b.Building {
			running = append(running, b)
		}
	}
	return running
}

// Folder is a container whose children have not been resolved yet.
type Folder struct {
	URL      string
	Children []string
}

// Job is a classified inventory entry. Exactly one of the accessors
// Workflow and Folder reports ok, unless Kind is KindUnrecognized.
type Job struct {
	Kind  Kind
	Class string
	URL   string

	workflow Workflow
	children []string
}

// Workflow returns the leaf view of the job.
func (j Job) Workflow() (Workflow, bool) {
	return j.workflow, j.Kind == KindWorkflow
}

// Folder returns the container view of the job.
func (j Job) Folder() (Folder, bool) {
	return Folder{URL: j.URL, Children: j.children}, j.Kind == KindFolder
}

// NewWorkflowJob builds a classified workflow entry.
func NewWorkflowJob(w Workflow) Job {
	return Job{Kind: KindWorkflow, URL: w.URL, workflow: w}
}

// NewFolderJob builds a classified folder entry.
func NewFolderJob(url string, children ...string) Job {
	return Job{Kind: KindFolder, URL: url, children: children}
}

type rawJob struct {
	Class       string  `json:"_class"`
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	DisplayName string  `json:"displayName"`
	Color       string  `json:"color"`
	Buildable   *bool   `json:"buildable"`
	Builds      []Build `json:"builds"`
	Jobs        []struct {
		URL string `json:"url"`
	} `json:"jobs"`
}

func (r rawJob) classify() Job {
	job := Job{Kind: Classify(r.Class), Class: r.Class, URL: r.URL}
	switch job.Kind {
	case KindWorkflow:
		job.workflow = Workflow{
			URL:         r.URL,
			Name:        r.Name,
			DisplayName: r.DisplayName,
			Enabled:     r.enablement(),
			Builds:      r.Builds,
		}
	case KindFolder:
		for _, child := range r.Jobs {
			if child.URL != "" {
				job.children = append(job.children, child.URL)
			}
		}
	}
	return job
}

func (r rawJob) enablement() Enablement {
	if strings.HasPrefix(r.Color, "disabled") {
		return Disabled
	}
	if r.Buildable == nil {
		return EnablementUnknown
	}
	if *r.Buildable {
		return Enabled
	}
	return Disabled
}

// Node is a build agent (Jenkins "computer").
type Node struct {
	Name        string `json:"name" yaml:"name"`
	DisplayName string `json:"displayName" yaml:"displayName"`
	Offline     bool   `json:"offline" yaml:"offline"`
	Idle        bool   `json:"idle" yaml:"idle"`
}

type rawNode struct {
	Class       string `json:"_class"`
	DisplayName string `json:"displayName"`
	Offline     bool   `json:"offline"`
	Idle        bool   `json:"idle"`
}

func (r rawNode) node() Node {
	n := Node{Name: r.DisplayName, DisplayName: r.DisplayName, Offline: r.Offline, Idle: r.Idle}
	if strings.Contains(r.Class, "MasterComputer") || strings.Contains(r.Class, "BuiltInComputer") {
		n.Name = BuiltInNodeName
	}
	return n
}

// QueueItem is a pending unit of work awaiting a node.
type QueueItem struct {
	ID   int64  `json:"id"`
	Why  string `json:"why,omitempty"`
	Task struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"task"`
}

// BuildQueue is the server-wide build queue.
type BuildQueue struct {
	Items []QueueItem `json:"items"`
}
