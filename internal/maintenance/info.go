package maintenance

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/edvin/jenkins-maintenance/internal/jenkins"
)

// Output formats accepted by GeneralInfo.Render.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// GeneralInfo is a snapshot of the controller's nodes and workflows.
type GeneralInfo struct {
	Nodes     []jenkins.Node     `json:"Nodes" yaml:"nodes"`
	WorkFlows []jenkins.Workflow `json:"WorkFlows" yaml:"workflows"`
}

// Info collects every node and every discoverable workflow. Jobs that could
// not be fetched are left out and reported through ErrIncomplete, alongside
// the partial snapshot.
func (c *Controller) Info(ctx context.Context) (*GeneralInfo, error) {
	disc, err := c.discoverer.Discover(ctx)
	if err != nil {
		return nil, err
	}
	nodes, err := c.gw.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	if nodes == nil {
		return nil, fmt.Errorf("list nodes: %w", ErrUnavailable)
	}

	info := &GeneralInfo{Nodes: nodes, WorkFlows: disc.Workflows}
	if info.WorkFlows == nil {
		info.WorkFlows = []jenkins.Workflow{}
	}
	if n := len(disc.Failures); n > 0 {
		return info, fmt.Errorf("%w: info: %d jobs could not be fetched", ErrIncomplete, n)
	}
	return info, nil
}

// Render encodes the snapshot as indented JSON or YAML.
func (g *GeneralInfo) Render(format string) ([]byte, error) {
	switch format {
	case "", FormatJSON:
		data, err := json.MarshalIndent(g, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode info: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		data, err := yaml.Marshal(g)
		if err != nil {
			return nil, fmt.Errorf("encode info: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}
