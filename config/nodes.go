// Package config loads node configuration that isn't worth a CLI flag of
// its own, starting with the bootnode list.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// bootnode is one entry in nodes.yaml. Deployments write this file two
// ways -- a bare string per line (an ENR or multiaddr) or a
// {multiaddr: "..."} mapping left over from an older format -- so
// UnmarshalYAML accepts either instead of forcing every nodes.yaml onto one
// shape.
type bootnode string

func (b *bootnode) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*b = bootnode(node.Value)
		return nil
	case yaml.MappingNode:
		var legacy struct {
			Multiaddr string `yaml:"multiaddr"`
		}
		if err := node.Decode(&legacy); err != nil {
			return err
		}
		*b = bootnode(legacy.Multiaddr)
		return nil
	default:
		return fmt.Errorf("nodes.yaml entry must be a string or a {multiaddr: ...} mapping")
	}
}

// LoadBootnodes reads a nodes.yaml file and returns each configured
// bootnode as a raw address string, in file order, skipping blank entries.
func LoadBootnodes(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read nodes file: %w", err)
	}

	var entries []bootnode
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse nodes file: %w", err)
	}

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry != "" {
			out = append(out, string(entry))
		}
	}
	return out, nil
}
