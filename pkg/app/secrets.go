package app

import (
	"gopkg.in/yaml.v3"
)

// secretKeys are module config keys whose values must never be logged.
var secretKeys = map[string]bool{
	"api_key":      true,
	"bearer_token": true,
	"basic_pass":   true,
}

// moduleSecrets collects secret values from the raw module configs so the
// log redactor can hide them even when they were expanded from env vars.
func moduleSecrets(modules map[string]yaml.Node) []string {
	var out []string
	for _, node := range modules {
		collectSecrets(&node, &out)
	}
	return out
}

func collectSecrets(n *yaml.Node, out *[]string) {
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			collectSecrets(c, out)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if secretKeys[key.Value] && val.Kind == yaml.ScalarNode && val.Value != "" {
				*out = append(*out, val.Value)
				continue
			}
			collectSecrets(val, out)
		}
	}
}
