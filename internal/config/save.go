package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// SaveRoots updates the roots list in the config file.
// This preserves comments and formatting in other sections by using yaml.Node.
func SaveRoots(configPath string, roots []string) error {
	// Read existing file content
	data, err := os.ReadFile(configPath) //nolint:gosec // config path is user-controlled
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	// Parse into yaml.Node to preserve comments
	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	rootsNode := &yaml.Node{Kind: yaml.SequenceNode, Content: make([]*yaml.Node, 0, len(roots))}
	for _, r := range roots {
		rootsNode.Content = append(rootsNode.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: r})
	}

	// Update or create the roots section
	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind: yaml.DocumentNode,
			Content: []*yaml.Node{
				{
					Kind: yaml.MappingNode,
					Content: []*yaml.Node{
						{Kind: yaml.ScalarNode, Value: "roots"},
						rootsNode,
					},
				},
			},
		}
	} else if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			return fmt.Errorf("parsing config: top level is not a mapping")
		}
		found := false
		for i := 0; i < len(root.Content)-1; i += 2 {
			if root.Content[i].Value == "roots" {
				root.Content[i+1] = rootsNode
				found = true
				break
			}
		}
		if !found {
			root.Content = append(root.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: "roots"},
				rootsNode,
			)
		}
	}

	// Marshal back to YAML
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	// Write atomically (write to temp, then rename)
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(buf.Bytes()); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// AddRoot appends root to the configured roots and saves.
// Adding a root that is already present is a no-op.
func AddRoot(configPath, root string, existing []string) error {
	if slices.Contains(existing, root) {
		return nil
	}
	return SaveRoots(configPath, append(slices.Clone(existing), root))
}

// RemoveRoot removes root from the configured roots and saves.
func RemoveRoot(configPath, root string, existing []string) error {
	idx := slices.Index(existing, root)
	if idx < 0 {
		return fmt.Errorf("root %q is not configured", root)
	}
	return SaveRoots(configPath, slices.Delete(slices.Clone(existing), idx, idx+1))
}
