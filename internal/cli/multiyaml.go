package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLDocument is one non-empty document of a multi-document file.
type YAMLDocument struct {
	// Line is where the document's content starts, for error messages
	Line   int
	Fields map[string]any
}

// ParseMultiYAML reads a file containing schedule documents separated by
// "---". Templates are expanded before parsing.
func ParseMultiYAML(filename string) ([]YAMLDocument, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	data = replaceTabsWithSpaces(data)

	data, err = PreprocessYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	docs, err := ParseMultiYAMLFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return docs, nil
}

// ParseMultiYAMLFromBytes splits data into documents. Empty documents, such
// as those produced by a trailing "---", are skipped. Every document must be
// a mapping.
func ParseMultiYAMLFromBytes(data []byte) ([]YAMLDocument, error) {
	content := strings.TrimSpace(string(data))
	if len(content) == 0 || strings.Trim(content, "- \n\t") == "" {
		return []YAMLDocument{}, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	result := []YAMLDocument{}

	for {
		var node yaml.Node
		if err := decoder.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode YAML: %w", err)
		}
		if len(node.Content) == 0 {
			continue
		}
		body := node.Content[0]
		if body.Kind == yaml.ScalarNode && body.Tag == "!!null" {
			continue
		}
		if body.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: expected a mapping of schedule fields", body.Line)
		}

		timestampsAsStrings(body)
		var fields map[string]any
		if err := body.Decode(&fields); err != nil {
			return nil, fmt.Errorf("line %d: %w", body.Line, err)
		}
		if len(fields) == 0 {
			continue
		}
		result = append(result, YAMLDocument{Line: body.Line, Fields: fields})
	}

	return result, nil
}

// timestampsAsStrings retags unquoted timestamps so they decode as the text
// written in the file. Schedule times are validated and parsed later.
func timestampsAsStrings(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!timestamp" {
		n.Tag = "!!str"
	}
	for _, c := range n.Content {
		timestampsAsStrings(c)
	}
}
