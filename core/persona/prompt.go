package persona

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Prompt is the on-disk form of a persona's instructions.
type Prompt struct {
	Instructions string `yaml:"instructions"`
}

// ParsePrompt decodes a YAML prompt document.
func ParsePrompt(data []byte) (string, error) {
	var p Prompt
	if err := yaml.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("parse prompt: %w", err)
	}
	instructions := strings.TrimSpace(p.Instructions)
	if instructions == "" {
		return "", fmt.Errorf("prompt has no instructions")
	}
	return instructions, nil
}

// LoadPrompt reads instructions from path, or parses fallback when path is
// empty.
func LoadPrompt(path string, fallback []byte) (string, error) {
	if path == "" {
		return ParsePrompt(fallback)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt %s: %w", path, err)
	}
	return ParsePrompt(data)
}
