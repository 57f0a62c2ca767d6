// Package prompts loads the prompt bank: a JSON document of chat prompt
// templates keyed by prompt id. Method strategies reference prompts by id
// and fill {variable} placeholders at build time.
package prompts

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/haasonsaas/reformbench/pkg/models"
)

// Bank holds parsed prompt templates.
type Bank struct {
	entries map[string]entry
}

type entry struct {
	Messages []models.ChatMessage `json:"messages"`
}

// Load reads a prompt bank from a JSON file.
func Load(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt bank: %w", err)
	}
	return Parse(data)
}

// Parse decodes prompt bank bytes.
func Parse(data []byte) (*Bank, error) {
	var entries map[string]entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse prompt bank: %w", err)
	}
	for id, e := range entries {
		if len(e.Messages) == 0 {
			return nil, fmt.Errorf("prompt %q has no messages", id)
		}
	}
	return &Bank{entries: entries}, nil
}

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// Render returns the template's message list with placeholders filled in.
// Unbound placeholders are an error so broken templates surface at startup
// validation rather than mid-run.
func (b *Bank) Render(id string, vars map[string]string) ([]models.ChatMessage, error) {
	e, ok := b.entries[id]
	if !ok {
		return nil, fmt.Errorf("prompt %q not found in bank", id)
	}

	rendered := make([]models.ChatMessage, len(e.Messages))
	for i, msg := range e.Messages {
		content := placeholderPattern.ReplaceAllStringFunc(msg.Content, func(match string) string {
			name := strings.Trim(match, "{}")
			if val, ok := vars[name]; ok {
				return val
			}
			return match
		})
		if unresolved := placeholderPattern.FindString(content); unresolved != "" {
			return nil, fmt.Errorf("prompt %q: unbound placeholder %s", id, unresolved)
		}
		rendered[i] = models.ChatMessage{Role: msg.Role, Content: content}
	}
	return rendered, nil
}

// Has reports whether a prompt id exists. Used by methods that fall back to
// a generic template when no dataset-specific one is registered.
func (b *Bank) Has(id string) bool {
	_, ok := b.entries[id]
	return ok
}

// IDs returns all prompt ids, sorted.
func (b *Bank) IDs() []string {
	ids := make([]string, 0, len(b.entries))
	for id := range b.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
