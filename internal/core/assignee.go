package core

import (
	"sort"
	"strings"
)

// Assignee is a household member. Key is what gets stored on every record.
type Assignee struct {
	Key          string `json:"key" yaml:"key"`
	DisplayName  string `json:"display_name" yaml:"display_name"`
	DisplayOrder int    `json:"display_order" yaml:"display_order"`
}

// AssigneeDirectory resolves either a canonical key or a display name to
// the canonical key.
type AssigneeDirectory struct {
	byKey   map[string]Assignee
	byAlias map[string]string
}

func NewAssigneeDirectory(members []Assignee) *AssigneeDirectory {
	d := &AssigneeDirectory{
		byKey:   make(map[string]Assignee, len(members)),
		byAlias: make(map[string]string, len(members)*2),
	}
	for _, m := range members {
		key := strings.TrimSpace(m.Key)
		if key == "" {
			continue
		}
		m.Key = key
		d.byKey[key] = m
		d.byAlias[key] = key
		if name := strings.TrimSpace(m.DisplayName); name != "" {
			d.byAlias[name] = key
		}
	}
	return d
}

// Resolve maps a key or display name to the canonical key.
func (d *AssigneeDirectory) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrUnknownAssignee
	}
	if key, ok := d.byAlias[name]; ok {
		return key, nil
	}
	return "", ErrUnknownAssignee
}

// ResolveAll resolves every name, keeping order and duplicates.
func (d *AssigneeDirectory) ResolveAll(names []string) ([]string, error) {
	keys := make([]string, 0, len(names))
	for _, n := range names {
		k, err := d.Resolve(n)
		if err != nil {
			return nil, UnknownAssignee("assignees", n)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// DisplayName returns the display name for key, or key itself when unknown.
func (d *AssigneeDirectory) DisplayName(key string) string {
	if a, ok := d.byKey[key]; ok && a.DisplayName != "" {
		return a.DisplayName
	}
	return key
}

// Members returns all assignees in display order.
func (d *AssigneeDirectory) Members() []Assignee {
	out := make([]Assignee, 0, len(d.byKey))
	for _, a := range d.byKey {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Key < out[j].Key
	})
	return out
}
