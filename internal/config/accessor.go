package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// tree returns cfg as its JSON object form, the shape the dotted paths
// ("server.port", "providers.openai.apiKey") address.
func tree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByPath returns the value at a dotted path.
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := tree(cfg)
	if err != nil {
		return nil, err
	}
	var cur any = m
	for _, key := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("invalid index %q in %s", key, path)
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("%s: %q is not an object", path, key)
		}
	}
	return cur, nil
}

// SetByPath writes value (usually a CLI string) at a dotted path. The new
// value takes the JSON type of the value it replaces, so "12345" stays a
// string for an API key and becomes a number for a port. Unknown sections
// are rejected; only the providers map grows new entries.
func SetByPath(cfg *Config, path string, value any) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	m, err := tree(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	parent := m
	for i, key := range parts[:len(parts)-1] {
		child, ok := parent[key]
		if !ok {
			if i == 0 || parts[0] != "providers" {
				return fmt.Errorf("unknown config section: %s", strings.Join(parts[:i+1], "."))
			}
			child = map[string]any{}
			parent[key] = child
		}
		next, ok := child.(map[string]any)
		if !ok {
			return fmt.Errorf("%s is not a section", strings.Join(parts[:i+1], "."))
		}
		parent = next
	}

	last := parts[len(parts)-1]
	parent[last] = coerce(value, parent[last])

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

// coerce converts a string to the type of old. With no previous value
// (an omitted optional field) the string is parsed by its look.
func coerce(v any, old any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch old.(type) {
	case string:
		return s
	case []any:
		var items []any
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a copy with secrets masked, for printing.
func Sanitize(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var out Config
	if err := json.Unmarshal(data, &out); err != nil {
		return cfg
	}

	for name, p := range out.Providers {
		if p.APIKey != "" {
			p.APIKey = maskString(p.APIKey)
			out.Providers[name] = p
		}
	}
	if out.Server.APIKey != "" {
		out.Server.APIKey = maskString(out.Server.APIKey)
	}
	if out.Webhook.Token != "" {
		out.Webhook.Token = maskString(out.Webhook.Token)
	}
	if out.Webhook.Secret != "" {
		out.Webhook.Secret = "***"
	}
	return &out
}

func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths flattens the config into dotted path → leaf value.
func ListPaths(cfg *Config) map[string]any {
	m, err := tree(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	flatten("", m, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flatten(path, child, out)
			continue
		}
		out[path] = v
	}
}
