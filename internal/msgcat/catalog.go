// Package msgcat loads the outbound message templates from embedded YAML
// defaults plus an optional override directory. A key may hold one template
// or a list of flavor variants; rendering picks a variant through an
// injectable selection function so tests stay deterministic.
package msgcat

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var defaultFiles embed.FS

// Picker chooses one variant index out of n. The default is math/rand;
// tests inject a fixed-seed or constant picker.
type Picker func(n int) int

// Catalog maps flattened dot-keys to template variant lists.
type Catalog struct {
	mu   sync.RWMutex
	data map[string][]string
	pick Picker
}

// New loads the embedded defaults and then applies overrides from dir if
// provided.
func New(overrideDir string) (*Catalog, error) {
	c := &Catalog{data: make(map[string][]string), pick: rand.Intn}
	raw, err := fs.ReadFile(defaultFiles, "messages.en.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded messages: %w", err)
	}
	if err := c.applyYAML(raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := c.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SetPicker replaces the variant selection function.
func (c *Catalog) SetPicker(p Picker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p != nil {
		c.pick = p
	}
}

func (c *Catalog) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read template dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := c.applyYAML(b); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
	}
	return nil
}

func (c *Catalog) applyYAML(b []byte) error {
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return err
	}
	flat := make(map[string][]string)
	if err := flatten(m, "", flat); err != nil {
		return err
	}
	c.mu.Lock()
	for k, v := range flat {
		c.data[k] = v
	}
	c.mu.Unlock()
	return nil
}

func flatten(src any, prefix string, out map[string][]string) error {
	switch v := src.(type) {
	case map[string]any:
		for k, vv := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if err := flatten(vv, key, out); err != nil {
				return err
			}
		}
		return nil
	case []any:
		if prefix == "" {
			return errors.New("list value without key prefix")
		}
		variants := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("non-string variant at %s: %T", prefix, item)
			}
			variants = append(variants, s)
		}
		if len(variants) == 0 {
			return fmt.Errorf("empty variant list at %s", prefix)
		}
		out[prefix] = variants
		return nil
	case string:
		if prefix == "" {
			return errors.New("string value without key prefix")
		}
		out[prefix] = []string{v}
		return nil
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported value at %s: %T", prefix, v)
	}
}

// Render picks one variant for key and executes it with data. Missing keys
// in the template cause errors rather than silent blanks.
func (c *Catalog) Render(key string, data any) (string, error) {
	c.mu.RLock()
	variants, ok := c.data[strings.TrimSpace(key)]
	pick := c.pick
	c.mu.RUnlock()
	if !ok || len(variants) == 0 {
		return "", fmt.Errorf("template not found: %s", key)
	}
	idx := 0
	if len(variants) > 1 {
		idx = pick(len(variants))
		if idx < 0 || idx >= len(variants) {
			idx = 0
		}
	}
	t, err := template.New(key).Option("missingkey=error").Parse(variants[idx])
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Variants returns how many flavor variants a key carries; zero when absent.
func (c *Catalog) Variants(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data[strings.TrimSpace(key)])
}
