package native

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

// DefaultsKey holds the defaults restored by reset_to_defaults, per page or at the document root.
const DefaultsKey = "__default__"

var ErrNoDefaults = errors.New("no defaults configured")

// ConfigStore holds the page configuration document: one object per page, keyed by page name.
// The file may contain comments and trailing commas. It is written back as plain JSON.
type ConfigStore struct {
	log  *zap.SugaredLogger
	path string
	page string

	mut sync.Mutex
	doc []byte
}

func NewConfigStore(log *zap.SugaredLogger, path, page string) *ConfigStore {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ConfigStore{
		log:  log.Named("config"),
		path: path,
		page: page,
		doc:  []byte("{}"),
	}
}

// escapeKey makes k usable as one element of a gjson/sjson path.
func escapeKey(k string) string {
	var sb strings.Builder
	for _, r := range k {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (c *ConfigStore) pagePath(key string) string {
	p := escapeKey(c.page)
	if key != "" {
		p += "." + escapeKey(key)
	}
	return p
}

// Load reads the document from disk. A missing file is an empty document.
func (c *ConfigStore) Load() error {
	b, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		c.log.Debugw("no config file, starting empty", "Path", c.path)
		c.mut.Lock()
		c.doc = []byte("{}")
		c.mut.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	stripped := jsonc.ToJSON(b)
	if !gjson.ValidBytes(stripped) || !gjson.ParseBytes(stripped).IsObject() {
		return fmt.Errorf("config %s is not a JSON object", c.path)
	}
	c.mut.Lock()
	c.doc = stripped
	c.mut.Unlock()
	return nil
}

// Save writes the document to disk.
func (c *ConfigStore) Save() error {
	c.mut.Lock()
	doc := append([]byte(nil), c.doc...)
	c.mut.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, doc, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replacing config: %w", err)
	}
	c.log.Debugw("saved config", "Path", c.path)
	return nil
}

// Page returns the current page's settings. It is empty when the page has none.
func (c *ConfigStore) Page() map[string]any {
	c.mut.Lock()
	defer c.mut.Unlock()
	res := gjson.GetBytes(c.doc, c.pagePath(""))
	m, ok := res.Value().(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

// Get returns one setting of the current page.
func (c *ConfigStore) Get(key string) (any, bool) {
	c.mut.Lock()
	defer c.mut.Unlock()
	res := gjson.GetBytes(c.doc, c.pagePath(key))
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// Set stores one setting of the current page in memory.
func (c *ConfigStore) Set(key string, value any) error {
	if key == "" {
		return fmt.Errorf("empty config key: %w", ErrBadArgument)
	}
	c.mut.Lock()
	defer c.mut.Unlock()
	doc, err := sjson.SetBytes(c.doc, c.pagePath(key), value)
	if err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	c.doc = doc
	return nil
}

// Merge stores every entry of values as a setting of the current page.
func (c *ConfigStore) Merge(values map[string]any) error {
	for k, v := range values {
		if err := c.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

// ResetToDefaults merges the page's own defaults, or the root defaults, into the page settings.
func (c *ConfigStore) ResetToDefaults() error {
	c.mut.Lock()
	defaults := gjson.GetBytes(c.doc, c.pagePath(DefaultsKey))
	if !defaults.IsObject() {
		defaults = gjson.GetBytes(c.doc, DefaultsKey)
		if defaults.IsObject() {
			c.log.Warnw("resetting page to root defaults", "Page", c.page)
		}
	}
	c.mut.Unlock()

	m, ok := defaults.Value().(map[string]any)
	if !ok {
		return fmt.Errorf("page %q: %w", c.page, ErrNoDefaults)
	}
	return c.Merge(m)
}

// RegisterConfig binds the Config namespace. save_config and load_config move state between w and the store.
func RegisterConfig(t *Table, store *ConfigStore, w Window) {
	log := store.log
	lane := laneOf("config")

	t.BindOrdered(Name("get_config"), lane, func(context.Context, Args) (any, error) {
		return store.Page(), nil
	})
	t.BindOrdered(Name("save_config"), lane, func(context.Context, Args) (any, error) {
		if err := store.Merge(normalizeState(WindowState(w))); err != nil {
			return nil, err
		}
		if err := store.Save(); err != nil {
			return nil, err
		}
		return nil, nil
	})
	t.BindOrdered(Name("load_config"), lane, func(context.Context, Args) (any, error) {
		for k, v := range store.Page() {
			if k == DefaultsKey {
				continue
			}
			if err := w.SetProperty(k, v); err != nil {
				log.Debugw("config entry is not a window property", "Key", k, "Error", err)
			}
		}
		return nil, nil
	})
	t.BindOrdered(Name("set_config_property"), lane, func(ctx context.Context, args Args) (any, error) {
		key, err := args.String(0)
		if err != nil {
			return nil, err
		}
		if err := store.Set(key, args.get(1)); err != nil {
			return nil, err
		}
		return nil, nil
	})
	t.BindOrdered(Name("reset_to_defaults"), lane, func(context.Context, Args) (any, error) {
		if err := store.ResetToDefaults(); err != nil {
			log.Errorw("unable to reset to defaults", "Error", err)
		}
		return nil, nil
	})
}

// normalizeState converts typed property values into generic trees sjson stores as objects.
func normalizeState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		switch t := v.(type) {
		case Size:
			out[k] = map[string]any{"width": t.Width, "height": t.Height}
		case Position:
			out[k] = map[string]any{"x": t.X, "y": t.Y}
		default:
			out[k] = v
		}
	}
	return out
}
