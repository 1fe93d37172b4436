// Package appinfo reads the application manifest, hostbridge.yaml.
package appinfo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/guseggert/hostbridge/internal/files"
	"gopkg.in/yaml.v3"
)

const FileName = "hostbridge.yaml"

var ErrNotFound = files.ErrNotFound

type Info struct {
	Title        string `yaml:"title"`
	Version      string `yaml:"version"`
	Author       string `yaml:"author"`
	AppID        string `yaml:"app_id"`
	Description  string `yaml:"description"`
	StartingPage string `yaml:"starting_page"`
	License      string `yaml:"license"`
	// LogFile is where the host also writes its log, relative to Dir. Empty means no log file.
	LogFile string `yaml:"log_file"`

	// Dir is the directory the manifest was read from.
	Dir string `yaml:"-"`
}

func Default() Info {
	return Info{
		Title:        "hostbridge",
		Version:      "0.0.0",
		AppID:        "hostbridge",
		StartingPage: "main",
	}
}

// withDefaults fills fields the manifest left empty.
func (i Info) withDefaults() Info {
	d := Default()
	if i.Title == "" {
		i.Title = d.Title
	}
	if i.Version == "" {
		i.Version = d.Version
	}
	if i.AppID == "" {
		i.AppID = d.AppID
	}
	if i.StartingPage == "" {
		i.StartingPage = d.StartingPage
	}
	return i
}

// Load reads the manifest at path. Unknown fields are rejected.
func Load(path string) (Info, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("reading app info: %w", err)
	}
	var info Info
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&info); err != nil && !errors.Is(err, io.EOF) {
		return Info{}, fmt.Errorf("parsing app info %s: %w", path, err)
	}
	info = info.withDefaults()
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return Info{}, err
	}
	info.Dir = abs
	return info, nil
}

// LogPath returns the absolute path of the log file, or "" when the manifest names none.
func (i Info) LogPath() string {
	if i.LogFile == "" || filepath.IsAbs(i.LogFile) {
		return i.LogFile
	}
	return filepath.Join(i.Dir, i.LogFile)
}

// Find loads the manifest in dir or the closest parent that has one.
func Find(dir string) (Info, error) {
	path, err := files.FindUp(FileName, dir)
	if err != nil {
		return Info{}, err
	}
	return Load(path)
}
