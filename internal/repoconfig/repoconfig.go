// Package repoconfig models the repository configuration document
// (pkg6.repository, spec §3/§6): version, publisher list, default
// publisher, and free-form properties. Modelled after
// configuration/configuration.go's load-with-defaults Parse shape,
// retargeted from YAML (server config) to the JSON form spec §6
// prescribes for this particular file.
package repoconfig

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/openindiana/pkg6/internal/ipserr"
)

const (
	MinVersion = 1
	MaxVersion = 4
)

// Publisher is one entry in the repository's publisher list.
type Publisher struct {
	Name string `json:"name" yaml:"name"`
}

// Config is the pkg6.repository document. Carries yaml tags alongside
// its primary json ones: spec §6 persists pkg6.repository as JSON, but
// a hand-edited config (the way an operator drops a server.kdl next to
// it) is easier to write as YAML, so Parse accepts either.
type Config struct {
	Version          int               `json:"version" yaml:"version"`
	Publishers       []Publisher       `json:"publishers" yaml:"publishers"`
	DefaultPublisher string            `json:"default_publisher,omitempty" yaml:"default_publisher,omitempty"`
	Properties       map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Default returns a fresh, empty version-4 configuration.
func Default() Config {
	return Config{
		Version:    MaxVersion,
		Publishers: nil,
		Properties: map[string]string{},
	}
}

// Parse decodes a Config from r, validating the version is in range.
// The on-disk document is JSON per spec §6, but a leading "{"/"[" is
// the only thing that distinguishes it from a hand-edited YAML config,
// so anything else is decoded as YAML instead of rejected outright.
func Parse(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, ipserr.Wrap(ipserr.KindIO, err, "reading repository config")
	}

	var c Config
	if looksLikeJSON(data) {
		if err := json.Unmarshal(data, &c); err != nil {
			return Config{}, ipserr.Wrap(ipserr.KindParse, err, "decoding repository config")
		}
	} else {
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, ipserr.Wrap(ipserr.KindParse, err, "decoding repository config")
		}
	}

	if c.Version < MinVersion || c.Version > MaxVersion {
		return Config{}, ipserr.New(ipserr.KindInvariant, "invalid repository version number").WithDetail(c.Version)
	}
	return c, nil
}

func looksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// Load reads and parses the config at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, ipserr.Wrap(ipserr.KindIO, err, "opening repository config").WithDetail(path)
	}
	defer f.Close()
	return Parse(f)
}

// Save atomically writes c to path (write-temp-then-rename).
func Save(path string, c Config) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "creating repository config").WithDetail(path)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		f.Close()
		os.Remove(tmp)
		return ipserr.Wrap(ipserr.KindIO, err, "encoding repository config").WithDetail(path)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return ipserr.Wrap(ipserr.KindIO, err, "closing repository config").WithDetail(path)
	}
	if err := os.Rename(tmp, path); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "renaming repository config").WithDetail(path)
	}
	return nil
}

// HasPublisher reports whether name is a known publisher.
func (c Config) HasPublisher(name string) bool {
	for _, p := range c.Publishers {
		if p.Name == name {
			return true
		}
	}
	return false
}

// AddPublisher appends name if not already present.
func (c *Config) AddPublisher(name string) error {
	if c.HasPublisher(name) {
		return ipserr.New(ipserr.KindConflict, "publisher already exists").WithDetail(name)
	}
	c.Publishers = append(c.Publishers, Publisher{Name: name})
	return nil
}

// RemovePublisher removes name, clearing DefaultPublisher if it matched.
func (c *Config) RemovePublisher(name string) error {
	for i, p := range c.Publishers {
		if p.Name == name {
			c.Publishers = append(c.Publishers[:i], c.Publishers[i+1:]...)
			if c.DefaultPublisher == name {
				c.DefaultPublisher = ""
			}
			return nil
		}
	}
	return ipserr.New(ipserr.KindNotFound, "no such publisher").WithDetail(name)
}

// SetDefaultPublisher requires the publisher to already exist.
func (c *Config) SetDefaultPublisher(name string) error {
	if !c.HasPublisher(name) {
		return ipserr.New(ipserr.KindNotFound, "no such publisher").WithDetail(name)
	}
	c.DefaultPublisher = name
	return nil
}
