// Package image implements the client-side install image of spec §4.6:
// configured publishers, a merged catalog built from locally-synced
// shards, and on-demand manifest retrieval. Modelled as a thin facade
// over its sub-stores the way registry/storage/registry.go's registry
// struct aggregates a blobStore/blobServer/statter into one
// distribution.Namespace entry point.
package image

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/openindiana/pkg6/internal/ipserr"
)

// Type distinguishes a full image (tracks every file action) from a
// partial one (tracks only a linked subset), per spec §3's glossary.
type Type string

const (
	TypeFull    Type = "full"
	TypePartial Type = "partial"
)

// fullMetaRel and partialMetaRel are the metadata-directory layouts spec
// §3 names: a full image's metadata lives at <root>/var/pkg, a partial
// image's at <root>/.pkg.
const (
	fullMetaRel    = "var/pkg"
	partialMetaRel = ".pkg"
)

// Publisher is one configured catalog source, the client-side mirror of
// spec §4.6's publisher info tuple (name, origin, mirrors[], is_default).
type Publisher struct {
	Name    string   `json:"name"`
	Origin  string   `json:"origin"`
	Mirrors []string `json:"mirrors,omitempty"`
	// Preferred is the spec's is_default: the publisher consulted first
	// to break ties when more than one offers the same stem.
	Preferred bool `json:"is_default,omitempty"`
	Enabled   bool `json:"enabled"`
}

// Mediator records a persisted link-mediation choice (e.g. which
// implementation of "python" a variant-tagged set of actions resolves
// to), per spec §3's mediators{} entry in the Image tuple.
type Mediator struct {
	Version        string `json:"version,omitempty"`
	Implementation string `json:"implementation,omitempty"`
}

// state is the persisted pkg6.image.json document. It round-trips the
// full spec §3 Image tuple: (path, image_type, version, variants{},
// mediators{}, props[], publishers[]). Path itself is never persisted;
// it's supplied by whichever directory Load found the document under.
type state struct {
	Version    int                 `json:"version"`
	Type       Type                `json:"type"`
	Variants   map[string]string   `json:"variants,omitempty"`
	Mediators  map[string]Mediator `json:"mediators,omitempty"`
	Props      []string            `json:"props,omitempty"`
	Publishers []Publisher         `json:"publishers"`
}

// Image is a client-side install image rooted at Path.
type Image struct {
	Path  string
	state state
}

// metaDir resolves root's metadata directory for an image of type t:
// var/pkg for a full image, .pkg for a partial one.
func metaDir(root string, t Type) string {
	if t == TypePartial {
		return filepath.Join(root, partialMetaRel)
	}
	return filepath.Join(root, fullMetaRel)
}

// metaDir is the already-resolved metadata directory of this image.
func (img *Image) metaDir() string { return metaDir(img.Path, img.state.Type) }

func metaPath(dir string) string { return filepath.Join(dir, "pkg6.image.json") }

func catalogDir(dir, publisher string) string {
	return filepath.Join(dir, "cache", "catalog", publisher)
}
func manifestCacheDir(dir, publisher string) string {
	return filepath.Join(dir, "cache", "manifest", publisher)
}

// Create initializes a new image of the given type at root, making its
// metadata directory (var/pkg for full, .pkg for partial) and writing
// pkg6.image.json with defaults, per spec §4.6's create_image(path, type).
func Create(root string, t Type) (*Image, error) {
	dir := metaDir(root, t)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ipserr.Wrap(ipserr.KindIO, err, "creating image metadata directory").WithDetail(dir)
	}
	img := &Image{Path: root, state: state{
		Version:   1,
		Type:      t,
		Variants:  map[string]string{},
		Mediators: map[string]Mediator{},
	}}
	if err := img.save(); err != nil {
		return nil, err
	}
	return img, nil
}

// Load reads an existing image's state from root, probing both
// metadata layouts (var/pkg, then .pkg) and erroring if neither is
// present, per spec §4.6's load(path).
func Load(root string) (*Image, error) {
	t, dir, err := detectLayout(root)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(metaPath(dir))
	if err != nil {
		return nil, ipserr.Wrap(ipserr.KindIO, err, "reading image state").WithDetail(root)
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, ipserr.Wrap(ipserr.KindParse, err, "decoding image state").WithDetail(root)
	}
	if st.Type == "" {
		st.Type = t
	}
	return &Image{Path: root, state: st}, nil
}

// detectLayout reports which of the two metadata-directory layouts
// exists under root. Neither present is an error: an image can't be
// loaded from a directory that was never created with image-create.
func detectLayout(root string) (Type, string, error) {
	full := filepath.Join(root, fullMetaRel)
	if info, err := os.Stat(full); err == nil && info.IsDir() {
		return TypeFull, full, nil
	}
	partial := filepath.Join(root, partialMetaRel)
	if info, err := os.Stat(partial); err == nil && info.IsDir() {
		return TypePartial, partial, nil
	}
	return "", "", ipserr.New(ipserr.KindNotFound, "no image metadata found: neither var/pkg nor .pkg is present").WithDetail(root)
}

func (img *Image) save() error {
	data, err := json.MarshalIndent(img.state, "", "  ")
	if err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "encoding image state")
	}
	dir := img.metaDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "creating image metadata directory").WithDetail(dir)
	}
	path := metaPath(dir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "writing image state")
	}
	if err := os.Rename(tmp, path); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "renaming image state into place")
	}
	return recordHistory(dir, "image-state-saved", time.Now().UTC())
}

// Type reports whether this is a full or partial image.
func (img *Image) Type() Type { return img.state.Type }

// Publishers returns the image's configured publishers, in the order
// they were added.
func (img *Image) Publishers() []Publisher {
	out := make([]Publisher, len(img.state.Publishers))
	copy(out, img.state.Publishers)
	return out
}

// AddPublisher upserts a publisher record, per spec §4.6's
// add_publisher(name, origin, mirrors, is_default). isDefault forces
// this publisher to become preferred even if others are already
// configured; otherwise the first publisher ever added is preferred by
// default.
func (img *Image) AddPublisher(name, origin string, mirrors []string, isDefault bool) error {
	for _, p := range img.state.Publishers {
		if p.Name == name {
			return ipserr.New(ipserr.KindConflict, "publisher already configured").WithDetail(name)
		}
	}
	preferred := isDefault || len(img.state.Publishers) == 0
	if preferred {
		for i := range img.state.Publishers {
			img.state.Publishers[i].Preferred = false
		}
	}
	img.state.Publishers = append(img.state.Publishers, Publisher{
		Name: name, Origin: origin, Mirrors: mirrors, Enabled: true, Preferred: preferred,
	})
	if err := os.MkdirAll(catalogDir(img.metaDir(), name), 0o755); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "creating local catalog cache").WithDetail(name)
	}
	if err := img.save(); err != nil {
		return err
	}
	return recordHistory(img.metaDir(), "add-publisher "+name, time.Now().UTC())
}

// RemovePublisher drops a configured publisher and its local cache.
func (img *Image) RemovePublisher(name string) error {
	idx := -1
	for i, p := range img.state.Publishers {
		if p.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ipserr.New(ipserr.KindNotFound, "no such publisher").WithDetail(name)
	}
	wasPreferred := img.state.Publishers[idx].Preferred
	img.state.Publishers = append(img.state.Publishers[:idx], img.state.Publishers[idx+1:]...)
	if wasPreferred && len(img.state.Publishers) > 0 {
		img.state.Publishers[0].Preferred = true
	}
	if err := os.RemoveAll(catalogDir(img.metaDir(), name)); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "removing local catalog cache").WithDetail(name)
	}
	if err := img.save(); err != nil {
		return err
	}
	return recordHistory(img.metaDir(), "remove-publisher "+name, time.Now().UTC())
}

// SetPreferredPublisher marks name as the preferred publisher (is_default),
// used to break ties when more than one publisher offers the same stem.
func (img *Image) SetPreferredPublisher(name string) error {
	found := false
	for i, p := range img.state.Publishers {
		if p.Name == name {
			img.state.Publishers[i].Preferred = true
			found = true
		} else {
			img.state.Publishers[i].Preferred = false
		}
	}
	if !found {
		return ipserr.New(ipserr.KindNotFound, "no such publisher").WithDetail(name)
	}
	return img.save()
}

// SetVariant records a variant tag (e.g. "variant.arch" → "i386") in
// the image's persisted variants{}, per spec §3's Image tuple.
func (img *Image) SetVariant(name, value string) error {
	if img.state.Variants == nil {
		img.state.Variants = map[string]string{}
	}
	img.state.Variants[name] = value
	return img.save()
}

// Variants returns the image's currently-set variant tags.
func (img *Image) Variants() map[string]string {
	out := make(map[string]string, len(img.state.Variants))
	for k, v := range img.state.Variants {
		out[k] = v
	}
	return out
}

// SetMediator records a mediator's chosen version and/or implementation
// (e.g. mediator "python" → {version: "3", implementation: "cpython"}),
// per spec §3's Image tuple mediators{} entry. An empty version or
// implementation leaves that half of the prior value untouched.
func (img *Image) SetMediator(name, version, implementation string) error {
	if img.state.Mediators == nil {
		img.state.Mediators = map[string]Mediator{}
	}
	m := img.state.Mediators[name]
	if version != "" {
		m.Version = version
	}
	if implementation != "" {
		m.Implementation = implementation
	}
	img.state.Mediators[name] = m
	return img.save()
}

// Mediators returns the image's currently-set mediator choices.
func (img *Image) Mediators() map[string]Mediator {
	out := make(map[string]Mediator, len(img.state.Mediators))
	for k, v := range img.state.Mediators {
		out[k] = v
	}
	return out
}
