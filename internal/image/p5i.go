package image

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"

	"github.com/openindiana/pkg6/internal/ipserr"
)

// p5iPublisher is one entry of a p5i document's "publishers" list, the
// client-side mirror of handlePublisherInfo's server-side shape.
// Decoded via mapstructure rather than a direct json.Unmarshal into
// this struct because a p5i document's "properties" map is
// publisher-defined and loosely typed (numbers, bools, and strings all
// appear in the wild) — the JSON layer is decoded once into
// map[string]any, then mapstructure picks the well-known fields out of
// that generic map and leaves the rest alone.
type p5iPublisher struct {
	Name       string            `mapstructure:"name"`
	Origins    []string          `mapstructure:"origins"`
	Mirrors    []string          `mapstructure:"mirrors"`
	Properties map[string]any    `mapstructure:"properties"`
}

type p5iDocument struct {
	Version    int            `mapstructure:"version"`
	Publishers []p5iPublisher `mapstructure:"publishers"`
}

// ParseP5I decodes a p5i publisher-configuration document (as served by
// a pkg6repo's /publisher/1 endpoint, or handed to "pkg6 set-publisher"
// as a file) into Publisher entries ready for AddPublisher.
func ParseP5I(data []byte) ([]Publisher, error) {
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, ipserr.Wrap(ipserr.KindParse, err, "decoding p5i document")
	}

	var doc p5iDocument
	if err := mapstructure.Decode(generic, &doc); err != nil {
		return nil, ipserr.Wrap(ipserr.KindParse, err, "mapping p5i document fields")
	}

	out := make([]Publisher, 0, len(doc.Publishers))
	for _, p := range doc.Publishers {
		origin := ""
		if len(p.Origins) > 0 {
			origin = p.Origins[0]
		}
		out = append(out, Publisher{Name: p.Name, Origin: origin, Mirrors: p.Mirrors, Enabled: true})
	}
	return out, nil
}

// AddPublishersFromP5I parses a p5i document and registers every
// publisher it names, the first becoming preferred if the image has
// none configured yet.
func (img *Image) AddPublishersFromP5I(data []byte) error {
	pubs, err := ParseP5I(data)
	if err != nil {
		return err
	}
	for _, p := range pubs {
		if err := img.AddPublisher(p.Name, p.Origin, p.Mirrors, false); err != nil {
			return err
		}
	}
	return nil
}
