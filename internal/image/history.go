package image

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openindiana/pkg6/internal/ipserr"
)

// historyPath is an append-only log of operations performed against the
// image, one line per entry: "<RFC3339 timestamp> <operation>". It
// lives alongside pkg6.image.json in the image's metadata directory.
func historyPath(dir string) string {
	return filepath.Join(dir, "history.log")
}

func recordHistory(dir, operation string, at time.Time) error {
	f, err := os.OpenFile(historyPath(dir), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "opening image history log").WithDetail(dir)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s %s\n", at.Format(time.RFC3339), operation); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "appending to image history log").WithDetail(dir)
	}
	return nil
}

// HistoryEntry is one parsed line of the image's operation history.
type HistoryEntry struct {
	At        time.Time
	Operation string
}

// History returns every recorded operation, oldest first.
func (img *Image) History() ([]HistoryEntry, error) {
	f, err := os.Open(historyPath(img.metaDir()))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ipserr.Wrap(ipserr.KindIO, err, "reading image history log").WithDetail(img.Path)
	}
	defer f.Close()

	var out []HistoryEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		ts, op, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		at, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			continue
		}
		out = append(out, HistoryEntry{At: at, Operation: op})
	}
	return out, scanner.Err()
}

// Contents lists the publishers and stems this image currently tracks
// in its merged catalog cache, a coarse summary akin to pkg(5)'s
// "pkg list" output restricted to what's locally known without a
// network round-trip.
func (img *Image) Contents() ([]CatalogEntry, error) {
	return img.QueryCatalog("")
}
