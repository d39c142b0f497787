// Package manifest lists the artifacts of a run with their SHA-256 digests.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"example.com/n2kgate/internal/common"
)

type Item struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

type Manifest struct {
	CreatedAt time.Time  `json:"createdAt"`
	ShaAlgo   string     `json:"shaAlgo"`
	Items     []Item     `json:"items"`
	Signature *Signature `json:"signature,omitempty"`
}

// Build hashes every path. Duplicate paths are listed once.
func Build(paths []string) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: "sha256"}
	seen := map[string]bool{}
	for _, p := range paths {
		p = filepath.Clean(p)
		if seen[p] {
			continue
		}
		seen[p] = true
		hex, sz, err := common.Sha256OfFile(p)
		if err != nil {
			return m, err
		}
		m.Items = append(m.Items, Item{Path: p, Size: sz, Sha256: hex, Type: typeOf(p)})
	}
	sort.SliceStable(m.Items, func(i, j int) bool { return m.Items[i].Path < m.Items[j].Path })
	return m, nil
}

func typeOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".log", ".txt":
		return "framelog"
	case ".pcap", ".pcapng", ".cap":
		return "capture"
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	case ".pdf":
		return "pdf"
	}
	return "other"
}

// Verify re-hashes every item and returns the paths whose content changed or
// disappeared.
func Verify(m Manifest) ([]string, error) {
	var changed []string
	for _, it := range m.Items {
		hex, _, err := common.Sha256OfFile(it.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				changed = append(changed, it.Path)
				continue
			}
			return changed, err
		}
		if hex != it.Sha256 {
			changed = append(changed, it.Path)
		}
	}
	return changed, nil
}

func Save(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	return errors.Wrapf(os.WriteFile(out, b, 0o644), "write %s", out)
}

func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, errors.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, errors.Wrapf(err, "decode %s", path)
	}
	return m, nil
}
