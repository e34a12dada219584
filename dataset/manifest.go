package dataset

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Manifests are optional plain-text companions to shards: one line per stored
// sample in iteration order, fields comma-separated, the first field a path
// whose filename stem is the physical-system id. They exist so that all
// samples of one physical system can be kept together when splitting, which
// is what prevents information leakage between train and validation.

func (d *Dataset) loadManifests(dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+ManifestSuffix))
	if err != nil {
		return err
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil
	}

	d.systems = make(map[string][]int)
	global := 0
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		if i < len(d.lengths) && len(lines) > d.lengths[i] {
			lines = lines[:d.lengths[i]]
		}
		for _, line := range lines {
			id := systemID(line)
			if _, seen := d.systems[id]; !seen {
				d.sysOrder = append(d.sysOrder, id)
			}
			d.systems[id] = append(d.systems[id], global)
			global++
		}
	}
	return nil
}

// systemID extracts the physical-system identifier from one manifest line:
// the leading path component before the first comma, basename, extension
// stripped.
func systemID(line string) string {
	field := line
	if i := strings.IndexByte(line, ','); i >= 0 {
		field = line[:i]
	}
	base := filepath.Base(field)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
