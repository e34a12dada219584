package dataset

import (
	"bufio"
	"encoding/binary"
	"os"
	"strings"

	"github.com/Open-Catalyst-Project/cgcnn"
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

// Writer builds one shard and its manifest. Samples are appended in order;
// Close stores the length record and finalizes the store. The shard is
// read-only from then on.
type Writer struct {
	db       *pebble.DB
	manifest *os.File
	buf      *bufio.Writer
	count    uint64
}

// NewWriter creates the shard store at path (which should end in ".shard")
// and a sibling manifest with the ".txt" suffix.
func NewWriter(path string) (*Writer, error) {
	db, err := pebble.Open(path, &pebble.Options{ErrorIfExists: true})
	if err != nil {
		return nil, err
	}
	mpath := strings.TrimSuffix(path, ShardSuffix) + ManifestSuffix
	f, err := os.Create(mpath)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Writer{db: db, manifest: f, buf: bufio.NewWriter(f)}, nil
}

// Append stores the next sample under its local index and writes its
// manifest line. sourcePath is the sample descriptor whose stem is the
// system id; extra fields follow comma-separated.
func (w *Writer) Append(sys *cgcnn.AtomicSystem, sourcePath string, fields ...string) error {
	rec, err := cgcnn.EncodeSystem(sys)
	if err != nil {
		return err
	}
	if err := w.db.Set(SKey(w.count), rec, pebble.Sync); err != nil {
		return errors.Wrapf(err, "sample %d", w.count)
	}
	line := sourcePath
	if len(fields) > 0 {
		line += "," + strings.Join(fields, ",")
	}
	if _, err := w.buf.WriteString(line + "\n"); err != nil {
		return err
	}
	w.count++
	return nil
}

func (w *Writer) Close() error {
	lerr := w.db.Set(LKey(), binary.BigEndian.AppendUint64(nil, w.count), pebble.Sync)
	if err := w.db.Close(); err != nil {
		return err
	}
	if lerr != nil {
		return lerr
	}
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.manifest.Close()
}
