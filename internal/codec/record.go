package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/banshee-data/carhack/internal/fsutil"
)

// Record layout, little-endian:
//
//	[u32 payload length][u64 xxhash64(payload)][payload]
//	payload = [f64 timestamp][encoded value]
const (
	headerSize    = 12
	timestampSize = 8
)

type recordRef struct {
	off int64 // payload offset
	n   uint32
}

// recordLog is the file-backed Series shared by every built-in codec; the
// valueCodec decides how a value turns into bytes.
type recordLog struct {
	vc valueCodec

	mu      sync.Mutex
	fname   string
	f       fsutil.File
	index   []recordRef
	size    int64
	dropped int64
	buf     []byte
	closed  bool

	readOnly bool
}

func newRecordLog(vc valueCodec) *recordLog {
	return &recordLog{vc: vc}
}

func (r *recordLog) Open(fsys fsutil.FileSystem, basePath, relFile string) error {
	return r.open(fsys, basePath, relFile, false)
}

func (r *recordLog) OpenReadOnly(fsys fsutil.FileSystem, basePath, relFile string) error {
	return r.open(fsys, basePath, relFile, true)
}

func (r *recordLog) open(fsys fsutil.FileSystem, basePath, relFile string, readOnly bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f != nil {
		return fmt.Errorf("series %s already open", r.fname)
	}

	fname := path.Clean(strings.ReplaceAll(relFile, `\`, "/"))
	full := filepath.Join(basePath, filepath.FromSlash(fname))
	if !readOnly {
		if err := fsys.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return fmt.Errorf("failed to create series directory: %w", err)
		}
	}

	data, err := fsys.ReadFile(full)
	if err != nil && (readOnly || !errors.Is(err, fs.ErrNotExist)) {
		return fmt.Errorf("failed to read series %s: %w", fname, err)
	}
	index, valid := scanRecords(data)

	flag := os.O_RDONLY
	if !readOnly {
		flag = os.O_RDWR | os.O_CREATE | os.O_APPEND
		if valid < int64(len(data)) {
			// Drop a torn tail so new records stay reachable.
			if err := fsys.Truncate(full, valid); err != nil {
				return fmt.Errorf("failed to truncate series %s: %w", fname, err)
			}
		}
	}

	f, err := fsys.OpenFile(full, flag, 0644)
	if err != nil {
		return fmt.Errorf("failed to open series %s: %w", fname, err)
	}

	r.fname = fname
	r.f = f
	r.readOnly = readOnly
	r.index = index
	r.size = valid
	r.dropped = int64(len(data)) - valid
	r.closed = false
	return nil
}

// scanRecords indexes every intact record in data and returns the length of
// the intact prefix.
func scanRecords(data []byte) ([]recordRef, int64) {
	var index []recordRef
	var off int64
	for off+headerSize <= int64(len(data)) {
		n := binary.LittleEndian.Uint32(data[off:])
		sum := binary.LittleEndian.Uint64(data[off+4:])
		end := off + headerSize + int64(n)
		if n < timestampSize || end > int64(len(data)) {
			break
		}
		if xxhash.Sum64(data[off+headerSize:end]) != sum {
			break
		}
		index = append(index, recordRef{off: off + headerSize, n: n})
		off = end
	}
	return index, off
}

func (r *recordLog) Append(ts float64, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil || r.closed {
		return ErrClosed
	}
	if r.readOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, r.fname)
	}

	buf := append(r.buf[:0], make([]byte, headerSize)...)
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(ts))
	buf, err := r.vc.encode(buf, value)
	if err != nil {
		return fmt.Errorf("series %s: %w", r.fname, err)
	}
	payload := buf[headerSize:]
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(payload)))
	binary.LittleEndian.PutUint64(buf[4:], xxhash.Sum64(payload))
	r.buf = buf

	if _, err := r.f.Write(buf); err != nil {
		return fmt.Errorf("failed to append to series %s: %w", r.fname, err)
	}
	r.index = append(r.index, recordRef{off: r.size + headerSize, n: uint32(len(payload))})
	r.size += int64(len(buf))
	return nil
}

func (r *recordLog) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.index)
}

func (r *recordLog) At(i int) (Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil || r.closed {
		return Sample{}, ErrClosed
	}
	if i < 0 || i >= len(r.index) {
		return Sample{}, fmt.Errorf("series %s: index %d out of range [0,%d)", r.fname, i, len(r.index))
	}

	ref := r.index[i]
	rec := make([]byte, headerSize+int(ref.n))
	if _, err := r.f.ReadAt(rec, ref.off-headerSize); err != nil {
		return Sample{}, fmt.Errorf("failed to read series %s record %d: %w", r.fname, i, err)
	}
	payload := rec[headerSize:]
	if binary.LittleEndian.Uint32(rec) != ref.n || xxhash.Sum64(payload) != binary.LittleEndian.Uint64(rec[4:]) {
		return Sample{}, fmt.Errorf("%w: series %s record %d", ErrCorrupt, r.fname, i)
	}

	value, err := r.vc.decode(payload[timestampSize:])
	if err != nil {
		return Sample{}, fmt.Errorf("series %s record %d: %w", r.fname, i, err)
	}
	return Sample{
		Timestamp: math.Float64frombits(binary.LittleEndian.Uint64(payload)),
		Value:     value,
	}, nil
}

func (r *recordLog) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil || r.closed {
		return nil
	}
	r.closed = true
	return r.f.Close()
}

func (r *recordLog) Manifest() Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Descriptor{
		LoggerName: r.vc.name(),
		Fname:      r.fname,
		Files:      []string{r.fname},
	}
}

// Dropped reports how many trailing bytes on Open did not form an intact
// record. Open truncates them; OpenReadOnly leaves them in place.
func (r *recordLog) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
