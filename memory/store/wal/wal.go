// Package wal implements the durable RecordStore as a single append-only
// log file.
//
// Layout: an 8-byte magic, a header frame, then one frame per record. Each
// frame is [length u32][crc32c u32][payload], little-endian. The header is
// always stdlib JSON and names the codec used for record payloads, so files
// are self-describing. Records are either a full entry (put) or a tombstone
// (delete); entries are immutable, so every ID has at most one put frame.
//
// Open replays the log into an in-memory index of frame offsets, truncating
// a corrupt tail at the last valid frame. Put appends and fsyncs before
// returning. Scan streams the file through its own read handle against a
// snapshot (length plus tombstone clone) taken at cursor creation, keeping
// one frame in memory at a time. Compact rewrites live frames to a
// temporary file and atomically renames it into place.
package wal

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/google/uuid"

	"github.com/engram-dev/engram/codec"
	"github.com/engram-dev/engram/memory"
)

const (
	formatVersion = 1
	frameOverhead = 8 // length + crc

	opPut = "put"
	opDel = "del"
)

var (
	magic    = []byte("engram01")
	crcTable = crc32.MakeTable(crc32.Castagnoli)
)

// header is the first frame of every log file. Always stdlib JSON.
type header struct {
	Version    int       `json:"version"`
	Codec      string    `json:"codec"`
	StoreID    string    `json:"store_id"`
	Dimensions int       `json:"dimensions"`
	NextID     int64     `json:"next_id"` // floor carried across compactions
	CreatedAt  time.Time `json:"created_at"`
}

// record is one log frame payload, encoded with the header's codec.
type record struct {
	Op        string    `json:"op"`
	ID        int64     `json:"id"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Options configures Open.
type Options struct {
	// Dimensions pins the store to one embedding dimensionality. Zero
	// means the store holds no vectors. When opening an existing file a
	// non-zero value must match the pinned one.
	Dimensions int

	// Codec encodes record payloads of newly created files. Defaults to
	// codec.Default. Existing files always reopen with the codec named
	// in their header.
	Codec codec.Codec
}

type loc struct {
	offset    int64
	createdAt time.Time
}

// Store is the log-backed RecordStore.
type Store struct {
	mu sync.RWMutex

	path  string
	w     *os.File // append handle, also used for ReadAt
	size  int64
	codec codec.Codec
	hdr   header

	locs       map[int64]loc
	tombstones *roaring64.Bitmap
	nextID     int64
	closed     bool
}

// Open opens or creates the log at path. The parent directory is created if
// missing, mirroring the deployment habit of pointing the store at a fresh
// location.
func Open(path string, opts Options) (*Store, error) {
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create dir: %v", memory.ErrStorage, err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", memory.ErrStorage, path, err)
	}

	s := &Store{
		path:       path,
		w:          f,
		codec:      opts.Codec,
		locs:       make(map[int64]loc),
		tombstones: roaring64.NewBitmap(),
		nextID:     1,
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat: %v", memory.ErrStorage, err)
	}

	if fi.Size() == 0 {
		if err := s.initialize(opts.Dimensions); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		if err := s.replay(opts.Dimensions); err != nil {
			f.Close()
			return nil, err
		}
	}

	log.Printf("[WAL] Opened %s: %d live entries, next id %d, dims %d",
		path, len(s.locs), s.nextID, s.hdr.Dimensions)
	return s, nil
}

func (s *Store) initialize(dimensions int) error {
	s.hdr = header{
		Version:    formatVersion,
		Codec:      s.codec.Name(),
		StoreID:    uuid.New().String(),
		Dimensions: dimensions,
		NextID:     1,
		CreatedAt:  time.Now().UTC(),
	}
	payload, err := json.Marshal(&s.hdr)
	if err != nil {
		return fmt.Errorf("%w: encode header: %v", memory.ErrStorage, err)
	}

	var buf bytes.Buffer
	buf.Write(magic)
	appendFrame(&buf, payload)
	if _, err := s.w.WriteAt(buf.Bytes(), 0); err != nil {
		return fmt.Errorf("%w: write header: %v", memory.ErrStorage, err)
	}
	if err := s.w.Sync(); err != nil {
		return fmt.Errorf("%w: sync header: %v", memory.ErrStorage, err)
	}
	s.size = int64(buf.Len())
	return nil
}

func (s *Store) replay(dimensions int) error {
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(io.NewSectionReader(s.w, 0, int64(len(magic))), head); err != nil || !bytes.Equal(head, magic) {
		return fmt.Errorf("%w: %s is not an engram log", memory.ErrStorage, s.path)
	}

	off := int64(len(magic))
	payload, n, err := readFrame(s.w, off)
	if err != nil {
		return fmt.Errorf("%w: read header frame: %v", memory.ErrStorage, err)
	}
	if err := json.Unmarshal(payload, &s.hdr); err != nil {
		return fmt.Errorf("%w: decode header: %v", memory.ErrStorage, err)
	}
	if s.hdr.Version != formatVersion {
		return fmt.Errorf("%w: unsupported log version %d", memory.ErrStorage, s.hdr.Version)
	}
	c, ok := codec.ByName(s.hdr.Codec)
	if !ok {
		return fmt.Errorf("%w: unknown codec %q", memory.ErrStorage, s.hdr.Codec)
	}
	s.codec = c
	if dimensions != 0 && s.hdr.Dimensions != 0 && dimensions != s.hdr.Dimensions {
		return fmt.Errorf("%w: store pinned to dimension %d, got %d",
			memory.ErrValidation, s.hdr.Dimensions, dimensions)
	}
	if s.hdr.NextID > s.nextID {
		s.nextID = s.hdr.NextID
	}
	off += n

	fi, err := s.w.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat: %v", memory.ErrStorage, err)
	}
	fileSize := fi.Size()

	for off < fileSize {
		payload, n, err := readFrame(s.w, off)
		if err != nil {
			// A torn tail from a crashed writer: keep everything up
			// to the last valid frame.
			log.Printf("[WAL] Truncating corrupt tail of %s at offset %d: %v", s.path, off, err)
			if terr := s.w.Truncate(off); terr != nil {
				return fmt.Errorf("%w: truncate: %v", memory.ErrStorage, terr)
			}
			break
		}

		var rec record
		if err := s.codec.Unmarshal(payload, &rec); err != nil {
			return fmt.Errorf("%w: decode record at %d: %v", memory.ErrStorage, off, err)
		}
		switch rec.Op {
		case opPut:
			s.locs[rec.ID] = loc{offset: off, createdAt: rec.CreatedAt}
		case opDel:
			delete(s.locs, rec.ID)
			s.tombstones.Add(uint64(rec.ID))
		default:
			return fmt.Errorf("%w: unknown op %q at %d", memory.ErrStorage, rec.Op, off)
		}
		if rec.ID >= s.nextID {
			s.nextID = rec.ID + 1
		}
		off += n
	}
	s.size = off
	return nil
}

// Put appends an entry frame and fsyncs before returning.
func (s *Store) Put(ctx context.Context, content string, embedding []float32) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("%w: store closed", memory.ErrStorage)
	}
	if len(embedding) > 0 && len(embedding) != s.hdr.Dimensions {
		return 0, fmt.Errorf("%w: embedding dimension %d, store pinned to %d",
			memory.ErrValidation, len(embedding), s.hdr.Dimensions)
	}

	rec := record{
		Op:        opPut,
		ID:        s.nextID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Embedding: embedding,
	}
	off, err := s.appendRecord(&rec)
	if err != nil {
		return 0, err
	}

	s.locs[rec.ID] = loc{offset: off, createdAt: rec.CreatedAt}
	s.nextID++
	return rec.ID, nil
}

// Get decodes a fresh copy of the entry at its frame offset.
func (s *Store) Get(ctx context.Context, id int64) (*memory.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("%w: store closed", memory.ErrStorage)
	}
	l, ok := s.locs[id]
	if !ok {
		return nil, fmt.Errorf("entry %d: %w", id, memory.ErrNotFound)
	}
	return s.readEntry(l.offset)
}

// List returns up to limit entries, newest-first by CreatedAt with ties
// broken by descending ID.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*memory.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("%w: store closed", memory.ErrStorage)
	}

	ids := make([]int64, 0, len(s.locs))
	for id := range s.locs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.locs[ids[i]], s.locs[ids[j]]
		if !a.createdAt.Equal(b.createdAt) {
			return a.createdAt.After(b.createdAt)
		}
		return ids[i] > ids[j]
	})

	if offset >= len(ids) {
		return nil, nil
	}
	ids = ids[offset:]
	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]*memory.Entry, 0, len(ids))
	for _, id := range ids {
		e, err := s.readEntry(s.locs[id].offset)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Scan returns a cursor streaming the log through its own read handle. The
// cursor observes the log length and tombstone set as of this call; later
// writes and deletes are invisible to it.
func (s *Store) Scan(ctx context.Context) (memory.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("%w: store closed", memory.ErrStorage)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open for scan: %v", memory.ErrStorage, err)
	}
	cur := &cursor{
		f:          f,
		codec:      s.codec,
		end:        s.size,
		tombstones: s.tombstones.Clone(),
	}
	// Skip magic and header frame.
	off := int64(len(magic))
	if _, n, err := readFrame(f, off); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: read header: %v", memory.ErrStorage, err)
	} else {
		cur.off = off + n
	}
	return cur, nil
}

// Delete appends a tombstone frame, reporting whether the entry existed.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, fmt.Errorf("%w: store closed", memory.ErrStorage)
	}
	if _, ok := s.locs[id]; !ok {
		return false, nil
	}

	rec := record{Op: opDel, ID: id}
	if _, err := s.appendRecord(&rec); err != nil {
		return false, err
	}
	delete(s.locs, id)
	s.tombstones.Add(uint64(id))
	return true, nil
}

// Compact rewrites live frames to a temporary file and atomically renames
// it over the log. The next-ID floor is persisted in the new header so IDs
// of compacted-away tombstones are never reused.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store closed", memory.ErrStorage)
	}

	tmpPath := s.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", memory.ErrStorage, tmpPath, err)
	}
	defer os.Remove(tmpPath)

	hdr := s.hdr
	hdr.NextID = s.nextID
	headerPayload, err := json.Marshal(&hdr)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("%w: encode header: %v", memory.ErrStorage, err)
	}

	var buf bytes.Buffer
	buf.Write(magic)
	appendFrame(&buf, headerPayload)
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write header: %v", memory.ErrStorage, err)
	}

	// Copy live frames in ascending ID order, one at a time.
	ids := make([]int64, 0, len(s.locs))
	for id := range s.locs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	newLocs := make(map[int64]loc, len(ids))
	off := int64(buf.Len())
	for _, id := range ids {
		old := s.locs[id]
		payload, n, err := readFrame(s.w, old.offset)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("%w: read frame for %d: %v", memory.ErrStorage, id, err)
		}
		var frame bytes.Buffer
		appendFrame(&frame, payload)
		if _, err := tmp.Write(frame.Bytes()); err != nil {
			tmp.Close()
			return fmt.Errorf("%w: write frame for %d: %v", memory.ErrStorage, id, err)
		}
		newLocs[id] = loc{offset: off, createdAt: old.createdAt}
		off += n
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync: %v", memory.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", memory.ErrStorage, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("%w: rename: %v", memory.ErrStorage, err)
	}

	f, err := os.OpenFile(s.path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("%w: reopen: %v", memory.ErrStorage, err)
	}
	s.w.Close()
	s.w = f
	s.hdr = hdr
	s.locs = newLocs
	s.tombstones = roaring64.NewBitmap()
	s.size = off

	log.Printf("[WAL] Compacted %s to %d entries (%d bytes)", s.path, len(newLocs), off)
	return nil
}

// Snapshot streams a consistent copy of the log to w. Writers are held off
// for the duration.
func (s *Store) Snapshot(w io.Writer) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("%w: store closed", memory.ErrStorage)
	}
	n, err := io.Copy(w, io.NewSectionReader(s.w, 0, s.size))
	if err != nil {
		return n, fmt.Errorf("%w: snapshot: %v", memory.ErrStorage, err)
	}
	return n, nil
}

// Count returns the number of live entries.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.locs)
}

// Dimensions returns the pinned embedding dimensionality (0 = vectorless).
func (s *Store) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hdr.Dimensions
}

// StoreID returns the UUID assigned when the log was first created.
func (s *Store) StoreID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hdr.StoreID
}

// Close syncs and releases the log file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.w.Sync(); err != nil {
		s.w.Close()
		return fmt.Errorf("%w: sync: %v", memory.ErrStorage, err)
	}
	return s.w.Close()
}

func (s *Store) appendRecord(rec *record) (int64, error) {
	payload, err := s.codec.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("%w: encode record: %v", memory.ErrStorage, err)
	}
	var buf bytes.Buffer
	appendFrame(&buf, payload)

	off := s.size
	if _, err := s.w.WriteAt(buf.Bytes(), off); err != nil {
		return 0, fmt.Errorf("%w: append: %v", memory.ErrStorage, err)
	}
	if err := s.w.Sync(); err != nil {
		return 0, fmt.Errorf("%w: sync: %v", memory.ErrStorage, err)
	}
	s.size += int64(buf.Len())
	return off, nil
}

func (s *Store) readEntry(off int64) (*memory.Entry, error) {
	payload, _, err := readFrame(s.w, off)
	if err != nil {
		return nil, fmt.Errorf("%w: read frame at %d: %v", memory.ErrStorage, off, err)
	}
	var rec record
	if err := s.codec.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode frame at %d: %v", memory.ErrStorage, off, err)
	}
	return recordEntry(&rec), nil
}

// recordEntry builds a caller-owned Entry. The codec already allocated the
// embedding slice fresh, so no aliasing into shared buffers is possible.
func recordEntry(rec *record) *memory.Entry {
	return &memory.Entry{
		ID:        rec.ID,
		Content:   rec.Content,
		CreatedAt: rec.CreatedAt,
		Embedding: rec.Embedding,
	}
}

func appendFrame(buf *bytes.Buffer, payload []byte) {
	var pre [frameOverhead]byte
	binary.LittleEndian.PutUint32(pre[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(pre[4:8], crc32.Checksum(payload, crcTable))
	buf.Write(pre[:])
	buf.Write(payload)
}

// readFrame reads one frame at off, returning the payload and the total
// frame size including the prefix.
func readFrame(r io.ReaderAt, off int64) ([]byte, int64, error) {
	var pre [frameOverhead]byte
	if _, err := r.ReadAt(pre[:], off); err != nil {
		return nil, 0, err
	}
	length := binary.LittleEndian.Uint32(pre[0:4])
	sum := binary.LittleEndian.Uint32(pre[4:8])

	payload := make([]byte, length)
	if _, err := r.ReadAt(payload, off+frameOverhead); err != nil {
		return nil, 0, err
	}
	if crc32.Checksum(payload, crcTable) != sum {
		return nil, 0, fmt.Errorf("crc mismatch")
	}
	return payload, frameOverhead + int64(length), nil
}
