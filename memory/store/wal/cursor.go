package wal

import (
	"fmt"
	"os"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/engram-dev/engram/codec"
	"github.com/engram-dev/engram/memory"
)

// cursor streams put frames sequentially from its own read handle. It holds
// the frame length and a tombstone clone captured at Scan time, so it sees
// a stable snapshot regardless of concurrent appends and deletes.
type cursor struct {
	f          *os.File
	codec      codec.Codec
	off        int64
	end        int64
	tombstones *roaring64.Bitmap

	entry  *memory.Entry
	err    error
	closed bool
}

func (c *cursor) Next() bool {
	if c.err != nil || c.closed {
		return false
	}
	for c.off < c.end {
		payload, n, err := readFrame(c.f, c.off)
		if err != nil {
			c.err = fmt.Errorf("%w: read frame at %d: %v", memory.ErrStorage, c.off, err)
			return false
		}
		c.off += n

		var rec record
		if err := c.codec.Unmarshal(payload, &rec); err != nil {
			c.err = fmt.Errorf("%w: decode frame: %v", memory.ErrStorage, err)
			return false
		}
		if rec.Op != opPut || c.tombstones.Contains(uint64(rec.ID)) {
			continue
		}
		c.entry = recordEntry(&rec)
		return true
	}
	return false
}

func (c *cursor) Entry() *memory.Entry { return c.entry }

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.f.Close()
}
