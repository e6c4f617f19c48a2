// Package backup streams store snapshots to off-box targets.
//
// The durable store lives in a single log file; Run captures a consistent
// snapshot of it, optionally compresses the stream with zstd, and hands it
// to a Target (local directory, S3, MinIO). The snapshot never touches the
// local disk on its way out — it flows through a pipe straight into the
// target.
package backup

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"
)

// Snapshotter produces a consistent snapshot of a store.
// wal.Store implements it.
type Snapshotter interface {
	Snapshot(w io.Writer) (int64, error)
}

// Target receives a named snapshot stream.
type Target interface {
	Store(ctx context.Context, name string, r io.Reader) error
}

// Options configure Run.
type Options struct {
	// Name overrides the generated snapshot name.
	Name string

	// Compress wraps the stream in zstd. Compressed snapshots get a
	// ".zst" suffix.
	Compress bool
}

// Run snapshots src into target and returns the stored name.
func Run(ctx context.Context, src Snapshotter, target Target, opts Options) (string, error) {
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("engram-%s.snap", time.Now().UTC().Format("20060102T150405Z"))
	}
	if opts.Compress {
		name += ".zst"
	}

	pr, pw := io.Pipe()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var w io.Writer = pw
		var enc *zstd.Encoder
		if opts.Compress {
			var err error
			enc, err = zstd.NewWriter(pw)
			if err != nil {
				pw.CloseWithError(err)
				return fmt.Errorf("zstd writer: %w", err)
			}
			w = enc
		}

		_, err := src.Snapshot(w)
		if err == nil && enc != nil {
			err = enc.Close()
		}
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		err := target.Store(ctx, name, pr)
		// Unblock the writer if the target gave up early.
		pr.CloseWithError(err)
		return err
	})

	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("backup %s: %w", name, err)
	}
	log.Printf("[BACKUP] Stored snapshot %s", name)
	return name, nil
}
