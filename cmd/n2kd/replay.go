package main

import (
	"context"
	"io"
	"time"

	"github.com/cockroachdb/errors"

	"example.com/n2kgate/internal/canlog"
	"example.com/n2kgate/internal/capture"
	"example.com/n2kgate/internal/common"
	"example.com/n2kgate/internal/core"
	"example.com/n2kgate/internal/pipeline"
)

// replay feeds a recorded log or capture into the core as if the frames
// arrived live, one every interval. It returns the number submitted.
func replay(ctx context.Context, c *core.Core, path string, interval time.Duration) (int, error) {
	var (
		closer io.Closer
		src    pipeline.RecordSource
	)
	if capture.IsCapturePath(path) {
		f, r, err := capture.Open(path)
		if err != nil {
			return 0, err
		}
		closer, src = f, r
	} else {
		f, r, err := pipeline.OpenLog(path)
		if err != nil {
			return 0, err
		}
		closer, src = f, r
	}
	defer closer.Close()

	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}
	submitted := 0
	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return submitted, ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return submitted, err
		}
		rec, err := src.Next()
		switch {
		case errors.Is(err, io.EOF):
			c.Refresh()
			return submitted, nil
		case errors.Is(err, canlog.ErrEmptyLine):
			continue
		case canlog.IsRecordError(err):
			common.Warnf("replay %s: %v", path, err)
			continue
		case err != nil:
			return submitted, err
		}
		if err := c.Submit(rec); err != nil {
			// An import owns the buffer; the frame is dropped like a live
			// frame arriving at that moment would be.
			common.Debugf("replay %s: %v", path, err)
			continue
		}
		submitted++
	}
}
