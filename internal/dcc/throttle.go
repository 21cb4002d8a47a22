package dcc

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxBurstBytes bounds a single rate-limiter reservation so a large chunk
// doesn't block on one enormous WaitN call.
const maxBurstBytes = 256 * 1024

// NewThrottledWriter wraps w with a token-bucket rate limiter capped at
// kbPerSec kilobytes/second. kbPerSec <= 0 disables throttling and returns
// w unchanged.
func NewThrottledWriter(ctx context.Context, w io.Writer, kbPerSec int64) io.Writer {
	if kbPerSec <= 0 {
		return w
	}

	bytesPerSec := kbPerSec * 1024
	burst := int(bytesPerSec)
	if burst > maxBurstBytes {
		burst = maxBurstBytes
	}
	if burst <= 0 {
		burst = 1
	}

	return &throttledWriter{
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		ctx:     ctx,
	}
}

type throttledWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

func (tw *throttledWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := len(p)
		if chunk > tw.limiter.Burst() {
			chunk = tw.limiter.Burst()
		}
		if err := tw.limiter.WaitN(tw.ctx, chunk); err != nil {
			return total, err
		}
		n, err := tw.w.Write(p[:chunk])
		total += n
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}
