// Package ratelimit throttles file-transfer endpoint connections
// (internal/transfer) to a configured bytes-per-second ceiling, for both
// downloads and uploads.
package ratelimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate.Limiter with a byte-oriented Wait,
// so a reader or writer can consume it one chunk at a time without caring
// about the underlying token math.
type Limiter struct {
	rl    *rate.Limiter
	burst int
}

// New creates a rate limiter capped at bytesPerSecond, with burst capacity
// equal to one second's worth of data — short bursts are allowed, but the
// sustained average never exceeds the configured rate. A non-positive
// bytesPerSecond means "unlimited", returned as a nil *Limiter so callers
// can pass it straight through to NewReader/NewWriter.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := int(bytesPerSecond)
	return &Limiter{
		rl:    rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		burst: burst,
	}
}

// take blocks until n bytes' worth of tokens are available, splitting the
// request into burst-sized pieces since x/time/rate rejects a WaitN call
// for more tokens than the bucket can ever hold.
func (l *Limiter) take(n int) {
	if l == nil || n <= 0 {
		return
	}
	ctx := context.Background()
	for n > 0 {
		chunk := n
		if chunk > l.burst {
			chunk = l.burst
		}
		// WaitN only errors on a cancelled context or an oversized
		// request, neither of which applies here.
		_ = l.rl.WaitN(ctx, chunk)
		n -= chunk
	}
}

// reader wraps an io.Reader, spending tokens before each underlying Read.
type reader struct {
	r       io.Reader
	limiter *Limiter
}

// NewReader returns r unchanged if limiter is nil, otherwise a throttled
// reader that never pulls faster than the limiter's configured rate.
func NewReader(r io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &reader{r: r, limiter: limiter}
}

// readChunk caps a single Read so one call never waits for more than
// readChunk bytes' worth of tokens.
const readChunk = 8 * 1024

func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) > readChunk {
		p = p[:readChunk]
	}
	r.limiter.take(len(p))
	return r.r.Read(p)
}

// writer wraps an io.Writer, spending tokens before each underlying Write
// so the limiter applies backpressure to the sender, not just the reader.
type writer struct {
	w       io.Writer
	limiter *Limiter
}

// NewWriter returns w unchanged if limiter is nil, otherwise a throttled
// writer that paces Write calls to the limiter's configured rate.
func NewWriter(w io.Writer, limiter *Limiter) io.Writer {
	if limiter == nil {
		return w
	}
	return &writer{w: w, limiter: limiter}
}

const writeChunk = 64 * 1024

func (w *writer) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		chunk := len(p) - written
		if chunk > writeChunk {
			chunk = writeChunk
		}
		w.limiter.take(chunk)
		n, err := w.w.Write(p[written : written+chunk])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
