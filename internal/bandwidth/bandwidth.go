// Package bandwidth caps outbound transfer throughput. The total budget is
// shared fairly across unique client IPs: each IP gets an equal slice no
// matter how many parallel connections it opens, and slices are rebalanced
// whenever a transfer starts or finishes.
package bandwidth

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pengxiao18/andfileserver/internal/logging"
)

// chunkSize bounds one pass through the limiter; 32 KiB keeps the limiter
// accurate without excessive syscall overhead.
const chunkSize = 32 * 1024

// Limiter enforces a server-wide outbound byte-rate cap.
type Limiter struct {
	mu       sync.Mutex
	totalBps float64 // bytes/sec, 0 = unlimited
	peers    map[string]*peer
}

type peer struct {
	limiter *rate.Limiter
	refs    int
}

// New creates a limiter with the given total cap in bytes per second.
// A cap of 0 disables throttling.
func New(bytesPerSec float64) *Limiter {
	return &Limiter{
		totalBps: bytesPerSec,
		peers:    make(map[string]*peer),
	}
}

func (l *Limiter) join(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.peers[ip]
	if !ok {
		p = &peer{limiter: rate.NewLimiter(1, chunkSize)}
		l.peers[ip] = p
	}
	p.refs++
	l.rebalanceLocked()
	return p.limiter
}

func (l *Limiter) leave(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.peers[ip]
	if !ok {
		return
	}
	p.refs--
	if p.refs <= 0 {
		delete(l.peers, ip)
	}
	l.rebalanceLocked()
}

func (l *Limiter) rebalanceLocked() {
	n := len(l.peers)
	if n == 0 || l.totalBps == 0 {
		return
	}
	share := rate.Limit(l.totalBps / float64(n))
	for _, p := range l.peers {
		p.limiter.SetLimit(share)
		p.limiter.SetBurst(chunkSize)
	}
	logging.Debug("bandwidth rebalance", zap.Int("peers", n), zap.Float64("share_bps", float64(share)))
}

// Wrap throttles the response body of h. With no cap configured the
// handler is returned untouched.
func (l *Limiter) Wrap(h http.Handler) http.Handler {
	if l.totalBps == 0 {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		lim := l.join(ip)
		defer l.leave(ip)
		h.ServeHTTP(&throttledWriter{ResponseWriter: w, ctx: r.Context(), limiter: lim}, r)
	})
}

// throttledWriter gates Write calls through a token bucket.
type throttledWriter struct {
	http.ResponseWriter
	ctx     context.Context
	limiter *rate.Limiter
}

func (tw *throttledWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		select {
		case <-tw.ctx.Done():
			return total, tw.ctx.Err()
		default:
		}
		n := len(p)
		if n > chunkSize {
			n = chunkSize
		}
		if err := tw.limiter.WaitN(tw.ctx, n); err != nil {
			return total, err
		}
		written, err := tw.ResponseWriter.Write(p[:n])
		total += written
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}

// ReadFrom keeps io.Copy on the throttled Write path instead of the
// ReadFrom fast path.
func (tw *throttledWriter) ReadFrom(src io.Reader) (int64, error) {
	buf := make([]byte, chunkSize)
	var total int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := tw.Write(buf[:nr])
			total += int64(nw)
			if werr != nil {
				return total, werr
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return total, nil
			}
			return total, rerr
		}
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (tw *throttledWriter) Unwrap() http.ResponseWriter {
	return tw.ResponseWriter
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
