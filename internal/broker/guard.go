package broker

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/time/rate"
)

// GuardConfig holds the static admission limits.
type GuardConfig struct {
	// MaxConnections caps concurrently established connections.
	MaxConnections int

	// AcceptRate and AcceptBurst throttle how fast new transports are
	// admitted.
	AcceptRate  float64
	AcceptBurst int

	// CPURejectThreshold rejects new connections above this process
	// CPU percentage. Zero disables the check.
	CPURejectThreshold float64
}

// ResourceGuard enforces static resource limits in front of the
// handshake: a connection cap, an accept rate limit and a CPU safety
// valve. Limits are configured, never auto-calculated.
type ResourceGuard struct {
	cfg     GuardConfig
	log     zerolog.Logger
	limiter *rate.Limiter
	proc    *process.Process

	currentCPU   atomic.Value // float64
	currentConns *atomic.Int64
}

// NewResourceGuard creates a guard reading the connection count from
// conns, which the caller keeps up to date.
func NewResourceGuard(cfg GuardConfig, log zerolog.Logger, conns *atomic.Int64) *ResourceGuard {
	if cfg.AcceptRate <= 0 {
		cfg.AcceptRate = 128
	}
	if cfg.AcceptBurst <= 0 {
		cfg.AcceptBurst = int(cfg.AcceptRate)
	}

	g := &ResourceGuard{
		cfg:          cfg,
		log:          log.With().Str("component", "guard").Logger(),
		limiter:      rate.NewLimiter(rate.Limit(cfg.AcceptRate), cfg.AcceptBurst),
		currentConns: conns,
	}
	g.currentCPU.Store(float64(0))

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		g.proc = proc
	} else {
		g.log.Warn().Err(err).Msg("process stats unavailable, CPU check disabled")
	}

	return g
}

// ShouldAccept decides whether a freshly accepted transport may enter
// the handshake.
func (g *ResourceGuard) ShouldAccept() (bool, string) {
	if g.cfg.MaxConnections > 0 && g.currentConns.Load() >= int64(g.cfg.MaxConnections) {
		return false, "connection limit reached"
	}

	if !g.limiter.Allow() {
		return false, "accept rate exceeded"
	}

	if g.cfg.CPURejectThreshold > 0 {
		if cpu, _ := g.currentCPU.Load().(float64); cpu > g.cfg.CPURejectThreshold {
			return false, "cpu above reject threshold"
		}
	}

	return true, ""
}

// CPUPercent returns the last sampled process CPU percentage.
func (g *ResourceGuard) CPUPercent() float64 {
	cpu, _ := g.currentCPU.Load().(float64)
	return cpu
}

// StartMonitoring samples process CPU on the given interval until the
// context is cancelled.
func (g *ResourceGuard) StartMonitoring(ctx context.Context, interval time.Duration) {
	if g.proc == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cpu, err := g.proc.CPUPercent()
				if err != nil {
					continue
				}
				g.currentCPU.Store(cpu)
				cpuPercentGauge.Set(cpu)

				if g.cfg.CPURejectThreshold > 0 && cpu > g.cfg.CPURejectThreshold {
					g.log.Warn().
						Float64("cpu_percent", cpu).
						Float64("threshold", g.cfg.CPURejectThreshold).
						Msg("cpu above reject threshold, new connections refused")
				}
			}
		}
	}()
}
