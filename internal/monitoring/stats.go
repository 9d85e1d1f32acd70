package monitoring

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// Counters is the source of the periodic stats line: live connection count
// and subscription count, read from the acceptor and router respectively.
type Counters struct {
	Connections  func() int
	Subscriptions func() int
}

// Sampler periodically logs a connection/subscription/CPU/mem snapshot,
// reading process stats through gopsutil the way the teacher's container
// CPU monitor does, minus its cgroup-quota bookkeeping: this broker has no
// admission-control policy to drive with that number, only a log line.
type Sampler struct {
	logger  zerolog.Logger
	period  time.Duration
	counts  Counters
	proc    *process.Process
}

// NewSampler constructs a Sampler bound to the current process.
func NewSampler(logger zerolog.Logger, period time.Duration, counts Counters) (*Sampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Sampler{logger: logger, period: period, counts: counts, proc: proc}, nil
}

// Run logs one snapshot every period until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	cpuPct, err := s.proc.CPUPercent()
	if err != nil {
		cpuPct = 0
	}
	memInfo, err := s.proc.MemoryInfo()
	var rssBytes uint64
	if err == nil && memInfo != nil {
		rssBytes = memInfo.RSS
	}

	s.logger.Info().
		Int("connections", s.counts.Connections()).
		Int("subscriptions", s.counts.Subscriptions()).
		Float64("cpu_percent", cpuPct).
		Uint64("rss_bytes", rssBytes).
		Msg("stats")
}
