// Package perf reports slow gateway event handling.
package perf

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/log"
	"github.com/small-frappuccino/discordstate/pkg/util"
)

const (
	envGatewayPerfThresholdMs     = "DISCORDSTATE_GATEWAY_PERF_THRESHOLD_MS"
	defaultGatewayPerfThresholdMs = int64(200)
)

var (
	gatewayThresholdOnce sync.Once
	gatewayThreshold     time.Duration
)

func gatewayPerfThreshold() time.Duration {
	gatewayThresholdOnce.Do(func() {
		ms := util.EnvInt64(envGatewayPerfThresholdMs, defaultGatewayPerfThresholdMs)
		if ms <= 0 {
			gatewayThreshold = 0
			return
		}
		gatewayThreshold = time.Duration(ms) * time.Millisecond
	})
	return gatewayThreshold
}

// StartGatewayEvent times one cache update plus its subscriber fan-out and logs
// only when it ran past the threshold. DISCORDSTATE_GATEWAY_PERF_THRESHOLD_MS=0 disables it.
func StartGatewayEvent(event string, attrs ...slog.Attr) func() {
	return startWithThreshold(gatewayPerfThreshold(), event, attrs...)
}

func startWithThreshold(threshold time.Duration, event string, attrs ...slog.Attr) func() {
	if threshold <= 0 {
		return func() {}
	}
	start := time.Now()
	return func() {
		duration := time.Since(start)
		if duration < threshold {
			return
		}
		name := strings.TrimSpace(event)
		if name == "" {
			name = "unknown"
		}
		args := make([]any, 0, len(attrs)+3)
		args = append(args,
			slog.String("event", name),
			slog.Duration("duration", duration),
			slog.Int64("duration_ms", duration.Milliseconds()),
		)
		for _, attr := range attrs {
			args = append(args, attr)
		}
		log.DiscordLogger().Warn("slow gateway event", args...)
	}
}
