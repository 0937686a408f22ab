package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Per-session counters
// ──────────────────────────────────────────────────────────────────────────────

// Stats counts signaling and data traffic for one session. Each session owns
// its own instance; there is no process-wide counter.
type Stats struct {
	CandidatesSent atomic.Int64 // local candidates posted to the relay (sentinel excluded)
	CandidatesRecv atomic.Int64 // remote candidates fetched from the relay (sentinel excluded)
	MessagesSent   atomic.Int64 // DataChannel messages written
	MessagesRecv   atomic.Int64 // DataChannel messages read
	BytesSent      atomic.Int64 // cumulative bytes written to DataChannels
	BytesRecv      atomic.Int64 // cumulative bytes read from DataChannels
}

func (s *Stats) AddCandidateSent() { s.CandidatesSent.Add(1) }
func (s *Stats) AddCandidateRecv() { s.CandidatesRecv.Add(1) }

func (s *Stats) AddSent(n int) {
	s.MessagesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *Stats) AddRecv(n int) {
	s.MessagesRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs the session's traffic
// every interval. Idle intervals are skipped. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, s *Stats, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prevSent, prevRecv, prevMsgs int64
		for {
			select {
			case <-ticker.C:
				sent := s.BytesSent.Load()
				recv := s.BytesRecv.Load()
				msgs := s.MessagesSent.Load() + s.MessagesRecv.Load()

				outS := float64(sent-prevSent) / secs
				inS := float64(recv-prevRecv) / secs

				if msgs != prevMsgs {
					pterm.DefaultLogger.Info(formatStats(inS, outS, s.CandidatesSent.Load(), s.CandidatesRecv.Load()))
				}

				prevSent = sent
				prevRecv = recv
				prevMsgs = msgs

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, candSent, candRecv int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | ICE: %2d↑ %2d↓",
		formatBytes(inS),
		formatBytes(outS),
		candSent,
		candRecv,
	)
}
