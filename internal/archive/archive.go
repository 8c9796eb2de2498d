package archive

import (
	"time"

	"bcbackend/internal/config"
	"bcbackend/internal/data"
	"bcbackend/internal/logger"
)

const sweepHour = 2 // 2 AM

// StartArchiveRoutine starts the daily archival job. Sessions older than
// the configured horizon are flagged archived so they stop appearing in
// the default listings; nothing is deleted and balances are unaffected.
func StartArchiveRoutine(sessions *data.SessionRepository) {
	go func() {
		logger.LogInfo("Archive routine started - will run daily at %d:00 AM", sweepHour)

		for {
			now := time.Now()
			next := time.Date(now.Year(), now.Month(), now.Day(), sweepHour, 0, 0, 0, now.Location())
			if now.After(next) {
				next = next.Add(24 * time.Hour)
			}

			logger.LogInfo("Next archive sweep scheduled for %v", next.Format("2006-01-02 15:04:05"))
			time.Sleep(next.Sub(now))

			RunSweep(sessions)
		}
	}()
}

// RunSweep archives every session older than the configured horizon.
// It also runs once at startup so a long-stopped server catches up.
func RunSweep(sessions *data.SessionRepository) {
	cutoff := time.Now().Add(-config.ArchiveHorizon())

	archived, err := sessions.ArchiveOlderThan(cutoff)
	if err != nil {
		logger.LogError("Archive sweep failed: %v", err)
		return
	}
	if archived > 0 {
		logger.LogInfo("Archived %d sessions older than %s", archived, cutoff.Format("2006-01-02"))
	}
}
