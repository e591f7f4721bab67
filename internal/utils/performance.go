package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// OperationTimer measures an operation that processes a number of units
// (simulated days, imported rows). The returned func logs the duration and
// the per-unit cost, and warns when the whole operation took longer than slowAfter.
//
//	done := utils.OperationTimer("simulation_run", 5*time.Minute, log)
//	n := process()
//	done(n)
func OperationTimer(operation string, slowAfter time.Duration, log zerolog.Logger) func(units int) {
	start := time.Now()

	return func(units int) {
		duration := time.Since(start)

		event := log.Debug()
		if slowAfter > 0 && duration > slowAfter {
			event = log.Warn().Bool("slow", true)
		}

		event = event.
			Str("operation", operation).
			Dur("duration", duration).
			Int("units", units)
		if units > 0 {
			event = event.Dur("per_unit", duration/time.Duration(units))
		}
		event.Msg("Operation completed")
	}
}
