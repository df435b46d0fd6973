// Package logging builds the process slog loggers and carries the discovery
// job ID through contexts so every line of one job can be correlated.
//
//	logger := logging.NewLogger()
//	ctx = logging.ContextWithJobID(ctx, job.ID)
//	logging.WithJobID(ctx, logger).Info("discovery started")
package logging
