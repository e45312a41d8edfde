/*
Package log provides structured logging for Windlass built on zerolog.

A single global logger is initialized once at startup and child loggers are
derived per component or per entity. All components log through this package
so output format and level are controlled in one place.

# Usage

Initialization (done by cmd/windlass):

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Component loggers, with entity fields added per call or per child logger:

	logger := log.WithComponent("reconciler")
	logger.Info().Str("deployment_id", id).Msg("status changed")

# Output Formats

JSON output for production (machine-parseable) and zerolog's console writer
for development. Level defaults to info when unset.

# See Also

  - zerolog documentation: https://github.com/rs/zerolog
*/
package log
