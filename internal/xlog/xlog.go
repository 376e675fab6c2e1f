// Package xlog configures the process-wide logrus logger used by every
// engine component, following the same debug-flag/env-var convention the
// rest of the toolkit's commands use.
package xlog

import (
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// RunID is a per-invocation identifier attached to every log line so a
// multi-file copy's interleaved component output can be correlated back to
// one run, matching the job-id field the toolkit's other commands carry.
var RunID = uuid.NewString()

// Setup installs the text formatter and resolves the log level from the
// --debug flag or the XCP_LOG_LEVEL environment variable (flag wins).
func Setup(debug bool) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stderr)

	level := log.InfoLevel
	if lvl, err := log.ParseLevel(os.Getenv("XCP_LOG_LEVEL")); err == nil {
		level = lvl
	}
	if debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)
}

// With returns a logger entry pre-populated with the run id, the
// convention every component-level log call in this engine builds on.
func With(fields log.Fields) *log.Entry {
	f := log.Fields{"run_id": RunID}
	for k, v := range fields {
		f[k] = v
	}
	return log.WithFields(f)
}
