// Package observability builds the process logger and the prometheus
// collectors for interview sessions.
package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the root logger. format is "text" or "json".
func NewLogger(level, format string, out io.Writer) (*logrus.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(lvl)
	switch strings.ToLower(format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return log, nil
}

// SessionLogger scopes a logger to one session.
func SessionLogger(log logrus.FieldLogger, sessionID, modality string) logrus.FieldLogger {
	return log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"modality":   modality,
	})
}
