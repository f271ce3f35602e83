package nadc

import (
	"os"
	"strings"

	"github.com/labstack/gommon/bytes"
	log "github.com/sirupsen/logrus"
)

// SetupLogging configures the standard logrus logger from NADC_LOG_LEVEL and
// NADC_LOG_FORMAT. verbose forces the debug level.
func SetupLogging(verbose bool) {
	log.SetOutput(os.Stdout)
	if strings.EqualFold(os.Getenv("NADC_LOG_FORMAT"), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level := log.InfoLevel
	if s := os.Getenv("NADC_LOG_LEVEL"); s != "" {
		if l, err := log.ParseLevel(s); err == nil {
			level = l
		} else {
			log.Warnf("invalid NADC_LOG_LEVEL %q, using %s", s, level)
		}
	}
	if verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)
}

// HumanSize formats a byte count for log lines.
func HumanSize(n int64) string {
	return bytes.Format(n)
}
