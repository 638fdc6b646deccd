// Package logging configures the logrus loggers shared by every component.
package logging

import (
	"flag"
	"io"

	prefixed "github.com/BertoldVdb/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"
)

var loglevel *int

// InitParam registers the -loglevel flag on fs.
func InitParam(fs *flag.FlagSet) {
	loglevel = fs.Int("loglevel", int(logrus.InfoLevel), "The loglevel to use. Valid values are from 0 to 6. Higher values output more information")
}

// New returns the root logger, honouring -loglevel when it was registered.
func New(level logrus.Level) *logrus.Entry {
	logrus.ErrorKey = "$error"
	logger := logrus.New()
	if loglevel == nil {
		logger.SetLevel(level)
	} else {
		logger.SetLevel(logrus.Level(*loglevel))
	}
	customFormatter := new(prefixed.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02 15:04:05"
	customFormatter.FullTimestamp = true
	customFormatter.PrefixPadding = 12
	customFormatter.SpacePadding = 40
	logger.SetFormatter(customFormatter)
	return logrus.NewEntry(logger)
}

// Component derives a logger whose lines are prefixed with name.
func Component(log *logrus.Entry, name string) *logrus.Entry {
	return log.WithField("prefix", name)
}

// Discard returns a logger that drops everything. Useful for tests.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
