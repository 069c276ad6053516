package logging

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Init configures the process-wide logrus logger to emit one JSON object per line
// with "ts", "level" and "msg" keys. Unknown levels fall back to info.
func Init(w io.Writer, level string) {
	logrus.SetOutput(w)
	logrus.SetFormatter(NewFormatter())

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

// NewFormatter returns the JSON formatter shared by every component.
func NewFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "ts",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "msg",
		},
	}
}

// Component returns an entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
