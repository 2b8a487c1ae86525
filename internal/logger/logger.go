package logger

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

func init() {
	log.SetFormatter(&log.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}

// SetLevel parses a logrus level name ("debug", "info", ...).
func SetLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	return nil
}

// SetOutput redirects log output; tests use it to silence or capture logs.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

func Debug(message string, fields map[string]any) {
	log.WithFields(fields).Debug(message)
}

func Info(message string, fields map[string]any) {
	log.WithFields(fields).Info(message)
}

func Warn(message string, fields map[string]any) {
	log.WithFields(fields).Warn(message)
}

func Error(message string, fields map[string]any) {
	log.WithFields(fields).Error(message)
}

// Fatal logs and exits the process.
func Fatal(message string, fields map[string]any) {
	log.WithFields(fields).Fatal(message)
}
