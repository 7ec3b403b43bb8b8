// Package report forwards lifecycle failures to an error tracker.
package report

import (
	"os"

	honeybadger "github.com/honeybadger-io/honeybadger-go"
	"github.com/sirupsen/logrus"
)

// Reporter receives errors that must not go unnoticed.
type Reporter interface {
	Report(err error, fields map[string]any, tags ...string)
}

// notifyFunc matches honeybadger.Notify.
type notifyFunc func(err interface{}, extra ...interface{}) (string, error)

// HoneybadgerReporter logs every error and, when configured, sends it to Honeybadger.
type HoneybadgerReporter struct {
	logger *logrus.Logger
	notify notifyFunc
}

// NewReporter returns a reporter that notifies Honeybadger when
// HONEYBADGER_API_KEY is set, and only logs otherwise.
func NewReporter(logger *logrus.Logger) *HoneybadgerReporter {
	apiKey := os.Getenv("HONEYBADGER_API_KEY")
	if apiKey == "" {
		logger.Info("Honeybadger is not active. To enable error reporting, set the HONEYBADGER_API_KEY environment variable.")
		return &HoneybadgerReporter{logger: logger}
	}

	honeybadger.Configure(honeybadger.Configuration{
		APIKey: apiKey,
		Env:    os.Getenv("GO_ENV"),
	})
	logger.Info("Honeybadger error reporting is enabled.")
	return &HoneybadgerReporter{logger: logger, notify: honeybadger.Notify}
}

func (r *HoneybadgerReporter) Report(err error, fields map[string]any, tags ...string) {
	if err == nil {
		return
	}
	r.logger.WithFields(logrus.Fields(fields)).WithField("tags", tags).Errorf("reported: %v", err)
	if r.notify == nil {
		return
	}
	if _, nerr := r.notify(err, honeybadger.Context(fields), honeybadger.Tags(tags)); nerr != nil {
		r.logger.Warnf("Honeybadger notify failed: %v", nerr)
	}
}

// Flush waits for pending notifications to be delivered.
func (r *HoneybadgerReporter) Flush() {
	if r.notify != nil {
		honeybadger.Flush()
	}
}
