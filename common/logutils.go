package common

import (
	"os"

	"github.com/sirupsen/logrus"
)

var (
	serviceName     = "pneumatic"
	serviceInstance = ""
)

// SetupLogger configures the logrus standard logger used across the service.
func SetupLogger(level string, json bool) {
	logger := logrus.StandardLogger()
	logger.Out = os.Stdout
	if json {
		logger.Formatter = &logrus.JSONFormatter{}
	} else {
		logger.Formatter = &logrus.TextFormatter{}
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if hostname, err := os.Hostname(); err == nil {
		serviceInstance = hostname
	}
	logger.ReplaceHooks(logrus.LevelHooks{})
	logger.AddHook(&DefaultFieldsHook{})
}

type DefaultFieldsHook struct {
}

func (hook *DefaultFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook *DefaultFieldsHook) Fire(e *logrus.Entry) error {
	e.Data["serviceName"] = serviceName
	if serviceInstance != "" {
		e.Data["serviceInstance"] = serviceInstance
	}
	return nil
}
