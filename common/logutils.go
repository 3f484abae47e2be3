package common

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const ServiceName = "printflow"

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

func init() {
	logger := logrus.StandardLogger()
	logger.Out = os.Stdout
	logger.Formatter = &logrus.TextFormatter{}
	logger.AddHook(&DefaultFieldsHook{})
}

// ConfigureLogging applies level, format and the optional rotating file output to the standard logger.
func ConfigureLogging(c LogConfig) {
	logger := logrus.StandardLogger()

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(c.Format, "json") {
		logger.Formatter = &logrus.JSONFormatter{}
	} else {
		logger.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	}

	if c.File != "" {
		logger.Out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    positiveOr(c.MaxSizeMB, 100),
			MaxBackups: positiveOr(c.MaxBackups, 5),
			MaxAge:     positiveOr(c.MaxAgeDays, 30),
			Compress:   true,
		})
	}
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

type DefaultFieldsHook struct {
}

func (hook *DefaultFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook *DefaultFieldsHook) Fire(e *logrus.Entry) error {
	e.Data["serviceName"] = ServiceName
	e.Data["serviceInstance"] = serviceInstance
	return nil
}

var serviceInstance = func() string {
	if name, err := os.Hostname(); err == nil {
		return name
	}
	return "unknown"
}()
