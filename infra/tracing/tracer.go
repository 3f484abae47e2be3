package tracing

import (
	"io"
	"printflow/common"

	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	jaegerprom "github.com/uber/jaeger-lib/metrics/prometheus"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// logrusLogger adapts logrus to the jaeger.Logger interface.
type logrusLogger struct{}

func (logrusLogger) Error(msg string)                        { logrus.Error(msg) }
func (logrusLogger) Infof(msg string, args ...interface{}) { logrus.Infof(msg, args...) }

// InitTracer installs a jaeger tracer as the global tracer. Agent address and sampler
// are read from the standard JAEGER_* environment variables.
// When disabled the global noop tracer is kept.
func InitTracer(enabled bool, registerer prometheus.Registerer) (io.Closer, error) {
	if !enabled {
		logrus.Info("tracing is disabled")
		return nopCloser{}, nil
	}

	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		return nil, err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = common.ServiceName
	}

	tracer, closer, err := cfg.NewTracer(
		jaegercfg.Logger(logrusLogger{}),
		jaegercfg.Metrics(jaegerprom.New(jaegerprom.WithRegisterer(registerer))),
	)
	if err != nil {
		return nil, err
	}
	opentracing.SetGlobalTracer(tracer)
	logrus.Infof("tracing is enabled, service name: %s", cfg.ServiceName)
	return closer, nil
}
