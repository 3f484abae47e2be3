package servehttp

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"printflow/bizerror"
	"printflow/common"
	"printflow/infra/metrics"
	"printflow/infra/tracing"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewEngine builds the gin engine with the middleware chain shared by every route.
func NewEngine(allowedOrigins []string, m *metrics.Metrics) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	engine.Use(cors.New(corsConfig))

	engine.Use(tracing.TracingIngress(), metrics.HTTPMetrics(m), bizerror.ErrorHandling())

	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, common.ServiceName)
	})
	return engine
}

// StartHTTPServer serves until SIGINT or SIGTERM, then shuts down gracefully.
func StartHTTPServer(engine *gin.Engine, port string) {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.Infof("http server listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	// kill (no param) default send syscall.SIGTERM
	// kill -2 send syscall.SIGINT
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("[QUIT] shutdown signal has been received, the service will exit in 3 seconds.")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("[QUIT] http server shutdown failed: %v", err)
		return
	}
	logrus.Info("[QUIT] http server is shutdown gracefully, new request will be rejected.")
}
