package indices

import (
	"net/http"
	"printflow/session"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

var (
	PathIndexRequests        = "/v1/index-requests"
	PathPendingIndexRecovery = "/v1/pending-index-recoveries"

	indexLogRecoveryLimiter = rate.NewLimiter(rate.Every(time.Minute), 1)
)

func RegisterIndicesRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathIndexRequests, middleWares...)
	g.POST("", handleIndexRequest)

	p := r.Group(PathPendingIndexRecovery, middleWares...)
	p.POST("", handleCreatePendingIndexLogsRecovery)
}

func handleIndexRequest(c *gin.Context) {
	success, err := ScheduleNewSyncRunFunc(session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, gin.H{"result": success})
}

func handleCreatePendingIndexLogsRecovery(c *gin.Context) {
	if !indexLogRecoveryLimiter.Allow() {
		c.JSON(http.StatusOK, gin.H{"result": "request rate limited"})
		return
	}
	if err := IndexlogRecoveryRoutineFunc(session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, gin.H{"result": "started"})
}
