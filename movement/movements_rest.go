package movement

import (
	"net/http"
	"printflow/bizerror"
	"printflow/session"

	"github.com/gin-gonic/gin"
)

var PathMovements = "/v1/movements"

func RegisterMovementsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathMovements, middleWares...)
	g.GET("", handleQueryMovements)
}

func handleQueryMovements(c *gin.Context) {
	q := MovementQuery{}
	if err := c.ShouldBindQuery(&q); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	page, err := QueryMovementsFunc(&q, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, page)
}
