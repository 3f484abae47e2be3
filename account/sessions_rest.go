package account

import (
	"net/http"
	"printflow/bizerror"
	"printflow/session"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var (
	PathSessions     = "/v1/sessions"
	PathSessionUsers = "/v1/session-users"

	DetailSessionUserFunc = DetailSessionUser
)

// RegisterSessionsRestAPI registers login and logout. The session user route is guarded by middleWares.
func RegisterSessionsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathSessions)
	g.POST("", handleLogin)
	g.DELETE("", handleLogout)

	r.GET(PathSessionUsers, append(middleWares, handleDetailSessionUser)...)
}

func handleLogin(c *gin.Context) {
	login := LoginRequest{}
	if err := c.ShouldBindBodyWith(&login, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	result, err := LoginFunc(&login, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.SetCookie(session.KeySecToken, result.Token, int(session.TokenExpiration/time.Second), "/", "", false, true)
	c.JSON(http.StatusOK, result)
}

func handleLogout(c *gin.Context) {
	if token := session.ExtractToken(c); token != "" {
		session.RevokeToken(token)
	}
	c.SetCookie(session.KeySecToken, "", -1, "/", "", false, true)
	c.AbortWithStatus(http.StatusNoContent)
}

func handleDetailSessionUser(c *gin.Context) {
	detail, err := DetailSessionUserFunc(session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, detail)
}
