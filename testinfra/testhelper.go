package testinfra

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"printflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
)

// BuildSession builds an authenticated session for a plain user.
func BuildSession(uid types.ID, name string) *session.Session {
	return &session.Session{
		Token:    "token-" + uid.String(),
		Identity: session.Identity{ID: uid, Name: name},
		Context:  context.Background(),
	}
}

func BuildSuperuserSession(uid types.ID, name string) *session.Session {
	s := BuildSession(uid, name)
	s.IsSuperuser = true
	s.IsStaff = true
	return s
}

func BuildStaffSession(uid types.ID, name string) *session.Session {
	s := BuildSession(uid, name)
	s.IsStaff = true
	return s
}

// InjectSession returns a middleware that authenticates every request as s.
func InjectSession(s *session.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		session.InjectSessionIntoGinContext(c, s)
		c.Next()
	}
}

func ExecuteRequest(req *http.Request, engine *gin.Engine) (int, string, *http.Response) {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), resp
}
