package bizerror_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"printflow/bizerror"
	"printflow/testinfra"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/jinzhu/gorm"
	. "github.com/onsi/gomega"
)

func TestErrorHandling(t *testing.T) {
	RegisterTestingT(t)

	router := gin.Default()
	router.Use(bizerror.ErrorHandling())
	var thrown interface{}
	router.POST("/", func(c *gin.Context) {
		if thrown != nil {
			panic(thrown)
		}
		body := struct {
			Name string `json:"name" binding:"required"`
		}{}
		if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
			panic(&bizerror.ErrBadParam{Cause: err})
		}
		c.AbortWithStatus(http.StatusNoContent)
	})
	router.GET("/gin-error", func(c *gin.Context) {
		_ = c.Error(bizerror.ErrForbidden)
	})

	do := func(err interface{}) (int, string) {
		thrown = err
		defer func() { thrown = nil }()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		return status, body
	}

	t.Run("should respond business errors with their detail", func(t *testing.T) {
		status, body := do(&bizerror.ErrBadParam{Cause: errors.New("position must not be less than 1")})
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"common.bad_param","message":"position must not be less than 1","data":null}`))

		status, body = do(&bizerror.ErrFieldsNotWritable{Fields: []string{"name", "price"}})
		Expect(status).To(Equal(http.StatusForbidden))
		Expect(body).To(MatchJSON(`{"code":"security.fields_not_writable","message":"no write permission on fields: name, price","data":["name","price"]}`))

		status, body = do(&bizerror.ErrConflict{Message: "confirmation date '2021-01-02' already exists"})
		Expect(status).To(Equal(http.StatusConflict))
		Expect(body).To(MatchJSON(`{"code":"common.conflict","message":"confirmation date '2021-01-02' already exists","data":null}`))

		status, body = do(&bizerror.ErrItemNotFound{List: "links", Key: "https://a.example"})
		Expect(status).To(Equal(http.StatusNotFound))
		Expect(body).To(MatchJSON(`{"code":"common.item_not_found","message":"links item 'https://a.example' not found","data":null}`))
	})

	t.Run("should map sentinel errors to status codes", func(t *testing.T) {
		status, body := do(bizerror.ErrForbidden)
		Expect(status).To(Equal(http.StatusForbidden))
		Expect(body).To(MatchJSON(`{"code":"security.forbidden","message":"access forbidden","data":null}`))

		status, _ = do(fmt.Errorf("load work: %w", gorm.ErrRecordNotFound))
		Expect(status).To(Equal(http.StatusNotFound))

		status, _ = do(bizerror.ErrUnauthenticated)
		Expect(status).To(Equal(http.StatusUnauthorized))

		status, body = do(bizerror.ErrTokenExpired)
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(body).To(MatchJSON(`{"code":"common.unauthenticated","message":"token has expired","data":null}`))
	})

	t.Run("should report bad request bodies", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(ContainSubstring(`"code":"common.bad_param"`))

		req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		status, body, _ = testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(ContainSubstring(`"code":"common.bad_param"`))
	})

	t.Run("should handle errors attached to the gin context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/gin-error", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusForbidden))
		Expect(body).To(MatchJSON(`{"code":"security.forbidden","message":"access forbidden","data":null}`))
	})

	t.Run("should fall back to internal server error", func(t *testing.T) {
		status, body := do("something broke")
		Expect(status).To(Equal(http.StatusInternalServerError))
		Expect(body).To(MatchJSON(`{"code":"common.internal_server_error","message":"something broke","data":null}`))
	})
}
