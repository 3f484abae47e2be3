package option

import (
	"net/http"
	"printflow/bizerror"
	"printflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// RegisterOptionsRestAPI registers the same routes for every option kind.
func RegisterOptionsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	for _, kind := range Kinds {
		h := kindHandlers{kind: kind}
		g := r.Group(kind.Path, middleWares...)
		g.GET("", h.handleQuery)
		g.POST("", h.handleCreate)
		g.GET(":id", h.handleDetail)
		g.PUT(":id", h.handleUpdate)
		g.DELETE(":id", h.handleDelete)
	}
}

type kindHandlers struct {
	kind Kind
}

func (h kindHandlers) handleQuery(c *gin.Context) {
	options, err := QueryOptionsFunc(h.kind, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, options)
}

func (h kindHandlers) handleDetail(c *gin.Context) {
	o, err := DetailOptionFunc(h.kind, bindID(c), session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, o)
}

func (h kindHandlers) handleCreate(c *gin.Context) {
	creation := OptionCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	o, err := CreateOptionFunc(h.kind, &creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, o)
}

func (h kindHandlers) handleUpdate(c *gin.Context) {
	id := bindID(c)
	updating := OptionUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	o, err := UpdateOptionFunc(h.kind, id, &updating, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, o)
}

func (h kindHandlers) handleDelete(c *gin.Context) {
	if err := DeleteOptionFunc(h.kind, bindID(c), session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.AbortWithStatus(http.StatusNoContent)
}

func bindID(c *gin.Context) types.ID {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	return id
}
