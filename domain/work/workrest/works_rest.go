package workrest

import (
	"encoding/json"
	"io"
	"net/http"
	"printflow/bizerror"
	"printflow/domain/work"
	"printflow/indices/search"
	"printflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var (
	PathWorks                  = "/v1/works"
	PathWorkOrders             = "/v1/work-orders"
	PathWorkOrderNormalization = "/v1/work-order-normalizations"
)

// subListPaths maps the url segment of a sub-list to its list name and the query key of deletions.
var subListPaths = []struct {
	segment string
	list    string
	key     string
}{
	{"links", work.ListLinks, "url"},
	{"confirmations", work.ListConfirmations, "date"},
	{"printing-locations", work.ListPrintingLocations, "location"},
}

func RegisterWorksRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathWorks, middleWares...)
	g.GET("", handleQuery)
	g.POST("", handleCreate)
	g.GET(":id", handleDetail)
	g.PATCH(":id", handleUpdate)
	g.DELETE(":id", handleDelete)
	g.PUT(":id/priority", handleSetPriority)
	for _, l := range subListPaths {
		g.POST(":id/"+l.segment, handleAddSubListItem(l.list))
		g.DELETE(":id/"+l.segment, handleRemoveSubListItem(l.list, l.key))
	}

	o := r.Group(PathWorkOrders, middleWares...)
	o.PUT("", handleUpdateOrders)

	n := r.Group(PathWorkOrderNormalization, middleWares...)
	n.POST("", handleNormalizeOrders)
}

func handleQuery(c *gin.Context) {
	query := work.WorkQuery{}
	if err := c.ShouldBindQuery(&query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	page, err := search.SearchWorksFunc(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, page)
}

func handleCreate(c *gin.Context) {
	detail, err := work.CreateWorkFunc(bindPayload(c), session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, detail)
}

func handleDetail(c *gin.Context) {
	detail, err := work.DetailWorkFunc(bindID(c), session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, detail)
}

func handleUpdate(c *gin.Context) {
	id := bindID(c)
	detail, err := work.UpdateWorkFunc(id, bindPayload(c), session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, detail)
}

func handleDelete(c *gin.Context) {
	if err := work.DeleteWorkFunc(bindID(c), session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.AbortWithStatus(http.StatusNoContent)
}

func handleAddSubListItem(list string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := bindID(c)
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			panic(&bizerror.ErrBadParam{Cause: err})
		}
		items, err := work.AddSubListItemFunc(id, list, body, session.ExtractSessionFromGinContext(c))
		if err != nil {
			panic(err)
		}
		c.JSON(http.StatusCreated, gin.H{list: items})
	}
}

func handleRemoveSubListItem(list, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := bindID(c)
		items, err := work.RemoveSubListItemFunc(id, list, c.Query(key), session.ExtractSessionFromGinContext(c))
		if err != nil {
			panic(err)
		}
		c.JSON(http.StatusOK, gin.H{list: items})
	}
}

func handleSetPriority(c *gin.Context) {
	id := bindID(c)
	updating := work.PriorityUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	result, err := work.SetPriorityFunc(id, updating.Position, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, result)
}

func handleUpdateOrders(c *gin.Context) {
	var items []work.ReorderItem
	if err := c.ShouldBindBodyWith(&items, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	result, err := work.ReorderBulkFunc(items, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, result)
}

func handleNormalizeOrders(c *gin.Context) {
	result, err := work.NormalizePrioritiesFunc(session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, result)
}

func bindID(c *gin.Context) types.ID {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	return id
}

func bindPayload(c *gin.Context) work.Payload {
	p := work.Payload{}
	if err := json.NewDecoder(c.Request.Body).Decode(&p); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	return p
}
