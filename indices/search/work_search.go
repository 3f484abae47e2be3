package search

import (
	"printflow/bizerror"
	"printflow/client/es"
	"printflow/domain/permission"
	"printflow/domain/work"
	"printflow/indices"
	"printflow/persistence"
	"printflow/session"
	"sort"
	"strings"

	"github.com/fundwit/go-commons/types"
)

var (
	SearchWorksFunc = SearchWorks
)

// SearchWorks finds works through the index and returns the current database rows of the hits,
// ordered by priority. Without an index it queries the database directly.
func SearchWorks(q *work.WorkQuery, s *session.Session) (*work.WorkPage, error) {
	if !es.Enabled() {
		return work.QueryWorksFunc(q, s)
	}
	g, err := permission.LoadGrantsFunc(s)
	if err != nil {
		return nil, err
	}
	page, size := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = work.DefaultPageSize
	}

	/*
		{
			"query": {"bool": {"filter": [
				{"match": {"name": {"query": "xxx", "operator": "AND"}}},
				{"term": {"status_code": "waiting"}},
				{"term": {"category": "123"}}
			]}},
			"from": 0, "size": 100,
			"sort": [{"priority": {"order": "asc"}}]
		}
	*/
	filters := make([]es.H, 0, 3)
	if name := strings.TrimSpace(q.Name); name != "" {
		filters = append(filters, es.H{"match": es.H{"name": es.H{"query": name, "operator": "AND"}}})
	}
	if q.Status != "" {
		filters = append(filters, es.H{"term": es.H{"status_code": q.Status}})
	}
	if q.CategoryID != 0 {
		filters = append(filters, es.H{"term": es.H{"category": q.CategoryID.String()}})
	}
	root := es.H{"bool": es.H{"filter": filters}}
	sorts := []es.H{{"priority": es.H{"order": "asc"}}}

	r, err := es.SearchFunc(s.Ctx(), indices.WorkIndexName, es.H{"from": (page - 1) * size, "size": size, "query": root, "sort": sorts})
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		id, err := types.ParseID(hit.Id)
		if err != nil {
			return nil, &bizerror.ErrBadParam{Cause: err}
		}
		ids = append(ids, id)
	}

	// the index may lag behind, rows are read fresh and hits of deleted works drop out
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	works, err := work.FindWorks(ids, db)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(works, func(i, j int) bool {
		if works[i].Priority != works[j].Priority {
			return works[i].Priority < works[j].Priority
		}
		return works[i].CreateTime.After(works[j].CreateTime)
	})
	items, err := work.Represent(works, db)
	if err != nil {
		return nil, err
	}
	return &work.WorkPage{Total: r.Hits.Total.Value, Items: g.FilterReadableList(items)}, nil
}

