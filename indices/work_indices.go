package indices

import (
	"context"
	"fmt"
	"printflow/client/es"
	"printflow/domain/work"
	"printflow/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

var (
	WorkIndexName = "works"
)

type BatchActionError map[types.ID]error

func (e BatchActionError) Error() string {
	return fmt.Sprintf("%v", map[types.ID]error(e))
}

// IndexWorks writes the representation of each work as its document; every failure is collected.
func IndexWorks(ctx context.Context, works []work.Work) error {
	if len(works) == 0 {
		return nil
	}
	docs, err := work.Represent(works, persistence.ActiveDataSourceManager.GormDB(ctx))
	if err != nil {
		return err
	}

	errs := BatchActionError{}
	for i, doc := range docs {
		id := works[i].ID
		if err := es.IndexFunc(ctx, WorkIndexName, id, doc); err != nil {
			errs[id] = err
			logrus.Warnf("index work %s %s: %v", id, works[i].Name, err)
		} else {
			logrus.Debugf("index work %s %s successfully", id, works[i].Name)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
