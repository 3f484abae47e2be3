package option

import (
	"errors"
	"printflow/bizerror"
	"printflow/idgen"
	"printflow/persistence"
	"printflow/session"
	"strings"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

// Kind names one dropdown table. WorkColumn is the work column referencing it.
type Kind struct {
	Name       string
	Table      string
	Path       string
	WorkColumn string
}

var (
	Categories    = Kind{Name: "category", Table: "categories", Path: "/v1/categories", WorkColumn: "category_id"}
	WorkTypes     = Kind{Name: "type", Table: "work_types", Path: "/v1/work-types", WorkColumn: "type_id"}
	SalesChannels = Kind{Name: "sales channel", Table: "sales_channels", Path: "/v1/sales-channels", WorkColumn: "sales_channel_id"}

	Kinds = []Kind{Categories, WorkTypes, SalesChannels}
)

type Option struct {
	ID         types.ID  `json:"id" gorm:"primary_key"`
	Name       string    `json:"name" gorm:"size:100;unique_index;not null"`
	IsActive   bool      `json:"isActive"`
	Order      int       `json:"order" gorm:"column:sort_order"`
	CreateTime time.Time `json:"createTime"`
}

type OptionCreation struct {
	Name     string `json:"name" binding:"required,lte=100"`
	IsActive *bool  `json:"isActive"`
	Order    int    `json:"order"`
}

type OptionUpdating struct {
	Name     *string `json:"name" binding:"omitempty,gte=1,lte=100"`
	IsActive *bool   `json:"isActive"`
	Order    *int    `json:"order"`
}

// Ref is the short form embedded in work representations.
type Ref struct {
	ID   types.ID `json:"id"`
	Name string   `json:"name"`
}

var (
	optionIdWorker = idgen.NewWorker()

	// DeletionCleaners detach rows of other modules from an option inside the deleting transaction.
	DeletionCleaners []func(kind Kind, id types.ID, tx *gorm.DB) error

	QueryOptionsFunc = QueryOptions
	DetailOptionFunc = DetailOption
	CreateOptionFunc = CreateOption
	UpdateOptionFunc = UpdateOption
	DeleteOptionFunc = DeleteOption
)

func Migrate(db *gorm.DB) error {
	for _, k := range Kinds {
		if err := db.Table(k.Table).AutoMigrate(&Option{}).Error; err != nil {
			return err
		}
	}
	return nil
}

// QueryOptions lists the active options of a kind ordered by order then name.
func QueryOptions(kind Kind, s *session.Session) ([]Option, error) {
	if !s.IsAuthenticated() {
		return nil, bizerror.ErrUnauthenticated
	}
	options := []Option{}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	if err := db.Table(kind.Table).Where("is_active = ?", true).Order("sort_order ASC, name ASC").Find(&options).Error; err != nil {
		return nil, err
	}
	return options, nil
}

func DetailOption(kind Kind, id types.ID, s *session.Session) (*Option, error) {
	if !s.IsAuthenticated() {
		return nil, bizerror.ErrUnauthenticated
	}
	o := Option{}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	if err := db.Table(kind.Table).Where("id = ? AND is_active = ?", id, true).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func CreateOption(kind Kind, c *OptionCreation, s *session.Session) (*Option, error) {
	if !s.IsAdmin() {
		return nil, bizerror.ErrForbidden
	}
	o := Option{ID: idgen.NextID(optionIdWorker), Name: strings.TrimSpace(c.Name), IsActive: true, Order: c.Order, CreateTime: time.Now()}
	if c.IsActive != nil {
		o.IsActive = *c.IsActive
	}
	err := persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Transaction(func(tx *gorm.DB) error {
		if err := checkName(tx, kind, 0, o.Name); err != nil {
			return err
		}
		return tx.Table(kind.Table).Create(&o).Error
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func UpdateOption(kind Kind, id types.ID, u *OptionUpdating, s *session.Session) (*Option, error) {
	if !s.IsAdmin() {
		return nil, bizerror.ErrForbidden
	}
	o := Option{}
	err := persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(kind.Table).Where("id = ?", id).First(&o).Error; err != nil {
			return err
		}
		changes := map[string]interface{}{}
		if u.Name != nil {
			name := strings.TrimSpace(*u.Name)
			if err := checkName(tx, kind, id, name); err != nil {
				return err
			}
			changes["name"] = name
		}
		if u.IsActive != nil {
			changes["is_active"] = *u.IsActive
		}
		if u.Order != nil {
			changes["sort_order"] = *u.Order
		}
		if len(changes) == 0 {
			return nil
		}
		if err := tx.Table(kind.Table).Where("id = ?", id).Updates(changes).Error; err != nil {
			return err
		}
		return tx.Table(kind.Table).Where("id = ?", id).First(&o).Error
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// DeleteOption removes the option; works referencing it keep existing with an empty reference.
func DeleteOption(kind Kind, id types.ID, s *session.Session) error {
	if !s.IsAdmin() {
		return bizerror.ErrForbidden
	}
	return persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(kind.Table).Where("id = ?", id).First(&Option{}).Error; err != nil {
			return err
		}
		for _, clean := range DeletionCleaners {
			if err := clean(kind, id, tx); err != nil {
				return err
			}
		}
		return tx.Table(kind.Table).Where("id = ?", id).Delete(&Option{}).Error
	})
}

// QueryRefs loads the options of the given ids, inactive ones included.
func QueryRefs(kind Kind, ids []types.ID, db *gorm.DB) (map[types.ID]Ref, error) {
	result := map[types.ID]Ref{}
	if len(ids) == 0 {
		return result, nil
	}
	var options []Option
	if err := db.Table(kind.Table).Where("id IN (?)", ids).Find(&options).Error; err != nil {
		return nil, err
	}
	for _, o := range options {
		result[o.ID] = Ref{ID: o.ID, Name: o.Name}
	}
	return result, nil
}

// FindActive reports a bad parameter when the id does not name an active option of the kind.
func FindActive(kind Kind, id types.ID, db *gorm.DB) (*Ref, error) {
	o := Option{}
	if err := db.Table(kind.Table).Where("id = ? AND is_active = ?", id, true).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &bizerror.ErrBadParam{Cause: errors.New(kind.Name + " " + id.String() + " does not exist or is inactive")}
		}
		return nil, err
	}
	return &Ref{ID: o.ID, Name: o.Name}, nil
}

func checkName(tx *gorm.DB, kind Kind, exclude types.ID, name string) error {
	if name == "" {
		return &bizerror.ErrBadParam{Cause: errors.New(kind.Name + " name must not be blank")}
	}
	var count int
	if err := tx.Table(kind.Table).Where("name = ? AND id <> ?", name, exclude).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return &bizerror.ErrConflict{Message: kind.Name + " '" + name + "' already exists"}
	}
	return nil
}
