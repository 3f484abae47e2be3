package work

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"printflow/common"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/shopspring/decimal"
)

const (
	ListLinks             = "links"
	ListConfirmations     = "confirmations"
	ListPrintingLocations = "printing_locations"

	StatusCompleted = "completed"
	StatusPrinting  = "printing"
	StatusWaiting   = "waiting"
)

// Work is a production job. Priority is a dense 1-based order over all works.
type Work struct {
	ID    types.ID            `json:"id" gorm:"primary_key"`
	Name  string              `json:"name" gorm:"size:200;not null"`
	Price decimal.NullDecimal `json:"price" sql:"type:decimal(14,2)"`

	CategoryID     *types.ID `json:"category" gorm:"index"`
	TypeID         *types.ID `json:"type" gorm:"index"`
	SalesChannelID *types.ID `json:"sales_channel" gorm:"index"`

	DesignerID      *types.ID    `json:"designer" gorm:"index"`
	DesignerText    *string      `json:"designer_text" gorm:"size:200"`
	DesignStartDate *common.Date `json:"design_start_date" sql:"type:date"`
	DesignEndDate   *common.Date `json:"design_end_date" sql:"type:date"`

	Confirmations Confirmations `json:"confirmations" sql:"type:TEXT"`
	Priority      int           `json:"priority" gorm:"not null;index"`
	MaterialInfo  *string       `json:"material_info" sql:"type:TEXT"`

	PrintingLocation       *string           `json:"printing_location" gorm:"size:100"`
	PrintingLocations      PrintingLocations `json:"printing_locations" sql:"type:TEXT"`
	PrintingConfirm        bool              `json:"printing_confirm"`
	PrintingControl        bool              `json:"printing_control"`
	PrintingControllerID   *types.ID         `json:"printing_controller" gorm:"index"`
	PrintingControllerText *string           `json:"printing_controller_text" gorm:"size:200"`
	PrintingControlDate    *time.Time        `json:"printing_control_date"`
	PrintingStartDate      *common.Date      `json:"printing_start_date" sql:"type:date"`
	PrintingEndDate        *common.Date      `json:"printing_end_date" sql:"type:date"`

	Mixed         *string      `json:"mixed" gorm:"size:200"`
	PackagingDate *common.Date `json:"packaging_date" sql:"type:date"`
	StockEntry    bool         `json:"stock_entry"`
	ShippingDate  *common.Date `json:"shipping_date" sql:"type:date"`

	Links Links   `json:"links" sql:"type:TEXT"`
	Note  *string `json:"note" sql:"type:TEXT"`

	CreateTime time.Time `json:"created" gorm:"index"`
	UpdateTime time.Time `json:"updated"`
}

// WorkOrderLock is the single-row table every priority-changing transaction updates first.
type WorkOrderLock struct {
	ID      int   `gorm:"primary_key"`
	Version int64 `gorm:"not null"`
}

type Link struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	AddedBy     string `json:"added_by,omitempty"`
	AddedAt     string `json:"added_at,omitempty"`
}

type Confirmation struct {
	Date    string `json:"date"`
	Text    string `json:"text,omitempty"`
	AddedBy string `json:"added_by,omitempty"`
	AddedAt string `json:"added_at,omitempty"`
}

type PrintingLocation struct {
	Location    string `json:"location"`
	Description string `json:"description,omitempty"`
	AddedBy     string `json:"added_by,omitempty"`
	AddedAt     string `json:"added_at,omitempty"`
}

type Links []Link
type Confirmations []Confirmation
type PrintingLocations []PrintingLocation

func (l Links) Value() (driver.Value, error)             { return jsonValue(l) }
func (l *Links) Scan(v interface{}) error                { return jsonScan(v, l) }
func (l Confirmations) Value() (driver.Value, error)     { return jsonValue(l) }
func (l *Confirmations) Scan(v interface{}) error        { return jsonScan(v, l) }
func (l PrintingLocations) Value() (driver.Value, error) { return jsonValue(l) }
func (l *PrintingLocations) Scan(v interface{}) error    { return jsonScan(v, l) }

func jsonValue(v interface{}) (driver.Value, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(jsonBytes) == "null" {
		return "[]", nil
	}
	return string(jsonBytes), nil
}

func jsonScan(v interface{}, target interface{}) error {
	if v == nil {
		return nil
	}
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	if jsonString == "" {
		return nil
	}
	return json.Unmarshal([]byte(jsonString), target)
}

type LinkCreation struct {
	URL         string `json:"url" validate:"required,absurl"`
	Title       string `json:"title" validate:"lte=200"`
	Description string `json:"description"`
}

type ConfirmationCreation struct {
	Date string `json:"date" validate:"required,date"`
	Text string `json:"text"`
}

type PrintingLocationCreation struct {
	Location    string `json:"location" validate:"required,lte=100"`
	Description string `json:"description"`
}

type WorkQuery struct {
	Name       string   `form:"name"`
	Status     string   `form:"status" binding:"omitempty,oneof=completed printing waiting"`
	CategoryID types.ID `form:"categoryId"`
	Page       int      `form:"page" binding:"omitempty,gte=1"`
	PageSize   int      `form:"pageSize" binding:"omitempty,gte=1,lte=500"`
}

type WorkPage struct {
	Total int                      `json:"total"`
	Items []map[string]interface{} `json:"items"`
}

type PriorityUpdating struct {
	Position int `json:"position" binding:"required,gte=1"`
}

type ReorderItem struct {
	ID       types.ID `json:"id" binding:"required"`
	Priority int      `json:"priority" binding:"required,gte=1"`
}

type PriorityEntry struct {
	ID       types.ID `json:"id"`
	Name     string   `json:"name"`
	Priority int      `json:"priority"`
}

type ReorderResult struct {
	Changed  bool            `json:"changed"`
	Updated  int             `json:"updated"`
	Skipped  []types.ID      `json:"skipped"`
	Ordering []PriorityEntry `json:"ordering"`
}

type Status struct {
	Code  string
	Text  string
	Color string
}

func (w *Work) Status() Status {
	switch {
	case w.StockEntry:
		return Status{Code: StatusCompleted, Text: "Completed", Color: "#dc3545"}
	case w.PrintingConfirm:
		return Status{Code: StatusPrinting, Text: "Printing", Color: "#28a745"}
	default:
		return Status{Code: StatusWaiting, Text: "Waiting", Color: "#6c757d"}
	}
}
