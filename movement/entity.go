package movement

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fundwit/go-commons/types"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Movement is an immutable audit entry. User and work are snapshotted by name so the entry
// survives deletion of either.
type Movement struct {
	ID types.ID `json:"id" gorm:"primary_key"`

	UserID       *types.ID `json:"userId" gorm:"index"`
	UserFullname string    `json:"userFullname" gorm:"size:200"`
	WorkID       *types.ID `json:"workId" gorm:"index"`
	WorkName     string    `json:"workName" gorm:"size:200"`

	Action      string    `json:"action" gorm:"size:20;not null"`
	Description string    `json:"description" sql:"type:TEXT"`
	Changes     *Changes  `json:"changes" sql:"type:TEXT"`
	CreateTime  time.Time `json:"createTime" gorm:"index"`
}

// Changes holds the structured old and new values of the fields that differ.
type Changes struct {
	Old map[string]interface{} `json:"old"`
	New map[string]interface{} `json:"new"`
}

func (c Changes) Value() (driver.Value, error) {
	jsonBytes, err := json.Marshal(&c)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (c *Changes) Scan(v interface{}) error {
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	return json.Unmarshal([]byte(jsonString), c)
}

type MovementView struct {
	Movement
	UserDisplay string `json:"userDisplay"`
	WorkDisplay string `json:"workDisplay"`
}

type MovementQuery struct {
	WorkID   types.ID `form:"workId"`
	Action   string   `form:"action" binding:"omitempty,oneof=create update delete"`
	Page     int      `form:"page" binding:"omitempty,gte=1"`
	PageSize int      `form:"pageSize" binding:"omitempty,gte=1,lte=200"`
}

type MovementPage struct {
	Total int            `json:"total"`
	Items []MovementView `json:"items"`
}

func (m Movement) View() MovementView {
	v := MovementView{Movement: m, UserDisplay: m.UserFullname, WorkDisplay: m.WorkName}
	if v.UserDisplay == "" {
		v.UserDisplay = "unknown"
	}
	if v.WorkDisplay == "" {
		v.WorkDisplay = "-"
	}
	return v
}
