package bizerror

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrInvalidPassword = errors.New("invalid password")

	ErrTokenMissing = errors.New("authentication credentials were not provided")
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("token is invalid")
)

type BizError interface {
	Respond() *BizErrorDetail
}

type BizErrorDetail struct {
	Status  int
	Code    string
	Message string

	Data  interface{}
	Cause error
}

type ErrBadParam struct {
	Cause error
}

func (e *ErrBadParam) Unwrap() error {
	return e.Cause
}
func (e *ErrBadParam) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "common.bad_param"
}
func (e *ErrBadParam) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "common.bad_param", Message: e.Error(), Data: nil}
}

// ErrConflict reports a uniqueness violation, e.g. a duplicated sub-list key or role name.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	if e.Message == "" {
		return "common.conflict"
	}
	return e.Message
}
func (e *ErrConflict) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusConflict, Code: "common.conflict", Message: e.Error()}
}

// ErrFieldsNotWritable names every payload field the caller may not write.
type ErrFieldsNotWritable struct {
	Fields []string
}

func (e *ErrFieldsNotWritable) Error() string {
	return "no write permission on fields: " + strings.Join(e.Fields, ", ")
}
func (e *ErrFieldsNotWritable) Is(target error) bool {
	return target == ErrForbidden
}
func (e *ErrFieldsNotWritable) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusForbidden, Code: "security.fields_not_writable", Message: e.Error(), Data: e.Fields}
}

// ErrItemNotFound reports a missing sub-list entry; the parent record is untouched.
type ErrItemNotFound struct {
	List string
	Key  string
}

func (e *ErrItemNotFound) Error() string {
	return e.List + " item '" + e.Key + "' not found"
}
func (e *ErrItemNotFound) Is(target error) bool {
	return target == ErrNotFound
}
func (e *ErrItemNotFound) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusNotFound, Code: "common.item_not_found", Message: e.Error()}
}
