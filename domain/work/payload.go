package work

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"printflow/account"
	"printflow/bizerror"
	"printflow/common"
	"printflow/domain/option"
	"sort"
	"strings"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
)

// Payload is a partial work record keyed by column name, as sent by clients.
// Keys without a decoder are ignored once the write check has passed.
type Payload map[string]json.RawMessage

func (p Payload) Fields() []string {
	fields := make([]string, 0, len(p))
	for k := range p {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

func (p Payload) Has(field string) bool {
	_, ok := p[field]
	return ok
}

// position returns the requested priority, if any.
func (p Payload) position() (int, bool, error) {
	raw, ok := p["priority"]
	if !ok || isNull(raw) {
		return 0, false, nil
	}
	var position int
	if err := json.Unmarshal(raw, &position); err != nil || position < 1 {
		return 0, false, &bizerror.ErrBadParam{Cause: errors.New("priority must be an integer not less than 1")}
	}
	return position, true, nil
}

type fieldDecoder func(w *Work, raw json.RawMessage, st stamp) error

var fieldDecoders = map[string]fieldDecoder{
	"name": func(w *Work, raw json.RawMessage, st stamp) error {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return fieldError("name", err)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return fieldError("name", errors.New("must not be blank"))
		}
		if len(name) > 200 {
			return fieldError("name", errors.New("must not exceed 200 characters"))
		}
		w.Name = name
		return nil
	},
	"price": func(w *Work, raw json.RawMessage, st stamp) error {
		if isNull(raw) || string(raw) == `""` {
			w.Price = decimal.NullDecimal{}
			return nil
		}
		price := decimal.NullDecimal{}
		if err := price.UnmarshalJSON(raw); err != nil {
			return fieldError("price", err)
		}
		w.Price = price
		return nil
	},
	"category":            refDecoder("category", func(w *Work) **types.ID { return &w.CategoryID }),
	"type":                refDecoder("type", func(w *Work) **types.ID { return &w.TypeID }),
	"sales_channel":       refDecoder("sales_channel", func(w *Work) **types.ID { return &w.SalesChannelID }),
	"designer":            refDecoder("designer", func(w *Work) **types.ID { return &w.DesignerID }),
	"printing_controller": refDecoder("printing_controller", func(w *Work) **types.ID { return &w.PrintingControllerID }),

	"designer_text":            textDecoder("designer_text", 200, func(w *Work) **string { return &w.DesignerText }),
	"material_info":            textDecoder("material_info", 0, func(w *Work) **string { return &w.MaterialInfo }),
	"printing_location":        textDecoder("printing_location", 100, func(w *Work) **string { return &w.PrintingLocation }),
	"printing_controller_text": textDecoder("printing_controller_text", 200, func(w *Work) **string { return &w.PrintingControllerText }),
	"mixed":                    textDecoder("mixed", 200, func(w *Work) **string { return &w.Mixed }),
	"note":                     textDecoder("note", 0, func(w *Work) **string { return &w.Note }),

	"design_start_date":   dateDecoder("design_start_date", func(w *Work) **common.Date { return &w.DesignStartDate }),
	"design_end_date":     dateDecoder("design_end_date", func(w *Work) **common.Date { return &w.DesignEndDate }),
	"printing_start_date": dateDecoder("printing_start_date", func(w *Work) **common.Date { return &w.PrintingStartDate }),
	"printing_end_date":   dateDecoder("printing_end_date", func(w *Work) **common.Date { return &w.PrintingEndDate }),
	"packaging_date":      dateDecoder("packaging_date", func(w *Work) **common.Date { return &w.PackagingDate }),
	"shipping_date":       dateDecoder("shipping_date", func(w *Work) **common.Date { return &w.ShippingDate }),

	"printing_confirm": boolDecoder("printing_confirm", func(w *Work) *bool { return &w.PrintingConfirm }),
	"printing_control": boolDecoder("printing_control", func(w *Work) *bool { return &w.PrintingControl }),
	"stock_entry":      boolDecoder("stock_entry", func(w *Work) *bool { return &w.StockEntry }),

	"links": func(w *Work, raw json.RawMessage, st stamp) error {
		var incoming []LinkCreation
		if err := decodeList(raw, &incoming); err != nil {
			return fieldError("links", err)
		}
		links, err := replaceLinks(incoming, w.Links, st)
		if err != nil {
			return err
		}
		w.Links = links
		return nil
	},
	"confirmations": func(w *Work, raw json.RawMessage, st stamp) error {
		var incoming []ConfirmationCreation
		if err := decodeList(raw, &incoming); err != nil {
			return fieldError("confirmations", err)
		}
		confirmations, err := replaceConfirmations(incoming, w.Confirmations, st)
		if err != nil {
			return err
		}
		w.Confirmations = confirmations
		return nil
	},
	"printing_locations": func(w *Work, raw json.RawMessage, st stamp) error {
		var incoming []PrintingLocationCreation
		if err := decodeList(raw, &incoming); err != nil {
			return fieldError("printing_locations", err)
		}
		locations, err := replacePrintingLocations(incoming, w.PrintingLocations, st)
		if err != nil {
			return err
		}
		w.PrintingLocations = locations
		return nil
	},
}

// apply decodes every known payload field into w. Priority is handled by the caller.
func (p Payload) apply(w *Work, st stamp) error {
	for _, field := range p.Fields() {
		decode, ok := fieldDecoders[field]
		if !ok {
			continue
		}
		if err := decode(w, p[field], st); err != nil {
			return err
		}
	}
	return nil
}

// checkReferences verifies the references set by the payload point to active records.
func (p Payload) checkReferences(w *Work, tx *gorm.DB) error {
	options := []struct {
		field string
		kind  option.Kind
		id    *types.ID
	}{
		{"category", option.Categories, w.CategoryID},
		{"type", option.WorkTypes, w.TypeID},
		{"sales_channel", option.SalesChannels, w.SalesChannelID},
	}
	for _, o := range options {
		if o.id == nil || !p.Has(o.field) {
			continue
		}
		if _, err := option.FindActive(o.kind, *o.id, tx); err != nil {
			return err
		}
	}

	users := []struct {
		field string
		id    *types.ID
	}{
		{"designer", w.DesignerID},
		{"printing_controller", w.PrintingControllerID},
	}
	for _, u := range users {
		if u.id == nil || !p.Has(u.field) {
			continue
		}
		if _, err := account.FindActiveUser(*u.id, tx); err != nil {
			return err
		}
	}
	return nil
}

func refDecoder(field string, target func(w *Work) **types.ID) fieldDecoder {
	return func(w *Work, raw json.RawMessage, st stamp) error {
		if isNull(raw) || string(raw) == `""` {
			*target(w) = nil
			return nil
		}
		var id types.ID
		if err := json.Unmarshal(raw, &id); err != nil {
			return fieldError(field, err)
		}
		if id == 0 {
			*target(w) = nil
			return nil
		}
		*target(w) = &id
		return nil
	}
}

// textDecoder maps null and blank strings to nil. A zero limit means unbounded.
func textDecoder(field string, limit int, target func(w *Work) **string) fieldDecoder {
	return func(w *Work, raw json.RawMessage, st stamp) error {
		if isNull(raw) {
			*target(w) = nil
			return nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fieldError(field, err)
		}
		if strings.TrimSpace(s) == "" {
			*target(w) = nil
			return nil
		}
		if limit > 0 && len(s) > limit {
			return fieldError(field, fmt.Errorf("must not exceed %d characters", limit))
		}
		*target(w) = &s
		return nil
	}
}

func dateDecoder(field string, target func(w *Work) **common.Date) fieldDecoder {
	return func(w *Work, raw json.RawMessage, st stamp) error {
		if isNull(raw) || string(raw) == `""` {
			*target(w) = nil
			return nil
		}
		d := common.Date{}
		if err := d.UnmarshalJSON(raw); err != nil {
			return fieldError(field, err)
		}
		*target(w) = &d
		return nil
	}
}

func boolDecoder(field string, target func(w *Work) *bool) fieldDecoder {
	return func(w *Work, raw json.RawMessage, st stamp) error {
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return fieldError(field, err)
		}
		*target(w) = b
		return nil
	}
}

func decodeList(raw json.RawMessage, target interface{}) error {
	if isNull(raw) {
		return nil
	}
	return json.Unmarshal(raw, target)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || string(trimmed) == "null"
}

func fieldError(field string, err error) error {
	return &bizerror.ErrBadParam{Cause: fmt.Errorf("%s: %w", field, err)}
}
