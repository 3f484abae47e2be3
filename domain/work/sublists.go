package work

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"printflow/bizerror"
	"printflow/common"
	"printflow/session"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var itemValidator = newItemValidator()

func newItemValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("absurl", func(fl validator.FieldLevel) bool {
		return isAbsoluteURL(fl.Field().String())
	})
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := common.ParseDate(strings.TrimSpace(fl.Field().String()))
		return err == nil
	})
	return v
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp", "ftps":
		return true
	}
	return false
}

// stamp is the audit trail written into every sub-list item added by a caller.
type stamp struct {
	by string
	at string
}

func newStamp(identity session.Identity) stamp {
	return stamp{by: fmt.Sprintf("%s (%s)", identity.DisplayName(), identity.ID), at: time.Now().Format(time.RFC3339)}
}

type subList struct {
	column string
	key    string
	add    func(w *Work, raw json.RawMessage, st stamp) error
	remove func(w *Work, key string) bool
	items  func(w *Work) interface{}
	count  func(w *Work) int
}

var subLists = map[string]subList{
	ListLinks: {
		column: ListLinks,
		key:    "url",
		add: func(w *Work, raw json.RawMessage, st stamp) error {
			c := LinkCreation{}
			if err := decodeItem(raw, &c); err != nil {
				return err
			}
			return w.AddLink(c, st)
		},
		remove: func(w *Work, key string) bool { return w.RemoveLink(key) },
		items:  func(w *Work) interface{} { return w.Links },
		count:  func(w *Work) int { return len(w.Links) },
	},
	ListConfirmations: {
		column: ListConfirmations,
		key:    "date",
		add: func(w *Work, raw json.RawMessage, st stamp) error {
			c := ConfirmationCreation{}
			if err := decodeItem(raw, &c); err != nil {
				return err
			}
			return w.AddConfirmation(c, st)
		},
		remove: func(w *Work, key string) bool { return w.RemoveConfirmation(key) },
		items:  func(w *Work) interface{} { return w.Confirmations },
		count:  func(w *Work) int { return len(w.Confirmations) },
	},
	ListPrintingLocations: {
		column: ListPrintingLocations,
		key:    "location",
		add: func(w *Work, raw json.RawMessage, st stamp) error {
			c := PrintingLocationCreation{}
			if err := decodeItem(raw, &c); err != nil {
				return err
			}
			return w.AddPrintingLocation(c, st)
		},
		remove: func(w *Work, key string) bool { return w.RemovePrintingLocation(key) },
		items:  func(w *Work) interface{} { return w.PrintingLocations },
		count:  func(w *Work) int { return len(w.PrintingLocations) },
	},
}

func lookupSubList(name string) (subList, error) {
	l, ok := subLists[name]
	if !ok {
		return subList{}, &bizerror.ErrBadParam{Cause: errors.New("unknown list '" + name + "'")}
	}
	return l, nil
}

func decodeItem(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 {
		return &bizerror.ErrBadParam{Cause: errors.New("item is required")}
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return &bizerror.ErrBadParam{Cause: err}
	}
	if err := itemValidator.Struct(target); err != nil {
		return &bizerror.ErrBadParam{Cause: err}
	}
	return nil
}

func (w *Work) AddLink(c LinkCreation, st stamp) error {
	u := strings.TrimSpace(c.URL)
	if !isAbsoluteURL(u) {
		return &bizerror.ErrBadParam{Cause: errors.New("invalid url '" + c.URL + "'")}
	}
	w.Links = append(w.Links, Link{URL: u, Title: strings.TrimSpace(c.Title),
		Description: strings.TrimSpace(c.Description), AddedBy: st.by, AddedAt: st.at})
	return nil
}

// RemoveLink drops the most recently added link with the url. Urls may repeat, so an add
// followed by a remove leaves the earlier entries in place.
func (w *Work) RemoveLink(u string) bool {
	for i := len(w.Links) - 1; i >= 0; i-- {
		if w.Links[i].URL == u {
			w.Links = append(w.Links[:i:i], w.Links[i+1:]...)
			return true
		}
	}
	return false
}

func (w *Work) AddConfirmation(c ConfirmationCreation, st stamp) error {
	d, err := common.ParseDate(strings.TrimSpace(c.Date))
	if err != nil {
		return &bizerror.ErrBadParam{Cause: err}
	}
	date := d.String()
	for _, existing := range w.Confirmations {
		if existing.Date == date {
			return &bizerror.ErrConflict{Message: "confirmation for " + date + " already exists"}
		}
	}
	w.Confirmations = append(w.Confirmations, Confirmation{Date: date, Text: strings.TrimSpace(c.Text),
		AddedBy: st.by, AddedAt: st.at})
	return nil
}

func (w *Work) RemoveConfirmation(date string) bool {
	for i, c := range w.Confirmations {
		if c.Date == date {
			w.Confirmations = append(w.Confirmations[:i:i], w.Confirmations[i+1:]...)
			return true
		}
	}
	return false
}

// AddPrintingLocation rejects a location already present; the comparison is case-sensitive.
func (w *Work) AddPrintingLocation(c PrintingLocationCreation, st stamp) error {
	location := strings.TrimSpace(c.Location)
	if location == "" {
		return &bizerror.ErrBadParam{Cause: errors.New("location is required")}
	}
	for _, existing := range w.PrintingLocations {
		if existing.Location == location {
			return &bizerror.ErrConflict{Message: "printing location '" + location + "' already exists"}
		}
	}
	w.PrintingLocations = append(w.PrintingLocations, PrintingLocation{Location: location,
		Description: strings.TrimSpace(c.Description), AddedBy: st.by, AddedAt: st.at})
	return nil
}

func (w *Work) RemovePrintingLocation(location string) bool {
	for i, l := range w.PrintingLocations {
		if l.Location == location {
			w.PrintingLocations = append(w.PrintingLocations[:i:i], w.PrintingLocations[i+1:]...)
			return true
		}
	}
	return false
}

// replaceLinks validates a full link list from a record payload. Links already on the record keep
// their stamps, every other link is stamped with the caller.
func replaceLinks(incoming []LinkCreation, prior Links, st stamp) (Links, error) {
	stamps := map[string]Link{}
	for _, l := range prior {
		if _, ok := stamps[l.URL]; !ok {
			stamps[l.URL] = l
		}
	}
	w := Work{}
	for i, c := range incoming {
		if err := itemValidator.Struct(&c); err != nil {
			return nil, &bizerror.ErrBadParam{Cause: fmt.Errorf("link %d: %w", i+1, err)}
		}
		itemStamp := st
		if old, ok := stamps[strings.TrimSpace(c.URL)]; ok && old.AddedBy != "" {
			itemStamp = stamp{by: old.AddedBy, at: old.AddedAt}
		}
		if err := w.AddLink(c, itemStamp); err != nil {
			return nil, err
		}
	}
	if w.Links == nil {
		return Links{}, nil
	}
	return w.Links, nil
}

func replaceConfirmations(incoming []ConfirmationCreation, prior Confirmations, st stamp) (Confirmations, error) {
	stamps := map[string]Confirmation{}
	for _, c := range prior {
		stamps[c.Date] = c
	}
	w := Work{}
	for i, c := range incoming {
		if err := itemValidator.Struct(&c); err != nil {
			return nil, &bizerror.ErrBadParam{Cause: fmt.Errorf("confirmation %d: %w", i+1, err)}
		}
		itemStamp := st
		if old, ok := stamps[strings.TrimSpace(c.Date)]; ok && old.AddedBy != "" {
			itemStamp = stamp{by: old.AddedBy, at: old.AddedAt}
		}
		if err := w.AddConfirmation(c, itemStamp); err != nil {
			return nil, err
		}
	}
	if w.Confirmations == nil {
		return Confirmations{}, nil
	}
	return w.Confirmations, nil
}

func replacePrintingLocations(incoming []PrintingLocationCreation, prior PrintingLocations, st stamp) (PrintingLocations, error) {
	stamps := map[string]PrintingLocation{}
	for _, l := range prior {
		stamps[l.Location] = l
	}
	w := Work{}
	for i, c := range incoming {
		if err := itemValidator.Struct(&c); err != nil {
			return nil, &bizerror.ErrBadParam{Cause: fmt.Errorf("printing location %d: %w", i+1, err)}
		}
		itemStamp := st
		if old, ok := stamps[strings.TrimSpace(c.Location)]; ok && old.AddedBy != "" {
			itemStamp = stamp{by: old.AddedBy, at: old.AddedAt}
		}
		if err := w.AddPrintingLocation(c, itemStamp); err != nil {
			return nil, err
		}
	}
	if w.PrintingLocations == nil {
		return PrintingLocations{}, nil
	}
	return w.PrintingLocations, nil
}
