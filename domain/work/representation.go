package work

import (
	"printflow/account"
	"printflow/domain/option"
	"printflow/movement"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

// relations holds the records referenced by a batch of works.
type relations struct {
	categories    map[types.ID]option.Ref
	workTypes     map[types.ID]option.Ref
	salesChannels map[types.ID]option.Ref
	users         map[types.ID]account.UserInfo
}

func loadRelations(db *gorm.DB, works ...Work) (*relations, error) {
	var categoryIDs, typeIDs, channelIDs, userIDs []types.ID
	for _, w := range works {
		categoryIDs = appendID(categoryIDs, w.CategoryID)
		typeIDs = appendID(typeIDs, w.TypeID)
		channelIDs = appendID(channelIDs, w.SalesChannelID)
		userIDs = appendID(userIDs, w.DesignerID)
		userIDs = appendID(userIDs, w.PrintingControllerID)
	}

	r := relations{}
	var err error
	if r.categories, err = option.QueryRefs(option.Categories, categoryIDs, db); err != nil {
		return nil, err
	}
	if r.workTypes, err = option.QueryRefs(option.WorkTypes, typeIDs, db); err != nil {
		return nil, err
	}
	if r.salesChannels, err = option.QueryRefs(option.SalesChannels, channelIDs, db); err != nil {
		return nil, err
	}
	if r.users, err = account.QueryUserInfos(userIDs, db); err != nil {
		return nil, err
	}
	return &r, nil
}

func appendID(ids []types.ID, id *types.ID) []types.ID {
	if id == nil {
		return ids
	}
	return append(ids, *id)
}

func lookupOption(refs map[types.ID]option.Ref, id *types.ID) *option.Ref {
	if id == nil {
		return nil
	}
	if ref, ok := refs[*id]; ok {
		return &ref
	}
	return nil
}

func (r *relations) user(id *types.ID) *account.UserInfo {
	if id == nil {
		return nil
	}
	if u, ok := r.users[*id]; ok {
		return &u
	}
	return nil
}

func userDetail(u *account.UserInfo) interface{} {
	if u == nil {
		return nil
	}
	return map[string]interface{}{"id": u.ID, "username": u.Name, "full_name": u.DisplayName(), "email": u.Email}
}

// displayName prefers the free-text override over the referenced user.
func displayName(text *string, u *account.UserInfo) interface{} {
	if text != nil && *text != "" {
		return *text
	}
	if u != nil {
		return u.DisplayName()
	}
	return nil
}

// represent renders the client view of a work, derived fields included.
func (r *relations) represent(w *Work) map[string]interface{} {
	category := lookupOption(r.categories, w.CategoryID)
	workType := lookupOption(r.workTypes, w.TypeID)
	channel := lookupOption(r.salesChannels, w.SalesChannelID)
	designer := r.user(w.DesignerID)
	controller := r.user(w.PrintingControllerID)
	status := w.Status()

	m := map[string]interface{}{
		"id":                          w.ID,
		"name":                        w.Name,
		"category":                    w.CategoryID,
		"price":                       w.Price,
		"type":                        w.TypeID,
		"sales_channel":               w.SalesChannelID,
		"designer":                    w.DesignerID,
		"designer_text":               w.DesignerText,
		"design_start_date":           w.DesignStartDate,
		"design_end_date":             w.DesignEndDate,
		"confirmations":               nonNilConfirmations(w.Confirmations),
		"priority":                    w.Priority,
		"material_info":               w.MaterialInfo,
		"printing_location":           w.PrintingLocation,
		"printing_locations":          nonNilPrintingLocations(w.PrintingLocations),
		"printing_confirm":            w.PrintingConfirm,
		"printing_control":            w.PrintingControl,
		"printing_controller":         w.PrintingControllerID,
		"printing_controller_text":    w.PrintingControllerText,
		"printing_control_date":       w.PrintingControlDate,
		"printing_start_date":         w.PrintingStartDate,
		"printing_end_date":           w.PrintingEndDate,
		"mixed":                       w.Mixed,
		"packaging_date":              w.PackagingDate,
		"stock_entry":                 w.StockEntry,
		"shipping_date":               w.ShippingDate,
		"links":                       nonNilLinks(w.Links),
		"note":                        w.Note,
		"created":                     w.CreateTime,
		"updated":                     w.UpdateTime,
		"status_code":                 status.Code,
		"status_text":                 status.Text,
		"status_color":                status.Color,
		"category_detail":             optionDetail(category),
		"type_detail":                 optionDetail(workType),
		"sales_channel_detail":        optionDetail(channel),
		"designer_detail":             userDetail(designer),
		"printing_controller_detail":  userDetail(controller),
		"designer_display":            displayName(w.DesignerText, designer),
		"printing_controller_display": displayName(w.PrintingControllerText, controller),
	}

	if category != nil {
		m["category_name"] = category.Name
	}
	if workType != nil {
		m["type_name"] = workType.Name
	}
	if channel != nil {
		m["sales_channel_name"] = channel.Name
	}
	if designer != nil {
		m["designer_name"] = designer.DisplayName()
	}
	if controller != nil {
		m["printing_controller_name"] = controller.DisplayName()
	}
	if len(w.Links) > 0 {
		m["link"] = w.Links[0].URL
		m["link_title"] = w.Links[0].Title
	}
	return m
}

func optionDetail(ref *option.Ref) interface{} {
	if ref == nil {
		return nil
	}
	return ref
}

// snapshot captures the stored fields compared by the audit diff. References carry display strings.
func (r *relations) snapshot(w *Work) movement.Snapshot {
	return movement.Snapshot{
		"name":                     w.Name,
		"category":                 optionSnapshot(lookupOption(r.categories, w.CategoryID)),
		"price":                    w.Price,
		"type":                     optionSnapshot(lookupOption(r.workTypes, w.TypeID)),
		"sales_channel":            optionSnapshot(lookupOption(r.salesChannels, w.SalesChannelID)),
		"designer":                 userSnapshot(w.DesignerID, r.user(w.DesignerID)),
		"designer_text":            w.DesignerText,
		"design_start_date":        w.DesignStartDate,
		"design_end_date":          w.DesignEndDate,
		"confirmations":            nonNilConfirmations(w.Confirmations),
		"priority":                 w.Priority,
		"material_info":            w.MaterialInfo,
		"printing_location":        w.PrintingLocation,
		"printing_locations":       nonNilPrintingLocations(w.PrintingLocations),
		"printing_confirm":         w.PrintingConfirm,
		"printing_control":         w.PrintingControl,
		"printing_controller":      userSnapshot(w.PrintingControllerID, r.user(w.PrintingControllerID)),
		"printing_controller_text": w.PrintingControllerText,
		"printing_control_date":    w.PrintingControlDate,
		"printing_start_date":      w.PrintingStartDate,
		"printing_end_date":        w.PrintingEndDate,
		"mixed":                    w.Mixed,
		"packaging_date":           w.PackagingDate,
		"stock_entry":              w.StockEntry,
		"shipping_date":            w.ShippingDate,
		"links":                    nonNilLinks(w.Links),
		"note":                     w.Note,
	}
}

func optionSnapshot(ref *option.Ref) interface{} {
	if ref == nil {
		return nil
	}
	return movement.Ref{ID: ref.ID, Display: ref.Name}
}

func userSnapshot(id *types.ID, u *account.UserInfo) interface{} {
	if id == nil {
		return nil
	}
	if u == nil {
		return movement.Ref{ID: *id, Display: id.String()}
	}
	return movement.Ref{ID: u.ID, Display: u.DisplayName()}
}

func nonNilLinks(l Links) Links {
	if l == nil {
		return Links{}
	}
	return l
}

func nonNilConfirmations(l Confirmations) Confirmations {
	if l == nil {
		return Confirmations{}
	}
	return l
}

func nonNilPrintingLocations(l PrintingLocations) PrintingLocations {
	if l == nil {
		return PrintingLocations{}
	}
	return l
}

func stampTime() time.Time {
	return time.Now().Truncate(time.Second)
}
