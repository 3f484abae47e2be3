package permission

// Level is the access a role has on one work column.
type Level string

const (
	LevelNone  Level = "none"
	LevelRead  Level = "read"
	LevelWrite Level = "write"
)

func (l Level) rank() int {
	switch l {
	case LevelWrite:
		return 2
	case LevelRead:
		return 1
	default:
		return 0
	}
}

func (l Level) Valid() bool {
	return l == LevelNone || l == LevelRead || l == LevelWrite
}

const (
	WorkCreate  = "work_create"
	WorkDelete  = "work_delete"
	WorkReorder = "work_reorder"
)

type Column struct {
	Name        string `json:"columnName"`
	DisplayName string `json:"displayName"`
}

type LevelOption struct {
	Value   Level  `json:"value"`
	Display string `json:"display"`
}

var (
	Columns = []Column{
		{"name", "Name"},
		{"category", "Category"},
		{"price", "Price"},
		{"type", "Type"},
		{"sales_channel", "Sales Channel"},
		{"designer", "Designer"},
		{"designer_text", "Designer (Text)"},
		{"design_start_date", "Design Start Date"},
		{"design_end_date", "Design End Date"},
		{"confirmations", "Confirmations"},
		{"priority", "Priority"},
		{"material_info", "Material Info"},
		{"printing_location", "Printing Location"},
		{"printing_locations", "Printing Locations"},
		{"printing_confirm", "Printing Confirm"},
		{"printing_control", "Printing Control"},
		{"printing_controller", "Printing Controller"},
		{"printing_controller_text", "Printing Controller (Text)"},
		{"printing_control_date", "Printing Control Date"},
		{"printing_start_date", "Printing Start Date"},
		{"printing_end_date", "Printing End Date"},
		{"mixed", "Mixed"},
		{"packaging_date", "Packaging Date"},
		{"stock_entry", "Stock Entry"},
		{"shipping_date", "Shipping Date"},
		{"links", "Links"},
		{"note", "Note"},
		{"category_detail", "Category Detail"},
		{"type_detail", "Type Detail"},
		{"sales_channel_detail", "Sales Channel Detail"},
		{"designer_detail", "Designer Detail"},
		{"printing_controller_detail", "Printing Controller Detail"},
		{"status_code", "Status Code"},
		{"status_text", "Status Text"},
		{"status_color", "Status Color"},
	}

	SystemPermissionTypes = []Column{
		{WorkCreate, "Create Work"},
		{WorkDelete, "Delete Work"},
		{WorkReorder, "Reorder Work"},
	}

	Levels = []LevelOption{
		{LevelNone, "No Access"},
		{LevelRead, "Read Only"},
		{LevelWrite, "Read and Write"},
	}

	// fields every caller sees regardless of column grants
	alwaysVisible = newFieldSet(
		"id", "created", "updated",
		"status_code", "status_text", "status_color",
		"category_detail", "type_detail", "sales_channel_detail", "designer_detail", "printing_controller_detail",
		"category_name", "type_name", "sales_channel_name", "designer_name", "printing_controller_name",
		"designer_display", "printing_controller_display",
		"confirm_date", "link", "link_title",
	)

	// fields never checked for write access, they are ignored on input
	readOnly = newFieldSet(
		"id", "created", "updated", "printing_control_date",
		"status_code", "status_text", "status_color",
		"category_detail", "type_detail", "sales_channel_detail", "designer_detail", "printing_controller_detail",
		"category_name", "type_name", "sales_channel_name", "designer_name", "printing_controller_name",
		"designer_display", "printing_controller_display",
		"link", "link_title", "confirm_date",
	)

	columnIndex = indexColumns(Columns)
	systemIndex = indexColumns(SystemPermissionTypes)
)

type fieldSet map[string]struct{}

func newFieldSet(fields ...string) fieldSet {
	s := fieldSet{}
	for _, f := range fields {
		s[f] = struct{}{}
	}
	return s
}

func (s fieldSet) has(f string) bool {
	_, ok := s[f]
	return ok
}

func indexColumns(columns []Column) map[string]Column {
	m := make(map[string]Column, len(columns))
	for _, c := range columns {
		m[c.Name] = c
	}
	return m
}

func IsKnownColumn(name string) bool {
	_, ok := columnIndex[name]
	return ok
}

func IsKnownSystemPermission(t string) bool {
	_, ok := systemIndex[t]
	return ok
}

// ColumnDisplayName returns the label of a catalog column, or the name itself for unknown columns.
func ColumnDisplayName(name string) string {
	if c, ok := columnIndex[name]; ok {
		return c.DisplayName
	}
	return name
}

func IsAlwaysVisible(field string) bool {
	return alwaysVisible.has(field)
}

func IsReadOnly(field string) bool {
	return readOnly.has(field)
}
