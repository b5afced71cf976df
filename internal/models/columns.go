package models

import "slices"

// ColumnSet holds the header columns of the selected file in file order and
// the column currently chosen as the email column.
type ColumnSet struct {
	Columns  []string `json:"columns"`
	Selected string   `json:"selectedColumn"`
}

// NewColumnSet builds a ColumnSet that selects the first column, if any.
func NewColumnSet(columns []string) ColumnSet {
	cs := ColumnSet{Columns: columns}
	if cs.Columns == nil {
		cs.Columns = []string{}
	}
	if len(cs.Columns) > 0 {
		cs.Selected = cs.Columns[0]
	}
	return cs
}

// Empty reports whether no header columns are known.
func (cs ColumnSet) Empty() bool {
	return len(cs.Columns) == 0
}

// Contains reports whether name is one of the header columns.
func (cs ColumnSet) Contains(name string) bool {
	return slices.Contains(cs.Columns, name)
}

// Clone returns a copy that does not share the column slice.
func (cs ColumnSet) Clone() ColumnSet {
	return ColumnSet{
		Columns:  append([]string{}, cs.Columns...),
		Selected: cs.Selected,
	}
}
