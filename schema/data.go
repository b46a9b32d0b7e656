package schema

import (
	"fmt"

	"fmgo/ds"
)

type (
	// ResultType is the storage type a field's values resolve to.
	ResultType string
	// EntryType tells how a field gets its value.
	EntryType string
	// RuleMask is a bitmask of the pre-validation rules active on a field.
	RuleMask uint16

	Field struct {
		Name        string
		Result      ResultType
		Entry       EntryType
		AutoEntered bool
		Global      bool
		MaxRepeat   int
		Rules       RuleMask
		// RuleBounds carries extra constraint data per rule,
		// currently only the bound for RuleMaxCharacters.
		RuleBounds map[RuleMask]int
		ValueList  string
		StyleType  string
	}

	// RelatedSet is a portal definition: a field namespace scoped to
	// related records shown on a layout.
	RelatedSet struct {
		Name   string
		layout *Layout
		fields *ds.LinkedHashMap[string, *Field]
	}

	Layout struct {
		Name     string
		Database string
		Table    string

		fields      *ds.LinkedHashMap[string, *Field]
		relatedSets *ds.LinkedHashMap[string, *RelatedSet]

		valueLists    *ds.LinkedHashMap[string, []string]
		displayValues map[string]map[string]string

		extended bool
		loader   ExtendedInfoLoader
	}

	// ExtendedInfo is the secondary metadata the legacy grammar serves
	// from a separate document: value lists and per-field style types.
	ExtendedInfo struct {
		ValueLists    *ds.LinkedHashMap[string, []string]
		DisplayValues map[string]map[string]string
		Styles        map[string]string
	}

	// ExtendedInfoLoader fetches ExtendedInfo for a layout, optionally
	// scoped to a record for dynamic value lists.
	ExtendedInfoLoader interface {
		LoadExtendedInfo(layout string, recordID string) (*ExtendedInfo, error)
	}

	// NotFoundError reports a name missing from layout metadata.
	NotFoundError struct {
		Kind   string
		Layout string
		Name   string
	}
)

const (
	ResultText      = ResultType("text")
	ResultNumber    = ResultType("number")
	ResultDate      = ResultType("date")
	ResultTime      = ResultType("time")
	ResultTimestamp = ResultType("timestamp")
	ResultContainer = ResultType("container")
)

const (
	EntryNormal      = EntryType("normal")
	EntryCalculation = EntryType("calculation")
	EntrySummary     = EntryType("summary")
)

const (
	RuleNotEmpty RuleMask = 1 << iota
	RuleNumericOnly
	RuleMaxCharacters
	RuleFourDigitYear
	RuleTimeOfDay
	RuleTimestampField
	RuleDateField
	RuleTimeField
)

func (r NotFoundError) Error() string {
	return fmt.Sprintf(`%s "%s" not found on layout "%s"`, r.Kind, r.Name, r.Layout)
}

func (f *Field) HasRule(rule RuleMask) bool {
	return f.Rules&rule != 0
}

func (f *Field) RuleBound(rule RuleMask) int {
	return f.RuleBounds[rule]
}

func NewLayout(name string, database string, table string) *Layout {
	return &Layout{
		Name:          name,
		Database:      database,
		Table:         table,
		fields:        ds.NewLinkedHashMap[string, *Field](),
		relatedSets:   ds.NewLinkedHashMap[string, *RelatedSet](),
		valueLists:    ds.NewLinkedHashMap[string, []string](),
		displayValues: map[string]map[string]string{},
	}
}

// Populated reports whether field metadata has been filled in.
// A layout straight out of NewLayout is a shell until a parse or a
// metadata fetch runs the materializer over it.
func (l *Layout) Populated() bool {
	return l.fields.Len() > 0
}

func (l *Layout) AddField(f *Field) {
	l.fields.Put(f.Name, f)
}

func (l *Layout) AddRelatedSet(rs *RelatedSet) {
	rs.layout = l
	l.relatedSets.Put(rs.Name, rs)
}

func (l *Layout) Field(name string) (*Field, error) {
	field, ok := l.fields.Get(name)
	if !ok {
		return nil, NotFoundError{Kind: "field", Layout: l.Name, Name: name}
	}
	return field, nil
}

func (l *Layout) HasField(name string) bool {
	return l.fields.Has(name)
}

func (l *Layout) FieldNames() []string {
	return l.fields.Keys()
}

func (l *Layout) Fields() []*Field {
	return l.fields.Values()
}

func (l *Layout) RelatedSet(name string) (*RelatedSet, error) {
	rs, ok := l.relatedSets.Get(name)
	if !ok {
		return nil, NotFoundError{Kind: "related set", Layout: l.Name, Name: name}
	}
	return rs, nil
}

func (l *Layout) RelatedSetNames() []string {
	return l.relatedSets.Keys()
}

func (l *Layout) RelatedSets() []*RelatedSet {
	return l.relatedSets.Values()
}

// ValueList returns the literal values of a named value list.
// LoadExtendedInfo must have run first on the legacy grammar; the JSON
// grammar delivers value lists inline.
func (l *Layout) ValueList(name string) ([]string, error) {
	values, ok := l.valueLists.Get(name)
	if !ok {
		return nil, NotFoundError{Kind: "value list", Layout: l.Name, Name: name}
	}
	return values, nil
}

// ValueListDisplay returns value to display-value pairs for a
// two-field value list. Single-field lists map every value to itself.
func (l *Layout) ValueListDisplay(name string) (map[string]string, error) {
	if _, ok := l.valueLists.Get(name); !ok {
		return nil, NotFoundError{Kind: "value list", Layout: l.Name, Name: name}
	}
	display, ok := l.displayValues[name]
	if !ok {
		values, _ := l.valueLists.Get(name)
		display = map[string]string{}
		for _, value := range values {
			display[value] = value
		}
	}
	return display, nil
}

func (l *Layout) ValueListNames() []string {
	return l.valueLists.Keys()
}

// SetExtendedInfo installs secondary metadata onto the layout and
// marks it as extended.
func (l *Layout) SetExtendedInfo(info *ExtendedInfo) {
	if info.ValueLists != nil {
		l.valueLists = info.ValueLists
	}
	if info.DisplayValues != nil {
		l.displayValues = info.DisplayValues
	}
	for fieldName, style := range info.Styles {
		if field, ok := l.fields.Get(fieldName); ok {
			field.StyleType = style
		}
	}
	l.extended = true
}

func (l *Layout) Extended() bool {
	return l.extended
}

func (l *Layout) SetLoader(loader ExtendedInfoLoader) {
	l.loader = loader
}

// LoadExtendedInfo fetches value-list and style metadata through the
// installed loader. Without a record id the fetch happens at most
// once; with a record id it is refreshed on every call, since
// record-scoped dynamic value lists depend on the record's data.
func (l *Layout) LoadExtendedInfo(recordID string) error {
	if recordID == "" && l.extended {
		return nil
	}
	if l.loader == nil {
		return fmt.Errorf(`Layout.LoadExtendedInfo error: no loader installed for layout "%s"`, l.Name)
	}
	info, err := l.loader.LoadExtendedInfo(l.Name, recordID)
	if err != nil {
		return err
	}
	l.SetExtendedInfo(info)
	return nil
}

func NewRelatedSet(name string) *RelatedSet {
	return &RelatedSet{
		Name:   name,
		fields: ds.NewLinkedHashMap[string, *Field](),
	}
}

func (r *RelatedSet) Layout() *Layout {
	return r.layout
}

func (r *RelatedSet) AddField(f *Field) {
	r.fields.Put(f.Name, f)
}

func (r *RelatedSet) Field(name string) (*Field, error) {
	field, ok := r.fields.Get(name)
	if !ok {
		layoutName := ""
		if r.layout != nil {
			layoutName = r.layout.Name
		}
		return nil, NotFoundError{Kind: "field", Layout: layoutName + "::" + r.Name, Name: name}
	}
	return field, nil
}

func (r *RelatedSet) HasField(name string) bool {
	return r.fields.Has(name)
}

func (r *RelatedSet) FieldNames() []string {
	return r.fields.Keys()
}

func (r *RelatedSet) Fields() []*Field {
	return r.fields.Values()
}

// LoadExtendedInfo is unsupported on a related set: the legacy
// grammar only serves extended metadata per layout.
func (r *RelatedSet) LoadExtendedInfo(string) error {
	layoutName := ""
	if r.layout != nil {
		layoutName = r.layout.Name
	}
	return NotFoundError{Kind: "extended info", Layout: layoutName, Name: r.Name}
}
