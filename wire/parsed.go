package wire

import (
	"fmgo/ds"
)

// The Parsed* structures are the grammar-neutral middle ground: both
// the legacy XML parser and the Data API JSON parser produce them, and
// the materializer consumes them without knowing which grammar ran.
type (
	ParsedHead struct {
		Layout   string
		Database string
		Table    string
	}

	ParsedFoundSet struct {
		TableCount    int
		FoundSetCount int
		FetchCount    int
	}

	// ParsedFieldDef carries a field definition's raw attributes as
	// the wire states them; the materializer derives the rule bitmask.
	ParsedFieldDef struct {
		Name          string
		Result        string
		Entry         string
		AutoEntered   bool
		Global        bool
		MaxRepeat     int
		NotEmpty      bool
		NumericOnly   bool
		MaxCharacters int
		FourDigitYear bool
		TimeOfDay     bool
		ValueList     string
	}

	ParsedValueList struct {
		Name          string
		Values        []string
		DisplayValues map[string]string
	}

	// ParsedLayoutInfo is the extended-info document's content: value
	// lists plus per-field UI style types.
	ParsedLayoutInfo struct {
		ValueLists []ParsedValueList
		Styles     map[string]string
	}

	ParsedRecord struct {
		RecordID string
		ModID    string
		// Fields maps field name to ordered repetition values,
		// 0-based in memory.
		Fields *ds.LinkedHashMap[string, []string]
		// Children maps related-set name to child records.
		Children *ds.LinkedHashMap[string, []*ParsedRecord]
	}

	ParsedResult struct {
		Head           ParsedHead
		FoundSet       ParsedFoundSet
		FieldDefs      []ParsedFieldDef
		RelatedSetDefs *ds.LinkedHashMap[string, []ParsedFieldDef]
		ValueLists     []ParsedValueList
		Records        []*ParsedRecord
	}
)

func NewParsedRecord() *ParsedRecord {
	return &ParsedRecord{
		Fields:   ds.NewLinkedHashMap[string, []string](),
		Children: ds.NewLinkedHashMap[string, []*ParsedRecord](),
	}
}

func NewParsedResult() *ParsedResult {
	return &ParsedResult{
		RelatedSetDefs: ds.NewLinkedHashMap[string, []ParsedFieldDef](),
	}
}

// AddChild appends a child record under the named related set.
func (r *ParsedRecord) AddChild(relatedSetName string, child *ParsedRecord) {
	children, _ := r.Children.Get(relatedSetName)
	r.Children.Put(relatedSetName, append(children, child))
}

// AddRepetition appends one repetition value to the named field.
func (r *ParsedRecord) AddRepetition(fieldName string, value string) {
	values, _ := r.Fields.Get(fieldName)
	r.Fields.Put(fieldName, append(values, value))
}

// SetRepetition stores a value at an explicit 0-based repetition
// index, growing the list as needed.
func (r *ParsedRecord) SetRepetition(fieldName string, index int, value string) {
	values, _ := r.Fields.Get(fieldName)
	for len(values) <= index {
		values = append(values, "")
	}
	values[index] = value
	r.Fields.Put(fieldName, values)
}
