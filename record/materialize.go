package record

import (
	"fmgo/ds"
	"fmgo/schema"
	"fmgo/wire"
	"github.com/pkg/errors"
)

type (
	// Materializer turns parsed wire structures into the schema and
	// record object graph. Both grammars' parsers feed it the same
	// shapes.
	Materializer struct {
		// Factory substitutes an alternate record representation;
		// nil means DefaultFactory.
		Factory Factory
		// Committer is attached to every default Record built.
		Committer Committer
	}
)

func (m *Materializer) factory() Factory {
	if m.Factory == nil {
		return DefaultFactory
	}
	return m.Factory
}

// SetLayout populates a layout's field and related-set metadata from
// parsed definitions. Re-invoking on an already-populated layout is a
// no-op success.
func (m *Materializer) SetLayout(layout *schema.Layout, parsed *wire.ParsedResult) error {
	if layout.Populated() {
		return nil
	}
	if parsed.Head.Database != "" {
		layout.Database = parsed.Head.Database
	}
	if parsed.Head.Table != "" {
		layout.Table = parsed.Head.Table
	}

	for _, def := range parsed.FieldDefs {
		layout.AddField(buildField(def))
	}
	for _, setName := range parsed.RelatedSetDefs.Keys() {
		defs, _ := parsed.RelatedSetDefs.Get(setName)
		relatedSet := schema.NewRelatedSet(setName)
		for _, def := range defs {
			relatedSet.AddField(buildField(def))
		}
		layout.AddRelatedSet(relatedSet)
	}

	// the JSON grammar delivers value lists inline with the metadata
	if len(parsed.ValueLists) > 0 {
		layout.SetExtendedInfo(extendedInfoFromValueLists(parsed.ValueLists, nil))
	}
	return nil
}

// ApplyExtendedInfo installs a parsed extended-info document onto a
// layout.
func (m *Materializer) ApplyExtendedInfo(layout *schema.Layout, parsed *wire.ParsedLayoutInfo) {
	layout.SetExtendedInfo(BuildExtendedInfo(parsed))
}

// BuildExtendedInfo converts a parsed extended-info document into the
// schema layer's shape.
func BuildExtendedInfo(parsed *wire.ParsedLayoutInfo) *schema.ExtendedInfo {
	return extendedInfoFromValueLists(parsed.ValueLists, parsed.Styles)
}

func extendedInfoFromValueLists(lists []wire.ParsedValueList, styles map[string]string) *schema.ExtendedInfo {
	valueLists := ds.NewLinkedHashMap[string, []string]()
	displayValues := map[string]map[string]string{}
	for _, list := range lists {
		valueLists.Put(list.Name, list.Values)
		if len(list.DisplayValues) > 0 {
			displayValues[list.Name] = list.DisplayValues
		}
	}
	return &schema.ExtendedInfo{
		ValueLists:    valueLists,
		DisplayValues: displayValues,
		Styles:        styles,
	}
}

// buildField derives the validation-rule bitmask from a wire field
// definition. Date, time and timestamp result types imply their
// pattern rules.
func buildField(def wire.ParsedFieldDef) *schema.Field {
	field := &schema.Field{
		Name:        def.Name,
		Result:      schema.ResultType(def.Result),
		Entry:       schema.EntryType(def.Entry),
		AutoEntered: def.AutoEntered,
		Global:      def.Global,
		MaxRepeat:   def.MaxRepeat,
		RuleBounds:  map[schema.RuleMask]int{},
		ValueList:   def.ValueList,
	}
	if field.MaxRepeat < 1 {
		field.MaxRepeat = 1
	}
	if def.NotEmpty {
		field.Rules |= schema.RuleNotEmpty
	}
	if def.NumericOnly {
		field.Rules |= schema.RuleNumericOnly
	}
	if def.MaxCharacters > 0 {
		field.Rules |= schema.RuleMaxCharacters
		field.RuleBounds[schema.RuleMaxCharacters] = def.MaxCharacters
	}
	if def.FourDigitYear {
		field.Rules |= schema.RuleFourDigitYear
	}
	if def.TimeOfDay {
		field.Rules |= schema.RuleTimeOfDay
	}
	switch field.Result {
	case schema.ResultDate:
		field.Rules |= schema.RuleDateField
	case schema.ResultTime:
		field.Rules |= schema.RuleTimeField
	case schema.ResultTimestamp:
		field.Rules |= schema.RuleTimestampField
	}
	return field
}

// SetResult builds the record graph for a parsed found set. The
// layout must have been populated first (SetLayout is idempotent, so
// callers run both).
func (m *Materializer) SetResult(layout *schema.Layout, parsed *wire.ParsedResult) (*Result, error) {
	if err := m.SetLayout(layout, parsed); err != nil {
		return nil, err
	}

	arena := NewArena()
	result := &Result{
		layout:        layout,
		arena:         arena,
		TableCount:    parsed.FoundSet.TableCount,
		FoundSetCount: parsed.FoundSet.FoundSetCount,
		FetchCount:    len(parsed.Records),
	}

	build := m.factory()
	for _, parsedRecord := range parsed.Records {
		slots := build(arena, layout, nil)
		handle := Handle(arena.Len() - 1)
		m.fillSlots(slots, parsedRecord)

		for _, setName := range parsedRecord.Children.Keys() {
			relatedSet, err := layout.RelatedSet(setName)
			if err != nil {
				// data responses without field metadata still carry
				// portal rows; give them a set shell to hang onto
				if layout.Populated() {
					return nil, errors.Wrap(err, "Materializer.SetResult error")
				}
				relatedSet = schema.NewRelatedSet(setName)
				layout.AddRelatedSet(relatedSet)
			}
			children, _ := parsedRecord.Children.Get(setName)
			for _, parsedChild := range children {
				childSlots := build(arena, layout, relatedSet)
				childHandle := Handle(arena.Len() - 1)
				m.fillSlots(childSlots, parsedChild)
				childSlots.SetParent(handle)
				childSlots.SetRelatedSetName(setName)
				slots.AddChild(setName, childHandle)
			}
		}

		result.records = append(result.records, handle)
	}

	if m.Committer != nil {
		for _, slots := range arena.slots {
			if rec, ok := slots.(*Record); ok {
				rec.SetCommitter(m.Committer)
			}
		}
	}
	return result, nil
}

func (m *Materializer) fillSlots(slots Slots, parsed *wire.ParsedRecord) {
	slots.SetRecordID(parsed.RecordID)
	slots.SetModificationID(parsed.ModID)
	for _, name := range parsed.Fields.Keys() {
		values, _ := parsed.Fields.Get(name)
		slots.SetFieldValues(name, values)
	}
}
