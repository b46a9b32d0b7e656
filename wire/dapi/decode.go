package dapi

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"

	simplejson "github.com/bitly/go-simplejson"
	"github.com/pkg/errors"

	"fmgo/wire"
)

var repetitionPattern = regexp.MustCompile(`^(.*)\(([0-9]+)\)$`)

// Parse decodes a Data API envelope into the same parsed structures
// the XML grammar produces. A non-zero code in the envelope's message
// head fails the parse before any interpretation of the response.
func Parse(bs []byte) (*wire.ParsedResult, error) {
	envelope, err := simplejson.NewJson(bs)
	if err != nil {
		return nil, wire.ParseError{Message: err.Error()}
	}

	if err := checkMessages(envelope); err != nil {
		return nil, err
	}

	response := envelope.Get("response")
	result := wire.NewParsedResult()

	if _, ok := response.CheckGet("fieldMetaData"); ok {
		parseMetadata(response, result)
		return result, nil
	}

	// name listings (databases, layouts, scripts) unify onto records
	// with a single `name` field
	for _, key := range []string{"databases", "layouts", "scripts"} {
		list, ok := response.CheckGet(key)
		if !ok {
			continue
		}
		for i := 0; i < len(list.MustArray()); i++ {
			record := wire.NewParsedRecord()
			record.AddRepetition("name", list.GetIndex(i).Get("name").MustString())
			result.Records = append(result.Records, record)
		}
		result.FoundSet.FoundSetCount = len(result.Records)
		result.FoundSet.FetchCount = len(result.Records)
		return result, nil
	}

	if dataInfo, ok := response.CheckGet("dataInfo"); ok {
		result.Head = wire.ParsedHead{
			Layout:   dataInfo.Get("layout").MustString(),
			Database: dataInfo.Get("database").MustString(),
			Table:    dataInfo.Get("table").MustString(),
		}
		result.FoundSet = wire.ParsedFoundSet{
			TableCount:    dataInfo.Get("totalRecordCount").MustInt(),
			FoundSetCount: dataInfo.Get("foundCount").MustInt(),
			FetchCount:    dataInfo.Get("returnedCount").MustInt(),
		}
	}

	data := response.Get("data")
	for i := 0; i < len(data.MustArray()); i++ {
		record, err := parseDataRecord(data.GetIndex(i))
		if err != nil {
			return nil, err
		}
		result.Records = append(result.Records, record)
	}

	// create and edit envelopes acknowledge with bare ids instead of a
	// data array; surface them as a record carrying only the ids
	if len(result.Records) == 0 {
		recordID := stringValue(response.Get("recordId").Interface())
		modID := stringValue(response.Get("modId").Interface())
		if recordID != "" || modID != "" {
			record := wire.NewParsedRecord()
			record.RecordID = recordID
			record.ModID = modID
			result.Records = append(result.Records, record)
		}
	}

	return result, nil
}

// checkMessages short-circuits on a non-zero error code; the code may
// arrive as a string or a bare number depending on the server build.
func checkMessages(envelope *simplejson.Json) error {
	head := envelope.Get("messages").GetIndex(0)
	raw := stringValue(head.Get("code").Interface())
	if raw == "" {
		return nil
	}
	code, err := strconv.Atoi(raw)
	if err != nil {
		return wire.ParseError{Message: "unreadable message code " + raw}
	}
	if code != 0 {
		return wire.ServerError{Code: code, Message: head.Get("message").MustString()}
	}
	return nil
}

func parseDataRecord(data *simplejson.Json) (*wire.ParsedRecord, error) {
	record := wire.NewParsedRecord()
	record.RecordID = stringValue(data.Get("recordId").Interface())
	record.ModID = stringValue(data.Get("modId").Interface())

	if err := expandFieldData(data.Get("fieldData"), record); err != nil {
		return nil, err
	}

	portalData := data.Get("portalData").MustMap()
	portalNames := sortedKeys(portalData)
	for _, portalName := range portalNames {
		rows := data.Get("portalData").Get(portalName)
		for i := 0; i < len(rows.MustArray()); i++ {
			row := rows.GetIndex(i)
			child := wire.NewParsedRecord()
			child.RecordID = stringValue(row.Get("recordId").Interface())
			child.ModID = stringValue(row.Get("modId").Interface())
			if err := expandPortalRow(row, child); err != nil {
				return nil, err
			}
			record.AddChild(portalName, child)
		}
	}

	return record, nil
}

// expandFieldData turns the flat fieldData map into repetition-indexed
// value lists. A key with a parenthesized suffix like `Name(2)` is the
// 1-based repetition 2, stored at index 1.
func expandFieldData(fieldData *simplejson.Json, record *wire.ParsedRecord) error {
	values := fieldData.MustMap()
	for _, key := range sortedKeys(values) {
		name, index, err := splitRepetitionKey(key)
		if err != nil {
			return err
		}
		record.SetRepetition(name, index, stringValue(values[key]))
	}
	return nil
}

func expandPortalRow(row *simplejson.Json, record *wire.ParsedRecord) error {
	values := row.MustMap()
	for _, key := range sortedKeys(values) {
		if key == "recordId" || key == "modId" {
			continue
		}
		name, index, err := splitRepetitionKey(key)
		if err != nil {
			return err
		}
		record.SetRepetition(name, index, stringValue(values[key]))
	}
	return nil
}

func splitRepetitionKey(key string) (string, int, error) {
	groups := repetitionPattern.FindStringSubmatch(key)
	if groups == nil {
		return key, 0, nil
	}
	repetition, err := strconv.Atoi(groups[2])
	if err != nil || repetition < 1 {
		return "", 0, errors.Errorf(`splitRepetitionKey error: bad repetition suffix in "%s"`, key)
	}
	return groups[1], repetition - 1, nil
}

func parseMetadata(response *simplejson.Json, result *wire.ParsedResult) {
	fieldMeta := response.Get("fieldMetaData")
	for i := 0; i < len(fieldMeta.MustArray()); i++ {
		result.FieldDefs = append(result.FieldDefs, parseFieldMeta(fieldMeta.GetIndex(i)))
	}

	portalMeta := response.Get("portalMetaData")
	for _, portalName := range sortedKeys(portalMeta.MustMap()) {
		defs := make([]wire.ParsedFieldDef, 0)
		rows := portalMeta.Get(portalName)
		for i := 0; i < len(rows.MustArray()); i++ {
			defs = append(defs, parseFieldMeta(rows.GetIndex(i)))
		}
		result.RelatedSetDefs.Put(portalName, defs)
	}

	valueLists := response.Get("valueLists")
	for i := 0; i < len(valueLists.MustArray()); i++ {
		list := valueLists.GetIndex(i)
		parsed := wire.ParsedValueList{
			Name:          list.Get("name").MustString(),
			DisplayValues: map[string]string{},
		}
		entries := list.Get("values")
		for j := 0; j < len(entries.MustArray()); j++ {
			entry := entries.GetIndex(j)
			value := stringValue(entry.Get("value").Interface())
			display := entry.Get("displayValue").MustString(value)
			parsed.Values = append(parsed.Values, value)
			parsed.DisplayValues[value] = display
		}
		result.ValueLists = append(result.ValueLists, parsed)
	}
}

// parseFieldMeta translates this grammar's attribute names onto the
// field-definition shape the XML grammar uses.
func parseFieldMeta(meta *simplejson.Json) wire.ParsedFieldDef {
	return wire.ParsedFieldDef{
		Name:          meta.Get("name").MustString(),
		Result:        meta.Get("result").MustString(),
		Entry:         meta.Get("type").MustString(),
		AutoEntered:   meta.Get("autoEnter").MustBool(),
		Global:        meta.Get("global").MustBool(),
		MaxRepeat:     meta.Get("maxRepeat").MustInt(),
		NotEmpty:      meta.Get("notEmpty").MustBool(),
		NumericOnly:   meta.Get("numeric").MustBool(),
		MaxCharacters: meta.Get("maxCharacters").MustInt(),
		FourDigitYear: meta.Get("fourDigitYear").MustBool(),
		TimeOfDay:     meta.Get("timeOfDay").MustBool(),
		ValueList:     meta.Get("valueList").MustString(),
	}
}

func stringValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
