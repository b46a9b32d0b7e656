// Package dapi speaks the Data API grammar: it translates the flat
// parameter map into JSON REST requests and parses the JSON envelope
// back into grammar-neutral parsed structures.
package dapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"fmgo/ds"
	"fmgo/wire"
	"github.com/pkg/errors"
)

const basePath = "/fmi/data/v1/databases"

type (
	// Translation is one fully shaped REST request: everything the
	// transport needs except the host.
	Translation struct {
		Method string
		Path   string
		Query  url.Values
		Body   []byte
	}
)

// command flags, checked in this order; at most one is expected
var commandFlags = []string{
	"-new", "-edit", "-delete", "-dup", "-find", "-findquery",
	"-findall", "-findany", "-dbnames", "-scriptnames",
	"-layoutnames", "-view", "-performscript",
}

// Translate maps the grammar-agnostic parameter map onto the Data
// API's endpoint, method and body shapes.
func Translate(params *wire.Params) (*Translation, error) {
	flag := ""
	for _, name := range commandFlags {
		if params.Has(name) {
			flag = name
			break
		}
	}

	switch flag {
	case "-new":
		return translateNew(params)
	case "-edit":
		return translateEdit(params)
	case "-delete":
		return translateDelete(params)
	case "-dup":
		return translateDuplicate(params)
	case "-find", "-findquery":
		return translateFind(params, flag)
	case "-findall":
		return translateFindAll(params)
	case "-findany":
		return nil, wire.UnsupportedError{Operation: "find any", Grammar: "Data API"}
	case "-dbnames":
		return &Translation{Method: http.MethodGet, Path: basePath}, nil
	case "-scriptnames":
		return &Translation{Method: http.MethodGet, Path: databasePath(params) + "/scripts"}, nil
	case "-layoutnames":
		return &Translation{Method: http.MethodGet, Path: databasePath(params) + "/layouts"}, nil
	case "-view":
		return &Translation{Method: http.MethodGet, Path: layoutPath(params)}, nil
	case "-performscript":
		return translatePerformScript(params)
	default:
		return nil, errors.New("Translate error: no command flag present in parameters")
	}
}

func databasePath(params *wire.Params) string {
	database, _ := params.Get("-db")
	return basePath + "/" + url.PathEscape(database)
}

func layoutPath(params *wire.Params) string {
	layout, _ := params.Get("-lay")
	return databasePath(params) + "/layouts/" + url.PathEscape(layout)
}

func recordsPath(params *wire.Params) string {
	return layoutPath(params) + "/records"
}

func recordPath(params *wire.Params) (string, error) {
	recordID, ok := params.Get("-recid")
	if !ok || recordID == "" {
		return "", errors.New("Translate error: record id is required but missing")
	}
	return recordsPath(params) + "/" + url.PathEscape(recordID), nil
}

func translateFindAll(params *wire.Params) (*Translation, error) {
	query := url.Values{}
	if skip, ok := params.Get("-skip"); ok && skip != "0" {
		query.Set("_offset", skip)
	}
	if max, ok := params.Get("-max"); ok {
		query.Set("_limit", max)
	}
	sortRules := collectSortRules(params)
	if len(sortRules) > 0 {
		encoded, err := json.Marshal(sortRules)
		if err != nil {
			return nil, errors.Wrap(err, "translateFindAll error: encode sort rules")
		}
		query.Set("_sort", string(encoded))
	}
	addScriptQuery(params, query)
	return &Translation{
		Method: http.MethodGet,
		Path:   recordsPath(params),
		Query:  query,
	}, nil
}

func translateFind(params *wire.Params, flag string) (*Translation, error) {
	// a find for one explicit record id is a plain GET
	if flag == "-find" {
		if recordID, ok := params.Get("-recid"); ok && recordID != "" {
			path, err := recordPath(params)
			if err != nil {
				return nil, err
			}
			query := url.Values{}
			addScriptQuery(params, query)
			return &Translation{
				Method: http.MethodGet,
				Path:   path,
				Query:  query,
			}, nil
		}
	}

	body := ds.NewLinkedHashMap[string, any]()

	queryElements, err := buildQueryElements(params, flag)
	if err != nil {
		return nil, err
	}
	body.Put("query", queryElements)

	sortRules := collectSortRules(params)
	if len(sortRules) > 0 {
		body.Put("sort", sortRules)
	}
	if skip, ok := params.Get("-skip"); ok && skip != "0" {
		body.Put("offset", atoi(skip))
	}
	if max, ok := params.Get("-max"); ok {
		body.Put("limit", atoi(max))
	}
	if responseLayout, ok := params.Get("-lay.response"); ok {
		body.Put("layout.response", responseLayout)
	}
	addScriptBody(params, body)
	if globals := collectGlobalFields(params); globals.Len() > 0 {
		body.Put("globalFields", globals)
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "translateFind error: encode body")
	}
	return &Translation{
		Method: http.MethodPost,
		Path:   layoutPath(params) + "/_find",
		Body:   bodyBytes,
	}, nil
}

// editKeyPattern matches staged field-edit keys, which carry the
// 1-based repetition in parentheses; criteria never do.
var editKeyPattern = regexp.MustCompile(`\([0-9]+\)`)

// buildQueryElements produces the `query` array: for a plain find, a
// single element holding every criterion (implicit AND); for a
// compound find, one element per parenthesized group of the
// expression, with omit groups flagged. Global assignments and staged
// field edits are not criteria and stay out of the array.
func buildQueryElements(params *wire.Params, flag string) ([]any, error) {
	if flag == "-find" {
		element := ds.NewLinkedHashMap[string, any]()
		for _, name := range params.Names() {
			if strings.HasPrefix(name, "-") {
				continue
			}
			if strings.HasSuffix(name, ".global") || editKeyPattern.MatchString(name) {
				continue
			}
			value, _ := params.Get(name)
			element.Put(name, value)
		}
		return []any{element}, nil
	}

	expression, ok := params.Get("-query")
	if !ok {
		return nil, errors.New("buildQueryElements error: -findquery without -query expression")
	}
	elements := make([]any, 0)
	for _, group := range strings.Split(expression, ";") {
		omit := strings.HasPrefix(group, "!")
		group = strings.TrimPrefix(group, "!")
		group = strings.TrimPrefix(group, "(")
		group = strings.TrimSuffix(group, ")")
		element := ds.NewLinkedHashMap[string, any]()
		for _, index := range strings.Split(group, ",") {
			field, ok := params.Get("-" + index)
			if !ok {
				return nil, fmt.Errorf(`buildQueryElements error: expression references unknown criterion "%s"`, index)
			}
			value, _ := params.Get("-" + index + ".value")
			element.Put(field, value)
		}
		if omit {
			element.Put("omit", true)
		}
		elements = append(elements, element)
	}
	return elements, nil
}

func translateNew(params *wire.Params) (*Translation, error) {
	body, err := buildRecordBody(params)
	if err != nil {
		return nil, err
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "translateNew error: encode body")
	}
	return &Translation{
		Method: http.MethodPost,
		Path:   recordsPath(params),
		Body:   bodyBytes,
	}, nil
}

func translateEdit(params *wire.Params) (*Translation, error) {
	path, err := recordPath(params)
	if err != nil {
		return nil, err
	}
	body, err := buildRecordBody(params)
	if err != nil {
		return nil, err
	}
	if modID, ok := params.Get("-modid"); ok {
		body.Put("modId", modID)
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "translateEdit error: encode body")
	}
	return &Translation{
		Method: http.MethodPatch,
		Path:   path,
		Body:   bodyBytes,
	}, nil
}

func translateDelete(params *wire.Params) (*Translation, error) {
	path, err := recordPath(params)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	addScriptQuery(params, query)
	return &Translation{
		Method: http.MethodDelete,
		Path:   path,
		Query:  query,
	}, nil
}

func translateDuplicate(params *wire.Params) (*Translation, error) {
	path, err := recordPath(params)
	if err != nil {
		return nil, err
	}
	// the server duplicates in place on a bare POST to the record
	return &Translation{
		Method: http.MethodPost,
		Path:   path,
	}, nil
}

func translatePerformScript(params *wire.Params) (*Translation, error) {
	scriptName, ok := params.Get("-script")
	if !ok || scriptName == "" {
		return nil, errors.New("translatePerformScript error: -performscript without -script name")
	}
	query := url.Values{}
	if param, ok := params.Get("-script.param"); ok {
		query.Set("script.param", param)
	}
	return &Translation{
		Method: http.MethodGet,
		Path:   layoutPath(params) + "/script/" + url.PathEscape(scriptName),
		Query:  query,
	}, nil
}

var portalFieldPattern = regexp.MustCompile(`^(.+)\.([0-9]+)$`)

// buildRecordBody splits the data parameters into fieldData,
// portalData and globalFields sections. A key shaped
// `Table::Field.N` is a portal-field instance where N is the child
// row index; N of 0 means a new, as-yet-uncommitted child row and
// omits the row's recordId.
func buildRecordBody(params *wire.Params) (*ds.LinkedHashMap[string, any], error) {
	fieldData := ds.NewLinkedHashMap[string, any]()
	globalFields := ds.NewLinkedHashMap[string, any]()

	type portalRow struct {
		index  int
		fields *ds.LinkedHashMap[string, any]
	}
	portalRows := ds.NewLinkedHashMap[string, []*portalRow]()

	for _, name := range params.Names() {
		if strings.HasPrefix(name, "-") {
			continue
		}
		value, _ := params.Get(name)

		if strings.HasSuffix(name, ".global") {
			globalFields.Put(strings.TrimSuffix(name, ".global"), value)
			continue
		}

		groups := portalFieldPattern.FindStringSubmatch(name)
		if groups != nil && strings.Contains(groups[1], "::") {
			fieldName := groups[1]
			index := atoi(groups[2])
			table := fieldName[:strings.Index(fieldName, "::")]

			rows, _ := portalRows.Get(table)
			var row *portalRow
			for _, candidate := range rows {
				if candidate.index == index {
					row = candidate
					break
				}
			}
			if row == nil {
				row = &portalRow{index: index, fields: ds.NewLinkedHashMap[string, any]()}
				rows = append(rows, row)
				portalRows.Put(table, rows)
			}
			row.fields.Put(fieldName, value)
			continue
		}

		fieldData.Put(name, value)
	}

	if deleteRelated, ok := params.Get("-delete.related"); ok {
		fieldData.Put("deleteRelated", []any{deleteRelated})
	}

	body := ds.NewLinkedHashMap[string, any]()
	body.Put("fieldData", fieldData)

	if portalRows.Len() > 0 {
		portalData := ds.NewLinkedHashMap[string, any]()
		for _, table := range portalRows.Keys() {
			rows, _ := portalRows.Get(table)
			sort.Slice(rows, func(i, j int) bool {
				return rows[i].index < rows[j].index
			})
			encoded := make([]any, 0, len(rows))
			for _, row := range rows {
				if row.index != 0 {
					row.fields.Put("recordId", strconv.Itoa(row.index))
				}
				encoded = append(encoded, row.fields)
			}
			portalData.Put(table, encoded)
		}
		body.Put("portalData", portalData)
	}
	if globalFields.Len() > 0 {
		body.Put("globalFields", globalFields)
	}
	return body, nil
}

// collectGlobalFields gathers `.global`-suffixed assignments, keys
// rewritten without the suffix.
func collectGlobalFields(params *wire.Params) *ds.LinkedHashMap[string, any] {
	globals := ds.NewLinkedHashMap[string, any]()
	for _, name := range params.Names() {
		if strings.HasPrefix(name, "-") || !strings.HasSuffix(name, ".global") {
			continue
		}
		value, _ := params.Get(name)
		globals.Put(strings.TrimSuffix(name, ".global"), value)
	}
	return globals
}

func collectSortRules(params *wire.Params) []any {
	rules := make([]any, 0)
	for precedence := 1; precedence <= 9; precedence++ {
		field, ok := params.Get("-sortfield." + strconv.Itoa(precedence))
		if !ok {
			continue
		}
		order, ok := params.Get("-sortorder." + strconv.Itoa(precedence))
		if !ok || order == "" {
			order = "ascend"
		}
		rule := ds.NewLinkedHashMap[string, any]()
		rule.Put("fieldName", field)
		rule.Put("sortOrder", order)
		rules = append(rules, rule)
	}
	return rules
}

// script parameter names, legacy on the left, Data API on the right
var scriptParamNames = [][2]string{
	{"-script", "script"},
	{"-script.param", "script.param"},
	{"-script.prefind", "script.prerequest"},
	{"-script.prefind.param", "script.prerequest.param"},
	{"-script.presort", "script.presort"},
	{"-script.presort.param", "script.presort.param"},
}

func addScriptQuery(params *wire.Params, query url.Values) {
	for _, pair := range scriptParamNames {
		if value, ok := params.Get(pair[0]); ok {
			query.Set(pair[1], value)
		}
	}
}

func addScriptBody(params *wire.Params, body *ds.LinkedHashMap[string, any]) {
	for _, pair := range scriptParamNames {
		if value, ok := params.Get(pair[0]); ok {
			body.Put(pair[1], value)
		}
	}
}

func atoi(s string) int {
	value, _ := strconv.Atoi(s)
	return value
}
