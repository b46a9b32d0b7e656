// Package xmlrs parses the legacy Custom Web Publishing grammars:
// fmresultset documents into grammar-neutral parsed structures, and
// FMPXMLLAYOUT documents into extended layout info.
package xmlrs

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"fmgo/ds"
	"fmgo/wire"
	"github.com/pkg/errors"
)

// MinimumServerVersion is the oldest server the fmresultset grammar
// is accepted from.
const MinimumServerVersion = "8.5"

type (
	// parserState carries the whole state machine: one instance per
	// parse call, advanced one token at a time.
	parserState struct {
		result    *wire.ParsedResult
		errorCode string
		version   string

		// open <relatedset-definition> scope, "" at top level
		currentSetDef string
		inSetDef      bool

		// open <relatedset> scope inside a record, "" at top level
		currentSet string
		parents    *ds.Stack[*wire.ParsedRecord]

		currentRecord *wire.ParsedRecord
		currentField  string
		inData        bool
		buf           strings.Builder
	}
)

// Parse runs a single pass over an fmresultset document.
func Parse(bs []byte) (*wire.ParsedResult, error) {
	state := parserState{
		result:  wire.NewParsedResult(),
		parents: ds.NewStack[*wire.ParsedRecord](),
	}

	decoder := xml.NewDecoder(bytes.NewReader(bs))
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, syntaxError(err)
		}
		switch t := token.(type) {
		case xml.StartElement:
			state.handleStart(t)
		case xml.EndElement:
			state.handleEnd(t)
		case xml.CharData:
			state.handleCharData(t)
		}
	}

	if state.errorCode != "" && state.errorCode != "0" {
		code, err := strconv.Atoi(state.errorCode)
		if err != nil {
			return nil, wire.ParseError{Message: "unreadable error code " + state.errorCode}
		}
		return nil, wire.ServerError{Code: code}
	}
	if state.version != "" && compareVersions(state.version, MinimumServerVersion) < 0 {
		return nil, wire.VersionError{Version: state.version, Minimum: MinimumServerVersion}
	}

	return state.result, nil
}

func (r *parserState) handleStart(element xml.StartElement) {
	switch element.Name.Local {
	case "error":
		r.errorCode = attr(element, "code")
	case "product":
		r.version = attr(element, "version")
	case "datasource":
		r.result.Head = wire.ParsedHead{
			Layout:   attr(element, "layout"),
			Database: attr(element, "database"),
			Table:    attr(element, "table"),
		}
		r.result.FoundSet.TableCount = attrInt(element, "total-count")
	case "relatedset-definition":
		r.currentSetDef = attr(element, "table")
		r.inSetDef = true
	case "field-definition":
		def := parseFieldDefinition(element)
		if r.inSetDef {
			defs, _ := r.result.RelatedSetDefs.Get(r.currentSetDef)
			r.result.RelatedSetDefs.Put(r.currentSetDef, append(defs, def))
		} else {
			r.result.FieldDefs = append(r.result.FieldDefs, def)
		}
	case "resultset":
		r.result.FoundSet.FoundSetCount = attrInt(element, "count")
		r.result.FoundSet.FetchCount = attrInt(element, "fetch-size")
	case "relatedset":
		// children of a portal get their own record slots; the
		// current record is stashed until the portal closes
		r.currentSet = attr(element, "table")
		r.parents.Push(r.currentRecord)
		r.currentRecord = nil
	case "record":
		record := wire.NewParsedRecord()
		record.RecordID = attr(element, "record-id")
		record.ModID = attr(element, "mod-id")
		r.currentRecord = record
	case "field":
		r.currentField = attr(element, "name")
	case "data":
		r.buf.Reset()
		r.inData = true
	}
}

func (r *parserState) handleEnd(element xml.EndElement) {
	switch element.Name.Local {
	case "relatedset-definition":
		r.currentSetDef = ""
		r.inSetDef = false
	case "relatedset":
		r.currentRecord = r.parents.Pop()
		r.currentSet = ""
	case "record":
		if r.currentSet != "" {
			parent := r.parents.Peek()
			parent.AddChild(r.currentSet, r.currentRecord)
			r.currentRecord = nil
		} else {
			r.result.Records = append(r.result.Records, r.currentRecord)
			r.currentRecord = nil
		}
	case "field":
		r.currentField = ""
	case "data":
		// each <data> occurrence is one repetition
		r.currentRecord.AddRepetition(r.currentField, r.buf.String())
		r.inData = false
	}
}

func (r *parserState) handleCharData(data xml.CharData) {
	// parsers may chunk a single text node into several events
	if r.inData {
		r.buf.Write(data)
	}
}

func parseFieldDefinition(element xml.StartElement) wire.ParsedFieldDef {
	return wire.ParsedFieldDef{
		Name:          attr(element, "name"),
		Result:        attr(element, "result"),
		Entry:         attr(element, "type"),
		AutoEntered:   attrYes(element, "auto-enter"),
		Global:        attrYes(element, "global"),
		MaxRepeat:     attrInt(element, "max-repeat"),
		NotEmpty:      attrYes(element, "not-empty"),
		NumericOnly:   attrYes(element, "numeric-only"),
		MaxCharacters: attrInt(element, "max-characters"),
		FourDigitYear: attrYes(element, "four-digit-year"),
		TimeOfDay:     attrYes(element, "time-of-day"),
	}
}

func attr(element xml.StartElement, name string) string {
	for _, a := range element.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func attrInt(element xml.StartElement, name string) int {
	value, _ := strconv.Atoi(attr(element, name))
	return value
}

func attrYes(element xml.StartElement, name string) bool {
	return attr(element, name) == "yes"
}

func syntaxError(err error) error {
	syntax := &xml.SyntaxError{}
	if errors.As(err, &syntax) {
		return wire.ParseError{Line: syntax.Line, Message: syntax.Msg}
	}
	return wire.ParseError{Message: err.Error()}
}

// compareVersions compares dotted version strings segment by segment.
func compareVersions(a string, b string) int {
	segmentsA := strings.Split(a, ".")
	segmentsB := strings.Split(b, ".")
	for i := 0; i < len(segmentsA) || i < len(segmentsB); i++ {
		valueA, valueB := 0, 0
		if i < len(segmentsA) {
			valueA, _ = strconv.Atoi(segmentsA[i])
		}
		if i < len(segmentsB) {
			valueB, _ = strconv.Atoi(segmentsB[i])
		}
		if valueA != valueB {
			if valueA < valueB {
				return -1
			}
			return 1
		}
	}
	return 0
}
