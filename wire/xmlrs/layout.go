package xmlrs

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"fmgo/wire"
)

// layoutState drives the FMPXMLLAYOUT document parse. The grammar is
// shallow: LAYOUT>FIELD>STYLE for per-field style hints, then
// VALUELISTS>VALUELIST>VALUE for the lists themselves.
type layoutState struct {
	info             *wire.ParsedLayoutInfo
	errorCode        string
	currentField     string
	currentValueList string
	currentDisplay   string
	inErrorCode      bool
	inValue          bool
	buf              strings.Builder
}

// ParseLayoutInfo parses an FMPXMLLAYOUT extended-info document.
func ParseLayoutInfo(bs []byte) (*wire.ParsedLayoutInfo, error) {
	state := layoutState{
		info: &wire.ParsedLayoutInfo{
			Styles: map[string]string{},
		},
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
			if state.inErrorCode || state.inValue {
				state.buf.Write(t)
			}
		}
	}

	if state.errorCode != "" && state.errorCode != "0" {
		code, err := strconv.Atoi(state.errorCode)
		if err != nil {
			return nil, wire.ParseError{Message: "unreadable error code " + state.errorCode}
		}
		return nil, wire.ServerError{Code: code}
	}

	return state.info, nil
}

func (r *layoutState) handleStart(element xml.StartElement) {
	switch element.Name.Local {
	case "ERRORCODE":
		r.buf.Reset()
		r.inErrorCode = true
	case "FIELD":
		r.currentField = attr(element, "NAME")
	case "STYLE":
		if r.currentField != "" {
			r.info.Styles[r.currentField] = attr(element, "TYPE")
		}
	case "VALUELIST":
		r.currentValueList = attr(element, "NAME")
		r.info.ValueLists = append(r.info.ValueLists, wire.ParsedValueList{
			Name:          r.currentValueList,
			DisplayValues: map[string]string{},
		})
	case "VALUE":
		r.currentDisplay = attr(element, "DISPLAY")
		r.buf.Reset()
		r.inValue = true
	}
}

func (r *layoutState) handleEnd(element xml.EndElement) {
	switch element.Name.Local {
	case "ERRORCODE":
		r.errorCode = r.buf.String()
		r.inErrorCode = false
	case "FIELD":
		r.currentField = ""
	case "VALUELIST":
		r.currentValueList = ""
	case "VALUE":
		value := r.buf.String()
		last := len(r.info.ValueLists) - 1
		if last >= 0 {
			list := &r.info.ValueLists[last]
			list.Values = append(list.Values, value)
			display := r.currentDisplay
			if display == "" {
				display = value
			}
			list.DisplayValues[value] = display
		}
		r.inValue = false
	}
}
