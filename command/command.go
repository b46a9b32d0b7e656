// Package command models one server operation as builder state plus a
// grammar-agnostic parameter build. A command is data and a thin
// dispatcher, not a type per verb.
package command

import (
	"strings"
	"time"

	"fmgo/ds"
	"fmgo/record"
	"fmgo/schema"
	"github.com/pkg/errors"
)

type (
	Kind string

	// LayoutProvider resolves layout metadata for field checks; a nil
	// provider skips them.
	LayoutProvider interface {
		Layout(name string) (*schema.Layout, error)
	}

	// Runner executes a built command against a server.
	Runner interface {
		Run(c *Command) (*record.Result, error)
	}

	SortRule struct {
		Field string
		Order string
	}

	Script struct {
		Name  string
		Param string
	}

	// FindRequest is one sub-request of a compound find: its own
	// AND-combined criteria set, optionally an omit request.
	FindRequest struct {
		criteria *ds.LinkedHashMap[string, string]
		omit     bool
	}

	Command struct {
		Kind     Kind
		Database string
		Layout   string

		recordID string
		modID    string

		criteria        *ds.LinkedHashMap[string, string]
		logicalOperator string
		sortRules       map[int]SortRule

		skip   int
		max    int
		maxSet bool

		script           *Script
		preCommandScript *Script
		preSortScript    *Script

		resultLayout string
		globals      *ds.LinkedHashMap[string, string]
		edits        *ds.LinkedHashMap[string, map[int]string]

		relatedSetsFilter string
		relatedSetsMax    string

		// deleteRelated names a portal row to remove during an edit,
		// shaped `RelatedSet.childRecordID`
		deleteRelated string

		// compound find sub-requests by precedence
		subRequests map[int]*FindRequest

		layouts LayoutProvider
		runner  Runner
	}
)

const (
	KindFind          = Kind("find")
	KindFindAll       = Kind("findall")
	KindFindAny       = Kind("findany")
	KindCompoundFind  = Kind("findquery")
	KindNew           = Kind("new")
	KindEdit          = Kind("edit")
	KindDelete        = Kind("delete")
	KindDuplicate     = Kind("dup")
	KindPerformScript = Kind("performscript")
	KindDatabaseNames = Kind("dbnames")
	KindLayoutNames   = Kind("layoutnames")
	KindScriptNames   = Kind("scriptnames")
	KindView          = Kind("view")
)

const (
	OperatorAnd = "and"
	OperatorOr  = "or"

	OrderAscend  = "ascend"
	OrderDescend = "descend"
)

func New(kind Kind, database string, layout string) *Command {
	return &Command{
		Kind:        kind,
		Database:    database,
		Layout:      layout,
		criteria:    ds.NewLinkedHashMap[string, string](),
		sortRules:   map[int]SortRule{},
		globals:     ds.NewLinkedHashMap[string, string](),
		edits:       ds.NewLinkedHashMap[string, map[int]string](),
		subRequests: map[int]*FindRequest{},
	}
}

func (c *Command) SetLayoutProvider(layouts LayoutProvider) {
	c.layouts = layouts
}

func (c *Command) SetRunner(runner Runner) {
	c.runner = runner
}

// AddFindCriterion adds one field search expression.
func (c *Command) AddFindCriterion(field string, value string) error {
	if err := c.checkCriterionField(field); err != nil {
		return err
	}
	c.criteria.Put(field, value)
	return nil
}

func (c *Command) ClearFindCriteria() {
	c.criteria = ds.NewLinkedHashMap[string, string]()
}

// SetLogicalOperator combines criteria with AND or OR.
func (c *Command) SetLogicalOperator(operator string) error {
	operator = strings.ToLower(operator)
	if operator != OperatorAnd && operator != OperatorOr {
		return errors.Errorf(`SetLogicalOperator error: operator must be "and" or "or", got "%s"`, operator)
	}
	c.logicalOperator = operator
	return nil
}

// AddSortRule configures sorting at the given precedence, 1 to 9.
func (c *Command) AddSortRule(field string, precedence int, order string) error {
	if precedence < 1 || precedence > 9 {
		return errors.Errorf("AddSortRule error: precedence must be 1..9, got %d", precedence)
	}
	// beyond ascend/descend, a value-list name is also a legal sort
	// order in the legacy grammar, so any non-empty string passes
	c.sortRules[precedence] = SortRule{Field: field, Order: order}
	return nil
}

func (c *Command) ClearSortRules() {
	c.sortRules = map[int]SortRule{}
}

func (c *Command) SetRange(skip int, max int) {
	c.skip = skip
	c.max = max
	c.maxSet = true
}

func (c *Command) Range() (int, int) {
	return c.skip, c.max
}

// SetRelatedSetsFilters sets the portal result filter ("layout" or
// "none") and the per-portal row cap ("all" or a number).
func (c *Command) SetRelatedSetsFilters(filter string, max string) error {
	if filter != "layout" && filter != "none" {
		return errors.Errorf(`SetRelatedSetsFilters error: filter must be "layout" or "none", got "%s"`, filter)
	}
	c.relatedSetsFilter = filter
	c.relatedSetsMax = max
	return nil
}

func (c *Command) RelatedSetsFilters() (string, string) {
	return c.relatedSetsFilter, c.relatedSetsMax
}

// SetField stages a field edit at the given 0-based repetition.
func (c *Command) SetField(field string, value string, repetition int) error {
	if repetition < 0 {
		return errors.Errorf("SetField error: negative repetition %d", repetition)
	}
	if !strings.Contains(field, ".") {
		if err := c.checkEditField(field); err != nil {
			return err
		}
	}
	repetitions, ok := c.edits.Get(field)
	if !ok {
		repetitions = map[int]string{}
	}
	repetitions[repetition] = value
	c.edits.Put(field, repetitions)
	return nil
}

// SetFieldFromTimestamp formats a Unix timestamp according to the
// field's result type before staging the edit.
func (c *Command) SetFieldFromTimestamp(field string, timestamp int64, repetition int) error {
	fieldMeta, err := c.lookupField(field)
	if err != nil {
		return err
	}
	at := time.Unix(timestamp, 0)
	value := ""
	switch fieldMeta.Result {
	case schema.ResultDate:
		value = at.Format("01/02/2006")
	case schema.ResultTime:
		value = at.Format("15:04:05")
	case schema.ResultTimestamp:
		value = at.Format("01/02/2006 15:04:05")
	default:
		return errors.Errorf(`SetFieldFromTimestamp error: field "%s" is not a date, time, or timestamp field`, field)
	}
	return c.SetField(field, value, repetition)
}

// SetGlobal assigns a global field for the duration of the request.
func (c *Command) SetGlobal(field string, value string) {
	c.globals.Put(field, value)
}

func (c *Command) SetScript(name string, param string) {
	c.script = &Script{Name: name, Param: param}
}

func (c *Command) SetPreCommandScript(name string, param string) {
	c.preCommandScript = &Script{Name: name, Param: param}
}

func (c *Command) SetPreSortScript(name string, param string) {
	c.preSortScript = &Script{Name: name, Param: param}
}

// SetDeleteRelated stages removal of one portal row, identified as
// `RelatedSet.childRecordID`, on the next edit.
func (c *Command) SetDeleteRelated(target string) {
	c.deleteRelated = target
}

func (c *Command) SetResultLayout(layout string) {
	c.resultLayout = layout
}

func (c *Command) SetRecordID(id string) {
	c.recordID = id
}

func (c *Command) RecordID() string {
	return c.recordID
}

func (c *Command) SetModificationID(id string) {
	c.modID = id
}

func (c *Command) ScriptName() string {
	if c.script == nil {
		return ""
	}
	return c.script.Name
}

// NewFindRequest creates a compound-find sub-request.
func NewFindRequest() *FindRequest {
	return &FindRequest{
		criteria: ds.NewLinkedHashMap[string, string](),
	}
}

func (r *FindRequest) AddFindCriterion(field string, value string) {
	r.criteria.Put(field, value)
}

func (r *FindRequest) SetOmit(omit bool) {
	r.omit = omit
}

// Add registers a sub-request at the given precedence; sub-requests
// are applied in ascending precedence order regardless of insertion
// order.
func (c *Command) Add(precedence int, request *FindRequest) error {
	if precedence < 1 {
		return errors.Errorf("Add error: precedence must be positive, got %d", precedence)
	}
	c.subRequests[precedence] = request
	return nil
}

// Validate runs pre-validation over one staged field edit, or over
// all of them when field is empty, aggregating every failure.
func (c *Command) Validate(field string) error {
	if c.layouts == nil {
		return errors.New("Validate error: no layout metadata available")
	}
	names := c.edits.Keys()
	if field != "" {
		names = []string{field}
	}

	failures := make([]schema.RuleFailure, 0)
	for _, name := range names {
		if strings.Contains(name, ".") {
			continue
		}
		fieldMeta, err := c.lookupField(name)
		if err != nil {
			return err
		}
		repetitions, ok := c.edits.Get(name)
		if !ok {
			continue
		}
		for _, value := range repetitions {
			if err := fieldMeta.Validate(value); err != nil {
				validationErr, ok := err.(*schema.ValidationError)
				if !ok {
					return err
				}
				failures = append(failures, validationErr.Failures...)
			}
		}
	}
	if len(failures) > 0 {
		return &schema.ValidationError{Failures: failures}
	}
	return nil
}

// Execute runs the command through the attached server.
func (c *Command) Execute() (*record.Result, error) {
	if c.runner == nil {
		return nil, errors.New("Execute error: command is not attached to a server")
	}
	return c.runner.Run(c)
}

func (c *Command) checkCriterionField(field string) error {
	return c.checkLayoutField(field)
}

func (c *Command) checkEditField(field string) error {
	return c.checkLayoutField(field)
}

func (c *Command) checkLayoutField(field string) error {
	if c.layouts == nil {
		return nil
	}
	layout, err := c.layouts.Layout(c.Layout)
	if err != nil {
		return err
	}
	if layout.HasField(field) {
		return nil
	}
	if strings.Contains(field, "::") {
		setName := field[:strings.Index(field, "::")]
		relatedSet, err := layout.RelatedSet(setName)
		if err != nil {
			return err
		}
		_, err = relatedSet.Field(field)
		return err
	}
	return schema.NotFoundError{Kind: "field", Layout: c.Layout, Name: field}
}

func (c *Command) lookupField(field string) (*schema.Field, error) {
	if c.layouts == nil {
		return nil, errors.New("lookupField error: no layout metadata available")
	}
	layout, err := c.layouts.Layout(c.Layout)
	if err != nil {
		return nil, err
	}
	if strings.Contains(field, "::") {
		setName := field[:strings.Index(field, "::")]
		relatedSet, err := layout.RelatedSet(setName)
		if err != nil {
			return nil, err
		}
		return relatedSet.Field(field)
	}
	return layout.Field(field)
}
