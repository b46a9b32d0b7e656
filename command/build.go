package command

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"fmgo/wire"
	"github.com/pkg/errors"
)

// Build translates the command's state into the flat ordered
// parameter map both grammars consume. The map is grammar-agnostic:
// the legacy grammar serializes it directly as a form body, the Data
// API grammar translates it further.
func (c *Command) Build() (*wire.Params, error) {
	params := wire.NewParams()
	params.Set("-db", c.Database)
	if c.Layout != "" {
		params.Set("-lay", c.Layout)
	}
	if c.resultLayout != "" {
		params.Set("-lay.response", c.resultLayout)
	}

	c.buildScripts(params)
	c.buildGlobals(params)
	if err := c.buildFieldEdits(params); err != nil {
		return nil, err
	}

	if c.recordID != "" {
		params.Set("-recid", c.recordID)
	}
	if c.modID != "" {
		params.Set("-modid", c.modID)
	}
	if c.deleteRelated != "" {
		params.Set("-delete.related", c.deleteRelated)
	}

	if err := c.buildFind(params); err != nil {
		return nil, err
	}
	c.buildSortRules(params)
	c.buildRange(params)
	c.buildRelatedSetsFilter(params)

	switch c.Kind {
	case KindNew:
		params.SetFlag("-new")
	case KindEdit:
		params.SetFlag("-edit")
	case KindDelete:
		params.SetFlag("-delete")
	case KindDuplicate:
		params.SetFlag("-dup")
	case KindPerformScript:
		params.SetFlag("-performscript")
	case KindDatabaseNames:
		params.SetFlag("-dbnames")
	case KindLayoutNames:
		params.SetFlag("-layoutnames")
	case KindScriptNames:
		params.SetFlag("-scriptnames")
	case KindView:
		params.SetFlag("-view")
	}

	return params, nil
}

func (c *Command) buildScripts(params *wire.Params) {
	if c.script != nil {
		params.Set("-script", c.script.Name)
		if c.script.Param != "" {
			params.Set("-script.param", c.script.Param)
		}
	}
	if c.preCommandScript != nil {
		params.Set("-script.prefind", c.preCommandScript.Name)
		if c.preCommandScript.Param != "" {
			params.Set("-script.prefind.param", c.preCommandScript.Param)
		}
	}
	if c.preSortScript != nil {
		params.Set("-script.presort", c.preSortScript.Name)
		if c.preSortScript.Param != "" {
			params.Set("-script.presort.param", c.preSortScript.Param)
		}
	}
}

func (c *Command) buildGlobals(params *wire.Params) {
	for _, name := range c.globals.Keys() {
		value, _ := c.globals.Get(name)
		params.Set(name+".global", value)
	}
}

// buildFieldEdits emits one parameter per staged repetition, keyed
// `field(repetition+1)suffix`. A dotted field name keeps its suffix
// verbatim; otherwise layout metadata decides whether the field is a
// global and needs the `.global` suffix appended.
func (c *Command) buildFieldEdits(params *wire.Params) error {
	for _, name := range c.edits.Keys() {
		base, suffix := name, ""
		if index := strings.Index(name, "."); index >= 0 {
			base, suffix = name[:index], name[index:]
		} else if c.layouts != nil {
			layout, err := c.layouts.Layout(c.Layout)
			if err != nil {
				return err
			}
			fieldMeta, err := layout.Field(base)
			if err != nil {
				if !strings.Contains(base, "::") {
					return err
				}
			} else if fieldMeta.Global {
				suffix = ".global"
			}
		}

		repetitions, _ := c.edits.Get(name)
		indexes := make([]int, 0, len(repetitions))
		for index := range repetitions {
			indexes = append(indexes, index)
		}
		sort.Ints(indexes)
		for _, index := range indexes {
			key := fmt.Sprintf("%s(%d)%s", base, index+1, suffix)
			params.Set(key, repetitions[index])
		}
	}
	return nil
}

func (c *Command) buildFind(params *wire.Params) error {
	switch c.Kind {
	case KindFindAll:
		params.SetFlag("-findall")
		return nil
	case KindFindAny:
		params.SetFlag("-findany")
		return nil
	case KindCompoundFind:
		return c.buildCompoundFind(params)
	case KindFind:
	default:
		return nil
	}

	for _, field := range c.criteria.Keys() {
		value, _ := c.criteria.Get(field)
		params.Set(field, value)
	}
	if c.logicalOperator != "" {
		params.Set("-lop", c.logicalOperator)
	}
	if c.criteria.Len() > 0 || c.recordID != "" {
		params.SetFlag("-find")
	} else {
		params.SetFlag("-findall")
	}
	return nil
}

// buildCompoundFind assigns sequential global criterion indices and
// assembles the query expression: comma-joined indices inside
// parentheses per sub-request, sub-requests separated by `;`, omit
// sub-requests prefixed with `!`. Sub-requests apply in ascending
// precedence order.
func (c *Command) buildCompoundFind(params *wire.Params) error {
	if len(c.subRequests) == 0 {
		return errors.New("buildCompoundFind error: compound find without sub-requests")
	}
	precedences := make([]int, 0, len(c.subRequests))
	for precedence := range c.subRequests {
		precedences = append(precedences, precedence)
	}
	sort.Ints(precedences)

	groups := make([]string, 0, len(precedences))
	next := 1
	for _, precedence := range precedences {
		request := c.subRequests[precedence]
		indices := make([]string, 0, request.criteria.Len())
		for _, field := range request.criteria.Keys() {
			value, _ := request.criteria.Get(field)
			index := "q" + strconv.Itoa(next)
			next += 1
			params.Set("-"+index, field)
			params.Set("-"+index+".value", value)
			indices = append(indices, index)
		}
		group := "(" + strings.Join(indices, ",") + ")"
		if request.omit {
			group = "!" + group
		}
		groups = append(groups, group)
	}

	params.Set("-query", strings.Join(groups, ";"))
	params.SetFlag("-findquery")
	return nil
}

func (c *Command) buildSortRules(params *wire.Params) {
	precedences := make([]int, 0, len(c.sortRules))
	for precedence := range c.sortRules {
		precedences = append(precedences, precedence)
	}
	sort.Ints(precedences)
	for _, precedence := range precedences {
		rule := c.sortRules[precedence]
		params.Set("-sortfield."+strconv.Itoa(precedence), rule.Field)
		if rule.Order != "" {
			params.Set("-sortorder."+strconv.Itoa(precedence), rule.Order)
		}
	}
}

func (c *Command) buildRange(params *wire.Params) {
	if c.skip > 0 {
		params.Set("-skip", strconv.Itoa(c.skip))
	}
	if c.maxSet && c.max > 0 {
		params.Set("-max", strconv.Itoa(c.max))
	}
}

func (c *Command) buildRelatedSetsFilter(params *wire.Params) {
	if c.relatedSetsFilter == "" {
		return
	}
	params.Set("-relatedsets.filter", c.relatedSetsFilter)
	if c.relatedSetsMax != "" {
		params.Set("-relatedsets.max", c.relatedSetsMax)
	}
}
