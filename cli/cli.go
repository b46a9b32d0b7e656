package cli

import (
	"encoding/json"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"fmgo/client"
	"fmgo/command"
	"fmgo/ds"
	"fmgo/record"
	"fmgo/ui"
)

type (
	Args struct {
		Interactive *InteractiveCmd `arg:"subcommand:interactive"`
		Find        *FindCmd        `arg:"subcommand:find"`
		Databases   *DatabasesCmd   `arg:"subcommand:databases"`
		Layouts     *LayoutsCmd     `arg:"subcommand:layouts"`
		Scripts     *ScriptsCmd     `arg:"subcommand:scripts"`
		Config      string          `arg:"-c" default:"fmgo.yaml" help:"path to connection config" placeholder:"fmgo.yaml"`
	}
	InteractiveCmd struct{}
	FindCmd        struct {
		// TODO: support compound find requests from the command line
		// the flat field=value form cannot express omit groups
		Layout string   `arg:"required" help:"layout to search" placeholder:"Contacts"`
		Where  []string `help:"field=value criterion, repeatable" placeholder:"Name=Smith"`
		Sort   string   `help:"field to sort by" placeholder:"Name"`
		Max    int      `help:"fetch at most this many records"`
		Skip   int      `help:"skip this many records"`
	}
	DatabasesCmd struct{}
	LayoutsCmd   struct{}
	ScriptsCmd   struct{}
)

func (Args) Description() string {
	des := strings.Join(
		[]string{
			"Query FileMaker databases from the command line.\n",
			"Talks either the legacy XML publishing grammar or the JSON Data API,",
			"depending on the connection config.",
		},
		"\n",
	)
	des += "\n"
	return des
}

func Start() {
	args := Args{}
	arg.MustParse(&args)

	config, err := client.LoadConfig(args.Config)
	if err != nil {
		println("Error happened reading config at: " + args.Config)
		println(err.Error())
		return
	}
	server, err := client.New(*config)
	if err != nil {
		println(err.Error())
		return
	}
	defer server.Close()

	switch {
	case args.Find != nil:
		StartFinding(server, args.Find)
	case args.Databases != nil:
		StartListing("databases", server.DatabaseNames)
	case args.Layouts != nil:
		StartListing("layouts", server.LayoutNames)
	case args.Scripts != nil:
		StartListing("scripts", server.ScriptNames)
	default:
		ui.Start(server)
	}
}

func StartFinding(server *client.Server, cmd *FindCmd) {
	find, err := buildFind(server, cmd)
	if err != nil {
		println(err.Error())
		return
	}
	result, err := find.Execute()
	if err != nil {
		println("Error happened running the find")
		println(err.Error())
		return
	}
	bs, err := json.MarshalIndent(resultToMaps(result), "", "  ")
	if err != nil {
		println(err.Error())
		return
	}
	println(string(bs))
}

func buildFind(server *client.Server, cmd *FindCmd) (*command.Command, error) {
	var find *command.Command
	if len(cmd.Where) == 0 {
		find = server.NewFindAllCommand(cmd.Layout)
	} else {
		find = server.NewFindCommand(cmd.Layout)
	}
	for _, criterion := range cmd.Where {
		field, value, ok := strings.Cut(criterion, "=")
		if !ok {
			return nil, errors.Errorf(`buildFind error: criterion "%s" is not of the form field=value`, criterion)
		}
		if err := find.AddFindCriterion(field, value); err != nil {
			return nil, err
		}
	}
	if cmd.Sort != "" {
		if err := find.AddSortRule(cmd.Sort, 1, command.OrderAscend); err != nil {
			return nil, err
		}
	}
	find.SetRange(cmd.Skip, cmd.Max)
	return find, nil
}

func StartListing(kind string, list func() ([]string, error)) {
	names, err := list()
	if err != nil {
		println("Error happened listing " + kind)
		println(err.Error())
		return
	}
	for _, name := range names {
		println(name)
	}
}

// resultToMaps flattens a found set into ordered maps for display:
// single repetitions collapse to plain strings, related sets nest.
func resultToMaps(result *record.Result) []*ds.LinkedHashMap[string, any] {
	return lo.Map(
		result.Records(),
		func(r *record.Record, _ int) *ds.LinkedHashMap[string, any] {
			return recordToMap(result, r)
		},
	)
}

func recordToMap(result *record.Result, r *record.Record) *ds.LinkedHashMap[string, any] {
	layout := result.Layout()
	fieldNames := layout.FieldNames()
	if setName := r.RelatedSetName(); setName != "" {
		if relatedSet, err := layout.RelatedSet(setName); err == nil {
			fieldNames = relatedSet.FieldNames()
		}
	}
	m := ds.NewLinkedHashMap[string, any]()
	m.Put("recordId", r.RecordID())
	for _, name := range fieldNames {
		values, err := r.FieldValues(name)
		if err != nil {
			continue
		}
		if len(values) == 1 {
			m.Put(name, values[0])
		} else {
			m.Put(name, values)
		}
	}
	for _, setName := range layout.RelatedSetNames() {
		children, err := r.RelatedSetRecords(setName)
		if err != nil || len(children) == 0 {
			continue
		}
		rows := make([]*ds.LinkedHashMap[string, any], 0, len(children))
		for _, child := range children {
			rows = append(rows, recordToMap(result, child))
		}
		m.Put(setName, rows)
	}
	return m
}
