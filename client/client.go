package client

import (
	"github.com/pkg/errors"

	"fmgo/command"
	"fmgo/record"
	"fmgo/schema"
	"fmgo/wire"
	"fmgo/wire/dapi"
	"fmgo/wire/xmlrs"
)

// Server is the connection facade: it builds commands bound to one
// database, runs them over the configured grammar, materializes the
// responses, and serves as the committer behind Record.Commit and the
// loader behind Layout.LoadExtendedInfo.
type Server struct {
	config       Config
	transport    Transport
	layouts      *layoutCache
	materializer *record.Materializer
}

func New(config Config) (*Server, error) {
	return NewWithTransport(config, newHTTPTransport(config))
}

// NewWithTransport swaps the HTTP layer out, mainly for tests.
func NewWithTransport(config Config, transport Transport) (*Server, error) {
	config.applyDefaults()
	if err := config.check(); err != nil {
		return nil, err
	}
	cache, err := newLayoutCache(config.LayoutCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "NewWithTransport error: create layout cache")
	}
	server := &Server{
		config:    config,
		transport: transport,
		layouts:   cache,
	}
	server.materializer = &record.Materializer{Committer: server}
	return server, nil
}

// Close releases transport-held resources, e.g. a Data API session.
func (s *Server) Close() error {
	if closer, ok := s.transport.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (s *Server) Database() string {
	return s.config.Database
}

func (s *Server) newCommand(kind command.Kind, layout string) *command.Command {
	c := command.New(kind, s.config.Database, layout)
	c.SetLayoutProvider(s)
	c.SetRunner(s)
	return c
}

func (s *Server) NewFindCommand(layout string) *command.Command {
	return s.newCommand(command.KindFind, layout)
}

func (s *Server) NewFindAllCommand(layout string) *command.Command {
	return s.newCommand(command.KindFindAll, layout)
}

// NewFindAnyCommand builds a random-record find. The Data API has no
// equivalent, so executing it under that grammar fails with an
// UnsupportedError before anything goes over the wire.
func (s *Server) NewFindAnyCommand(layout string) *command.Command {
	return s.newCommand(command.KindFindAny, layout)
}

func (s *Server) NewCompoundFindCommand(layout string) *command.Command {
	return s.newCommand(command.KindCompoundFind, layout)
}

func (s *Server) NewAddCommand(layout string) *command.Command {
	return s.newCommand(command.KindNew, layout)
}

func (s *Server) NewEditCommand(layout string, recordID string) *command.Command {
	c := s.newCommand(command.KindEdit, layout)
	c.SetRecordID(recordID)
	return c
}

func (s *Server) NewDeleteCommand(layout string, recordID string) *command.Command {
	c := s.newCommand(command.KindDelete, layout)
	c.SetRecordID(recordID)
	return c
}

func (s *Server) NewDuplicateCommand(layout string, recordID string) *command.Command {
	c := s.newCommand(command.KindDuplicate, layout)
	c.SetRecordID(recordID)
	return c
}

func (s *Server) NewPerformScriptCommand(layout string, script string, param string) *command.Command {
	c := s.newCommand(command.KindPerformScript, layout)
	c.SetScript(script, param)
	return c
}

// resultGrammar picks the wire dialect commands run over.
func (s *Server) resultGrammar() string {
	if s.config.Grammar == "dataapi" {
		return GrammarDataAPI
	}
	return GrammarFMResultSet
}

func (s *Server) parse(bs []byte) (*wire.ParsedResult, error) {
	if s.config.Grammar == "dataapi" {
		return dapi.Parse(bs)
	}
	return xmlrs.Parse(bs)
}

// Run builds the command's parameter map, executes it, and
// materializes the parsed response over the cached layout.
func (s *Server) Run(c *command.Command) (*record.Result, error) {
	params, err := c.Build()
	if err != nil {
		return nil, err
	}
	// surface translation failures, e.g. an unsupported command kind,
	// before the transport opens a session
	if s.config.Grammar == "dataapi" {
		if _, err := dapi.Translate(params); err != nil {
			return nil, err
		}
	}
	bs, err := s.transport.Execute(params, s.resultGrammar())
	if err != nil {
		return nil, err
	}
	parsed, err := s.parse(bs)
	if err != nil {
		return nil, err
	}
	layout, err := s.layoutShell(parsed.Head, c.Layout)
	if err != nil {
		return nil, err
	}
	return s.materializer.SetResult(layout, parsed)
}

// layoutShell returns the cached layout instance for the response,
// creating an empty shell on first sight. Metadata listings carry no
// layout name and get a throwaway shell instead.
func (s *Server) layoutShell(head wire.ParsedHead, fallback string) (*schema.Layout, error) {
	name := head.Layout
	if name == "" {
		name = fallback
	}
	if name == "" {
		return schema.NewLayout("", head.Database, head.Table), nil
	}
	return s.layouts.GetOrPopulate(name, func() (*schema.Layout, error) {
		layout := schema.NewLayout(name, head.Database, head.Table)
		layout.SetLoader(s)
		return layout, nil
	})
}

// Layout returns populated metadata for a layout, fetching it with a
// view command on first use.
func (s *Server) Layout(name string) (*schema.Layout, error) {
	if layout, ok := s.layouts.Get(name); ok && layout.Populated() {
		return layout, nil
	}
	result, err := s.Run(s.newCommand(command.KindView, name))
	if err != nil {
		return nil, err
	}
	return result.Layout(), nil
}

// PurgeLayouts drops all cached layout metadata.
func (s *Server) PurgeLayouts() {
	s.layouts.Purge()
}

// CommitRecord writes a record's modified fields back: an add when the
// record has no id yet, an edit otherwise. Child records turn into an
// edit of their parent with portal-row field keys.
func (s *Server) CommitRecord(r *record.Record) error {
	if r.Parent() != nil {
		return s.commitChild(r)
	}
	var c *command.Command
	if r.RecordID() == "" {
		c = s.newCommand(command.KindNew, r.Layout().Name)
	} else {
		c = s.newCommand(command.KindEdit, r.Layout().Name)
		c.SetRecordID(r.RecordID())
		if r.ModificationID() != "" {
			c.SetModificationID(r.ModificationID())
		}
	}
	if err := s.setModifiedFields(c, r, ""); err != nil {
		return err
	}
	result, err := s.Run(c)
	if err != nil {
		return err
	}
	fresh := result.First()
	if fresh == nil {
		return errors.New("CommitRecord error: server returned no record")
	}
	syncCommitted(r, fresh)
	return nil
}

// syncCommitted adopts the server's post-commit state. The Data API
// acknowledges creates and edits with bare ids instead of a record
// body; in that case only the ids move and local field state stands.
func syncCommitted(r *record.Record, fresh *record.Record) {
	if acknowledgementOnly(fresh) {
		if fresh.RecordID() != "" {
			r.SetRecordID(fresh.RecordID())
		}
		if fresh.ModificationID() != "" {
			r.SetModificationID(fresh.ModificationID())
		}
		r.ClearModified()
		return
	}
	r.SyncFrom(fresh)
	r.ClearModified()
}

func acknowledgementOnly(r *record.Record) bool {
	return len(r.FieldNames()) == 0 && len(r.RelatedSetNames()) == 0
}

// commitChild edits the parent, addressing the child's fields as
// `Table::Field.childRecordID`; a not-yet-committed child uses row
// index 0, which creates the portal row.
func (s *Server) commitChild(r *record.Record) error {
	parent := r.Parent()
	if parent.RecordID() == "" {
		return errors.New("commitChild error: parent record has never been committed")
	}
	c := s.newCommand(command.KindEdit, parent.Layout().Name)
	c.SetRecordID(parent.RecordID())
	suffix := ".0"
	if r.RecordID() != "" {
		suffix = "." + r.RecordID()
	}
	if err := s.setModifiedFields(c, r, suffix); err != nil {
		return err
	}
	result, err := s.Run(c)
	if err != nil {
		return err
	}
	fresh := result.First()
	if fresh == nil {
		return errors.New("commitChild error: server returned no record")
	}
	// locating the fresh portal row needs a record body; refetch when
	// the grammar acknowledged with bare ids
	if acknowledgementOnly(fresh) {
		fresh, err = s.refetchRecord(parent.Layout().Name, parent.RecordID())
		if err != nil {
			return err
		}
	}
	parent.SyncFrom(fresh)
	freshChild, err := s.findChild(parent, r)
	if err != nil {
		return err
	}
	r.SyncFrom(freshChild)
	r.ClearModified()
	return nil
}

// refetchRecord reloads one record by id.
func (s *Server) refetchRecord(layout string, recordID string) (*record.Record, error) {
	c := s.newCommand(command.KindFind, layout)
	c.SetRecordID(recordID)
	result, err := s.Run(c)
	if err != nil {
		return nil, err
	}
	fresh := result.First()
	if fresh == nil {
		return nil, errors.Errorf(`refetchRecord error: record "%s" missing after edit`, recordID)
	}
	return fresh, nil
}

func (s *Server) setModifiedFields(c *command.Command, r *record.Record, suffix string) error {
	for name, repetitions := range r.ModifiedFields() {
		for _, repetition := range repetitions {
			value, err := r.FieldAt(name, repetition)
			if err != nil {
				return err
			}
			if err := c.SetField(name+suffix, value, repetition); err != nil {
				return err
			}
		}
	}
	return nil
}

// findChild locates the record's row in the refreshed parent: by id
// when the child already existed, otherwise the newest row.
func (s *Server) findChild(parent *record.Record, child *record.Record) (*record.Record, error) {
	rows, err := parent.RelatedSetRecords(child.RelatedSetName())
	if err != nil {
		return nil, err
	}
	if child.RecordID() != "" {
		for _, row := range rows {
			if row.RecordID() == child.RecordID() {
				return row, nil
			}
		}
		return nil, errors.Errorf(`findChild error: portal row "%s" missing after edit`, child.RecordID())
	}
	if len(rows) == 0 {
		return nil, errors.New("findChild error: portal has no rows after edit")
	}
	return rows[len(rows)-1], nil
}

// DeleteRecord removes a record; a child record becomes a parent edit
// with a related-row delete instruction.
func (s *Server) DeleteRecord(r *record.Record) error {
	if r.RecordID() == "" {
		return errors.New("DeleteRecord error: record has never been committed")
	}
	if parent := r.Parent(); parent != nil {
		c := s.newCommand(command.KindEdit, parent.Layout().Name)
		c.SetRecordID(parent.RecordID())
		c.SetDeleteRelated(r.RelatedSetName() + "." + r.RecordID())
		_, err := s.Run(c)
		return err
	}
	c := s.newCommand(command.KindDelete, r.Layout().Name)
	c.SetRecordID(r.RecordID())
	_, err := s.Run(c)
	return err
}

// LoadExtendedInfo fetches value-list and style metadata. The legacy
// grammar serves it as a separate FMPXMLLAYOUT document; the Data API
// delivers value lists inline with layout metadata, and ignores the
// record scope.
func (s *Server) LoadExtendedInfo(layout string, recordID string) (*schema.ExtendedInfo, error) {
	if s.config.Grammar == "dataapi" {
		params, err := command.New(command.KindView, s.config.Database, layout).Build()
		if err != nil {
			return nil, err
		}
		bs, err := s.transport.Execute(params, GrammarDataAPI)
		if err != nil {
			return nil, err
		}
		parsed, err := dapi.Parse(bs)
		if err != nil {
			return nil, err
		}
		return record.BuildExtendedInfo(&wire.ParsedLayoutInfo{ValueLists: parsed.ValueLists}), nil
	}

	params := wire.NewParams()
	params.Set("-db", s.config.Database)
	params.Set("-lay", layout)
	if recordID != "" {
		params.Set("-recid", recordID)
	}
	params.SetFlag("-view")
	bs, err := s.transport.Execute(params, GrammarFMPXMLLayout)
	if err != nil {
		return nil, err
	}
	parsed, err := xmlrs.ParseLayoutInfo(bs)
	if err != nil {
		return nil, err
	}
	return record.BuildExtendedInfo(parsed), nil
}

func (s *Server) DatabaseNames() ([]string, error) {
	return s.listNames(command.KindDatabaseNames, "", "DATABASE_NAME")
}

func (s *Server) LayoutNames() ([]string, error) {
	return s.listNames(command.KindLayoutNames, "", "LAYOUT_NAME")
}

func (s *Server) ScriptNames() ([]string, error) {
	return s.listNames(command.KindScriptNames, "", "SCRIPT_NAME")
}

// listNames runs a metadata listing and pulls one name per record; the
// legacy grammar labels the field per listing kind, the Data API
// always calls it "name".
func (s *Server) listNames(kind command.Kind, layout string, legacyField string) ([]string, error) {
	c := command.New(kind, s.config.Database, layout)
	c.SetRunner(s)
	result, err := c.Execute()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.Records()))
	for _, r := range result.Records() {
		value, err := r.Field("name")
		if err != nil {
			value, err = r.Field(legacyField)
		}
		if err != nil {
			return nil, err
		}
		names = append(names, value)
	}
	return names, nil
}
