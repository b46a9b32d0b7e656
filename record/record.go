// Package record holds the materialized object graph: records,
// related (portal) records and found-set results. Parent/child links
// are arena handles, never circular pointers.
package record

import (
	"sort"
	"strings"
	"time"

	"fmgo/ds"
	"fmgo/schema"
	"github.com/pkg/errors"
)

type (
	// Handle identifies a record within its arena. NoParent marks a
	// top-level record.
	Handle int

	// Arena owns every record materialized for one result.
	Arena struct {
		slots []Slots
	}

	// Slots is the pluggability seam: any record representation that
	// exposes field/id/modId/parent/relatedSets slots can be
	// materialized in place of the default Record.
	Slots interface {
		SetRecordID(id string)
		SetModificationID(id string)
		SetFieldValues(name string, values []string)
		SetParent(parent Handle)
		SetRelatedSetName(name string)
		AddChild(relatedSetName string, child Handle)
	}

	// Factory builds one record representation and registers exactly
	// one arena slot for it; relatedSet is nil for top-level records.
	Factory func(arena *Arena, layout *schema.Layout, relatedSet *schema.RelatedSet) Slots

	// Committer pushes a record's local state to the server and
	// resynchronizes it from the authoritative response.
	Committer interface {
		CommitRecord(r *Record) error
		DeleteRecord(r *Record) error
	}

	Record struct {
		arena          *Arena
		self           Handle
		parent         Handle
		layout         *schema.Layout
		relatedSet     *schema.RelatedSet
		relatedSetName string

		recordID string
		modID    string
		fields   *ds.LinkedHashMap[string, []string]
		children *ds.LinkedHashMap[string, []Handle]

		// modified tracks (field, repetition) pairs touched since the
		// last commit, so edits send only changed values
		modified map[string]map[int]struct{}

		committer Committer
	}
)

const NoParent = Handle(-1)

func NewArena() *Arena {
	return &Arena{}
}

func (a *Arena) Add(s Slots) Handle {
	a.slots = append(a.slots, s)
	return Handle(len(a.slots) - 1)
}

func (a *Arena) Get(h Handle) Slots {
	if h < 0 || int(h) >= len(a.slots) {
		return nil
	}
	return a.slots[h]
}

func (a *Arena) Len() int {
	return len(a.slots)
}

// DefaultFactory materializes the package's own Record type.
func DefaultFactory(arena *Arena, layout *schema.Layout, relatedSet *schema.RelatedSet) Slots {
	r := newRecord(layout, relatedSet)
	r.arena = arena
	r.self = arena.Add(r)
	return r
}

func newRecord(layout *schema.Layout, relatedSet *schema.RelatedSet) *Record {
	return &Record{
		parent:     NoParent,
		layout:     layout,
		relatedSet: relatedSet,
		fields:     ds.NewLinkedHashMap[string, []string](),
		children:   ds.NewLinkedHashMap[string, []Handle](),
		modified:   map[string]map[int]struct{}{},
	}
}

// New creates an empty record ready for SetField and Commit, outside
// any arena.
func New(layout *schema.Layout) *Record {
	arena := NewArena()
	r := newRecord(layout, nil)
	r.arena = arena
	r.self = arena.Add(r)
	return r
}

func (r *Record) Layout() *schema.Layout {
	return r.layout
}

func (r *Record) RecordID() string {
	return r.recordID
}

func (r *Record) ModificationID() string {
	return r.modID
}

func (r *Record) RelatedSetName() string {
	return r.relatedSetName
}

func (r *Record) SetRecordID(id string) {
	r.recordID = id
}

func (r *Record) SetModificationID(id string) {
	r.modID = id
}

func (r *Record) SetFieldValues(name string, values []string) {
	r.fields.Put(name, ds.ShallowCopy(values))
}

func (r *Record) SetParent(parent Handle) {
	r.parent = parent
}

func (r *Record) SetRelatedSetName(name string) {
	r.relatedSetName = name
}

func (r *Record) AddChild(relatedSetName string, child Handle) {
	children, _ := r.children.Get(relatedSetName)
	r.children.Put(relatedSetName, append(children, child))
}

func (r *Record) SetCommitter(c Committer) {
	r.committer = c
}

// Parent resolves the back-reference handle; nil for top-level
// records.
func (r *Record) Parent() *Record {
	if r.parent == NoParent {
		return nil
	}
	parent, _ := r.arena.Get(r.parent).(*Record)
	return parent
}

// qualify rewrites an unqualified field name of a portal record as
// `RelatedSet::field`.
func (r *Record) qualify(name string) string {
	if r.relatedSetName != "" && !strings.Contains(name, "::") {
		return r.relatedSetName + "::" + name
	}
	return name
}

// Field returns the first repetition of the named field.
func (r *Record) Field(name string) (string, error) {
	return r.FieldAt(name, 0)
}

// FieldAt returns one repetition value, 0-based.
func (r *Record) FieldAt(name string, repetition int) (string, error) {
	name = r.qualify(name)
	values, ok := r.fields.Get(name)
	if !ok {
		return "", errors.Errorf(`Record.FieldAt error: no field "%s" on record`, name)
	}
	if repetition < 0 || repetition >= len(values) {
		return "", errors.Errorf(`Record.FieldAt error: field "%s" has no repetition %d`, name, repetition)
	}
	return values[repetition], nil
}

// FieldValues returns every repetition of the named field.
func (r *Record) FieldValues(name string) ([]string, error) {
	name = r.qualify(name)
	values, ok := r.fields.Get(name)
	if !ok {
		return nil, errors.Errorf(`Record.FieldValues error: no field "%s" on record`, name)
	}
	return ds.ShallowCopy(values), nil
}

func (r *Record) FieldNames() []string {
	return r.fields.Keys()
}

// TimestampAt parses one repetition of a date, time, or timestamp
// field into a time.Time using the wire display formats.
func (r *Record) TimestampAt(name string, repetition int) (time.Time, error) {
	value, err := r.FieldAt(name, repetition)
	if err != nil {
		return time.Time{}, err
	}
	fieldMeta, err := r.lookupField(r.qualify(name))
	if err != nil {
		return time.Time{}, err
	}
	layoutFormat := ""
	switch fieldMeta.Result {
	case schema.ResultDate:
		layoutFormat = "01/02/2006"
	case schema.ResultTime:
		layoutFormat = "15:04:05"
	case schema.ResultTimestamp:
		layoutFormat = "01/02/2006 15:04:05"
	default:
		return time.Time{}, errors.Errorf(`Record.TimestampAt error: field "%s" is not a date, time, or timestamp field`, name)
	}
	at, err := time.Parse(layoutFormat, value)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, `Record.TimestampAt error: parse field "%s"`, name)
	}
	return at, nil
}

func (r *Record) Timestamp(name string) (time.Time, error) {
	return r.TimestampAt(name, 0)
}

// SetField stores a value at the given 0-based repetition and marks
// the pair modified. The field must exist on the record's layout or
// related set.
func (r *Record) SetField(name string, value string, repetition int) error {
	name = r.qualify(name)
	if err := r.checkField(name); err != nil {
		return err
	}
	values, _ := r.fields.Get(name)
	for len(values) <= repetition {
		values = append(values, "")
	}
	values[repetition] = value
	r.fields.Put(name, values)

	if r.modified[name] == nil {
		r.modified[name] = map[int]struct{}{}
	}
	r.modified[name][repetition] = struct{}{}
	return nil
}

// checkField rejects names absent from the record's metadata. The JSON
// grammar's data responses carry no field definitions, so an
// unpopulated layout or related set accepts any name; the server is
// the authority there.
func (r *Record) checkField(name string) error {
	if r.relatedSet != nil {
		if len(r.relatedSet.FieldNames()) == 0 {
			return nil
		}
		_, err := r.relatedSet.Field(name)
		return err
	}
	if r.layout == nil || !r.layout.Populated() {
		return nil
	}
	_, err := r.layout.Field(name)
	return err
}

// Validate runs pre-validation over one named field, or over every
// modified field when name is empty, aggregating all failures.
func (r *Record) Validate(name string) error {
	if r.layout == nil {
		return nil
	}
	names := make([]string, 0)
	if name != "" {
		names = append(names, r.qualify(name))
	} else {
		for fieldName := range r.modified {
			names = append(names, fieldName)
		}
	}

	failures := make([]schema.RuleFailure, 0)
	for _, fieldName := range names {
		field, err := r.lookupField(fieldName)
		if err != nil {
			return err
		}
		values, _ := r.fields.Get(fieldName)
		for _, value := range values {
			if err := field.Validate(value); err != nil {
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

func (r *Record) lookupField(name string) (*schema.Field, error) {
	if r.relatedSet != nil {
		return r.relatedSet.Field(name)
	}
	if r.layout == nil {
		return nil, errors.Errorf(`Record.lookupField error: record carries no layout metadata for field "%s"`, name)
	}
	return r.layout.Field(name)
}

// ModifiedFields reports the (field, repetitions) pairs touched since
// the last commit, repetitions ascending.
func (r *Record) ModifiedFields() map[string][]int {
	result := map[string][]int{}
	for name, repetitions := range r.modified {
		indexes := make([]int, 0, len(repetitions))
		for index := range repetitions {
			indexes = append(indexes, index)
		}
		sort.Ints(indexes)
		result[name] = indexes
	}
	return result
}

func (r *Record) ClearModified() {
	r.modified = map[string]map[int]struct{}{}
}

// RelatedSetRecords returns the child records of the named portal.
func (r *Record) RelatedSetRecords(name string) ([]*Record, error) {
	handles, ok := r.children.Get(name)
	if !ok {
		layoutName := ""
		if r.layout != nil {
			layoutName = r.layout.Name
		}
		return nil, schema.NotFoundError{Kind: "related set", Layout: layoutName, Name: name}
	}
	records := make([]*Record, 0, len(handles))
	for _, handle := range handles {
		if child, ok := r.arena.Get(handle).(*Record); ok {
			records = append(records, child)
		}
	}
	return records, nil
}

func (r *Record) RelatedSetNames() []string {
	return r.children.Keys()
}

// NewChildRecord creates an uncommitted child row under the named
// portal. It commits together with its parent, keyed by child index
// 0 on the wire.
func (r *Record) NewChildRecord(relatedSetName string) (*Record, error) {
	if r.layout == nil {
		return nil, errors.New("Record.NewChildRecord error: record has no layout")
	}
	relatedSet, err := r.layout.RelatedSet(relatedSetName)
	if err != nil {
		return nil, err
	}
	child := newRecord(r.layout, relatedSet)
	child.arena = r.arena
	child.self = r.arena.Add(child)
	child.parent = r.self
	child.relatedSetName = relatedSetName
	child.committer = r.committer
	r.AddChild(relatedSetName, child.self)
	return child, nil
}

// Commit creates or updates the server-side record, then
// resynchronizes local state from the server's response.
func (r *Record) Commit() error {
	if r.committer == nil {
		return errors.New("Record.Commit error: record is not attached to a server")
	}
	return r.committer.CommitRecord(r)
}

// Delete removes the server-side record; the local object is left
// detached and further use of it is undefined.
func (r *Record) Delete() error {
	if r.committer == nil {
		return errors.New("Record.Delete error: record is not attached to a server")
	}
	if err := r.committer.DeleteRecord(r); err != nil {
		return err
	}
	r.recordID = ""
	return nil
}

// SyncFrom adopts another record's server-assigned state after a
// commit round-trip.
func (r *Record) SyncFrom(other *Record) {
	r.recordID = other.recordID
	r.modID = other.modID
	r.fields = other.fields
	r.children = other.children
	r.arena = other.arena
	r.self = other.self
	r.parent = other.parent
	r.ClearModified()
}
