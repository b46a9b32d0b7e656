package record

import (
	"testing"

	"fmgo/schema"
	"fmgo/wire"
	"fmgo/wire/xmlrs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResultSet = `<?xml version="1.0" encoding="UTF-8"?>
<fmresultset xmlns="http://www.filemaker.com/xml/fmresultset" version="1.0">
  <error code="0"/>
  <product name="FileMaker Web Publishing Engine" version="18.0.1.0"/>
  <datasource database="Company" layout="Contacts" table="People" total-count="120"/>
  <metadata>
    <field-definition auto-enter="no" four-digit-year="no" global="no" max-repeat="1"
        name="FirstName" not-empty="yes" numeric-only="no" result="text" time-of-day="no" type="normal"/>
    <field-definition auto-enter="no" four-digit-year="yes" global="no" max-repeat="1"
        name="Birthday" not-empty="no" numeric-only="no" result="date" time-of-day="no" type="normal"/>
    <relatedset-definition table="Phones">
      <field-definition auto-enter="no" four-digit-year="no" global="no" max-repeat="1"
          name="Phones::Number" not-empty="no" numeric-only="no" result="text" time-of-day="no" type="normal"/>
    </relatedset-definition>
  </metadata>
  <resultset count="7" fetch-size="1">
    <record mod-id="3" record-id="641">
      <field name="FirstName"><data>Ann</data></field>
      <field name="Birthday"><data>02/29/2000</data></field>
      <relatedset count="2" table="Phones">
        <record mod-id="0" record-id="12">
          <field name="Phones::Number"><data>555-0100</data></field>
        </record>
        <record mod-id="1" record-id="13">
          <field name="Phones::Number"><data>555-0101</data></field>
        </record>
      </relatedset>
    </record>
  </resultset>
</fmresultset>`

func materializeSample(t *testing.T) (*schema.Layout, *Result) {
	parsed, err := xmlrs.Parse([]byte(sampleResultSet))
	require.NoError(t, err)

	layout := schema.NewLayout("Contacts", "Company", "")
	materializer := Materializer{}
	result, err := materializer.SetResult(layout, parsed)
	require.NoError(t, err)
	return layout, result
}

func TestSetLayout_BuildsFieldsAndRules(t *testing.T) {
	layout, _ := materializeSample(t)

	firstName, err := layout.Field("FirstName")
	require.NoError(t, err)
	assert.True(t, firstName.HasRule(schema.RuleNotEmpty))
	assert.Equal(t, schema.ResultText, firstName.Result)

	birthday, err := layout.Field("Birthday")
	require.NoError(t, err)
	assert.True(t, birthday.HasRule(schema.RuleFourDigitYear))
	// date result type implies the date pattern rule
	assert.True(t, birthday.HasRule(schema.RuleDateField))

	relatedSet, err := layout.RelatedSet("Phones")
	require.NoError(t, err)
	_, err = relatedSet.Field("Phones::Number")
	assert.NoError(t, err)
}

func TestSetLayout_Idempotent(t *testing.T) {
	parsed, err := xmlrs.Parse([]byte(sampleResultSet))
	require.NoError(t, err)

	layout := schema.NewLayout("Contacts", "Company", "")
	materializer := Materializer{}
	require.NoError(t, materializer.SetLayout(layout, parsed))
	require.NoError(t, materializer.SetLayout(layout, parsed))

	assert.Equal(t, []string{"FirstName", "Birthday"}, layout.FieldNames())
}

func TestSetResult_Counts(t *testing.T) {
	_, result := materializeSample(t)

	assert.Equal(t, 120, result.TableCount)
	assert.Equal(t, 7, result.FoundSetCount)
	assert.Equal(t, 1, result.FetchCount)
	require.Len(t, result.Records(), 1)
}

func TestSetResult_RelatedSetLinkage(t *testing.T) {
	_, result := materializeSample(t)

	top := result.First()
	require.NotNil(t, top)
	assert.Equal(t, "641", top.RecordID())

	children, err := top.RelatedSetRecords("Phones")
	require.NoError(t, err)
	require.Len(t, children, 2)
	for _, child := range children {
		// identity, not equality by value
		assert.True(t, child.Parent() == top)
		assert.Equal(t, "Phones", child.RelatedSetName())
	}

	number, err := children[0].Field("Number") // auto-qualified
	require.NoError(t, err)
	assert.Equal(t, "555-0100", number)
}

func TestSetResult_ValueListsInline(t *testing.T) {
	parsed := wire.NewParsedResult()
	parsed.Head = wire.ParsedHead{Layout: "Contacts", Database: "Company", Table: "People"}
	parsed.FieldDefs = []wire.ParsedFieldDef{{Name: "Title", Result: "text", Entry: "normal", MaxRepeat: 1}}
	parsed.ValueLists = []wire.ParsedValueList{{
		Name:          "Titles",
		Values:        []string{"Mr", "Ms"},
		DisplayValues: map[string]string{"Mr": "Mister", "Ms": "Miz"},
	}}

	layout := schema.NewLayout("Contacts", "", "")
	materializer := Materializer{}
	require.NoError(t, materializer.SetLayout(layout, parsed))

	assert.True(t, layout.Extended())
	values, err := layout.ValueList("Titles")
	require.NoError(t, err)
	assert.Equal(t, []string{"Mr", "Ms"}, values)
}

type flatRecord struct {
	recordID string
	fields   map[string][]string
	children map[string][]Handle
}

func (r *flatRecord) SetRecordID(id string)            { r.recordID = id }
func (r *flatRecord) SetModificationID(string)         {}
func (r *flatRecord) SetParent(Handle)                 {}
func (r *flatRecord) SetRelatedSetName(string)         {}
func (r *flatRecord) SetFieldValues(name string, values []string) {
	r.fields[name] = values
}
func (r *flatRecord) AddChild(name string, child Handle) {
	r.children[name] = append(r.children[name], child)
}

func TestSetResult_CustomFactory(t *testing.T) {
	parsed, err := xmlrs.Parse([]byte(sampleResultSet))
	require.NoError(t, err)

	layout := schema.NewLayout("Contacts", "Company", "")
	materializer := Materializer{
		Factory: func(arena *Arena, layout *schema.Layout, relatedSet *schema.RelatedSet) Slots {
			r := &flatRecord{
				fields:   map[string][]string{},
				children: map[string][]Handle{},
			}
			arena.Add(r)
			return r
		},
	}
	result, err := materializer.SetResult(layout, parsed)
	require.NoError(t, err)

	slots := result.Slots()
	require.Len(t, slots, 1)
	flat, ok := slots[0].(*flatRecord)
	require.True(t, ok)
	assert.Equal(t, "641", flat.recordID)
	assert.Equal(t, []string{"Ann"}, flat.fields["FirstName"])
	assert.Len(t, flat.children["Phones"], 2)
	// the default-record accessor yields nothing for foreign slots
	assert.Empty(t, result.Records())
}
