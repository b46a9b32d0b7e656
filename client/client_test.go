package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fmgo/wire"
)

const contactsResultSet = `<?xml version="1.0" encoding="UTF-8"?>
<fmresultset xmlns="http://www.filemaker.com/xml/fmresultset" version="1.0">
  <error code="0"/>
  <product build="03/05/2019" name="FileMaker Web Publishing Engine" version="18.0.1.0"/>
  <datasource database="Company" date-format="MM/dd/yyyy" layout="Contacts" table="People"
      time-format="HH:mm:ss" timestamp-format="MM/dd/yyyy HH:mm:ss" total-count="120"/>
  <metadata>
    <field-definition auto-enter="no" four-digit-year="no" global="no" max-repeat="1"
        name="FirstName" not-empty="yes" numeric-only="no" result="text" time-of-day="no" type="normal"/>
    <relatedset-definition table="Phones">
      <field-definition auto-enter="no" four-digit-year="no" global="no" max-repeat="1"
          name="Phones::Number" not-empty="no" numeric-only="no" result="text" time-of-day="no" type="normal"/>
    </relatedset-definition>
  </metadata>
  <resultset count="7" fetch-size="1">
    <record mod-id="3" record-id="641">
      <field name="FirstName"><data>Ann</data></field>
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

const databaseNamesResultSet = `<?xml version="1.0" encoding="UTF-8"?>
<fmresultset xmlns="http://www.filemaker.com/xml/fmresultset" version="1.0">
  <error code="0"/>
  <product build="03/05/2019" name="FileMaker Web Publishing Engine" version="18.0.1.0"/>
  <datasource database="" date-format="MM/dd/yyyy" layout="" table=""
      time-format="HH:mm:ss" timestamp-format="MM/dd/yyyy HH:mm:ss" total-count="2"/>
  <metadata>
    <field-definition auto-enter="no" four-digit-year="no" global="no" max-repeat="1"
        name="DATABASE_NAME" not-empty="no" numeric-only="no" result="text" time-of-day="no" type="normal"/>
  </metadata>
  <resultset count="2" fetch-size="2">
    <record mod-id="0" record-id="1">
      <field name="DATABASE_NAME"><data>Company</data></field>
    </record>
    <record mod-id="0" record-id="2">
      <field name="DATABASE_NAME"><data>Warehouse</data></field>
    </record>
  </resultset>
</fmresultset>`

const contactsLayoutInfo = `<?xml version="1.0" encoding="UTF-8"?>
<FMPXMLLAYOUT xmlns="http://www.filemaker.com/fmpxmllayout">
  <ERRORCODE>0</ERRORCODE>
  <LAYOUT DATABASE="Company" NAME="Contacts">
    <FIELD NAME="FirstName">
      <STYLE TYPE="EDITTEXT" VALUELIST=""/>
    </FIELD>
  </LAYOUT>
  <VALUELISTS>
    <VALUELIST NAME="Titles">
      <VALUE DISPLAY="Doctor">Dr.</VALUE>
      <VALUE DISPLAY="Professor">Prof.</VALUE>
    </VALUELIST>
  </VALUELISTS>
</FMPXMLLAYOUT>`

const contactsDataResponse = `{
  "response": {
    "dataInfo": {
      "database": "Company",
      "layout": "Contacts",
      "table": "People",
      "totalRecordCount": 120,
      "foundCount": 7,
      "returnedCount": 1
    },
    "data": [
      {
        "fieldData": {"FirstName": "Ann"},
        "portalData": {},
        "recordId": "641",
        "modId": "3"
      }
    ]
  },
  "messages": [{"code": "0", "message": "OK"}]
}`

const contactsPortalDataResponse = `{
  "response": {
    "dataInfo": {
      "database": "Company",
      "layout": "Contacts",
      "table": "People",
      "totalRecordCount": 120,
      "foundCount": 1,
      "returnedCount": 1
    },
    "data": [
      {
        "fieldData": {"FirstName": "Ann"},
        "portalData": {
          "Phones": [
            {"recordId": "12", "modId": "0", "Phones::Number": "555-0100"},
            {"recordId": "13", "modId": "1", "Phones::Number": "555-0101"}
          ]
        },
        "recordId": "641",
        "modId": "3"
      }
    ]
  },
  "messages": [{"code": "0", "message": "OK"}]
}`

const contactsMetadataResponse = `{
  "response": {
    "fieldMetaData": [
      {
        "name": "FirstName", "type": "normal", "result": "text",
        "global": false, "autoEnter": false, "fourDigitYear": false,
        "maxRepeat": 1, "maxCharacters": 0, "notEmpty": false,
        "numeric": false, "timeOfDay": false, "valueList": ""
      }
    ],
    "portalMetaData": {
      "Phones": [
        {
          "name": "Phones::Number", "type": "normal", "result": "text",
          "global": false, "autoEnter": false, "fourDigitYear": false,
          "maxRepeat": 1, "maxCharacters": 0, "notEmpty": false,
          "numeric": false, "timeOfDay": false
        }
      ]
    },
    "valueLists": []
  },
  "messages": [{"code": "0", "message": "OK"}]
}`

const editAcknowledgement = `{
  "response": {"modId": "4"},
  "messages": [{"code": "0", "message": "OK"}]
}`

type (
	sentRequest struct {
		params  *wire.Params
		grammar string
	}

	// fakeTransport replays canned response bytes and records every
	// request it was handed.
	fakeTransport struct {
		requests []sentRequest
		respond  func(params *wire.Params, grammar string) ([]byte, error)
	}
)

func (t *fakeTransport) Execute(params *wire.Params, grammar string) ([]byte, error) {
	t.requests = append(t.requests, sentRequest{params: params, grammar: grammar})
	return t.respond(params, grammar)
}

func (t *fakeTransport) last() sentRequest {
	return t.requests[len(t.requests)-1]
}

func createConfig(grammar string) Config {
	return Config{
		Host:     "https://fms.example.com",
		Database: "Company",
		Username: "web",
		Password: "secret",
		Grammar:  grammar,
	}
}

func createServer(t *testing.T, grammar string, respond func(params *wire.Params, g string) ([]byte, error)) (*Server, *fakeTransport) {
	transport := &fakeTransport{respond: respond}
	server, err := NewWithTransport(createConfig(grammar), transport)
	require.NoError(t, err)
	return server, transport
}

func respondWith(documents ...string) func(params *wire.Params, grammar string) ([]byte, error) {
	index := 0
	return func(*wire.Params, string) ([]byte, error) {
		document := documents[index]
		if index < len(documents)-1 {
			index += 1
		}
		return []byte(document), nil
	}
}

func TestServer_FindOverXML(t *testing.T) {
	server, transport := createServer(t, "xml", respondWith(contactsResultSet))

	find := server.NewFindCommand("Contacts")
	require.NoError(t, find.AddFindCriterion("FirstName", "Ann"))
	result, err := find.Execute()
	require.NoError(t, err)

	sent := transport.last()
	assert.Equal(t, GrammarFMResultSet, sent.grammar)
	assert.True(t, sent.params.IsFlag("-find"))
	value, _ := sent.params.Get("FirstName")
	assert.Equal(t, "Ann", value)

	require.Len(t, result.Records(), 1)
	first := result.First()
	name, err := first.Field("FirstName")
	require.NoError(t, err)
	assert.Equal(t, "Ann", name)

	phones, err := first.RelatedSetRecords("Phones")
	require.NoError(t, err)
	assert.Len(t, phones, 2)
}

func TestServer_LayoutIsCachedAcrossRuns(t *testing.T) {
	server, _ := createServer(t, "xml", respondWith(contactsResultSet))

	first, err := server.NewFindAllCommand("Contacts").Execute()
	require.NoError(t, err)
	second, err := server.NewFindAllCommand("Contacts").Execute()
	require.NoError(t, err)

	assert.Same(t, first.Layout(), second.Layout())
}

func TestServer_FindCriterionCheckedAgainstLayout(t *testing.T) {
	server, _ := createServer(t, "xml", respondWith(contactsResultSet))

	find := server.NewFindCommand("Contacts")
	err := find.AddFindCriterion("NoSuchField", "x")
	require.Error(t, err)
}

func TestServer_FindOverDataAPI(t *testing.T) {
	server, transport := createServer(t, "dataapi", respondWith(contactsDataResponse))

	result, err := server.NewFindAllCommand("Contacts").Execute()
	require.NoError(t, err)

	assert.Equal(t, GrammarDataAPI, transport.last().grammar)
	assert.Equal(t, 7, result.FoundSetCount)
	name, err := result.First().Field("FirstName")
	require.NoError(t, err)
	assert.Equal(t, "Ann", name)
}

func TestServer_FindAnyUnsupportedOverDataAPI(t *testing.T) {
	server, transport := createServer(t, "dataapi", respondWith(contactsDataResponse))

	_, err := server.NewFindAnyCommand("Contacts").Execute()
	require.Error(t, err)
	_, ok := err.(wire.UnsupportedError)
	assert.True(t, ok)
	assert.Empty(t, transport.requests)
}

func TestServer_CommitRecordEdits(t *testing.T) {
	server, transport := createServer(t, "xml", respondWith(contactsResultSet))

	result, err := server.NewFindAllCommand("Contacts").Execute()
	require.NoError(t, err)

	r := result.First()
	require.NoError(t, r.SetField("FirstName", "Anne", 0))
	require.NoError(t, r.Commit())

	sent := transport.last()
	assert.True(t, sent.params.IsFlag("-edit"))
	recordID, _ := sent.params.Get("-recid")
	assert.Equal(t, "641", recordID)
	value, ok := sent.params.Get("FirstName(1)")
	assert.True(t, ok)
	assert.Equal(t, "Anne", value)
	assert.Empty(t, r.ModifiedFields())
}

func TestServer_CommitRecordEditsOverDataAPI(t *testing.T) {
	// the data response carries no field metadata; the layout fills in
	// lazily when the edit command checks its field names
	server, transport := createServer(t, "dataapi",
		respondWith(contactsDataResponse, contactsMetadataResponse, editAcknowledgement))

	result, err := server.NewFindAllCommand("Contacts").Execute()
	require.NoError(t, err)

	r := result.First()
	require.NoError(t, r.SetField("FirstName", "Anne", 0))
	require.NoError(t, r.Commit())

	sent := transport.last()
	assert.True(t, sent.params.IsFlag("-edit"))
	recordID, _ := sent.params.Get("-recid")
	assert.Equal(t, "641", recordID)

	// the acknowledgement carries ids only; local field state stands
	assert.Equal(t, "4", r.ModificationID())
	name, err := r.Field("FirstName")
	require.NoError(t, err)
	assert.Equal(t, "Anne", name)
	assert.Empty(t, r.ModifiedFields())
}

func TestServer_CommitChildOverDataAPI(t *testing.T) {
	server, transport := createServer(t, "dataapi",
		respondWith(contactsPortalDataResponse, editAcknowledgement, contactsPortalDataResponse))

	result, err := server.NewFindAllCommand("Contacts").Execute()
	require.NoError(t, err)

	phones, err := result.First().RelatedSetRecords("Phones")
	require.NoError(t, err)
	child := phones[1]
	require.NoError(t, child.SetField("Number", "555-0199", 0))
	require.NoError(t, child.Commit())

	require.Len(t, transport.requests, 3)
	edit := transport.requests[1]
	assert.True(t, edit.params.IsFlag("-edit"))
	value, ok := edit.params.Get("Phones::Number(1).13")
	assert.True(t, ok)
	assert.Equal(t, "555-0199", value)

	// the bare acknowledgement forces a refetch to relocate the row
	refetch := transport.requests[2]
	assert.True(t, refetch.params.IsFlag("-find"))
	recordID, _ := refetch.params.Get("-recid")
	assert.Equal(t, "641", recordID)

	assert.Equal(t, "13", child.RecordID())
	assert.Empty(t, child.ModifiedFields())
}

func TestServer_CommitNewRecordUsesAdd(t *testing.T) {
	server, transport := createServer(t, "xml", respondWith(contactsResultSet))

	result, err := server.NewFindAllCommand("Contacts").Execute()
	require.NoError(t, err)

	// a record with its id cleared commits as an add
	r := result.First()
	r.SetRecordID("")
	require.NoError(t, r.SetField("FirstName", "Bea", 0))
	require.NoError(t, r.Commit())

	assert.True(t, transport.last().params.IsFlag("-new"))
}

func TestServer_DeleteRecord(t *testing.T) {
	server, transport := createServer(t, "xml", respondWith(contactsResultSet))

	result, err := server.NewFindAllCommand("Contacts").Execute()
	require.NoError(t, err)

	r := result.First()
	require.NoError(t, r.Delete())

	sent := transport.last()
	assert.True(t, sent.params.IsFlag("-delete"))
	recordID, _ := sent.params.Get("-recid")
	assert.Equal(t, "641", recordID)
	assert.Equal(t, "", r.RecordID())
}

func TestServer_DeleteChildEditsParent(t *testing.T) {
	server, transport := createServer(t, "xml", respondWith(contactsResultSet))

	result, err := server.NewFindAllCommand("Contacts").Execute()
	require.NoError(t, err)

	phones, err := result.First().RelatedSetRecords("Phones")
	require.NoError(t, err)
	require.NoError(t, phones[0].Delete())

	sent := transport.last()
	assert.True(t, sent.params.IsFlag("-edit"))
	recordID, _ := sent.params.Get("-recid")
	assert.Equal(t, "641", recordID)
	target, _ := sent.params.Get("-delete.related")
	assert.Equal(t, "Phones.12", target)
}

func TestServer_LoadExtendedInfoOverXML(t *testing.T) {
	server, transport := createServer(t, "xml", respondWith(contactsResultSet, contactsLayoutInfo))

	result, err := server.NewFindAllCommand("Contacts").Execute()
	require.NoError(t, err)

	layout := result.Layout()
	require.NoError(t, layout.LoadExtendedInfo(""))

	sent := transport.last()
	assert.Equal(t, GrammarFMPXMLLayout, sent.grammar)
	assert.True(t, sent.params.IsFlag("-view"))

	titles, err := layout.ValueList("Titles")
	require.NoError(t, err)
	assert.Equal(t, []string{"Dr.", "Prof."}, titles)
	display, err := layout.ValueListDisplay("Titles")
	require.NoError(t, err)
	assert.Equal(t, "Doctor", display["Dr."])

	field, err := layout.Field("FirstName")
	require.NoError(t, err)
	assert.Equal(t, "EDITTEXT", field.StyleType)

	// without a record scope the fetch happens once
	require.NoError(t, layout.LoadExtendedInfo(""))
	assert.Len(t, transport.requests, 2)
}

func TestServer_DatabaseNames(t *testing.T) {
	server, transport := createServer(t, "xml", respondWith(databaseNamesResultSet))

	names, err := server.DatabaseNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"Company", "Warehouse"}, names)
	assert.True(t, transport.last().params.IsFlag("-dbnames"))
}

func TestServer_LayoutNamesOverDataAPI(t *testing.T) {
	document := `{
	  "response": {"layouts": [{"name": "Contacts"}, {"name": "Invoices"}]},
	  "messages": [{"code": "0", "message": "OK"}]
	}`
	server, transport := createServer(t, "dataapi", respondWith(document))

	names, err := server.LayoutNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"Contacts", "Invoices"}, names)
	assert.True(t, transport.last().params.IsFlag("-layoutnames"))
}

func TestServer_ServerErrorSurfacedFromRun(t *testing.T) {
	document := `<?xml version="1.0" encoding="UTF-8"?>
<fmresultset xmlns="http://www.filemaker.com/xml/fmresultset" version="1.0">
  <error code="401"/>
  <product build="03/05/2019" name="FileMaker Web Publishing Engine" version="18.0.1.0"/>
</fmresultset>`
	server, _ := createServer(t, "xml", respondWith(document))

	_, err := server.NewFindAllCommand("Contacts").Execute()
	require.Error(t, err)
	serverErr, ok := err.(wire.ServerError)
	require.True(t, ok)
	assert.Equal(t, 401, serverErr.Code)
}
