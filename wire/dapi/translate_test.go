package dapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"fmgo/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, translation *Translation) map[string]any {
	body := map[string]any{}
	require.NoError(t, json.Unmarshal(translation.Body, &body))
	return body
}

func createBaseParams() *wire.Params {
	params := wire.NewParams()
	params.Set("-db", "Company")
	params.Set("-lay", "Contacts")
	return params
}

func TestTranslate_FindAll(t *testing.T) {
	params := createBaseParams()
	params.Set("-skip", "5")
	params.Set("-max", "10")
	params.Set("-sortfield.1", "FirstName")
	params.Set("-sortorder.1", "descend")
	params.Set("-script", "AfterFind")
	params.SetFlag("-findall")

	translation, err := Translate(params)
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, translation.Method)
	assert.Equal(t, "/fmi/data/v1/databases/Company/layouts/Contacts/records", translation.Path)
	assert.Equal(t, "5", translation.Query.Get("_offset"))
	assert.Equal(t, "10", translation.Query.Get("_limit"))
	assert.Equal(t, `[{"fieldName":"FirstName","sortOrder":"descend"}]`, translation.Query.Get("_sort"))
	assert.Equal(t, "AfterFind", translation.Query.Get("script"))
	assert.Nil(t, translation.Body)
}

func TestTranslate_Find(t *testing.T) {
	params := createBaseParams()
	params.SetFlag("-find")
	params.Set("-lop", "and")
	params.Set("LastName", "Smith")
	params.Set("-sortfield.1", "FirstName")
	params.Set("-max", "10")
	params.Set("-skip", "0")

	translation, err := Translate(params)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, translation.Method)
	assert.Equal(t, "/fmi/data/v1/databases/Company/layouts/Contacts/_find", translation.Path)
	assert.JSONEq(
		t,
		`{"query":[{"LastName":"Smith"}],"sort":[{"fieldName":"FirstName","sortOrder":"ascend"}],"limit":10}`,
		string(translation.Body),
	)
}

func TestTranslate_FindKeepsGlobalsOutOfQuery(t *testing.T) {
	params := createBaseParams()
	params.SetFlag("-find")
	params.Set("LastName", "Smith")
	params.Set("Counter.global", "9")
	params.Set("FirstName(1)", "Anna")

	translation, err := Translate(params)
	require.NoError(t, err)

	assert.JSONEq(
		t,
		`{"query":[{"LastName":"Smith"}],"globalFields":{"Counter":"9"}}`,
		string(translation.Body),
	)
}

func TestTranslate_FindByRecordID(t *testing.T) {
	params := createBaseParams()
	params.SetFlag("-find")
	params.Set("-recid", "641")

	translation, err := Translate(params)
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, translation.Method)
	assert.Equal(t, "/fmi/data/v1/databases/Company/layouts/Contacts/records/641", translation.Path)
}

func TestTranslate_FindQuery(t *testing.T) {
	params := createBaseParams()
	params.SetFlag("-findquery")
	params.Set("-q1", "LastName")
	params.Set("-q1.value", "A")
	params.Set("-q2", "LastName")
	params.Set("-q2.value", "B")
	params.Set("-q3", "FirstName")
	params.Set("-q3.value", "C")
	params.Set("-q4", "City")
	params.Set("-q4.value", "D")
	params.Set("-query", "(q1);(q2,q3);!(q4)")

	translation, err := Translate(params)
	require.NoError(t, err)

	body := decodeBody(t, translation)
	query, ok := body["query"].([]any)
	require.True(t, ok)
	require.Len(t, query, 3)

	assert.Equal(t, map[string]any{"LastName": "A"}, query[0])
	assert.Equal(t, map[string]any{"LastName": "B", "FirstName": "C"}, query[1])
	assert.Equal(t, map[string]any{"City": "D", "omit": true}, query[2])
}

func TestTranslate_New(t *testing.T) {
	params := createBaseParams()
	params.SetFlag("-new")
	params.Set("FirstName(1)", "Ann")
	params.Set("Counter.global", "7")
	params.Set("Phones::Number(1).0", "555-0100")
	params.Set("Phones::Number(1).12", "555-0101")

	translation, err := Translate(params)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, translation.Method)
	assert.Equal(t, "/fmi/data/v1/databases/Company/layouts/Contacts/records", translation.Path)

	body := decodeBody(t, translation)
	assert.Equal(t, map[string]any{"FirstName(1)": "Ann"}, body["fieldData"])
	assert.Equal(t, map[string]any{"Counter": "7"}, body["globalFields"])

	portalData, ok := body["portalData"].(map[string]any)
	require.True(t, ok)
	rows, ok := portalData["Phones"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 2)
	// row index 0 is a new child and carries no recordId
	assert.Equal(t, map[string]any{"Phones::Number(1)": "555-0100"}, rows[0])
	assert.Equal(t, map[string]any{"Phones::Number(1)": "555-0101", "recordId": "12"}, rows[1])
}

func TestTranslate_Edit(t *testing.T) {
	params := createBaseParams()
	params.SetFlag("-edit")
	params.Set("-recid", "641")
	params.Set("-modid", "3")
	params.Set("FirstName(1)", "Anna")
	params.Set("-delete.related", "Phones.13")

	translation, err := Translate(params)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, translation.Method)
	assert.Equal(t, "/fmi/data/v1/databases/Company/layouts/Contacts/records/641", translation.Path)

	body := decodeBody(t, translation)
	fieldData, ok := body["fieldData"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Anna", fieldData["FirstName(1)"])
	assert.Equal(t, []any{"Phones.13"}, fieldData["deleteRelated"])
	assert.Equal(t, "3", body["modId"])
}

func TestTranslate_DeleteAndDuplicate(t *testing.T) {
	params := createBaseParams()
	params.SetFlag("-delete")
	params.Set("-recid", "641")

	translation, err := Translate(params)
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, translation.Method)
	assert.Equal(t, "/fmi/data/v1/databases/Company/layouts/Contacts/records/641", translation.Path)

	params = createBaseParams()
	params.SetFlag("-dup")
	params.Set("-recid", "641")

	translation, err = Translate(params)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, translation.Method)
	assert.Equal(t, "/fmi/data/v1/databases/Company/layouts/Contacts/records/641", translation.Path)
}

func TestTranslate_MetadataEndpoints(t *testing.T) {
	cases := []struct {
		flag string
		path string
	}{
		{"-dbnames", "/fmi/data/v1/databases"},
		{"-layoutnames", "/fmi/data/v1/databases/Company/layouts"},
		{"-scriptnames", "/fmi/data/v1/databases/Company/scripts"},
		{"-view", "/fmi/data/v1/databases/Company/layouts/Contacts"},
	}
	for _, c := range cases {
		params := createBaseParams()
		params.SetFlag(c.flag)

		translation, err := Translate(params)
		require.NoError(t, err, c.flag)
		assert.Equal(t, http.MethodGet, translation.Method, c.flag)
		assert.Equal(t, c.path, translation.Path, c.flag)
	}
}

func TestTranslate_PerformScript(t *testing.T) {
	params := createBaseParams()
	params.SetFlag("-performscript")
	params.Set("-script", "Nightly Cleanup")
	params.Set("-script.param", "dry run")

	translation, err := Translate(params)
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, translation.Method)
	assert.Equal(t, "/fmi/data/v1/databases/Company/layouts/Contacts/script/Nightly%20Cleanup", translation.Path)
	assert.Equal(t, "dry run", translation.Query.Get("script.param"))
}

func TestTranslate_FindAnyUnsupported(t *testing.T) {
	params := createBaseParams()
	params.SetFlag("-findany")

	_, err := Translate(params)
	require.Error(t, err)
	_, ok := err.(wire.UnsupportedError)
	assert.True(t, ok)
}
