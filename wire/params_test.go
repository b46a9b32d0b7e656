package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParams_Order(t *testing.T) {
	params := NewParams()
	params.Set("-db", "Company")
	params.Set("-lay", "Contacts")
	params.SetFlag("-findall")

	assert.Equal(t, []string{"-db", "-lay", "-findall"}, params.Names())

	value, ok := params.Get("-lay")
	assert.True(t, ok)
	assert.Equal(t, "Contacts", value)

	assert.True(t, params.IsFlag("-findall"))
	assert.False(t, params.IsFlag("-db"))
}

func TestParams_EncodeForm(t *testing.T) {
	params := NewParams()
	params.Set("-db", "Company")
	params.Set("LastName", "O'Neil & son")
	params.SetFlag("-find")

	assert.Equal(t, "-db=Company&LastName=O%27Neil+%26+son&-find", params.EncodeForm())
}
