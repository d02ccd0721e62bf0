package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeObject(t *testing.T) {
	m, err := DecodeObject([]byte(`{"access_token":"abc","expires_in":1799}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", m["access_token"])
	assert.Equal(t, json.Number("1799"), m["expires_in"])
}

func TestDecodeObjectRejectsNonObjects(t *testing.T) {
	for _, in := range []string{`[1,2]`, `"str"`, `null`, `42`} {
		_, err := DecodeObject([]byte(in))
		assert.ErrorIs(t, err, ErrNotObject, in)
	}
	_, err := DecodeObject([]byte(`<html>`))
	assert.Error(t, err)
	_, err = DecodeObject([]byte(`{} {}`))
	assert.Error(t, err)
}

func TestJSONMarshalDoesNotEscapeHTML(t *testing.T) {
	b, err := JSON.Marshal(map[string]string{"d": "<a&b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"d":"<a&b>"}`, string(b))
	assert.Equal(t, "application/json", JSON.ContentType())
}
