package schema

import (
	"testing"

	"github.com/calvinalkan/docengine/pkg/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	s := NewDefault("books")
	d := withDoc(t, func(d *document.Document) {
		d.Set("Title", document.String("x"))
		addr := document.NewMap().MapSet("City", document.String("Berlin"))
		d.Set("Address", addr)
		d.Set("Tags", document.Array(document.String("a"), document.String("b")))
	})
	require.NoError(t, s.MergeInferred(d))

	encoded, err := Encode(s)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)

	assert.True(t, s.Equal(decoded))
	assert.Equal(t, "books", decoded.CollectionName)
}
