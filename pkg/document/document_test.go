package document

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDoc(t *testing.T) *Document {
	t.Helper()
	d := New()
	require.NoError(t, d.Set(FieldID, ID(NewID())))
	require.NoError(t, d.Set(FieldCreated, Timestamp(time.Now())))
	require.NoError(t, d.Set(FieldModified, Timestamp(time.Now())))
	d.root = d.root.MapSet("Title", String("Hitchhiker's Guide"))
	d.root = d.root.MapSet("Rating", Int(10))
	return d
}

func TestSet_RejectsInvalidID(t *testing.T) {
	d := New()
	err := d.Set(FieldID, ID(uuid.Nil))
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestSet_RejectsNonTimestampStandardField(t *testing.T) {
	d := New()
	err := d.Set(FieldCreated, String("not a time"))
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestNormalizeDatesToUTC_Idempotent(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	d := New()
	require.NoError(t, d.Set(FieldID, ID(NewID())))
	require.NoError(t, d.Set(FieldCreated, Timestamp(time.Date(2024, 1, 1, 12, 0, 0, 0, loc))))
	require.NoError(t, d.Set(FieldModified, Timestamp(time.Date(2024, 1, 1, 12, 0, 0, 0, loc))))

	d.NormalizeDatesToUTC()
	once, err := d.CanonicalBytes(CodecNone)
	require.NoError(t, err)

	d.NormalizeDatesToUTC()
	twice, err := d.CanonicalBytes(CodecNone)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestCanonicalBytes_RoundTrip(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecFastStreaming, CodecDeflate} {
		codec := codec
		t.Run(codec.String(), func(t *testing.T) {
			d := newTestDoc(t)
			b, err := d.CanonicalBytes(codec)
			require.NoError(t, err)
			require.Equal(t, byte(codec), b[0])

			got, err := FromCanonicalBytes(b)
			require.NoError(t, err)
			assert.True(t, d.Equal(got))
		})
	}
}

func TestCanonicalBytes_Deterministic(t *testing.T) {
	d1 := New()
	d1.root = d1.root.MapSet("a", Int(1))
	d1.root = d1.root.MapSet("b", String("x"))

	d2 := New()
	d2.root = d2.root.MapSet("b", String("x"))
	d2.root = d2.root.MapSet("a", Int(1))

	b1, err := d1.CanonicalBytes(CodecNone)
	require.NoError(t, err)
	b2, err := d2.CanonicalBytes(CodecNone)
	require.NoError(t, err)

	assert.True(t, d1.Equal(d2))
	assert.Equal(t, b1, b2, "deep-equal documents must encode identically regardless of insertion order")
}

func TestSelectFields_AlwaysKeepsStandardFields(t *testing.T) {
	d := newTestDoc(t)
	projected := d.SelectFields([]string{"Title"})

	_, hasRating := projected.Get("Rating")
	assert.False(t, hasRating)

	_, hasTitle := projected.Get("Title")
	assert.True(t, hasTitle)

	assert.Equal(t, d.ID(), projected.ID())
}

func TestShortID_IsStableAndTwelveChars(t *testing.T) {
	id := NewID()
	s1 := ShortID(id)
	s2 := ShortID(id)
	assert.Len(t, s1, 12)
	assert.Equal(t, s1, s2)
}
