package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuery_EmptyMatchesAll(t *testing.T) {
	e, err := parseQuery("")
	require.NoError(t, err)
	assert.IsType(t, matchAllExpr{}, e)
}

func TestParseQuery_FieldTerm(t *testing.T) {
	e, err := parseQuery("Author:Tolkien")
	require.NoError(t, err)
	term, ok := e.(termExpr)
	require.True(t, ok)
	assert.Equal(t, "Author", term.field)
	assert.Equal(t, "Tolkien", term.term)
}

func TestParseQuery_Range(t *testing.T) {
	e, err := parseQuery("Rating:[3 TO 5]")
	require.NoError(t, err)
	r, ok := e.(rangeExpr)
	require.True(t, ok)
	assert.Equal(t, "3", r.lo)
	assert.Equal(t, "5", r.hi)
}

func TestParseQuery_ImplicitAndExplicitAnd(t *testing.T) {
	e1, err := parseQuery("rings dragons")
	require.NoError(t, err)
	_, ok := e1.(andExpr)
	assert.True(t, ok)

	e2, err := parseQuery("rings AND dragons")
	require.NoError(t, err)
	_, ok = e2.(andExpr)
	assert.True(t, ok)
}

func TestParseQuery_Or(t *testing.T) {
	e, err := parseQuery("rings OR dragons")
	require.NoError(t, err)
	_, ok := e.(orExpr)
	assert.True(t, ok)
}

func TestParseQuery_Not(t *testing.T) {
	e, err := parseQuery("NOT dragons")
	require.NoError(t, err)
	_, ok := e.(notExpr)
	assert.True(t, ok)
}

func TestParseQuery_QuotedPhrase(t *testing.T) {
	e, err := parseQuery(`Title:"lord of the rings"`)
	require.NoError(t, err)
	term, ok := e.(termExpr)
	require.True(t, ok)
	assert.Equal(t, "lord of the rings", term.term)
}

func TestParseQuery_Parentheses(t *testing.T) {
	e, err := parseQuery("(rings OR dragons) AND Author:Tolkien")
	require.NoError(t, err)
	and, ok := e.(andExpr)
	require.True(t, ok)
	_, ok = and.left.(orExpr)
	assert.True(t, ok)
}

func TestParseQuery_UnterminatedQuoteErrors(t *testing.T) {
	_, err := parseQuery(`Title:"lord of the rings`)
	assert.Error(t, err)
}

func TestParseQuery_UnbalancedParenErrors(t *testing.T) {
	_, err := parseQuery("(rings OR dragons")
	assert.Error(t, err)
}
