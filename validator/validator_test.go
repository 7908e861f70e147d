package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_StrictJSON_ZeroRepairSteps(t *testing.T) {
	res := Parse(`{"tables":["benefits"]}`, Options{ExpectedKeys: []string{"tables"}})
	require.True(t, res.Ok)
	assert.Empty(t, res.RepairSteps)
}

func TestParse_FencedCodeBlock(t *testing.T) {
	res := Parse("```json\n{\"tables\":[\"benefits\"]}\n```", Options{ExpectedKeys: []string{"tables"}})
	require.True(t, res.Ok)
	assert.Contains(t, res.RepairSteps, "strip_fenced_block")
}

func TestParse_TrailingCommaRepair(t *testing.T) {
	res := Parse(`{"tables":["benefits",]}`, Options{ExpectedKeys: []string{"tables"}})
	require.True(t, res.Ok)
}

func TestParse_UnbalancedBraces(t *testing.T) {
	res := Parse(`{"tables":["benefits"]`, Options{ExpectedKeys: []string{"tables"}})
	require.True(t, res.Ok)
}

func TestParse_EmptyInput(t *testing.T) {
	res := Parse("", Options{})
	require.False(t, res.Ok)
	assert.Equal(t, ErrorEmpty, res.ErrorKind)
}

func TestParse_MissingKeys(t *testing.T) {
	res := Parse(`{"other":1}`, Options{ExpectedKeys: []string{"tables"}})
	require.False(t, res.Ok)
	assert.Equal(t, ErrorMissingKeys, res.ErrorKind)
}

func TestParse_NotObjectWhenArrayExpected(t *testing.T) {
	res := Parse(`{"a":1}`, Options{ExpectArray: true})
	require.False(t, res.Ok)
	assert.Equal(t, ErrorNotArray, res.ErrorKind)
}

func TestExtractTopicList_ObjectForm(t *testing.T) {
	arr, _, ok := ExtractTopicList(`{"topics":[{"topic":"a","focus":"b"}]}`, "topics")
	require.True(t, ok)
	assert.Len(t, arr, 1)
}

func TestExtractTopicList_BareArrayForm(t *testing.T) {
	arr, _, ok := ExtractTopicList(`[{"topic":"a","focus":"b"}]`, "topics")
	require.True(t, ok)
	assert.Len(t, arr, 1)
}

func TestExtractTopicList_UnknownKeyForm(t *testing.T) {
	arr, _, ok := ExtractTopicList(`{"items":[{"topic":"a"}]}`, "topics")
	require.True(t, ok)
	assert.Len(t, arr, 1)
}
