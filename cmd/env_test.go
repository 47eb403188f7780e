package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldSpecs(t *testing.T) {
	fields, err := parseFieldSpecs([]string{"name=author.name", "first=comments[0].text"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"name":  "author.name",
		"first": "comments[0].text",
	}, fields)
}

func TestParseFieldSpecsEmpty(t *testing.T) {
	fields, err := parseFieldSpecs(nil)
	require.NoError(t, err)
	assert.Nil(t, fields)
}

func TestParseFieldSpecsInvalid(t *testing.T) {
	_, err := parseFieldSpecs([]string{"no-separator"})
	assert.Error(t, err)

	_, err = parseFieldSpecs([]string{"=path"})
	assert.Error(t, err)
}

func TestParseColumnSpecs(t *testing.T) {
	cols, err := parseColumnSpecs([]string{"FirstName=firstName", "Company"})
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "FirstName", cols[0].Header)
	assert.Equal(t, "firstName", cols[0].Field)
	assert.Equal(t, "Company", cols[1].Header)
	assert.Equal(t, "Company", cols[1].Field)
}

func TestParseColumnSpecsInvalid(t *testing.T) {
	_, err := parseColumnSpecs([]string{"Header="})
	assert.Error(t, err)
}

func TestToMap(t *testing.T) {
	type envelope struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
	}
	m := toMap(envelope{Status: "success", Count: 3})
	assert.Equal(t, "success", m["status"])
	assert.Equal(t, float64(3), m["count"])
}
