package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_AggregatesFailures(t *testing.T) {
	cfg := Default()
	cfg.Worker.Concurrency = 0
	cfg.Buffer.BaseDir = ""

	err := cfg.Validate()
	require.Error(t, err)

	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Len(t, cerr.Failures, 2)
}

func TestParseAllowedUsers(t *testing.T) {
	ids, err := ParseAllowedUsers(" 123, 456 ,, 789")
	require.NoError(t, err)
	assert.Equal(t, []int64{123, 456, 789}, ids)
}

func TestParseAllowedUsers_RejectsNonPositive(t *testing.T) {
	_, err := ParseAllowedUsers("0")
	assert.Error(t, err)

	_, err = ParseAllowedUsers("-5")
	assert.Error(t, err)

	_, err = ParseAllowedUsers("abc")
	assert.Error(t, err)
}

func TestParseAllowedUsers_Empty(t *testing.T) {
	ids, err := ParseAllowedUsers("")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
