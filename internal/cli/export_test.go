package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExportWindow(t *testing.T) {
	from, to, err := parseExportWindow("2024-06-01T00:00:00Z", "2024-06-02T00:00:00Z")
	require.NoError(t, err)
	require.NotNil(t, from)
	require.NotNil(t, to)
	assert.Equal(t, 24*time.Hour, to.Sub(*from))

	from, to, err = parseExportWindow("", "")
	require.NoError(t, err)
	assert.Nil(t, from)
	assert.Nil(t, to)
}

func TestParseExportWindowRejectsBadInput(t *testing.T) {
	_, _, err := parseExportWindow("yesterday", "")
	assert.ErrorContains(t, err, "--from")

	_, _, err = parseExportWindow("", "2024-06-01")
	assert.ErrorContains(t, err, "--to")

	_, _, err = parseExportWindow("2024-06-02T00:00:00Z", "2024-06-01T00:00:00Z")
	assert.ErrorContains(t, err, "before")
}

func TestExportFlagsDescribePriceWindow(t *testing.T) {
	assert.Contains(t, exportCmd.Flags().Lookup("from").Usage, "state document")
	assert.Contains(t, exportCmd.Long, "history database")
}
