package ingest

import (
	"testing"
	"time"

	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/kanoniv/kanoniv/pkg/spec"
	"github.com/stretchr/testify/require"
)

func testSource() spec.Source {
	return spec.Source{
		Name: "crm",
		Attributes: map[string]string{
			"email": "Email_Address",
			"first": "First_Name",
		},
	}
}

func TestValidateSchema_MissingColumn(t *testing.T) {
	err := ValidateSchema(testSource(), []string{"email_address"})
	require.Error(t, err)
}

func TestValidateSchema_CaseInsensitive(t *testing.T) {
	err := ValidateSchema(testSource(), []string{"EMAIL_ADDRESS", "first_name"})
	require.NoError(t, err)
}

func TestSource_MapsColumnsAndDropsUnmapped(t *testing.T) {
	rows := []Row{
		{
			ExternalID:  "1",
			LastUpdated: time.Now(),
			Columns: map[string]string{
				"email_address": "a@b.com",
				"first_name":    "Ann",
				"unmapped_col":  "ignored",
			},
		},
	}

	recs, failures, err := Source(testSource(), "person", rows)
	require.NoError(t, err)
	require.Empty(t, failures)
	require.Len(t, recs, 1)
	require.Equal(t, "a@b.com", recs[0].Get("email"))
	require.Equal(t, "Ann", recs[0].Get("first"))
	_, hasUnmapped := recs[0].Data["unmapped_col"]
	require.False(t, hasUnmapped)
}

func TestSource_MissingValueBecomesSentinel(t *testing.T) {
	rows := []Row{{ExternalID: "1", Columns: map[string]string{"email_address": ""}}}
	recs, _, err := Source(testSource(), "person", rows)
	require.NoError(t, err)
	require.Equal(t, record.Missing, recs[0].Get("email"))
	require.True(t, recs[0].IsMissing("first"))
}
