// File: internal/reporting/json_reporter_test.go
package reporting_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchcd/stitch/api/schemas"
	"github.com/stitchcd/stitch/internal/reporting"
)

// -- Test Cases: JSON Envelope Output --

func TestJSONReporter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	envelope := sampleEnvelope()

	r, err := reporting.New("json", path, testToolVersion)
	require.NoError(t, err)
	require.NoError(t, r.Write(envelope))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded schemas.ReportEnvelope
	require.NoError(t, json.Unmarshal(data, &decoded))

	if diff := cmp.Diff(*envelope, decoded); diff != "" {
		t.Errorf("envelope round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONReporter_LastWriteWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	r, err := reporting.New("json", path, testToolVersion)
	require.NoError(t, err)

	first := sampleEnvelope()
	require.NoError(t, r.Write(first))

	second := sampleEnvelope()
	second.Run.RunID = "run-final"
	require.NoError(t, r.Write(second))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded schemas.ReportEnvelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-final", decoded.Run.RunID)

	// Exactly one JSON document in the file.
	assert.Equal(t, 1, countJSONDocuments(t, data))
}

// countJSONDocuments counts top-level JSON values in the byte stream.
func countJSONDocuments(t *testing.T, data []byte) int {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(data))
	count := 0
	for dec.More() {
		var v any
		require.NoError(t, dec.Decode(&v))
		count++
	}
	return count
}
