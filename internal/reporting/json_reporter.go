// File: internal/reporting/json_reporter.go
package reporting

import (
	"fmt"
	"io"
	"sync"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/stitchcd/stitch/api/schemas"
	"github.com/stitchcd/stitch/internal/observability"
)

// JSONReporter writes the full report envelope as indented JSON. It is
// thread safe.
type JSONReporter struct {
	writer io.WriteCloser
	logger *zap.Logger

	mu      sync.Mutex
	encoded []byte
}

// NewJSONReporter creates a reporter that serializes the raw envelope. The
// reporter takes ownership of the writer.
func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		logger: observability.GetLogger().Named("json_reporter"),
	}
}

// Write serializes the envelope. A run produces one envelope; writing again
// replaces the previous serialization.
func (r *JSONReporter) Write(envelope *schemas.ReportEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report envelope: %w", err)
	}
	r.encoded = append(data, '\n')
	return nil
}

// Close flushes the serialized envelope and closes the writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, writeErr := r.writer.Write(r.encoded)
	closeErr := r.writer.Close()

	if writeErr != nil {
		r.logger.Error("Failed to write JSON report", zap.Error(writeErr))
		return fmt.Errorf("failed to write JSON report: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
