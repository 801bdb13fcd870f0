// File: internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/stitchcd/stitch/api/schemas"
)

// Reporter defines the interface for rendering a run's report to an output.
type Reporter interface {
	// Write processes a single report envelope.
	Write(envelope *schemas.ReportEnvelope) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for the given format writing to outputPath. An
// empty path or "stdout" writes to standard output. toolVersion is embedded
// in the rendered output.
func New(format, outputPath, toolVersion string) (Reporter, error) {
	var writer io.WriteCloser
	isStdOut := outputPath == "" || outputPath == "stdout"

	if isStdOut {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	cleanup := func() {
		if !isStdOut {
			writer.Close()
		}
	}

	switch format {
	case "markdown", "md":
		return NewMarkdownReporter(writer, toolVersion), nil
	case "sarif":
		return NewSARIFReporter(writer, toolVersion)
	case "json":
		return NewJSONReporter(writer), nil
	default:
		cleanup()
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

// Extension maps a report format to its conventional file extension.
func Extension(format string) string {
	switch format {
	case "markdown", "md":
		return ".md"
	case "sarif":
		return ".sarif"
	case "json":
		return ".json"
	default:
		return "." + format
	}
}
