package cleaning

import (
	"errors"
	"math"
	"strings"
)

// Config holds the parameters of one cleaning run. It is built once from
// the command line and not modified afterwards.
type Config struct {
	InputArtifact     string
	OutputName        string
	OutputType        string
	OutputDescription string
	MinPrice          float64
	MaxPrice          float64
}

// Validate checks the parameters. OutputDescription may be empty. The
// ordering of MinPrice and MaxPrice is left to the caller; inverted bounds
// produce an empty output rather than an error.
func (c Config) Validate() error {
	if strings.TrimSpace(c.InputArtifact) == "" {
		return errors.New("input artifact is required")
	}
	if strings.TrimSpace(c.OutputName) == "" {
		return errors.New("output name is required")
	}
	if strings.TrimSpace(c.OutputType) == "" {
		return errors.New("output type is required")
	}
	if !isFinite(c.MinPrice) {
		return errors.New("min price must be a finite number")
	}
	if !isFinite(c.MaxPrice) {
		return errors.New("max price must be a finite number")
	}
	return nil
}

// Map returns the parameters keyed by their command line names, for run
// tracking.
func (c Config) Map() map[string]any {
	return map[string]any{
		"input_artifact":     c.InputArtifact,
		"output_name":        c.OutputName,
		"output_type":        c.OutputType,
		"output_description": c.OutputDescription,
		"min_price":          c.MinPrice,
		"max_price":          c.MaxPrice,
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
