package main

import (
	"context"

	"github.com/animus-labs/basic-cleaning/internal/cleaning"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

type jobFlags struct {
	inputArtifact     string
	outputName        string
	outputType        string
	outputDescription string
	minPrice          float64
	maxPrice          float64
}

func (f jobFlags) config() cleaning.Config {
	return cleaning.Config{
		InputArtifact:     f.inputArtifact,
		OutputName:        f.outputName,
		OutputType:        f.outputType,
		OutputDescription: f.outputDescription,
		MinPrice:          f.minPrice,
		MaxPrice:          f.maxPrice,
	}
}

func newRootCmd(run func(ctx context.Context, flags jobFlags) error) *cobra.Command {
	var flags jobFlags
	cmd := &cobra.Command{
		Use:           "basic-cleaning",
		Short:         "A very basic data cleaning",
		Long:          "Fetches the input artifact, drops rows outside the price range,\nimputes missing values and publishes the cleaned sample as a new artifact.",
		Args:          cobra.NoArgs,
		Version:       version,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context(), flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.inputArtifact, "input_artifact", "", "Fully-qualified name for the input artifact")
	f.StringVar(&flags.outputName, "output_name", "", "Name of the output artifact")
	f.StringVar(&flags.outputType, "output_type", "", "Artifact type")
	f.StringVar(&flags.outputDescription, "output_description", "", "Description of output artifact")
	f.Float64Var(&flags.minPrice, "min_price", 0, "Minimum price")
	f.Float64Var(&flags.maxPrice, "max_price", 0, "Maximum price")
	for _, name := range []string{"input_artifact", "output_name", "output_type", "output_description", "min_price", "max_price"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
