// Package cli provides command-line interface commands for promgate.
// This file implements the render command for one-shot snapshot output.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/promgate/promgate/internal/api"
	"github.com/promgate/promgate/internal/exposition"
	"github.com/promgate/promgate/internal/logging"
)

var (
	renderLabels         []string
	renderTimestampLabel bool
	renderOutput         string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a one-shot metrics snapshot",
	Long: `Take a single snapshot of the configured registry backends and
print it in the Prometheus text exposition format. Useful for inspecting
what a scraper would see without running the server.`,
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringArrayVar(&renderLabels, "label", nil,
		"extra label to inject into every sample, as name=value (repeatable)")
	renderCmd.Flags().BoolVar(&renderTimestampLabel, "timestamp-label", false,
		"inject a timestamp label holding the render-time unix timestamp")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "",
		"output file path (default stdout)")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Flag overrides on top of the config file.
	if renderTimestampLabel {
		cfg.Exposition.TimestampLabel = true
	}
	for _, pair := range renderLabels {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return fmt.Errorf("invalid --label %q: expected name=value", pair)
		}
		if cfg.Exposition.ExtraLabels == nil {
			cfg.Exposition.ExtraLabels = map[string]string{}
		}
		cfg.Exposition.ExtraLabels[name] = value
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	registry, _ := buildRegistry(cfg)

	families, err := registry.Snapshot(context.Background())
	if err != nil {
		return err
	}

	renderer := exposition.NewRenderer(api.ExpositionOptions(cfg))
	doc, err := renderer.Render(families)
	if err != nil {
		return err
	}

	if renderOutput == "" {
		fmt.Fprint(os.Stdout, doc)
		return nil
	}
	if err := os.WriteFile(renderOutput, []byte(doc), 0644); err != nil {
		return err
	}

	logging.Default().InfoExposition("Rendered snapshot",
		"families", len(families),
		"bytes", len(doc),
		"output", renderOutput)
	return nil
}
