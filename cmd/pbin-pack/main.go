// Command pbin-pack packs one or more platform-specific binaries into a
// single self-extracting PBIN container.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xyproto/pbin/codec"
	"github.com/xyproto/pbin/container"
	"github.com/xyproto/pbin/internal/logging"
	"github.com/xyproto/pbin/launcher"
	"github.com/xyproto/pbin/pipeline"
	"github.com/xyproto/pbin/target"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pbin-pack:", err)
		os.Exit(1)
	}
}

type packFlags struct {
	name       string
	version    string
	output     string
	compress   string
	noCompress bool
	noBCJ      bool
	noDelta    bool
	noDict     bool
	verbose    bool
	jsonOutput bool
	targets    map[target.Target]*string
}

func newRootCommand() *cobra.Command {
	flags := &packFlags{targets: make(map[target.Target]*string)}

	cmd := &cobra.Command{
		Use:   "pbin-pack",
		Short: "Pack platform-specific binaries into a single PBIN container",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPack(flags)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&flags.name, "name", "", "application name (required)")
	fs.StringVar(&flags.version, "version", "0.0.0", "application version")
	fs.StringVar(&flags.output, "output", "", "output file path (required)")
	fs.StringVar(&flags.compress, "compress", "balanced", "compression preset: fast, balanced, or maximum")
	fs.BoolVar(&flags.noCompress, "no-compress", false, "disable payload compression entirely")
	fs.BoolVar(&flags.noBCJ, "no-bcj", false, "disable BCJ branch filtering")
	fs.BoolVar(&flags.noDelta, "no-delta", false, "disable delta compression between similar targets")
	fs.BoolVar(&flags.noDict, "no-dict", false, "disable zstd dictionary training")
	fs.BoolVar(&flags.verbose, "verbose", false, "enable debug-level logging")
	fs.BoolVar(&flags.jsonOutput, "json", false, "print the post-pack summary as JSON instead of human-readable text")

	for _, t := range target.All() {
		var path string
		fs.StringVar(&path, t.String(), "", fmt.Sprintf("path to the %s binary", t))
		flags.targets[t] = &path
	}

	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("output")

	return cmd
}

func runPack(flags *packFlags) error {
	logger, err := buildLogger(flags.verbose)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	inputs, err := loadInputs(flags.targets)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no target binaries specified; pass at least one --<target> flag")
	}

	level, err := parseLevel(flags.compress)
	if err != nil {
		return err
	}

	cfg := pipeline.Config{
		Level:    level,
		Codec:    codec.Zstd,
		UseBCJ:   !flags.noBCJ,
		UseDelta: !flags.noDelta,
		UseDict:  !flags.noDict,
	}
	if flags.noCompress {
		cfg.Codec = codec.None
	}

	result, err := pipeline.CompressAll(cfg, inputs, logger)
	if err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	logger.Info("compressed targets",
		zap.Int("count", len(inputs)),
		zap.Int("original_bytes", result.Stats.OriginalSize),
		zap.Int("compressed_bytes", result.Stats.CompressedSize),
		zap.Float64("savings_percent", result.Stats.SavingsPercent()),
	)

	file, err := container.Build(launcher.Default(), flags.name, flags.version, inputs, result)
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}

	if err := os.WriteFile(flags.output, file, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(flags.output, 0o755); err != nil {
			return fmt.Errorf("chmod output: %w", err)
		}
	}

	return printSummary(os.Stdout, flags, inputs, result)
}

// summary is the post-pack report: a human-readable form by default, or
// JSON behind --json.
type summary struct {
	Name             string  `json:"name"`
	Version          string  `json:"version"`
	Output           string  `json:"output"`
	TargetCount      int     `json:"target_count"`
	OriginalBytes    int     `json:"original_bytes"`
	CompressedBytes  int     `json:"compressed_bytes"`
	SavingsPercent   float64 `json:"savings_percent"`
	BCJFilteredCount int     `json:"bcj_filtered_count"`
	DeltaUsedCount   int     `json:"delta_used_count"`
	DictTrained      bool    `json:"dict_trained"`
}

func printSummary(w io.Writer, flags *packFlags, inputs []pipeline.Input, result *pipeline.Result) error {
	s := summary{
		Name:             flags.name,
		Version:          flags.version,
		Output:           flags.output,
		TargetCount:      len(inputs),
		OriginalBytes:    result.Stats.OriginalSize,
		CompressedBytes:  result.Stats.CompressedSize,
		SavingsPercent:   result.Stats.SavingsPercent(),
		BCJFilteredCount: result.Stats.BCJFiltered,
		DeltaUsedCount:   result.Stats.DeltaUsed,
		DictTrained:      result.Stats.DictTrained,
	}

	if flags.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Fprintf(w, "packed %s %s -> %s\n", s.Name, s.Version, s.Output)
	fmt.Fprintf(w, "  targets:      %d\n", s.TargetCount)
	fmt.Fprintf(w, "  original:     %d bytes\n", s.OriginalBytes)
	fmt.Fprintf(w, "  compressed:   %d bytes (%.1f%% saved)\n", s.CompressedBytes, s.SavingsPercent)
	fmt.Fprintf(w, "  bcj filtered: %d\n", s.BCJFilteredCount)
	fmt.Fprintf(w, "  delta used:   %d\n", s.DeltaUsedCount)
	fmt.Fprintf(w, "  dictionary:   %v\n", s.DictTrained)
	return nil
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return logging.NewVerbose()
	}
	return logging.New()
}

func loadInputs(targets map[target.Target]*string) ([]pipeline.Input, error) {
	var inputs []pipeline.Input
	for _, t := range target.All() {
		path := targets[t]
		if path == nil || *path == "" {
			continue
		}
		data, err := os.ReadFile(*path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", t, err)
		}
		inputs = append(inputs, pipeline.Input{Target: t.String(), Data: data})
	}
	return inputs, nil
}

func parseLevel(s string) (pipeline.Level, error) {
	switch s {
	case "fast":
		return pipeline.Fast, nil
	case "balanced":
		return pipeline.Balanced, nil
	case "maximum":
		return pipeline.Maximum, nil
	default:
		return 0, fmt.Errorf("invalid --compress value %q: want fast, balanced, or maximum", s)
	}
}
