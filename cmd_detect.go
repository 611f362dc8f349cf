package main

import (
	"fmt"

	"github.com/bsaid97/go-polygon-overlap/handlers"
	"github.com/bsaid97/go-polygon-overlap/logger"
	"github.com/spf13/cobra"
)

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, backend, err := setup(cmd)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx, stop := signalContext()
	defer stop()

	opts := handlers.OptionsFromConfig(cfg)
	opts.Progress = cmd.OutOrStdout()
	opts.Logger = logger.L()

	summary, err := handlers.DetectOverlaps(ctx, backend, opts)
	if err != nil {
		return err
	}

	for kind, n := range countDiagnostics(summary.Diagnostics) {
		logger.L().Warn("diagnostics", "kind", kind, "count", n)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Total Overlaps: %d\n", summary.Overlaps)
	return nil
}

func countDiagnostics(entries []handlers.Diagnostic) map[string]int {
	counts := make(map[string]int)
	for _, d := range entries {
		counts[d.KindName]++
	}
	return counts
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, backend, err := setup(cmd)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx, stop := signalContext()
	defer stop()

	errs, err := handlers.CheckRecords(ctx, backend, cfg.Detect.FieldNames(), cfg.Detect.Precision)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, e := range errs {
		if e.Field != "" {
			fmt.Fprintf(out, "%s field %s: %s\n", e.Ref, e.Field, e.ErrorMessage)
		} else {
			fmt.Fprintf(out, "%s: %s\n", e.Ref, e.ErrorMessage)
		}
	}
	fmt.Fprintf(out, "Total Errors: %d\n", len(errs))
	return nil
}
