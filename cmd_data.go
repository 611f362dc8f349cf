package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bsaid97/go-polygon-overlap/handlers"
	"github.com/bsaid97/go-polygon-overlap/logger"
	"github.com/bsaid97/go-polygon-overlap/utils"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/tj/go-spin"
)

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, backend, err := setup(cmd)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx, stop := signalContext()
	defer stop()

	out := cmd.OutOrStdout()
	opts := handlers.IngestOptions{
		Limit:  cfg.Ingest.Limit,
		Path:   cfg.Ingest.Path,
		Logger: logger.L(),
	}
	if f, ok := out.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		s := spin.New()
		opts.OnInsert = func(inserted int) {
			fmt.Fprintf(out, "\r  \033[36m%s\033[m inserted %d records", s.Next(), inserted)
		}
		defer fmt.Fprintln(out)
	}

	summary, err := handlers.IngestFile(ctx, backend, args[0], opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Inserted %d of %d entries (%d without coordinates)\n", summary.Inserted, summary.Read, summary.Skipped)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, backend, err := setup(cmd)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx, stop := signalContext()
	defer stop()

	features, err := handlers.ExportRecords(ctx, backend, cfg.Detect.FieldNames())
	if err != nil {
		return err
	}

	outPath := args[0]
	name := strings.TrimSuffix(filepath.Base(outPath), filepath.Ext(outPath))
	zipData, err := utils.GenerateShapefileZip(name, features)
	if err != nil {
		return fmt.Errorf("build export: %w", err)
	}
	if err := os.WriteFile(outPath, zipData, 0644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d polygons to %s\n", len(features), outPath)
	return nil
}
