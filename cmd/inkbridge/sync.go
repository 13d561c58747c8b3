// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/inkbridge/internal/acquire"
	"github.com/pdiddy/inkbridge/internal/history"
	"github.com/pdiddy/inkbridge/internal/hostexec"
	"github.com/pdiddy/inkbridge/internal/httputil"
	"github.com/pdiddy/inkbridge/internal/ocr"
	"github.com/pdiddy/inkbridge/internal/pipeline"
	"github.com/pdiddy/inkbridge/internal/publish"
	"github.com/pdiddy/inkbridge/internal/remarkable"
	"github.com/pdiddy/inkbridge/internal/repair"
	"github.com/pdiddy/inkbridge/internal/runlog"
	"github.com/pdiddy/inkbridge/internal/state"
	"github.com/pdiddy/inkbridge/pkg/types"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Publish changed notebooks to every destination that needs them",
	Long: `Sync lists the reMarkable document tree, skips imported PDFs and EPUBs, and
compares each notebook's fingerprint with what each destination last
received. Notebooks that changed are rendered, recognized, optionally cleaned
up by a language model, and published. Each destination's state file is
updated as soon as that destination succeeds.

By default one notebook is processed per run (sync.max_notebooks_per_run).
--notebook processes a single notebook by name and republishes it even when
every destination is current.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().String("notebook", "", "process only this notebook (by visible name)")
	syncCmd.Flags().Int("limit", 0, "maximum notebooks this run (default sync.max_notebooks_per_run)")
	syncCmd.Flags().String("folder", "", "override the Apple Notes root folder")
	syncCmd.Flags().Bool("fresh", false, "clear the page cache, work, and output directories first")
	syncCmd.Flags().Bool("dry-run", false, "show what would be published without publishing")

	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	notebook, _ := cmd.Flags().GetString("notebook")
	limit, _ := cmd.Flags().GetInt("limit")
	folder, _ := cmd.Flags().GetString("folder")
	fresh, _ := cmd.Flags().GetBool("fresh")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, err := loadConfig(viper.GetViper(), loadedSecrets)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The log file, lock, caches and history stay untouched until every
	// stage and destination has been built from the configuration.
	log := runlog.Deferred(cmd.OutOrStdout())
	defer log.Close()

	orch, err := buildOrchestrator(ctx, cfg, folder, log)
	if err != nil {
		return err
	}

	unlock, err := state.Lock(cfg.Sync.StateDir)
	if err != nil {
		return err
	}
	defer unlock()

	if fresh && !dryRun {
		if err := clearDirs(cfg.Sync.CacheDir, cfg.Sync.WorkDir, cfg.Sync.OutputDir); err != nil {
			return err
		}
	}
	if err := log.Attach(cfg.Sync.LogPath); err != nil {
		return err
	}

	hist, runID := openHistory(ctx, cfg.Sync.HistoryDB, dryRun, log)
	if hist != nil {
		defer hist.Close()
		orch.SetHistory(hist)
	}

	report, err := orch.Run(ctx, pipeline.Options{
		Notebook: notebook,
		Limit:    limit,
		DryRun:   dryRun,
		RunID:    runID,
	})
	if hist != nil {
		if ferr := hist.FinishRun(context.Background(), runID,
			report.Count(types.StatusCompleted), report.Count(types.StatusPartiallyFailed), report.Count(types.StatusFailed)); ferr != nil {
			fmt.Fprintf(log, "warning: %v\n", ferr)
		}
	}
	if err != nil {
		if pipeline.IsNotFound(err) {
			fmt.Fprintf(log, "No native notebook named %q; check the name with --dry-run.\n", notebook)
		} else {
			fmt.Fprintf(log, "Sync failed: %v\n", err)
		}
		return err
	}
	report.PrintSummary(log)
	return nil
}

// buildOrchestrator wires the stages from config. It has no side effects
// beyond creating the state directory.
func buildOrchestrator(ctx context.Context, cfg types.Config, folderOverride string, log io.Writer) (*pipeline.Orchestrator, error) {
	src, err := remarkable.NewDirSource(cfg.Source.Dir)
	if err != nil {
		return nil, err
	}

	exec := hostexec.OS{}
	renderer := remarkable.Renderer{Exec: exec, Command: cfg.Source.RenderCommand, Timeout: cfg.Source.RenderTimeout}
	if err := renderer.Available(); err != nil {
		fmt.Fprintf(log, "warning: %v; only cached page images can be used\n", err)
	}

	dests, err := publish.FromConfig(cfg.Destinations, publish.Options{Exec: exec, Log: log, FolderOverride: folderOverride})
	if err != nil {
		return nil, err
	}

	// Per-attempt timeouts live in the stages; the OCR client carries none.
	visionHTTP, err := ocr.NewHTTPClient(ctx, cfg.OCR, nil)
	if err != nil {
		return nil, err
	}
	vision := &ocr.VisionClient{Client: visionHTTP, Endpoint: cfg.OCR.Endpoint}
	if !cfg.OCR.ServiceAccount() {
		vision.APIKey = cfg.OCR.APIKey
	}
	recognizer := &ocr.Stage{
		OCR:     vision,
		Repair:  repair.New(cfg.Repair, &http.Client{Timeout: cfg.Repair.Timeout}, log),
		Policy:  httputil.Exponential(cfg.OCR.MaxAttempts),
		Timeout: cfg.OCR.Timeout,
		Log:     log,
	}

	states, err := state.NewStore(cfg.Sync.StateDir, log)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Config{
		Source: src,
		Acquirer: &acquire.Stage{
			Source:   src,
			Renderer: renderer,
			CacheDir: cfg.Sync.CacheDir,
			WorkDir:  cfg.Sync.WorkDir,
			Log:      log,
		},
		OCR:          recognizer,
		States:       states,
		Destinations: dests,
		OutputDir:    cfg.Sync.OutputDir,
		Limit:        cfg.Sync.MaxNotebooksPerRun,
		Log:          log,
	})
}

// openHistory opens the ledger and starts a run. Any failure is logged and
// yields a nil store.
func openHistory(ctx context.Context, path string, dryRun bool, log io.Writer) (*history.Store, string) {
	if path == "" {
		return nil, ""
	}
	h, err := history.Open(path)
	if err != nil {
		fmt.Fprintf(log, "warning: history disabled: %v\n", err)
		return nil, ""
	}
	id, err := h.StartRun(ctx, dryRun)
	if err != nil {
		fmt.Fprintf(log, "warning: history disabled: %v\n", err)
		h.Close()
		return nil, ""
	}
	return h, id
}

// clearDirs empties and recreates each directory.
func clearDirs(dirs ...string) error {
	for _, d := range dirs {
		if d == "" || d == "." || d == "/" {
			continue
		}
		if err := os.RemoveAll(d); err != nil {
			return fmt.Errorf("clearing %s: %w", d, err)
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", d, err)
		}
	}
	return nil
}
