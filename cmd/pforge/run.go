package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"promptforge/internal/batch"
	"promptforge/internal/format"
	"promptforge/internal/generation"
	"promptforge/internal/preset"
	"promptforge/internal/store"
	"promptforge/internal/tui"
)

var (
	runPreset      string
	runItemID      string
	runInstruction string
	runRounds      int
	runCount       int
	runTranslate   bool
	runGrouped     bool
	runPlain       bool
	runFormat      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run generation rounds over the work queue",
	Long: `Processes every eligible item in queue order: Idle and Error items,
plus Success items that are owed rounds under the current target.

Keys during a run: p pause, r resume, s stop. Stop and pause take
effect at round boundaries; an in-flight call always completes.`,
	RunE: runBatch,
}

func init() {
	runCmd.Flags().StringVar(&runPreset, "preset", "", "apply a named preset")
	runCmd.Flags().StringVar(&runItemID, "item", "", "restrict the run to one item ID")
	runCmd.Flags().StringVar(&runInstruction, "instruction", "", "override the instruction")
	runCmd.Flags().IntVar(&runRounds, "rounds", 0, "target rounds per item")
	runCmd.Flags().IntVar(&runCount, "count", 0, "outputs per round")
	runCmd.Flags().BoolVar(&runTranslate, "translate", false, "request paired translations")
	runCmd.Flags().BoolVar(&runGrouped, "grouped", false, "process the whole queue in one indexed call")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "line-based progress instead of the TUI")
	runCmd.Flags().StringVar(&runFormat, "format", "labeled", "response convention: labeled, plain, classification")
}

func runBatch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if a.queue.Len() == 0 {
		return fmt.Errorf("queue is empty; add items with 'pforge items add'")
	}

	runCfg, err := buildRunConfig(cmd, a)
	if err != nil {
		return err
	}

	opts := batch.RunOptions{SingleTargetID: runItemID}
	if runItemID != "" {
		if _, ok := a.queue.Get(runItemID); !ok {
			return fmt.Errorf("no work item with ID %s", runItemID)
		}
	}

	client, err := generation.NewClientFromConfig(a.cfg)
	if err != nil {
		return err
	}

	responseFormat, err := parseResponseFormat(runFormat)
	if err != nil {
		return err
	}

	saver := store.NewDebouncedSaver(a.store, a.cfg.GetSaveDebounce(), a.cfg.Storage.MaxFieldBytes)
	defer saver.Close()

	orch := batch.NewOrchestrator(client, a.queue, format.Default().WithFormat(responseFormat), batch.OrchestratorConfig{
		EmptyRetries:    a.cfg.LLM.EmptyRetries,
		EmptyRetryDelay: a.cfg.GetEmptyRetryDelay(),
	})
	orch.SetCommitHook(func(items []batch.WorkItem) {
		saver.Queue(defaultScope, items)
	})

	ctx, unnotify := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer unnotify()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.cfg.Presets.WatchReload {
		if stopWatch := startPresetWatcher(ctx, a); stopWatch != nil {
			defer stopWatch()
		}
	}

	done := make(chan error, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if runGrouped {
			err = orch.RunGrouped(gctx, runCfg)
		} else {
			err = orch.Run(gctx, runCfg, opts)
		}
		done <- err
		return err
	})

	g.Go(func() error {
		if runPlain {
			return printProgress(orch, done)
		}
		p := tea.NewProgram(tui.New(a.queue, orch, done, cancel))
		_, err := p.Run()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	saver.Flush()
	printRunSummary(a.queue)
	return nil
}

// parseResponseFormat maps the --format flag to a response convention.
// The indexed convention is not listed: --grouped selects it.
func parseResponseFormat(name string) (format.ResponseFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "labeled":
		return format.LabeledPair, nil
	case "plain":
		return format.PlainTranslationPair, nil
	case "classification":
		return format.ClassificationOnly, nil
	default:
		return 0, fmt.Errorf("unknown response format %q (want labeled, plain, or classification)", name)
	}
}

// buildRunConfig layers run parameters: config defaults, then the
// preset, then explicit flags.
func buildRunConfig(cmd *cobra.Command, a *app) (batch.RunConfig, error) {
	cfg := batch.RunConfig{
		Instruction:     a.cfg.Batch.Instruction,
		OutputsPerRound: a.cfg.Batch.OutputsPerRound,
		TotalRounds:     a.cfg.Batch.TotalRounds,
		Translation:     a.cfg.Batch.Translation,
	}

	if runPreset != "" {
		p, err := resolvePreset(a, runPreset)
		if err != nil {
			return cfg, err
		}
		cfg.Instruction = p.Instruction
		if p.OutputsPerRound > 0 {
			cfg.OutputsPerRound = p.OutputsPerRound
		}
		if p.Rounds > 0 {
			cfg.TotalRounds = p.Rounds
		}
		cfg.Translation = p.Translation
	}

	if runInstruction != "" {
		cfg.Instruction = runInstruction
	}
	if runRounds > 0 {
		cfg.TotalRounds = runRounds
	}
	if runCount > 0 {
		cfg.OutputsPerRound = runCount
	}
	if cmd.Flags().Changed("translate") {
		cfg.Translation = runTranslate
	}
	return cfg, nil
}

// resolvePreset looks a preset up in the YAML library first, then the
// store copy.
func resolvePreset(a *app, name string) (preset.Preset, error) {
	lib, err := a.library()
	if err != nil {
		return preset.Preset{}, err
	}
	if p, ok := lib.Get(name); ok {
		return p, nil
	}

	stored, err := a.store.LoadPresets()
	if err != nil {
		return preset.Preset{}, err
	}
	for _, p := range stored {
		if p.Name == name {
			return p, nil
		}
	}
	return preset.Preset{}, fmt.Errorf("no preset named %q", name)
}

// startPresetWatcher begins live-reloading the preset file; edits apply
// to the next run. Returns nil when the watcher cannot start.
func startPresetWatcher(ctx context.Context, a *app) func() {
	lib, err := a.library()
	if err != nil {
		logger.Warn("preset watcher disabled", zap.Error(err))
		return nil
	}
	w, err := preset.NewWatcher(lib, func() {
		logger.Info("presets reloaded; changes apply to the next run")
	})
	if err != nil {
		logger.Warn("preset watcher disabled", zap.Error(err))
		return nil
	}
	if err := w.Start(ctx); err != nil {
		logger.Warn("preset watcher disabled", zap.Error(err))
		return nil
	}
	return w.Stop
}

// printProgress is the --plain alternative to the TUI: one line per
// progress event until the run completes.
func printProgress(orch *batch.Orchestrator, done <-chan error) error {
	for {
		select {
		case ev := <-orch.Events():
			fmt.Println(batch.Describe(ev))
		case err := <-done:
			return err
		}
	}
}

func printRunSummary(q *batch.Queue) {
	var success, failed, idle int
	for _, item := range q.Items() {
		switch item.Status {
		case batch.StatusSuccess:
			success++
		case batch.StatusError:
			failed++
		default:
			idle++
		}
	}
	fmt.Printf("done: %d succeeded, %d failed, %d untouched\n", success, failed, idle)
}
