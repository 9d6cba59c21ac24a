// pforge is a batch prompt-engineering workbench: queue source texts,
// run generation rounds over them, and manage reusable instruction
// presets.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"promptforge/internal/batch"
	"promptforge/internal/config"
	"promptforge/internal/logging"
	"promptforge/internal/preset"
	"promptforge/internal/store"
)

// Version is stamped by the release build.
var Version = "0.3.0-dev"

// defaultScope names the single work queue the CLI operates on.
const defaultScope = "default"

var (
	// Global flags
	verbose   bool
	workspace string

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pforge",
	Short: "promptforge - batch prompt generation workbench",
	Long: `promptforge runs batches of text through a generation model.

Queue source texts as work items, attach an instruction (globally, per
preset, or per item), then run generation rounds over the queue with
pause/resume/stop control. Results persist locally in SQLite.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg = zap.NewDevelopmentConfig()
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pforge version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pforge %s\n", Version)
	},
}

// initCmd writes a default config and an empty preset file.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize promptforge in the current workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}

		cfg := config.DefaultConfig()
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)

		lib := preset.NewLibrary(workspacePath(cfg.Presets.Path))
		if err := lib.Save(); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", lib.Path())
		return nil
	},
}

// app bundles the shared state most commands need: config, the open
// store, and the queue restored from the last snapshot.
type app struct {
	cfg   *config.Config
	store *store.Store
	queue *batch.Queue
}

func openApp() (*app, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, err
	}

	st, err := store.Open(workspacePath(cfg.Storage.DatabasePath))
	if err != nil {
		return nil, err
	}

	items, err := st.LoadSnapshot(defaultScope)
	if err != nil {
		st.Close()
		return nil, err
	}

	queue := batch.NewQueue()
	queue.Load(items)

	return &app{cfg: cfg, store: st, queue: queue}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("closing store", zap.Error(err))
	}
}

// save writes the current queue state through immediately. CLI queue
// edits are one-shot, so they skip the debounced saver.
func (a *app) save() error {
	return a.store.SaveSnapshot(defaultScope, a.queue.Items())
}

// library loads the preset YAML file.
func (a *app) library() (*preset.Library, error) {
	lib := preset.NewLibrary(workspacePath(a.cfg.Presets.Path))
	if err := lib.Load(); err != nil {
		return nil, err
	}
	return lib, nil
}

func configPath() string {
	return filepath.Join(workspace, ".pforge", "config.yaml")
}

// workspacePath anchors a config-relative path at the workspace.
func workspacePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspace, path)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
