package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/acruikshank/scriptpool/pkg/config"
	"github.com/acruikshank/scriptpool/pkg/logger"
	"github.com/acruikshank/scriptpool/pkg/scripting"
	"github.com/acruikshank/scriptpool/pkg/store"
	// Engine implementations register themselves with
	// scripting.RegisterEngine from their package init. Select one at
	// build time by adding its blank import here.
)

var version = "0.1.0"

// execReport summarizes one exec run for --report output.
type execReport struct {
	Path     string        `json:"path"`
	Pool     string        `json:"pool"`
	OK       bool          `json:"ok"`
	Duration time.Duration `json:"duration_ns"`
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "scriptpool",
		Short: "scriptpool - pooled script scope management",
		Long: `scriptpool manages pooled script execution scopes for an embedded
script engine: bounded per-worker scope reuse, stored-function
synchronization against MongoDB, and recursive script file execution.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("scriptpool v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	var configFile, pool string
	var printResult, report bool
	var timeout time.Duration

	execCmd := &cobra.Command{
		Use:   "exec <path>",
		Short: "Execute a script file, or every script file in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(args[0], configFile, pool, printResult, report, timeout)
		},
	}
	execCmd.Flags().StringVarP(&configFile, "config", "c", "", "configuration file (YAML or JSON)")
	execCmd.Flags().StringVar(&pool, "pool", "exec", "scope pool name (local database for stored functions)")
	execCmd.Flags().BoolVar(&printResult, "print", false, "print evaluation results")
	execCmd.Flags().BoolVar(&report, "report", false, "emit a JSON execution report")
	execCmd.Flags().DurationVar(&timeout, "timeout", 0, "per-script execution timeout (0 = none)")
	root.AddCommand(execCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runExec(path, configFile, pool string, printResult, report bool, timeout time.Duration) error {
	cfg := config.Default()
	if configFile != "" {
		if err := config.Load(configFile, cfg); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Encoding:    cfg.Logging.Encoding,
		Development: cfg.Logging.Development,
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	if cfg.Store.URI != "" {
		st, err := store.Connect(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close(ctx) }()
		scripting.SetStore(st)
	}

	if err := scripting.Setup(); err != nil {
		return err
	}

	defer scripting.ThreadDone()
	scope, err := scripting.GetPooledScope(ctx, pool, "exec")
	if err != nil {
		return err
	}
	defer func() { _ = scope.Close() }()

	if timeout == 0 {
		timeout = cfg.Script.Timeout
	}

	start := time.Now()
	ok := scope.ExecFile(path, scripting.ExecOptions{
		PrintResult: printResult || cfg.Script.PrintResult,
		ReportError: cfg.Script.ReportError,
		Timeout:     timeout,
	})

	if report {
		out, err := gojson.Marshal(execReport{
			Path:     path,
			Pool:     pool,
			OK:       ok,
			Duration: time.Since(start),
		})
		if err == nil {
			fmt.Println(string(out))
		}
	}

	if !ok {
		logger.Error("script execution failed", zap.String("path", path))
		return fmt.Errorf("script execution failed: %s", path)
	}
	return nil
}
