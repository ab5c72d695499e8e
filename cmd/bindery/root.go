package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/exitcode"
	"github.com/bindery-js/bindery/internal/logger"
)

// Returned by commands whose diagnostics were already printed by the logger
var errReported = errors.New("build failed")

const longHelp = `Links a module graph described in a YAML file into output chunks.

Options are read from flags, then BINDERY_* environment variables, then the
file passed to --config (".yaml", ".toml" or ".json"). Flags win.

Examples:
  bindery render app.yaml --outdir=dist
  bindery chunks app.yaml --format=cjs
  BINDERY_KEEP_NAMES=true bindery render app.yaml
`

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BINDERY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "bindery",
		Short:         "Link, split and render JavaScript module graphs",
		Long:          longHelp,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return v.BindPFlags(cmd.Flags())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Read options from this file")
	flags.String("format", "esm", "Output format (esm | cjs | iife | umd | app)")
	flags.String("platform", "", "Target platform (browser | node | neutral)")
	flags.Bool("treeshake", true, "Remove unused code")
	flags.Bool("treeshake-commonjs", false, "Also tree shake CommonJS modules")
	flags.StringSlice("manual-pure-functions", nil, "Treat calls to these global functions as free of side effects")
	flags.Bool("shim-missing-exports", false, "Replace missing imports with undefined instead of failing")
	flags.Bool("inline-dynamic-imports", false, "Put dynamically-imported modules in the importing chunk")
	flags.Bool("keep-names", false, "Preserve \"name\" on functions and classes that were renamed")
	flags.Bool("profiler-names", false, "Name module wrappers after their module")
	flags.String("preserve-entry-signatures", "exports-only", "How strictly entry chunks keep their exports (strict | allow-extension | exports-only | false)")
	flags.Bool("inline-const", false, "Inline imported constants")
	flags.Bool("inline-const-smart-mode", false, "Only inline constants that don't make the output larger")
	flags.Bool("pife-for-module-wrappers", false, "Wrap module wrapper functions in parentheses")
	flags.BoolP("verbose", "v", false, "Print internal debug logs")
	flags.String("log-level", "info", "Diagnostics to print (verbose | debug | info | warning | error | silent)")
	flags.String("color", "auto", "Use colors in diagnostics (auto | always | never)")
	flags.Int("log-limit", 6, "Maximum number of diagnostics to print (0 is no limit)")
	flags.StringSlice("log-override", nil, "Change the level of one diagnostic, e.g. import-is-undefined=error")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", config.ErrInvalidOption, err)
	})

	for _, stage := range stageCommands {
		rootCmd.AddCommand(newStageCommand(v, stage))
	}
	return rootCmd
}

// Settings that are known to be present are applied on top of the config file
// or the defaults. Unchanged flags are not considered set.
func resolveOptions(v *viper.Viper) (config.Options, error) {
	options := config.DefaultOptions()
	if path := v.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Options{}, err
		}
		options = loaded
	}

	if v.IsSet("format") {
		format, ok := config.FormatFromString(v.GetString("format"))
		if !ok {
			return config.Options{}, fmt.Errorf("%w: unknown format %q", config.ErrInvalidOption, v.GetString("format"))
		}
		options.Format = format
	}
	if v.IsSet("platform") {
		platform, ok := config.PlatformFromString(v.GetString("platform"))
		if !ok {
			return config.Options{}, fmt.Errorf("%w: unknown platform %q", config.ErrInvalidOption, v.GetString("platform"))
		}
		options.Platform = platform
	}
	if v.IsSet("preserve-entry-signatures") {
		value, ok := config.PreserveEntrySignaturesFromString(v.GetString("preserve-entry-signatures"))
		if !ok {
			return config.Options{}, fmt.Errorf("%w: unknown entry signature mode %q", config.ErrInvalidOption, v.GetString("preserve-entry-signatures"))
		}
		options.PreserveEntrySignatures = value
	}

	if v.IsSet("manual-pure-functions") {
		options.TreeShake.ManualPureFunctions = config.NewPureFunctions(v.GetStringSlice("manual-pure-functions"))
	}

	bools := []struct {
		key   string
		field *bool
	}{
		{"treeshake", &options.TreeShake.Enabled},
		{"treeshake-commonjs", &options.TreeShake.CommonJS},
		{"shim-missing-exports", &options.ShimMissingExports},
		{"inline-dynamic-imports", &options.InlineDynamicImports},
		{"keep-names", &options.KeepNames},
		{"profiler-names", &options.ProfilerNames},
		{"inline-const", &options.Optimization.InlineConst},
		{"inline-const-smart-mode", &options.Optimization.InlineConstSmartMode},
		{"pife-for-module-wrappers", &options.Optimization.PIFEForModuleWrappers},
	}
	for _, b := range bools {
		if v.IsSet(b.key) {
			*b.field = v.GetBool(b.key)
		}
	}
	return options, nil
}

func resolveOutputOptions(v *viper.Viper) (logger.OutputOptions, map[logger.MsgID]logger.LogLevel, error) {
	output := logger.OutputOptions{
		MessageLimit:  v.GetInt("log-limit"),
		IncludeSource: true,
	}

	level, ok := logLevelFromString(v.GetString("log-level"))
	if !ok {
		return output, nil, fmt.Errorf("%w: unknown log level %q", config.ErrInvalidOption, v.GetString("log-level"))
	}
	output.LogLevel = level

	switch v.GetString("color") {
	case "", "auto":
		output.Color = logger.ColorIfTerminal
	case "always", "true":
		output.Color = logger.ColorAlways
	case "never", "false":
		output.Color = logger.ColorNever
	default:
		return output, nil, fmt.Errorf("%w: unknown color mode %q", config.ErrInvalidOption, v.GetString("color"))
	}

	overrides := make(map[logger.MsgID]logger.LogLevel)
	for _, override := range v.GetStringSlice("log-override") {
		name, value, found := strings.Cut(override, "=")
		if !found {
			return output, nil, fmt.Errorf("%w: expected \"name=level\" in --log-override, got %q", config.ErrInvalidOption, override)
		}
		level, ok := logLevelFromString(value)
		if !ok {
			return output, nil, fmt.Errorf("%w: unknown log level %q", config.ErrInvalidOption, value)
		}
		logger.StringToMsgIDs(name, level, overrides)
	}
	return output, overrides, nil
}

func logLevelFromString(text string) (logger.LogLevel, bool) {
	switch text {
	case "verbose":
		return logger.LevelVerbose, true
	case "debug":
		return logger.LevelDebug, true
	case "", "info":
		return logger.LevelInfo, true
	case "warning":
		return logger.LevelWarning, true
	case "error":
		return logger.LevelError, true
	case "silent":
		return logger.LevelSilent, true
	}
	return logger.LevelNone, false
}

// Structured logs are for debugging the tool itself, so only warnings show up
// unless "--verbose" is passed
func newZapLogger(v *viper.Viper) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if v.GetBool("verbose") {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
	}
	return cfg.Build()
}

// Maps errors to exit codes and prints the ones the logger hasn't already
func reportError(err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, errReported) {
		logger.PrintErrorToStderr(os.Args, err.Error())
	}
	if errors.Is(err, config.ErrInvalidOption) {
		return exitcode.Set(err, exitcode.Usage)
	}
	return err
}
