package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/bindery-js/bindery/internal/bundler"
	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/logger"
	"github.com/bindery-js/bindery/internal/scan"
)

type stageCommand struct {
	use   string
	short string
	stop  bundler.Stage
	print func(out io.Writer, v *viper.Viper, result *bundler.Result) error
	flags func(cmd *cobra.Command)
}

var stageCommands = []stageCommand{
	{
		use:   "link <description>",
		short: "Bind imports and tree shake, then print what happened to each module",
		stop:  bundler.StageLink,
		print: printLinkSummary,
	},
	{
		use:   "chunks <description>",
		short: "Split the linked graph into chunks and print them",
		stop:  bundler.StageChunks,
		print: printChunkSummary,
	},
	{
		use:   "render <description>",
		short: "Render every chunk to code",
		stop:  bundler.StageRender,
		print: writeRenderedFiles,
		flags: func(cmd *cobra.Command) {
			cmd.Flags().String("outdir", "", "Write chunks to this directory instead of stdout")
			cmd.Flags().String("metafile", "", "Also write build metadata as JSON to this file")
		},
	},
	{
		use:   "metafile <description>",
		short: "Print build metadata as JSON",
		stop:  bundler.StageRender,
		print: func(out io.Writer, v *viper.Viper, result *bundler.Result) error {
			_, err := io.WriteString(out, result.MetafileJSON)
			return err
		},
	},
}

func newStageCommand(v *viper.Viper, stage stageCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   stage.use,
		Short: stage.short,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return fmt.Errorf("%w: %v", config.ErrInvalidOption, err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := build(cmd, v, args[0], stage.stop)
			if err != nil {
				return err
			}
			return stage.print(cmd.OutOrStdout(), v, result)
		},
	}
	if stage.flags != nil {
		stage.flags(cmd)
	}
	return cmd
}

func build(cmd *cobra.Command, v *viper.Viper, path string, stop bundler.Stage) (*bundler.Result, error) {
	options, err := resolveOptions(v)
	if err != nil {
		return nil, err
	}
	output, overrides, err := resolveOutputOptions(v)
	if err != nil {
		return nil, err
	}
	desc, err := scan.LoadDescription(path)
	if err != nil {
		return nil, err
	}

	zlog, err := newZapLogger(v)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = zlog.Sync() }()
	zlog.Debug("resolved options",
		zap.String("description", path),
		zap.Stringer("format", options.Format),
		zap.Bool("treeshake", options.TreeShake.Enabled),
	)

	var timer *helpers.Timer
	if v.GetBool("verbose") {
		timer = &helpers.Timer{}
	}

	log := logger.NewStderrLog(output, overrides)
	result, err := bundler.Bundle(cmd.Context(), log, desc, bundler.BuildOptions{
		Options: options,
		Stop:    stop,
		Zap:     zlog,
		Timer:   timer,
	})
	hasErrors := log.HasErrors()
	log.Done()
	if err != nil {
		if hasErrors {
			return nil, fmt.Errorf("%w: %w", errReported, err)
		}
		return nil, err
	}
	return result, nil
}

func printLinkSummary(out io.Writer, v *viper.Viper, result *bundler.Result) error {
	graph := &result.Link.Graph
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tEXPORTS\tWRAP\tSIDE EFFECTS\tSTATEMENTS")
	for _, sourceIndex := range graph.SortedModules {
		if sourceIndex == graph.RuntimeSourceIndex {
			continue
		}
		module := graph.Modules[sourceIndex]
		if module.IsExternal() {
			fmt.Fprintf(w, "%s\texternal\t\t\t\n", module.StableID())
			continue
		}
		meta := &graph.Metas[sourceIndex]
		included := 0
		for _, ok := range meta.StmtIncluded {
			if ok {
				included++
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\n", module.StableID(), module.ExportsKind, meta.Wrap,
			module.SideEffects, included, len(meta.StmtIncluded))
	}
	return w.Flush()
}

func printChunkSummary(out io.Writer, v *viper.Viper, result *bundler.Result) error {
	graph := &result.Link.Graph
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHUNK\tKIND\tREASON\tMODULES")
	for _, chunkIndex := range result.Chunks.SortedChunks {
		chunk := result.Chunks.Chunks[chunkIndex]
		modules := helpers.Joiner{}
		for i, sourceIndex := range chunk.Modules {
			if i > 0 {
				modules.AddString(", ")
			}
			if sourceIndex == graph.RuntimeSourceIndex {
				modules.AddString("<runtime>")
			} else {
				modules.AddString(graph.Modules[sourceIndex].StableID())
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", chunk.Name, chunk.Kind, chunk.CreationReason, modules.Done())
	}
	return w.Flush()
}

func writeRenderedFiles(out io.Writer, v *viper.Viper, result *bundler.Result) error {
	if path := v.GetString("metafile"); path != "" {
		if err := os.WriteFile(path, []byte(result.MetafileJSON), 0o644); err != nil {
			return fmt.Errorf("writing metafile: %w", err)
		}
	}

	outdir := v.GetString("outdir")
	if outdir == "" {
		for i, file := range result.Files {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "---------- %s ----------\n%s", file.FileName, file.Code)
		}
		return nil
	}

	for _, file := range result.Files {
		path := filepath.Join(outdir, file.FileName)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("writing %s: %w", file.FileName, err)
		}
		if err := os.WriteFile(path, []byte(file.Code), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", file.FileName, err)
		}
	}
	return nil
}
