package bundler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bindery-js/bindery/internal/chunker"
	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/finalizer"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/linker"
	"github.com/bindery-js/bindery/internal/logger"
	"github.com/bindery-js/bindery/internal/scan"
)

// The same value as "linker.ErrLinkFailed" so callers only need this package
var ErrLinkFailed = linker.ErrLinkFailed

// How far a build goes before it stops. Later stages need every earlier one.
// The zero value runs the whole pipeline.
type Stage uint8

const (
	StageRender Stage = iota
	StageLink
	StageChunks
)

func (stage Stage) String() string {
	switch stage {
	case StageLink:
		return "link"
	case StageChunks:
		return "chunks"
	case StageRender:
		return "render"
	}
	panic("Internal error")
}

type BuildOptions struct {
	Options config.Options

	// Defaults to resolving specifiers against the modules in the description
	Resolver scan.Resolver

	// Keyed by the index of the group in "Options.AdvancedChunks.Groups"
	GroupNamers map[int]chunker.GroupNamer

	Stop Stage

	// A random id is generated when this is empty
	BuildID string

	Zap   *zap.Logger
	Timer *helpers.Timer
}

type Result struct {
	BuildID string

	// Only set once the build got to the stage that computes them
	Link   *linker.Output
	Chunks *chunker.ChunkGraph
	Files  []finalizer.RenderedChunk

	MetafileJSON string
}

// Runs the whole pipeline for one description. Diagnostics go to "log" and
// the returned error only says which stage failed. Cancellation is checked
// between stages.
func Bundle(ctx context.Context, log logger.Log, desc *scan.Description, args BuildOptions) (*Result, error) {
	options := args.Options
	if err := options.Validate(len(desc.Entries)); err != nil {
		for _, single := range unjoin(err) {
			log.AddError(nil, logger.Range{}, single.Error())
		}
		return nil, err
	}

	result := &Result{BuildID: args.BuildID}
	if result.BuildID == "" {
		result.BuildID = uuid.NewString()
	}
	zlog := args.Zap
	if zlog == nil {
		zlog = zap.NewNop()
	}
	zlog = zlog.With(zap.String("build", result.BuildID))
	timer := args.Timer
	defer timer.Log(zlog)

	resolver := args.Resolver
	if resolver == nil {
		resolver = scan.NewDescriptionResolver(desc)
	}

	timer.Begin("Scan")
	scanned, err := scan.Scan(ctx, log, desc, &options, resolver)
	timer.End("Scan")
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	zlog.Debug("scanned", zap.Int("modules", len(scanned.Modules)), zap.Int("entries", len(scanned.Entries)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.Link, err = linker.Link(ctx, &options, timer, log, zlog, scanned.Modules, scanned.Symbols, scanned.Entries, scanned.RuntimeSourceIndex)
	if err != nil {
		return nil, fmt.Errorf("link: %w", err)
	}
	if args.Stop == StageLink {
		result.MetafileJSON = generateMetafileJSON(result)
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.Chunks, err = chunker.ComputeChunks(ctx, &options, timer, zlog, result.Link, args.GroupNamers)
	if err != nil {
		return nil, fmt.Errorf("chunks: %w", err)
	}
	if args.Stop == StageChunks {
		result.MetafileJSON = generateMetafileJSON(result)
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.Files, err = finalizer.RenderChunks(ctx, &options, timer, zlog, result.Link, result.Chunks)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	result.MetafileJSON = generateMetafileJSON(result)
	zlog.Info("build finished", zap.Int("chunks", len(result.Files)))
	return result, nil
}

func unjoin(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// Reports whether the error came from the module graph itself (and so is
// already described by the log) rather than from the environment
func IsGraphError(err error) bool {
	return errors.Is(err, ErrLinkFailed) || errors.Is(err, scan.ErrInvalidGraph) ||
		errors.Is(err, config.ErrInvalidOption)
}
