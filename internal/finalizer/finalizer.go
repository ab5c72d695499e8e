package finalizer

// The finalizer turns the chunk graph into code. Modules were never parsed
// into a syntax tree, so each included statement is re-emitted from its
// source text with a list of edits applied: identifiers are renamed, imports
// of other modules become calls to their wrappers, and "import" and "export"
// syntax is removed or lowered to what the output format supports. Chunks
// are rendered in parallel and each one has its own renamer.

import (
	"context"
	"errors"
	"fmt"
	goruntime "runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/chunker"
	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/linker"
	"github.com/bindery-js/bindery/internal/runtime"
)

// Returned when rendering a chunk hit an internal error
var ErrRenderFailed = errors.New("render failed")

type RenderedChunk struct {
	Name     string
	FileName string
	Code     string

	// Stable ids of the modules in the chunk, in output order
	Modules []string

	// The names other chunks and the host can import from this chunk
	Exports []string

	// File names of the chunks this chunk loads statically and with "import()"
	Imports        []string
	DynamicImports []string

	IsEntry bool
}

type finalizerContext struct {
	options *config.Options
	link    *linker.Output
	graph   *graph.LinkerGraph
	chunks  *chunker.ChunkGraph

	// Indexed by chunk index. Removed chunks have no file name.
	fileNames []string
}

func RenderChunks(
	ctx context.Context,
	options *config.Options,
	timer *helpers.Timer,
	zlog *zap.Logger,
	link *linker.Output,
	chunks *chunker.ChunkGraph,
) ([]RenderedChunk, error) {
	timer.Begin("Render chunks")
	defer timer.End("Render chunks")

	if zlog == nil {
		zlog = zap.NewNop()
	}

	f := &finalizerContext{
		options: options,
		link:    link,
		graph:   &link.Graph,
		chunks:  chunks,
	}
	f.assignFileNames()

	if options.Format.IsSingleFile() && len(chunks.SortedChunks) > 1 {
		return nil, fmt.Errorf("%w: the %s format needs a single chunk but there are %d",
			ErrRenderFailed, options.Format, len(chunks.SortedChunks))
	}

	results := make([]RenderedChunk, len(chunks.SortedChunks))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(goruntime.GOMAXPROCS(0))
	for i, chunkIndex := range chunks.SortedChunks {
		group.Go(func() (err error) {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: chunk %q: %v\n%s", ErrRenderFailed,
						chunks.Chunks[chunkIndex].Name, r, helpers.PrettyPrintedStack())
				}
			}()
			results[i], err = f.renderChunk(chunkIndex)
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	zlog.Debug("rendered chunks", zap.Int("chunks", len(results)))
	return results, nil
}

// Chunks are written next to each other, so a chunk's file name is also the
// path other chunks import it with. Names that collide get a number.
func (f *finalizerContext) assignFileNames() {
	f.fileNames = make([]string, len(f.chunks.Chunks))
	used := make(map[string]bool)
	for _, chunkIndex := range f.chunks.SortedChunks {
		base := sanitizeFileName(f.chunks.Chunks[chunkIndex].Name)
		name := base + ".js"
		for n := 2; used[name]; n++ {
			name = base + strconv.Itoa(n) + ".js"
		}
		used[name] = true
		f.fileNames[chunkIndex] = name
	}
}

func sanitizeFileName(name string) string {
	sb := strings.Builder{}
	for _, c := range name {
		switch {
		case c == '/' || c == '\\' || c == ':' || c == '*' || c == '?' || c == '"' || c == '<' || c == '>' || c == '|':
			sb.WriteByte('_')
		default:
			sb.WriteRune(c)
		}
	}
	if sb.Len() == 0 {
		return "chunk"
	}
	return sb.String()
}

func (f *finalizerContext) importPath(chunkIndex uint32) string {
	return "./" + f.fileNames[chunkIndex]
}

func (f *finalizerContext) runtimeRef(helper runtime.Helper) ast.Ref {
	export, ok := f.graph.Modules[f.graph.RuntimeSourceIndex].NamedExports[helper.Name()]
	if !ok {
		panic("Internal error: missing runtime helper " + helper.Name())
	}
	return ast.CanonicalRefFor(f.graph.Symbols, export.Ref)
}
