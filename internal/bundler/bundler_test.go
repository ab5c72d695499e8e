package bundler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/logger"
	"github.com/bindery-js/bindery/internal/scan"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const twoEntries = `
entries: [/a.js, /b.js]
modules:
  /a.js: |
    import {x} from './u'
    console.log(x)
  /b.js: |
    import {x} from './u'
    console.log(x)
  /u.js: export const x = 1
`

func parse(t *testing.T, text string) *scan.Description {
	t.Helper()
	desc, err := scan.ParseDescription([]byte(text))
	require.NoError(t, err)
	return desc
}

func TestBundleRendersEveryChunk(t *testing.T) {
	log := logger.NewDeferLog(logger.LevelInfo, nil)
	result, err := Bundle(context.Background(), log, parse(t, twoEntries), BuildOptions{
		Options: config.DefaultOptions(),
		Stop:    StageRender,
	})
	require.NoError(t, err)
	require.Empty(t, log.Done())

	var names []string
	for _, file := range result.Files {
		names = append(names, file.FileName)
	}
	require.ElementsMatch(t, []string{"a.js", "b.js", "u.js"}, names)
	require.Contains(t, result.MetafileJSON, "\"outputs\": {")
	require.Contains(t, result.MetafileJSON, "\"bytes\": ")
}

func TestBundleRendersByDefault(t *testing.T) {
	log := logger.NewDeferLog(logger.LevelInfo, nil)
	result, err := Bundle(context.Background(), log, parse(t, twoEntries), BuildOptions{
		Options: config.DefaultOptions(),
	})
	require.NoError(t, err)
	require.NotNil(t, result.Chunks)
	require.Len(t, result.Files, 3)
	require.Contains(t, result.MetafileJSON, "\"bytes\": ")
}

func TestBundleStopsAfterStage(t *testing.T) {
	log := logger.NewDeferLog(logger.LevelInfo, nil)
	result, err := Bundle(context.Background(), log, parse(t, twoEntries), BuildOptions{
		Options: config.DefaultOptions(),
		Stop:    StageLink,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Link)
	require.Nil(t, result.Chunks)
	require.Nil(t, result.Files)
	require.NotContains(t, result.MetafileJSON, "\"outputs\"")

	result, err = Bundle(context.Background(), log, parse(t, twoEntries), BuildOptions{
		Options: config.DefaultOptions(),
		Stop:    StageChunks,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Chunks)
	require.Nil(t, result.Files)
	require.Contains(t, result.MetafileJSON, "\"outputs\": {")
	require.NotContains(t, result.MetafileJSON, "\"bytes\"")
}

func TestBundleRejectsInvalidOptions(t *testing.T) {
	options := config.DefaultOptions()
	options.Format = config.FormatIIFE
	log := logger.NewDeferLog(logger.LevelInfo, nil)
	_, err := Bundle(context.Background(), log, parse(t, twoEntries), BuildOptions{Options: options})
	require.Error(t, err)
	require.True(t, errors.Is(err, config.ErrInvalidOption))
	require.True(t, IsGraphError(err))

	msgs := log.Done()
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0].Data.Text, "does not support multiple entry points")
}

func TestBundleReportsLinkErrors(t *testing.T) {
	log := logger.NewDeferLog(logger.LevelInfo, nil)
	_, err := Bundle(context.Background(), log, parse(t, `
entries: [/main.js]
modules:
  /main.js: |
    import {missing} from './x'
    console.log(missing)
  /x.js: export const other = 1
`), BuildOptions{Options: config.DefaultOptions()})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrLinkFailed))
	require.True(t, IsGraphError(err))

	msgs := log.Done()
	require.Len(t, msgs, 1)
	require.Equal(t, logger.Error, msgs[0].Kind)
	require.Contains(t, msgs[0].Data.Text, "No matching export")
}

func TestBundleHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	log := logger.NewDeferLog(logger.LevelInfo, nil)
	_, err := Bundle(ctx, log, parse(t, twoEntries), BuildOptions{Options: config.DefaultOptions()})
	require.True(t, errors.Is(err, context.Canceled))
	require.False(t, IsGraphError(err))
}

func TestMetafileIsDeterministic(t *testing.T) {
	build := func() string {
		log := logger.NewDeferLog(logger.LevelInfo, nil)
		result, err := Bundle(context.Background(), log, parse(t, twoEntries), BuildOptions{
			Options: config.DefaultOptions(),
			BuildID: "test",
		})
		require.NoError(t, err)
		return result.MetafileJSON
	}

	first := build()
	require.Equal(t, first, build())
	require.True(t, strings.HasPrefix(first, "{\n  \"build\": \"test\",\n  \"inputs\": {\n    \"a.js\": {\n"))
	require.Contains(t, first, "\"u.js\": {\n      \"exportsKind\": \"esm\",\n      \"wrap\": \"none\",\n")
	require.Contains(t, first, "{ \"path\": \"./u\", \"kind\": \"import-statement\", \"resolved\": \"u.js\" }")
}

func TestBuildIDIsLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := logger.NewDeferLog(logger.LevelInfo, nil)
	result, err := Bundle(context.Background(), log, parse(t, twoEntries), BuildOptions{
		Options: config.DefaultOptions(),
		Zap:     zap.New(core),
		Timer:   &helpers.Timer{},
	})
	require.NoError(t, err)

	_, err = uuid.Parse(result.BuildID)
	require.NoError(t, err)

	finished := logs.FilterMessage("build finished").All()
	require.Len(t, finished, 1)
	require.Equal(t, result.BuildID, finished[0].ContextMap()["build"])

	// Every phase is timed
	require.NotEmpty(t, logs.FilterMessage("phase timing").All())
}
