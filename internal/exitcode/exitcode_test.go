package exitcode_test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bindery-js/bindery/internal/exitcode"
)

func TestGet(t *testing.T) {
	base := exitcode.Set(errors.New(""), exitcode.Internal)
	wrapped := fmt.Errorf("render: %w", base)

	testCases := map[string]struct {
		err  error
		code int
	}{
		"nil":         {nil, exitcode.Success},
		"default":     {errors.New(""), exitcode.BuildFailed},
		"help":        {flag.ErrHelp, exitcode.Usage},
		"canceled":    {fmt.Errorf("scan: %w", context.Canceled), exitcode.Interrupted},
		"set":         {exitcode.Set(errors.New(""), exitcode.Usage), exitcode.Usage},
		"wrapped":     {wrapped, exitcode.Internal},
		"set wins":    {exitcode.Set(context.Canceled, exitcode.BuildFailed), exitcode.BuildFailed},
		"custom code": {exitcode.Set(errors.New(""), 42), 42},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.code, exitcode.Get(tc.err), "%v", tc.err)
		})
	}
}

func TestSet(t *testing.T) {
	t.Run("same-message", func(t *testing.T) {
		err := errors.New("hello")
		require.Equal(t, err.Error(), exitcode.Set(err, exitcode.Usage).Error())
	})
	t.Run("keep-chain", func(t *testing.T) {
		err := errors.New("hello")
		require.True(t, errors.Is(exitcode.Set(err, exitcode.Internal), err))
	})
	t.Run("nil", func(t *testing.T) {
		require.NoError(t, exitcode.Set(nil, exitcode.Internal))
	})
}
