package cmd

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/courseflow/courseflow/internal/errors"
)

func TestExitCodeFor(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		err  error
		want foundry.ExitCode
	}{
		{"nil", nil, foundry.ExitFailure},
		{"plain", fmt.Errorf("boom"), foundry.ExitFailure},
		{"validation", apperrors.NewValidationError("bad config"), foundry.ExitConfigInvalid},
		{"database", apperrors.WrapDatabaseError(ctx, fmt.Errorf("disk full"), "store"), foundry.ExitExternalServiceUnavailable},
		{"wrapped database", fmt.Errorf("serve: %w", apperrors.NewDatabaseError("store")), foundry.ExitExternalServiceUnavailable},
		{"not found", apperrors.NewNotFoundError("missing"), foundry.ExitFileNotFound},
		{"internal", apperrors.NewInternalError("oops"), foundry.ExitFailure},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCodeFor(tc.err))
		})
	}
}

func TestWriteFatal(t *testing.T) {
	var buf bytes.Buffer
	writeFatal(&buf, 1, "EXIT_FAILURE", "serve failed", apperrors.WrapDatabaseError(context.Background(), fmt.Errorf("disk full"), "store unavailable"))

	out := buf.String()
	assert.Contains(t, out, "FATAL: serve failed [DATABASE_ERROR]: store unavailable")
	assert.Contains(t, out, "Cause: disk full")
	assert.Contains(t, out, "Exit Code: 1 (EXIT_FAILURE)")

	buf.Reset()
	writeFatal(&buf, 1, "EXIT_FAILURE", "no detail", nil)
	assert.Contains(t, buf.String(), "FATAL: no detail\n")
}

func TestExitWithCodeStderrUsesCatalogCode(t *testing.T) {
	var got int
	osExit = func(code int) { got = code }
	t.Cleanup(func() { osExit = defaultExit })

	ExitWithCodeStderr(foundry.ExitConfigInvalid, "bad config", nil)

	info, ok := foundry.GetExitCodeInfo(foundry.ExitConfigInvalid)
	if assert.True(t, ok) {
		assert.Equal(t, info.Code, got)
	}
}
