package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	perrors "github.com/matzehuels/morphkit/pkg/errors"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"canceled", fmt.Errorf("fetch: %w", context.Canceled), exitInterrupted},
		{"bad decimals", perrors.New(perrors.ErrCodeInvalidInput, "invalid decimals: 400"), exitUsage},
		{"unknown format", perrors.New(perrors.ErrCodeUnsupportedFormat, "cannot detect the format of x"), exitUsage},
		{"cycle", fmt.Errorf("decode: %w", perrors.New(perrors.ErrCodeCycle, "line 3")), exitDataErr},
		{"parse", perrors.Wrap(perrors.ErrCodeParse, errors.New("eof"), "XML error in n1.xml"), exitDataErr},
		{"missing file", perrors.New(perrors.ErrCodeFileNotFound, "n1.asc"), exitNoInput},
		{"network", perrors.New(perrors.ErrCodeNetwork, "GET https://example.org/n1.swc"), exitUnavailable},
		{"plain", errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
