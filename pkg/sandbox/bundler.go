package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"
)

// Bundler turns a shim entrypoint into a single self-contained module with
// its dependencies inlined. It is injected so tests and alternative
// toolchains can substitute the external compiler.
type Bundler interface {
	Bundle(ctx context.Context, entrypoint string) (string, error)
}

// ExecBundler shells out to an esbuild-compatible bundler binary
type ExecBundler struct {
	bin    string
	logger zerolog.Logger
}

// NewExecBundler creates a bundler backed by the given binary
func NewExecBundler(bin string, logger zerolog.Logger) *ExecBundler {
	return &ExecBundler{
		bin:    bin,
		logger: logger.With().Str("component", "bundler").Logger(),
	}
}

// Bundle runs the bundler and returns the bundled module text
func (b *ExecBundler) Bundle(ctx context.Context, entrypoint string) (string, error) {
	cmd := exec.CommandContext(ctx, b.bin, entrypoint, "--bundle", "--format=esm", "--platform=neutral")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("bundling %s failed: %w: %s", entrypoint, err, stderr.String())
	}

	b.logger.Debug().
		Str("entrypoint", entrypoint).
		Int("bytes", stdout.Len()).
		Msg("Bundled shim module")

	return stdout.String(), nil
}

// StaticBundler returns fixed content per entrypoint, used in tests
type StaticBundler struct {
	Modules map[string]string
}

// Bundle returns the pre-baked module for the entrypoint
func (b *StaticBundler) Bundle(_ context.Context, entrypoint string) (string, error) {
	content, ok := b.Modules[entrypoint]
	if !ok {
		return "", fmt.Errorf("no static bundle for %s", entrypoint)
	}
	return content, nil
}
