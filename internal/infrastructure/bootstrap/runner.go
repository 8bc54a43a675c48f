package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/provision"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor"
)

// EnvPrefix selects the host variables forwarded to provisioning scripts.
const EnvPrefix = "SSGBERK_"

// Runner executes shell provisioners inside the guest.
type Runner struct {
	baseDir string
	environ func() []string
	output  io.Writer
	logger  *slog.Logger
}

// NewRunner creates a runner reading scripts relative to baseDir and
// streaming their output to output.
func NewRunner(baseDir string, output io.Writer, logger *slog.Logger) *Runner {
	return &Runner{
		baseDir: baseDir,
		environ: os.Environ,
		output:  output,
		logger:  logger.With(slog.String("component", "bootstrap")),
	}
}

// Run executes step on guest.
func (r *Runner) Run(ctx context.Context, guest executor.Executor, step provision.ShellProvisioner) error {
	path := step.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.baseDir, path)
	}

	script, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read provisioning script: %w", err)
	}

	env := ForwardedEnv(r.environ())
	r.logger.Info("running provisioning script",
		slog.String("script", step.Path),
		slog.Bool("privileged", step.Privileged),
		slog.Int("forwarded_env", len(env)),
		slog.String("executor", guest.Name()),
	)

	exitCode, err := guest.Execute(ctx, r.output, r.output, Command(step, string(script), env))
	if err != nil {
		return fmt.Errorf("provisioning script %s failed with exit code %d: %w", step.Path, exitCode, err)
	}

	r.logger.Info("provisioning script finished", slog.String("script", step.Path))
	return nil
}

// ForwardedEnv picks the EnvPrefix variables out of environ.
func ForwardedEnv(environ []string) map[string]string {
	env := make(map[string]string)
	for _, kv := range environ {
		key, value, found := strings.Cut(kv, "=")
		if !found || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		env[key] = value
	}
	return env
}

// Command builds the remote shell command running script. Every value is
// quoted as a single shell word, so values may contain any character
// including the single quote.
func Command(step provision.ShellProvisioner, script string, env map[string]string) string {
	var parts []string
	if step.Privileged {
		parts = append(parts, "sudo")
	}

	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts = append(parts, "env")
	for _, key := range keys {
		parts = append(parts, executor.Quote(key+"="+env[key]))
	}

	parts = append(parts, "bash", "-c", executor.Quote(script))
	return strings.Join(parts, " ")
}
