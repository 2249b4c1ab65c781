package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const maxStderrBytes = 8 * 1024 // stderr tail kept for diagnostics

// Runner executes renderer CLI commands as subprocesses.
type Runner interface {
	// RunDoctor executes `<renderer> doctor --json --out <path>` and returns
	// parsed capabilities.
	RunDoctor(ctx context.Context) (*Capabilities, error)

	// RenderVideo renders a plan JSON file into an encoded video at outPath.
	RenderVideo(ctx context.Context, planPath, outPath string) (RunResult, error)

	// ValidateOutput checks the rendered file exists and is non-empty.
	ValidateOutput(path string) error

	// WorkDir returns the base directory for plan files and outputs.
	WorkDir() string
}

// Config holds the runner's configuration.
type Config struct {
	BinaryPath    string        // renderer binary; empty = auto-detect
	BundlePath    string        // composition bundle dir passed to the CLI
	WorkBase      string        // base dir for plans and rendered files
	DoctorTimeout time.Duration
	RenderTimeout time.Duration
	Logger        *slog.Logger
}

// DefaultConfig returns production-ready defaults rooted at dataDir.
func DefaultConfig(dataDir string, logger *slog.Logger) Config {
	return Config{
		WorkBase:      filepath.Join(dataDir, "exports"),
		DoctorTimeout: 30 * time.Second,
		RenderTimeout: 30 * time.Minute,
		Logger:        logger,
	}
}

// SubprocessRunner is the production implementation of Runner.
type SubprocessRunner struct {
	cfg    Config
	binary string
}

// NewRunner creates a SubprocessRunner, resolving the renderer binary path.
func NewRunner(cfg Config) (*SubprocessRunner, error) {
	binary, err := resolveRenderer(cfg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("cannot locate renderer: %w", err)
	}

	if err := os.MkdirAll(cfg.WorkBase, 0755); err != nil {
		return nil, fmt.Errorf("cannot create work dir: %w", err)
	}

	cfg.Logger.Info("render runner initialised",
		"binary", binary,
		"bundle", cfg.BundlePath,
		"work_dir", cfg.WorkBase,
	)

	return &SubprocessRunner{cfg: cfg, binary: binary}, nil
}

func (r *SubprocessRunner) WorkDir() string {
	return r.cfg.WorkBase
}

// RunDoctor probes the installed renderer environment.
func (r *SubprocessRunner) RunDoctor(ctx context.Context) (*Capabilities, error) {
	outPath := filepath.Join(r.cfg.WorkBase, ".doctor.json")

	ctx, cancel := context.WithTimeout(ctx, r.cfg.DoctorTimeout)
	defer cancel()

	result := r.exec(ctx, outPath, "doctor", "--json", "--out", outPath)
	if !result.IsSuccess() {
		return nil, fmt.Errorf("doctor exited %d: %s", result.ExitCode, result.StderrTail)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read doctor output: %w", err)
	}

	var caps Capabilities
	if err := json.Unmarshal(data, &caps); err != nil {
		return nil, fmt.Errorf("cannot parse doctor JSON: %w", err)
	}

	caps.CanRender = isAvailable(caps.Executables, "ffmpeg") && caps.Node.Version != ""
	caps.ProbedAt = time.Now()

	r.cfg.Logger.Info("doctor probe complete",
		"can_render", caps.CanRender,
		"renderer_version", caps.RendererVersion,
		"deps_available", caps.Summary.Available,
		"deps_total", caps.Summary.Total,
	)

	return &caps, nil
}

// RenderVideo runs the renderer CLI against a plan file.
func (r *SubprocessRunner) RenderVideo(ctx context.Context, planPath, outPath string) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RenderTimeout)
	defer cancel()

	args := []string{
		"render",
		"--plan", planPath,
		"--out", outPath,
	}
	if r.cfg.BundlePath != "" {
		args = append(args, "--bundle", r.cfg.BundlePath)
	}

	result := r.exec(ctx, outPath, args...)
	return result, nil
}

// ValidateOutput checks a rendered file exists and has content.
func (r *SubprocessRunner) ValidateOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot stat rendered file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("rendered path %s is a directory", filepath.Base(path))
	}
	if info.Size() == 0 {
		return fmt.Errorf("rendered file %s is empty", filepath.Base(path))
	}
	return nil
}

// exec is the core subprocess execution helper.
func (r *SubprocessRunner) exec(ctx context.Context, outPath string, args ...string) RunResult {
	start := time.Now()

	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			r.cfg.Logger.Error("cannot create output dir", "error", err)
			return RunResult{ExitCode: -1, StderrTail: err.Error(), Duration: time.Since(start)}
		}
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})
	cmd.Stdout = io.Discard // CLI writes to --out file, not stdout

	r.cfg.Logger.Info("executing renderer command", "args", args)

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	stderrTail := stderrBuf.String()

	if exitCode != 0 {
		r.cfg.Logger.Warn("renderer command failed",
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else {
		r.cfg.Logger.Info("renderer command succeeded",
			"duration_ms", elapsed.Milliseconds(),
			"output", filepath.Base(outPath),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		OutputPath: outPath,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

// resolveRenderer finds a usable renderer binary.
func resolveRenderer(preferred string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured renderer %q not found", preferred)
	}
	for _, name := range []string{"montage-render", "npx"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no renderer binary found on PATH (tried montage-render, npx)")
}

func isAvailable(deps map[string]DepInfo, name string) bool {
	d, ok := deps[name]
	return ok && d.Available
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter keeps only the last `limit` bytes written through it.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
