// Package render drives the local renderer CLI as a subprocess. The CLI
// consumes a render plan JSON and produces an encoded video file; a doctor
// command reports what the installed renderer can do.
package render

import "time"

// Capabilities is the parsed output of the renderer's `doctor --json` command.
type Capabilities struct {
	RendererVersion string             `json:"renderer_version"`
	Node            NodeInfo           `json:"node"`
	Executables     map[string]DepInfo `json:"executables"`
	Codecs          []string           `json:"codecs"`
	Summary         SummaryInfo        `json:"summary"`

	CanRender bool      `json:"-"`
	ProbedAt  time.Time `json:"-"`
}

// NodeInfo holds the JavaScript runtime information the renderer runs on.
type NodeInfo struct {
	Version    string `json:"version"`
	Executable string `json:"executable"`
}

// DepInfo reports the availability of a single external tool.
type DepInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SummaryInfo summarises overall dependency status.
type SummaryInfo struct {
	Available int  `json:"available"`
	Total     int  `json:"total"`
	AllOK     bool `json:"all_ok"`
}

// RunResult is the structured outcome of executing a renderer subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	OutputPath string        `json:"output_path,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// IsSuccess reports whether the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }
