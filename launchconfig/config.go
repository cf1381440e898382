// Package launchconfig implements the Configuration Resolver (component
// C6): reading and writing launch-config files, variable substitution,
// default-config templates, auto-generation, and the pre-launch task
// runner.
//
// Variable substitution is grounded on the teacher's local/environment.go
// context-helper idiom, adapted here to internal/localenv. Pre-launch
// task argv handling is grounded on codegen/debug.go's use of
// github.com/kballard/go-shellquote to split a command string without
// invoking a shell.
package launchconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/dbgsession/core/internal/errdefs"
	"github.com/dbgsession/core/internal/localenv"
)

// PreLaunchTimeout is the hard ceiling on a pre-launch task's runtime.
const PreLaunchTimeout = 120 * time.Second

// Configuration is one named launch configuration.
type Configuration struct {
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`
	Request     string                 `json:"request"`
	Options     map[string]interface{} `json:"-"`
	PreLaunchTask string               `json:"preLaunchTask,omitempty"`
	PostDebugTask string               `json:"postDebugTask,omitempty"`
}

// Compound starts several configurations together.
type Compound struct {
	Name          string   `json:"name"`
	Configurations []string `json:"configurations"`
	StopAll       bool     `json:"stopAll,omitempty"`
	PreLaunchTask string   `json:"preLaunchTask,omitempty"`
}

// File is the top-level shape of a launch-config file (§6).
type File struct {
	Version       string          `json:"version"`
	Configurations []Configuration `json:"configurations"`
	Compounds     []Compound      `json:"compounds,omitempty"`
}

// recognizedKeys are merged back into Options so round-tripping through
// Configuration preserves them; they are listed here only so callers have
// one place documenting the open key set named in §6.
var recognizedKeys = []string{
	"program", "args", "cwd", "env", "runtimeExecutable", "runtimeArgs",
	"console", "stopOnEntry", "sourceMaps", "outFiles", "skipFiles",
	"port", "address", "processId", "url", "webRoot", "preLaunchTask",
	"postDebugTask", "MIMode", "setupCommands", "noDebug", "remote",
}

// Store is an opaque reader/writer for one launch-config file location,
// the external collaborator named in §6. The resolver is agnostic to
// whether it is backed by a real filesystem, an in-memory map (tests), or
// something else.
type Store interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Exists(ctx context.Context) bool
}

// FileStore is the default Store: a plain file under the workspace root.
type FileStore struct {
	Path string
}

func (f FileStore) Read(ctx context.Context) ([]byte, error) {
	return os.ReadFile(f.Path)
}

func (f FileStore) Write(ctx context.Context, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(f.Path, data, 0o644)
}

func (f FileStore) Exists(ctx context.Context) bool {
	_, err := os.Stat(f.Path)
	return err == nil
}

// Resolver loads, writes, and substitutes launch configurations.
type Resolver struct {
	Primary   Store
	Secondary Store
}

// New builds a Resolver over the primary and (optional, may be nil)
// secondary stores.
func New(primary, secondary Store) *Resolver {
	return &Resolver{Primary: primary, Secondary: secondary}
}

// Read loads the launch-config file, trying the primary store first and
// falling back to the secondary store (stripping comments) if the
// primary does not exist.
func (r *Resolver) Read(ctx context.Context) (*File, error) {
	if r.Primary != nil && r.Primary.Exists(ctx) {
		data, err := r.Primary.Read(ctx)
		if err != nil {
			return nil, errdefs.WithConfigParse("primary", err)
		}
		return decodeFile(data, false)
	}
	if r.Secondary != nil && r.Secondary.Exists(ctx) {
		data, err := r.Secondary.Read(ctx)
		if err != nil {
			return nil, errdefs.WithConfigParse("secondary", err)
		}
		return decodeFile(data, true)
	}
	return &File{Version: "0.2.0"}, nil
}

// Write always writes to the primary store.
func (r *Resolver) Write(ctx context.Context, f *File) error {
	data, err := encodeFile(f)
	if err != nil {
		return errdefs.WithConfigParse("primary", err)
	}
	if r.Primary == nil {
		return errdefs.WithConfigParse("primary", fmt.Errorf("no primary store configured"))
	}
	return r.Primary.Write(ctx, data)
}

// ImportFromSecondary reads the secondary store (comment-stripped),
// decodes it, and writes the re-encoded file to the primary store.
func (r *Resolver) ImportFromSecondary(ctx context.Context) (*File, error) {
	if r.Secondary == nil {
		return nil, errdefs.WithConfigParse("secondary", fmt.Errorf("no secondary store configured"))
	}
	data, err := r.Secondary.Read(ctx)
	if err != nil {
		return nil, errdefs.WithConfigParse("secondary", err)
	}
	f, err := decodeFile(data, true)
	if err != nil {
		return nil, err
	}
	if err := r.Write(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func decodeFile(data []byte, stripComments bool) (*File, error) {
	if stripComments {
		data = StripJSONComments(data)
	}
	var f File
	if err := json.Unmarshal(data, &rawFile{File: &f}); err != nil {
		return nil, errdefs.WithConfigParse("", err)
	}
	return &f, nil
}

// rawFile lets Configuration's open Options map round-trip through
// encoding/json without a custom per-field UnmarshalJSON on File itself:
// it decodes into a generic map first, then peels off the recognized
// envelope fields (version/configurations/compounds) and folds the rest
// of each configuration object into Options.
type rawFile struct {
	*File
}

func (r *rawFile) UnmarshalJSON(data []byte) error {
	var generic struct {
		Version       string                   `json:"version"`
		Configurations []map[string]interface{} `json:"configurations"`
		Compounds     []Compound               `json:"compounds"`
	}
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	r.File.Version = generic.Version
	r.File.Compounds = generic.Compounds
	r.File.Configurations = make([]Configuration, 0, len(generic.Configurations))
	for _, m := range generic.Configurations {
		cfg := Configuration{Options: map[string]interface{}{}}
		for k, v := range m {
			switch k {
			case "name":
				cfg.Name, _ = v.(string)
			case "type":
				cfg.Type, _ = v.(string)
			case "request":
				cfg.Request, _ = v.(string)
			case "preLaunchTask":
				cfg.PreLaunchTask, _ = v.(string)
				cfg.Options[k] = v
			case "postDebugTask":
				cfg.PostDebugTask, _ = v.(string)
				cfg.Options[k] = v
			default:
				cfg.Options[k] = v
			}
		}
		r.File.Configurations = append(r.File.Configurations, cfg)
	}
	return nil
}

func encodeFile(f *File) ([]byte, error) {
	configs := make([]map[string]interface{}, 0, len(f.Configurations))
	for _, cfg := range f.Configurations {
		m := map[string]interface{}{}
		for k, v := range cfg.Options {
			m[k] = v
		}
		m["name"] = cfg.Name
		m["type"] = cfg.Type
		m["request"] = cfg.Request
		if cfg.PreLaunchTask != "" {
			m["preLaunchTask"] = cfg.PreLaunchTask
		}
		if cfg.PostDebugTask != "" {
			m["postDebugTask"] = cfg.PostDebugTask
		}
		configs = append(configs, m)
	}
	out := map[string]interface{}{
		"version":       f.Version,
		"configurations": configs,
	}
	if len(f.Compounds) > 0 {
		out["compounds"] = f.Compounds
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StripJSONComments removes // line comments and /* */ block comments
// from data, tracking whether the scanner is inside a quoted string so a
// comment-like sequence inside a string literal is left untouched.
func StripJSONComments(data []byte) []byte {
	var out bytes.Buffer
	inString := false
	escaped := false
	for i := 0; i < len(data); i++ {
		c := data[i]

		if inString {
			out.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		if c == '"' {
			inString = true
			out.WriteByte(c)
			continue
		}

		if c == '/' && i+1 < len(data) && data[i+1] == '/' {
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out.WriteByte('\n')
			}
			continue
		}

		if c == '/' && i+1 < len(data) && data[i+1] == '*' {
			i += 2
			for i+1 < len(data) && !(data[i] == '*' && data[i+1] == '/') {
				i++
			}
			i++
			continue
		}

		out.WriteByte(c)
	}
	return out.Bytes()
}

// Variables is the set of ambient values substitution draws on, built
// from internal/localenv context helpers.
type Variables struct {
	WorkspaceRoot string
	FocusedFile   string
	Environ       []string
}

// VariablesFromContext builds a Variables from the ambient context
// values attached by internal/localenv.
func VariablesFromContext(ctx context.Context) Variables {
	return Variables{
		WorkspaceRoot: localenv.WorkspaceRoot(ctx),
		FocusedFile:   localenv.FocusedFile(ctx),
		Environ:       localenv.Environ(ctx),
	}
}

// Substitute walks v recursively, replacing ${...} tokens in every string
// leaf. Arrays and maps are traversed; unknown tokens are preserved
// verbatim. A string with no recognized tokens is returned unchanged.
func (vars Variables) Substitute(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return vars.substituteString(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, sub := range val {
			out[k] = vars.Substitute(sub)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, sub := range val {
			out[i] = vars.Substitute(sub)
		}
		return out
	default:
		return v
	}
}

func (vars Variables) substituteString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var out strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '$' || i+1 >= len(s) || s[i+1] != '{' {
			out.WriteByte(s[i])
			i++
			continue
		}
		end := strings.IndexByte(s[i+2:], '}')
		if end < 0 {
			out.WriteString(s[i:])
			break
		}
		end += i + 2
		token := s[i+2 : end]
		replacement, ok := vars.resolveToken(token)
		if ok {
			out.WriteString(replacement)
		} else {
			out.WriteString(s[i : end+1])
		}
		i = end + 1
	}
	return out.String()
}

func (vars Variables) resolveToken(token string) (string, bool) {
	switch token {
	case "workspaceFolder":
		return vars.WorkspaceRoot, true
	case "file":
		return vars.FocusedFile, true
	case "fileBasename":
		return filepath.Base(vars.FocusedFile), true
	case "fileBasenameNoExtension":
		base := filepath.Base(vars.FocusedFile)
		return strings.TrimSuffix(base, filepath.Ext(base)), true
	case "fileDirname":
		return filepath.Dir(vars.FocusedFile), true
	case "fileExtname":
		return filepath.Ext(vars.FocusedFile), true
	case "relativeFile":
		rel, err := filepath.Rel(vars.WorkspaceRoot, vars.FocusedFile)
		if err != nil {
			return vars.FocusedFile, true
		}
		return rel, true
	case "relativeFileDirname":
		rel, err := filepath.Rel(vars.WorkspaceRoot, filepath.Dir(vars.FocusedFile))
		if err != nil {
			return filepath.Dir(vars.FocusedFile), true
		}
		return rel, true
	case "pathSeparator":
		return string(filepath.Separator), true
	}
	if strings.HasPrefix(token, "env:") {
		name := strings.TrimPrefix(token, "env:")
		for _, kv := range vars.Environ {
			if idx := strings.IndexByte(kv, '='); idx >= 0 && kv[:idx] == name {
				return kv[idx+1:], true
			}
		}
		return "", true
	}
	return "", false
}

// DefaultConfiguration produces a minimally valid configuration for
// adapterType.
func DefaultConfiguration(adapterType, workspaceRoot string) Configuration {
	cfg := Configuration{
		Name:    fmt.Sprintf("Launch (%s)", adapterType),
		Type:    adapterType,
		Request: "launch",
		Options: map[string]interface{}{
			"console": "integratedTerminal",
		},
	}
	switch adapterType {
	case "node", "pwa-node":
		cfg.Options["program"] = "${workspaceFolder}/index.js"
	case "python", "debugpy":
		cfg.Options["program"] = "${workspaceFolder}/main.py"
	case "go", "delve":
		cfg.Options["program"] = "${workspaceFolder}"
	case "cppdbg", "lldb", "cppvsdbg":
		cfg.Options["program"] = "${workspaceFolder}/a.out"
		cfg.Options["MIMode"] = mimodeFor(adapterType)
	default:
		cfg.Options["program"] = "${workspaceFolder}"
	}
	return cfg
}

func mimodeFor(adapterType string) string {
	switch adapterType {
	case "cppvsdbg":
		return "vsdbg"
	default:
		if os.Getenv("GOOS") == "darwin" {
			return "lldb"
		}
		return "gdb"
	}
}

// Detected describes one project marker the adapter-manager collaborator
// found in the workspace; AutoGenerate composes a configuration per
// detected marker rather than doing any detection itself.
type Detected struct {
	AdapterType string
	Name        string
}

// AutoGenerate composes one configuration per detected project marker.
// Detection itself is delegated to the caller (the adapter-manager
// collaborator named in §6); this only builds the resulting
// configurations.
func AutoGenerate(detected []Detected, workspaceRoot string) []Configuration {
	out := make([]Configuration, 0, len(detected))
	for _, d := range detected {
		cfg := DefaultConfiguration(d.AdapterType, workspaceRoot)
		if d.Name != "" {
			cfg.Name = d.Name
		}
		out = append(out, cfg)
	}
	return out
}

// PreLaunchResult is the outcome of a successful pre-launch task run.
type PreLaunchResult struct {
	Stdout string
}

// RunPreLaunchTask splits task into argv with shellquote.Split (never a
// shell string, to avoid command injection) and runs it in dir with a
// 120-second hard timeout, streaming stdout to out as it arrives. A
// non-zero exit or a timeout fails with errdefs.ErrPreLaunchFailed.
func RunPreLaunchTask(ctx context.Context, task, dir string, out io.Writer) error {
	if strings.TrimSpace(task) == "" {
		return nil
	}
	argv, err := shellquote.Split(task)
	if err != nil {
		return errdefs.WithConfigParse("preLaunchTask", fmt.Errorf("split command %q: %w", task, err))
	}
	if len(argv) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, PreLaunchTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if out != nil {
		cmd.Stdout = out
	} else {
		cmd.Stdout = io.Discard
	}

	if err := cmd.Start(); err != nil {
		return errdefs.WithPreLaunchFailed(-1, err.Error())
	}

	err = cmd.Wait()
	if ctx.Err() == context.DeadlineExceeded {
		return errdefs.WithPreLaunchFailed(-1, "pre-launch task exceeded 120s timeout")
	}
	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return errdefs.WithPreLaunchFailed(exitCode, stderr.String())
	}
	return nil
}
