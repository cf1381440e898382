// Package localenv carries the ambient values launch-config variable
// substitution draws on: the workspace root, the currently focused file,
// and the process environment. Grounded on the teacher's
// local/environment.go, which threads the equivalent values (cwd, os,
// arch, environ) through a context.Context with typed keys rather than
// passing them as loose function parameters everywhere.
package localenv

import (
	"context"
	"os"
)

type contextKey string

const (
	workspaceRootKey contextKey = "workspaceRoot"
	focusedFileKey   contextKey = "focusedFile"
	environKey       contextKey = "environ"
)

// WithWorkspaceRoot attaches the workspace root path to ctx.
func WithWorkspaceRoot(ctx context.Context, root string) context.Context {
	return context.WithValue(ctx, workspaceRootKey, root)
}

// WorkspaceRoot reads the workspace root attached to ctx, or "" if none.
func WorkspaceRoot(ctx context.Context) string {
	v, _ := ctx.Value(workspaceRootKey).(string)
	return v
}

// WithFocusedFile attaches the UI's currently focused file path to ctx.
func WithFocusedFile(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, focusedFileKey, path)
}

// FocusedFile reads the focused file path attached to ctx, or "" if none.
func FocusedFile(ctx context.Context) string {
	v, _ := ctx.Value(focusedFileKey).(string)
	return v
}

// WithEnviron attaches an explicit environment (as "NAME=VALUE" pairs,
// the shape of os.Environ()) to ctx, overriding the process environment
// for substitution purposes. Tests use this to avoid depending on the
// host's actual environment.
func WithEnviron(ctx context.Context, environ []string) context.Context {
	return context.WithValue(ctx, environKey, environ)
}

// Environ returns the environment attached to ctx, falling back to the
// process environment if none was attached.
func Environ(ctx context.Context) []string {
	if v, ok := ctx.Value(environKey).([]string); ok {
		return v
	}
	return os.Environ()
}

// Env looks a single variable up in Environ(ctx), returning "" if unset.
func Env(ctx context.Context, name string) string {
	prefix := name + "="
	for _, kv := range Environ(ctx) {
		if len(kv) > len(prefix) && kv[:len(prefix)] == prefix {
			return kv[len(prefix):]
		}
	}
	return ""
}
