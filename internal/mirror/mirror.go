// Package mirror pushes a pull request's head commit into a branch of the
// base repository so that the base repository's CI builds it.
package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// Mirror copies a commit from one repository into a branch of another.
type Mirror interface {
	// Mirror force-pushes req.SourceSHA from req.SourceRepo to
	// req.TargetBranch of req.TargetRepo. It returns the combined
	// output of the git commands it ran, on failure too.
	Mirror(ctx context.Context, req Request) (string, error)
}

// Request describes one mirror operation. Repositories are full names such
// as "acme/widgets".
type Request struct {
	SourceRepo   string
	SourceSHA    string
	TargetRepo   string
	TargetBranch string
}

// AuthStrategy selects how git authenticates to the host.
type AuthStrategy string

const (
	// AuthNone runs git without credentials.
	AuthNone AuthStrategy = "none"

	// AuthToken answers git's credential prompts with a token through a
	// GIT_ASKPASS helper.
	AuthToken AuthStrategy = "token"
)

// DefaultHostURL is the host repositories are cloned from.
const DefaultHostURL = "https://github.com"

// Config configures a GitMirror.
type Config struct {
	// HostURL is prefixed to "/<repo>.git" to form clone and push URLs.
	HostURL string

	// AuthStrategy is AuthNone or AuthToken.
	AuthStrategy AuthStrategy

	// Token is handed to git when AuthStrategy is AuthToken.
	Token string

	// GitPath is the git binary. Empty means "git" from PATH.
	GitPath string
}

// Error is a failed mirror operation. Output is meant for operators and
// must not be shown to pull request authors.
type Error struct {
	// Step names the git command that failed.
	Step string

	// Output is the combined output of every command run so far.
	Output string

	Err error
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("mirror %s failed: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// askPassScript prints the token for every credential prompt.
const askPassScript = "#!/bin/sh\nexec printf '%s\\n' \"$GIT_TOKEN\"\n"

var (
	shaPattern    = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)
	repoPattern   = regexp.MustCompile(`^[A-Za-z0-9_.\-]+/[A-Za-z0-9_.\-]+$`)
	branchPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9/_.\-]*$`)
)

// Validate rejects requests whose fields could be misread by git.
func (r Request) Validate() error {
	switch {
	case !repoPattern.MatchString(r.SourceRepo):
		return fmt.Errorf("invalid source repo %q", r.SourceRepo)

	case !repoPattern.MatchString(r.TargetRepo):
		return fmt.Errorf("invalid target repo %q", r.TargetRepo)

	case !shaPattern.MatchString(r.SourceSHA):
		return fmt.Errorf("invalid commit SHA %q", r.SourceSHA)

	case !branchPattern.MatchString(r.TargetBranch),
		strings.Contains(r.TargetBranch, ".."):

		return fmt.Errorf("invalid branch %q", r.TargetBranch)
	}

	return nil
}

// GitMirror implements Mirror with the git command line. Each call works in
// a fresh temporary directory that is removed afterwards.
type GitMirror struct {
	cfg Config
}

// NewGitMirror returns a GitMirror for cfg.
func NewGitMirror(cfg Config) *GitMirror {
	if cfg.HostURL == "" {
		cfg.HostURL = DefaultHostURL
	}
	if cfg.AuthStrategy == "" {
		cfg.AuthStrategy = AuthNone
	}
	if cfg.GitPath == "" {
		cfg.GitPath = "git"
	}

	return &GitMirror{cfg: cfg}
}

// repoURL returns the clone or push URL of repo. With token auth the
// username "token" is embedded so git asks only for the password.
func (g *GitMirror) repoURL(repo string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(g.cfg.HostURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid host URL: %w", err)
	}
	u.Path += "/" + repo + ".git"

	if g.cfg.AuthStrategy == AuthToken && u.Scheme != "file" {
		u.User = url.User("token")
	}

	return u.String(), nil
}

// env returns the environment for git commands.
func (g *GitMirror) env(workDir string) ([]string, error) {
	env := append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if g.cfg.AuthStrategy != AuthToken {
		return env, nil
	}

	helper := filepath.Join(workDir, "askpass.sh")
	err := os.WriteFile(helper, []byte(askPassScript), 0700)
	if err != nil {
		return nil, fmt.Errorf("failed to write askpass helper: %w", err)
	}

	return append(env, "GIT_ASKPASS="+helper, "GIT_TOKEN="+g.cfg.Token), nil
}

// Mirror implements Mirror.
func (g *GitMirror) Mirror(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	sourceURL, err := g.repoURL(req.SourceRepo)
	if err != nil {
		return "", err
	}
	targetURL, err := g.repoURL(req.TargetRepo)
	if err != nil {
		return "", err
	}

	workDir, err := os.MkdirTemp("", "pulljoy-mirror-")
	if err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.WarnS(ctx, "Failed to remove mirror work dir", err,
				"dir", workDir)
		}
	}()

	env, err := g.env(workDir)
	if err != nil {
		return "", err
	}

	repoDir := filepath.Join(workDir, "repo")
	steps := []struct {
		name string
		dir  string
		args []string
	}{
		{
			name: "clone",
			dir:  workDir,
			args: []string{"clone", "--quiet", "--", sourceURL, repoDir},
		},
		{
			name: "reset",
			dir:  repoDir,
			args: []string{"reset", "--hard", req.SourceSHA},
		},
		{
			name: "push",
			dir:  repoDir,
			args: []string{
				"push", "--force", "--", targetURL,
				"HEAD:refs/heads/" + req.TargetBranch,
			},
		},
	}

	var output bytes.Buffer
	for _, step := range steps {
		log.DebugS(ctx, "Running git", "step", step.name,
			"source", req.SourceRepo, "target", req.TargetRepo,
			"branch", req.TargetBranch)

		fmt.Fprintf(&output, "+ git %s\n", step.name)

		cmd := exec.CommandContext(ctx, g.cfg.GitPath, step.args...)
		cmd.Dir = step.dir
		cmd.Env = env
		cmd.Stdout = &output
		cmd.Stderr = &output

		if err := cmd.Run(); err != nil {
			return output.String(), &Error{
				Step:   step.name,
				Output: output.String(),
				Err:    err,
			}
		}
	}

	log.InfoS(ctx, "Mirrored commit", "source", req.SourceRepo,
		"sha", req.SourceSHA, "target", req.TargetRepo,
		"branch", req.TargetBranch)

	return output.String(), nil
}

// IsMirrorError reports whether err came from a failed git command.
func IsMirrorError(err error) bool {
	var mirrorErr *Error
	return errors.As(err, &mirrorErr)
}

var _ Mirror = (*GitMirror)(nil)
