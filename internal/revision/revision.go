package revision

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const DefaultTimeout = 5 * time.Second

// Tagger finds the version-control revision a migration file was last changed in.
// Lookups are best effort: any failure means the revision is absent
type Tagger interface {
	Lookup(ctx context.Context, path string) (string, bool)
}

type NullTagger struct{}

var _ Tagger = NullTagger{}

func (NullTagger) Lookup(context.Context, string) (string, bool) {
	return "", false
}

// Chain asks every tagger in order and returns the first revision found
type Chain []Tagger

var _ Tagger = Chain(nil)

func (c Chain) Lookup(ctx context.Context, path string) (string, bool) {
	for _, t := range c {
		if rev, ok := t.Lookup(ctx, path); ok {
			return rev, true
		}
	}

	return "", false
}

// Default - git first, then subversion
func Default(timeout time.Duration) Chain {
	return Chain{NewGitTagger(timeout), NewSVNTagger(timeout)}
}

type GitTagger struct {
	Binary  string
	Timeout time.Duration
}

var _ Tagger = (*GitTagger)(nil)

func NewGitTagger(timeout time.Duration) *GitTagger {
	return &GitTagger{Binary: "git", Timeout: timeout}
}

func (t *GitTagger) Lookup(ctx context.Context, path string) (string, bool) {
	out, ok := run(ctx, t.Timeout, filepath.Dir(path), t.Binary, "log", "-n", "1", "--pretty=format:%H", "--", filepath.Base(path))
	if !ok {
		return "", false
	}

	rev := strings.TrimSpace(string(out))

	return rev, rev != ""
}

type SVNTagger struct {
	Binary  string
	Timeout time.Duration
}

var _ Tagger = (*SVNTagger)(nil)

func NewSVNTagger(timeout time.Duration) *SVNTagger {
	return &SVNTagger{Binary: "svn", Timeout: timeout}
}

func (t *SVNTagger) Lookup(ctx context.Context, path string) (string, bool) {
	out, ok := run(ctx, t.Timeout, filepath.Dir(path), t.Binary, "info", filepath.Base(path))
	if !ok {
		return "", false
	}

	return parseSVNInfo(out)
}

// parseSVNInfo prefers the revision the file last changed in
// over the revision of the working copy
func parseSVNInfo(out []byte) (string, bool) {
	var lastChanged, current string

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), ":")
		if !found {
			continue
		}

		switch strings.TrimSpace(key) {
		case "Last Changed Rev":
			lastChanged = strings.TrimSpace(value)
		case "Revision":
			current = strings.TrimSpace(value)
		}
	}

	if lastChanged != "" {
		return lastChanged, true
	}

	return current, current != ""
}

func run(ctx context.Context, timeout time.Duration, dir, binary string, args ...string) ([]byte, bool) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir

	out, err := cmd.Output()
	if err != nil {
		return nil, false
	}

	return out, true
}
