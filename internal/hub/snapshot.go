package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultRevision is used when an identifier carries no @revision suffix.
const DefaultRevision = "main"

// Artifact file names inside a snapshot.
const (
	VocabFile           = "vocab.txt"
	ConfigFile          = "config.json"
	TokenizerConfigFile = "tokenizer_config.json"
)

// modelFiles are tried in order; optimum exports put the graph under onnx/.
var modelFiles = []string{"onnx/model.onnx", "model.onnx"}

var segmentRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Repo is a parsed hub reference of the form [owner/]name[@revision].
type Repo struct {
	Owner    string
	Name     string
	Revision string
}

// ParseRepo validates and splits a repository identifier.
func ParseRepo(id string) (Repo, error) {
	ref, rev, hasRev := strings.Cut(strings.TrimSpace(id), "@")
	if hasRev && rev == "" {
		return Repo{}, fmt.Errorf("%w: empty revision in %q", ErrInvalidIdentifier, id)
	}
	if !hasRev {
		rev = DefaultRevision
	}
	if strings.ContainsAny(rev, "/\\") || strings.Contains(rev, "..") {
		return Repo{}, fmt.Errorf("%w: bad revision %q", ErrInvalidIdentifier, rev)
	}

	parts := strings.Split(ref, "/")
	if len(parts) > 2 {
		return Repo{}, fmt.Errorf("%w: %q has more than two path segments", ErrInvalidIdentifier, id)
	}
	for _, p := range parts {
		if !segmentRe.MatchString(p) || strings.Contains(p, "..") {
			return Repo{}, fmt.Errorf("%w: bad segment %q in %q", ErrInvalidIdentifier, p, id)
		}
	}

	r := Repo{Name: parts[len(parts)-1], Revision: rev}
	if len(parts) == 2 {
		r.Owner = parts[0]
	}
	return r, nil
}

// ID returns owner/name, or name for unowned repositories.
func (r Repo) ID() string {
	if r.Owner == "" {
		return r.Name
	}
	return r.Owner + "/" + r.Name
}

func (r Repo) String() string {
	return r.ID() + "@" + r.Revision
}

// dirName is the cache directory for the repository, one level per revision
// below it.
func (r Repo) dirName() string {
	if r.Owner == "" {
		return r.Name
	}
	return r.Owner + "--" + r.Name
}

// Snapshot lists the local artifact files of one model.
type Snapshot struct {
	Dir       string
	ModelPath string
	VocabPath string

	// Optional files; empty when the model does not ship them.
	ConfigPath          string
	TokenizerConfigPath string
}

// Resolve maps an identifier to a local snapshot. An existing directory is
// used as-is. Anything else is parsed as a repository reference and fetched
// into the cache; files already cached are not downloaded again.
func (c *Client) Resolve(ctx context.Context, identifier string) (Snapshot, error) {
	if info, err := os.Stat(identifier); err == nil && info.IsDir() {
		return LocalSnapshot(identifier)
	}

	repo, err := ParseRepo(identifier)
	if err != nil {
		return Snapshot{}, err
	}

	dir := filepath.Join(c.cacheDir, repo.dirName(), repo.Revision)
	if snap, err := LocalSnapshot(dir); err == nil {
		// Complete snapshots are served from disk without touching the network.
		return snap, nil
	}

	snap := Snapshot{Dir: dir}
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := c.fetchFirst(gctx, repo, dir, modelFiles)
		snap.ModelPath = p
		return err
	})
	g.Go(func() error {
		p, err := c.fetch(gctx, repo, dir, VocabFile, false)
		snap.VocabPath = p
		return err
	})
	g.Go(func() error {
		p, err := c.fetch(gctx, repo, dir, ConfigFile, true)
		snap.ConfigPath = p
		return err
	})
	g.Go(func() error {
		p, err := c.fetch(gctx, repo, dir, TokenizerConfigFile, true)
		snap.TokenizerConfigPath = p
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("hub: resolve %s: %w", repo, err)
	}

	slog.Debug("hub: snapshot ready", "repo", repo.String(), "dir", dir, "duration", time.Since(start))
	return snap, nil
}

// LocalSnapshot checks a directory for the required artifact files.
func LocalSnapshot(dir string) (Snapshot, error) {
	snap := Snapshot{Dir: dir}
	for _, name := range modelFiles {
		if p := filepath.Join(dir, filepath.FromSlash(name)); fileExists(p) {
			snap.ModelPath = p
			break
		}
	}
	if snap.ModelPath == "" {
		return Snapshot{}, fmt.Errorf("%w: no %s in %s", ErrNotFound, strings.Join(modelFiles, " or "), dir)
	}
	if p := filepath.Join(dir, VocabFile); fileExists(p) {
		snap.VocabPath = p
	} else {
		return Snapshot{}, fmt.Errorf("%w: no %s in %s", ErrNotFound, VocabFile, dir)
	}
	if p := filepath.Join(dir, ConfigFile); fileExists(p) {
		snap.ConfigPath = p
	}
	if p := filepath.Join(dir, TokenizerConfigFile); fileExists(p) {
		snap.TokenizerConfigPath = p
	}
	return snap, nil
}

// fetchFirst returns the first of names the repository provides.
func (c *Client) fetchFirst(ctx context.Context, repo Repo, dir string, names []string) (string, error) {
	for _, name := range names {
		if p := filepath.Join(dir, filepath.FromSlash(name)); fileExists(p) {
			return p, nil
		}
	}
	for _, name := range names {
		p, err := c.fetch(ctx, repo, dir, name, true)
		if err != nil {
			return "", err
		}
		if p != "" {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s has no ONNX export (%s)", ErrNotFound, repo, strings.Join(names, ", "))
}

// fetch returns the cached path of name, downloading it first if needed.
// A missing optional file yields an empty path and no error.
func (c *Client) fetch(ctx context.Context, repo Repo, dir, name string, optional bool) (string, error) {
	dest := filepath.Join(dir, filepath.FromSlash(name))
	if fileExists(dest) {
		return dest, nil
	}

	slog.Info("hub: downloading", "repo", repo.String(), "file", name)
	err := c.download(ctx, c.fileURL(repo, name), dest)
	if err == nil {
		return dest, nil
	}
	if optional && errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return "", err
}

func (c *Client) fileURL(repo Repo, name string) string {
	return strings.TrimRight(c.endpoint, "/") + "/" + repo.ID() +
		"/resolve/" + url.PathEscape(repo.Revision) + "/" + name
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
