// Package workspace lists the files of the workspace directory for the
// get_asset_list tool. The listing is cached and rebuilt lazily after the
// watcher reports a change.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DefaultSkipDirs are never listed or watched.
var DefaultSkipDirs = []string{".git", "vendor", "node_modules", "_examples"}

// AssetItem describes one file of the workspace. Path is slash separated and
// relative to the workspace root; Name is the base name without extension.
type AssetItem struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// Index caches the file listing of a directory tree.
type Index struct {
	root string
	fsys fs.FS
	log  *slog.Logger
	skip map[string]bool

	mu    sync.Mutex
	items []AssetItem
	dirty bool
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger used by the watcher.
func WithLogger(log *slog.Logger) Option {
	return func(i *Index) { i.log = log }
}

// WithSkipDirs replaces DefaultSkipDirs. Names are matched against the base
// name of every directory.
func WithSkipDirs(names ...string) Option {
	return func(i *Index) {
		i.skip = make(map[string]bool, len(names))
		for _, n := range names {
			i.skip[n] = true
		}
	}
}

// NewIndex returns an index over root, which must be an existing directory.
// Nothing is scanned until the first call to Assets.
func NewIndex(root string, opts ...Option) (*Index, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat workspace root: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("workspace root %q is not a directory", abs)
	}

	i := &Index{root: abs, fsys: os.DirFS(abs), dirty: true}
	WithSkipDirs(DefaultSkipDirs...)(i)
	for _, opt := range opts {
		opt(i)
	}
	if i.log == nil {
		i.log = slog.New(slog.DiscardHandler)
	}
	return i, nil
}

// Root is the absolute workspace directory.
func (i *Index) Root() string { return i.root }

// Invalidate forces the next Assets call to rescan.
func (i *Index) Invalidate() {
	i.mu.Lock()
	i.dirty = true
	i.mu.Unlock()
}

// Assets returns every file of the workspace sorted by path.
func (i *Index) Assets(ctx context.Context) ([]AssetItem, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.dirty {
		items, err := i.scan(ctx)
		if err != nil {
			return nil, err
		}
		i.items = items
		i.dirty = false
	}
	return i.items, nil
}

func (i *Index) scan(ctx context.Context) ([]AssetItem, error) {
	var out []AssetItem
	err := fs.WalkDir(i.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are left out of the listing.
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if p != "." && i.skip[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		var size int64
		if info, err := d.Info(); err == nil {
			size = info.Size()
		}
		out = append(out, AssetItem{Path: p, Name: baseName(p), Type: assetType(p), Size: size})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan workspace: %w", err)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Path < out[b].Path })
	return out, nil
}

func baseName(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

func assetType(p string) string {
	base := path.Base(p)
	switch {
	case base == "go.mod":
		return "GoModule"
	case base == "go.sum":
		return "GoSum"
	case strings.HasSuffix(base, "_test.go"):
		return "GoTest"
	case strings.HasSuffix(base, ".go"):
		return "GoSource"
	}
	if mt := mime.TypeByExtension(path.Ext(base)); mt != "" {
		if semi := strings.IndexByte(mt, ';'); semi >= 0 {
			mt = mt[:semi]
		}
		return mt
	}
	return "Unknown"
}

// Watch invalidates the index whenever a file under the root is created,
// removed, renamed or written. It blocks until ctx is done.
func (i *Index) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()

	if err := i.addDirs(w, i.root); err != nil {
		return err
	}
	i.log.DebugContext(ctx, "workspace.watch.start", slog.String("root", i.root))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() && !i.skip[filepath.Base(ev.Name)] {
					if err := i.addDirs(w, ev.Name); err != nil {
						i.log.DebugContext(ctx, "workspace.watch.add.err", slog.String("err", err.Error()))
					}
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) != 0 {
				i.Invalidate()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			i.log.DebugContext(ctx, "workspace.watch.err", slog.String("err", err.Error()))
		}
	}
}

func (i *Index) addDirs(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != i.root && i.skip[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}
