package snapshot

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"fsentry/internal/logging"
)

var builderLogger = logging.GetLogger().WithPrefix("snapshot")

// defaultWorkers bounds the hashing pool. Hashing is I/O bound, so a
// small pool is enough to keep disks busy without unbounded fan-out.
const defaultWorkers = 8

// Builder walks a directory tree and produces a Snapshot of every
// regular file under it, applying exclusion rules. Symbolic links are
// never followed, so link cycles cannot prevent termination.
type Builder struct {
	root    string
	rules   ExclusionRules
	workers int
}

// NewBuilder creates a Builder for the given root directory
func NewBuilder(root string, rules ExclusionRules) *Builder {
	return &Builder{
		root:    filepath.Clean(root),
		rules:   rules,
		workers: defaultWorkers,
	}
}

// SetWorkers overrides the hashing pool size. Values below 1 are ignored.
func (b *Builder) SetWorkers(n int) {
	if n >= 1 {
		b.workers = n
	}
}

// Build enumerates the tree and returns the path -> digest mapping.
// Individual files that cannot be read are skipped with a warning; the
// whole build fails only when the root itself is unreadable, wrapped
// with ErrTreeUnavailable so the caller can retry next cycle.
func (b *Builder) Build() (Snapshot, error) {
	info, err := os.Stat(b.root)
	if err != nil {
		return nil, newError(OpStat, b.root, errors.Join(ErrTreeUnavailable, err))
	}
	if !info.IsDir() {
		return nil, newError(OpStat, b.root, ErrNotDirectory)
	}

	paths, err := b.collect()
	if err != nil {
		return nil, err
	}

	return b.hashAll(paths), nil
}

// collect walks the tree and returns the relative paths of every
// regular file that survives the exclusion rules.
func (b *Builder) collect() ([]string, error) {
	var paths []string

	walkErr := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == b.root {
				return errors.Join(ErrTreeUnavailable, err)
			}
			// Unreadable subtree: skip it, keep scanning the rest
			builderLogger.Warn("Skipping unreadable path %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != b.root && b.rules.ExcludesDir(d.Name()) {
				builderLogger.Trace("Pruning excluded directory: %s", path)
				return filepath.SkipDir
			}
			return nil
		}

		// WalkDir uses lstat semantics: symlinks show up as links, not
		// their targets, and are never descended into.
		if !d.Type().IsRegular() {
			builderLogger.Trace("Skipping non-regular file: %s", path)
			return nil
		}

		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			builderLogger.Warn("Skipping unrelatable path %s: %v", path, err)
			return nil
		}
		rel = filepath.ToSlash(rel)

		if b.rules.ExcludesFile(rel) {
			builderLogger.Trace("Excluded by rules: %s", rel)
			return nil
		}

		paths = append(paths, rel)
		return nil
	})
	if walkErr != nil {
		return nil, newError(OpWalk, b.root, walkErr)
	}

	return paths, nil
}

// hashAll fans the candidate paths out over the worker pool and merges
// the results into a Snapshot. Files that disappear or become
// unreadable between listing and hashing are skipped with a warning.
// The merge happens under one mutex before return, so the caller sees a
// complete, deterministic mapping regardless of worker scheduling.
func (b *Builder) hashAll(paths []string) Snapshot {
	snap := make(Snapshot, len(paths))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		jobs = make(chan string)
	)

	workers := b.workers
	if workers > len(paths) {
		workers = len(paths)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range jobs {
				digest, err := HashFile(filepath.Join(b.root, filepath.FromSlash(rel)))
				if err != nil {
					builderLogger.Warn("Skipping unreadable file %s: %v", rel, err)
					continue
				}
				mu.Lock()
				snap[rel] = digest
				mu.Unlock()
			}
		}()
	}

	for _, rel := range paths {
		jobs <- rel
	}
	close(jobs)
	wg.Wait()

	return snap
}
