// Package snapshot builds and compares content-addressed views of a
// directory tree.
//
// This file contains the core data types shared by the builder and the
// diff engine.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Digest is the SHA-256 hash of a file's full byte content, used as a
// content fingerprint.
type Digest [sha256.Size]byte

// String returns the lowercase hex encoding of the digest
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalText implements encoding.TextMarshaler so snapshots serialize
// as path -> hex string mappings.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Digest) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid digest %q: %w", string(text), err)
	}
	if len(raw) != sha256.Size {
		return fmt.Errorf("invalid digest length %d, want %d", len(raw), sha256.Size)
	}
	copy(d[:], raw)
	return nil
}

// Snapshot is the complete relative-path -> digest mapping for a
// monitored tree at one instant. A snapshot is never mutated after it
// is built; each scan produces a fresh one.
type Snapshot map[string]Digest

// Equal reports whether two snapshots contain the same paths with the
// same digests.
func (s Snapshot) Equal(o Snapshot) bool {
	if len(s) != len(o) {
		return false
	}
	for p, d := range s {
		od, ok := o[p]
		if !ok || od != d {
			return false
		}
	}
	return true
}

// MarshalJSON serializes the snapshot as a JSON object of path -> hex
// digest. encoding/json sorts object keys, so output is stable.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(s))
	for p, d := range s {
		m[p] = d.String()
	}
	return json.Marshal(m)
}

// UnmarshalJSON parses the path -> hex digest object form
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(Snapshot, len(m))
	for p, hexDigest := range m {
		var d Digest
		if err := d.UnmarshalText([]byte(hexDigest)); err != nil {
			return fmt.Errorf("path %q: %w", p, err)
		}
		out[p] = d
	}
	*s = out
	return nil
}

// Op identifies the kind of change detected between two snapshots
type Op int

const (
	// OpAdded indicates a path present now that was absent before
	OpAdded Op = iota
	// OpModified indicates a path whose content digest changed
	OpModified
	// OpDeleted indicates a path absent now that was present before
	OpDeleted
)

// String returns the human-readable name of the operation
func (o Op) String() string {
	switch o {
	case OpAdded:
		return "added"
	case OpModified:
		return "modified"
	case OpDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// ChangeEvent is one detected difference between two snapshots.
// OldDigest and NewDigest are only both set for OpModified; OpAdded
// carries NewDigest and OpDeleted carries OldDigest.
type ChangeEvent struct {
	Op        Op
	Path      string
	Time      time.Time
	OldDigest Digest
	NewDigest Digest
}

// String returns a one-line rendering suitable for logs
func (e ChangeEvent) String() string {
	if e.Op == OpModified {
		return fmt.Sprintf("%s %s (%s -> %s)", e.Op, e.Path, e.OldDigest, e.NewDigest)
	}
	return fmt.Sprintf("%s %s", e.Op, e.Path)
}

// ExclusionRules is the configured set of file extensions and directory
// names skipped during scanning. Extensions are matched against the
// file's extension including the leading dot; directory names are
// matched against every path component.
type ExclusionRules struct {
	extensions  map[string]bool
	directories map[string]bool
}

// NewExclusionRules builds an ExclusionRules from extension and
// directory name lists. Extensions are normalized to a leading dot and
// lowercase.
func NewExclusionRules(extensions, directories []string) ExclusionRules {
	r := ExclusionRules{
		extensions:  make(map[string]bool, len(extensions)),
		directories: make(map[string]bool, len(directories)),
	}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.extensions[ext] = true
	}
	for _, dir := range directories {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		r.directories[dir] = true
	}
	return r
}

// ExcludesDir returns true if the directory name itself is excluded
func (r ExclusionRules) ExcludesDir(name string) bool {
	return r.directories[name]
}

// ExcludesFile returns true if the relative path has an excluded
// extension or any excluded directory component.
func (r ExclusionRules) ExcludesFile(relPath string) bool {
	if r.extensions[strings.ToLower(filepath.Ext(relPath))] {
		return true
	}
	rel := filepath.ToSlash(relPath)
	parts := strings.Split(rel, "/")
	for _, part := range parts[:len(parts)-1] {
		if r.directories[part] {
			return true
		}
	}
	return false
}
