// Package bootloader rewrites the boot configuration that decides which
// device the board mounts as root: the extlinux.conf APPEND line and the
// fstab of the cloned filesystem.
package bootloader

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/edgeforge/nodeforge/internal/constants"
	"github.com/gofrs/uuid"
	"github.com/twpayne/go-vfs/v4"
)

// Extlinux edits an extlinux.conf in place. All file access goes through a
// vfs.FS so the rewrite logic is testable on a fake filesystem.
type Extlinux struct {
	fs   vfs.FS
	path string
}

func New(fsys vfs.FS, path string) *Extlinux {
	return &Extlinux{fs: fsys, path: path}
}

func NewDefault() *Extlinux {
	return New(vfs.OSFS, constants.ExtlinuxConf)
}

// Root returns the root= token of the first APPEND line, empty when the
// APPEND line carries no root stanza.
func (e *Extlinux) Root() (string, error) {
	content, err := e.fs.ReadFile(e.path)
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(content), "\n") {
		if !isAppendLine(line) {
			continue
		}
		for _, tok := range strings.Fields(line) {
			if strings.HasPrefix(tok, "root=") {
				return tok, nil
			}
		}
		return "", nil
	}
	return "", fmt.Errorf("%s: no APPEND line", e.path)
}

// SetRootUUID rewrites root= in every APPEND line to root=UUID=<id>,
// leaving every other token untouched. Returns false when the file already
// points at that UUID, so re-running a migration is a no-op.
func (e *Extlinux) SetRootUUID(id uuid.UUID) (bool, error) {
	content, err := e.fs.ReadFile(e.path)
	if err != nil {
		return false, err
	}

	root := "root=UUID=" + id.String()
	lines := strings.Split(string(content), "\n")
	changed := false
	seenAppend := false
	for i, line := range lines {
		if !isAppendLine(line) {
			continue
		}
		seenAppend = true
		newLine, c := setRootToken(line, root)
		if c {
			lines[i] = newLine
			changed = true
		}
	}
	if !seenAppend {
		return false, fmt.Errorf("%s: no APPEND line", e.path)
	}
	if !changed {
		return false, nil
	}
	return true, e.fs.WriteFile(e.path, []byte(strings.Join(lines, "\n")), e.mode())
}

func (e *Extlinux) mode() fs.FileMode {
	if info, err := e.fs.Stat(e.path); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}

func isAppendLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "APPEND")
}

// setRootToken swaps the root= token inside an APPEND line, or appends one
// when the line has none. Only the token itself is touched.
func setRootToken(line, root string) (string, bool) {
	idx := tokenStart(line, "root=")
	if idx < 0 {
		return line + " " + root, true
	}
	end := len(line)
	if rel := strings.IndexAny(line[idx:], " \t"); rel >= 0 {
		end = idx + rel
	}
	if line[idx:end] == root {
		return line, false
	}
	return line[:idx] + root + line[end:], true
}

// tokenStart finds where the token with the given prefix begins. Matches only
// on whitespace boundaries, so nfsroot= can never match root=.
func tokenStart(line, prefix string) int {
	off := 0
	for {
		rel := strings.Index(line[off:], prefix)
		if rel < 0 {
			return -1
		}
		idx := off + rel
		if idx == 0 || line[idx-1] == ' ' || line[idx-1] == '\t' {
			return idx
		}
		off = idx + len(prefix)
	}
}
