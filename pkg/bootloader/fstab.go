package bootloader

import (
	"fmt"
	"strings"

	"github.com/deniswernert/go-fstab"
	"github.com/twpayne/go-vfs/v4"
)

// RewriteFstabRoot points the / entry of the cloned filesystem at the new
// root spec (UUID=... form). The entry is added when the original fstab had
// none, which is the case on stock L4T images.
func RewriteFstabRoot(fsys vfs.FS, path, rootSpec string) error {
	content, err := fsys.ReadFile(path)
	if err != nil {
		return err
	}

	mounts, err := fstab.Parse(strings.NewReader(string(content)))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	found := false
	for _, m := range mounts {
		if m.File == "/" {
			m.Spec = rootSpec
			found = true
		}
	}
	if !found {
		mounts = append(mounts, &fstab.Mount{
			Spec:    rootSpec,
			File:    "/",
			VfsType: "ext4",
			MntOps:  map[string]string{"defaults": ""},
			Freq:    0,
			PassNo:  1,
		})
	}

	var sb strings.Builder
	for _, m := range mounts {
		sb.WriteString(m.String())
		sb.WriteByte('\n')
	}
	return fsys.WriteFile(path, []byte(sb.String()), 0o644)
}
