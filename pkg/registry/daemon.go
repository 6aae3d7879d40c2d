package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/twpayne/go-vfs/v4"
)

// EnsureInsecureRegistry adds host (host:port) to insecure-registries in
// daemon.json. Unknown keys are preserved and the edit is idempotent, so it
// is safe against hand-maintained files. Returns whether the file changed.
func EnsureInsecureRegistry(fsys vfs.FS, path, host string) (bool, error) {
	cfg := map[string]interface{}{}

	data, err := fsys.ReadFile(path)
	switch {
	case err == nil && len(data) > 0:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return false, fmt.Errorf("parsing %s: %w", path, err)
		}
	case err != nil && !os.IsNotExist(err):
		return false, err
	}

	var list []interface{}
	if raw, ok := cfg["insecure-registries"]; ok {
		list, ok = raw.([]interface{})
		if !ok {
			return false, fmt.Errorf("%s: insecure-registries is not a list", path)
		}
	}
	for _, v := range list {
		if s, ok := v.(string); ok && s == host {
			return false, nil
		}
	}
	cfg["insecure-registries"] = append(list, host)

	out, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return false, err
	}
	if err := vfs.MkdirAll(fsys, filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	return true, fsys.WriteFile(path, append(out, '\n'), 0o644)
}
