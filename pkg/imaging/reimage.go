package imaging

import (
	"fmt"
	"os"

	"github.com/edgeforge/nodeforge/internal/utils"
)

// Reimage writes a base image onto a block device with dd. The caller is
// responsible for the confirmation gate; this function still refuses the
// current root disk and anything mounted.
func Reimage(image, device string) error {
	if _, err := os.Stat(image); err != nil {
		return fmt.Errorf("image %s: %w", image, err)
	}
	if err := GuardNotRootDisk(device); err != nil {
		return err
	}
	if err := GuardNotMounted(device); err != nil {
		return err
	}

	out, err := run("dd", "if="+image, "of="+device, "bs=4M", "conv=fsync", "status=progress")
	if err != nil {
		return fmt.Errorf("dd: %w: %s", err, lastLines(out, 5))
	}
	utils.Sync()
	return nil
}
