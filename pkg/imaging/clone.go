// Package imaging owns the destructive block-device work: partitioning and
// formatting the SSD, cloning the running root filesystem onto it, and
// re-imaging the microSD card. Partitioning, filesystem creation and copying
// are delegated to parted, mkfs.ext4, rsync and dd; this package sequences
// them and refuses to aim them at the wrong disk.
package imaging

import (
	"fmt"
	"strings"
	"time"

	"github.com/containerd/containerd/mount"
	"github.com/edgeforge/nodeforge/internal/constants"
	"github.com/edgeforge/nodeforge/internal/utils"
	"github.com/edgeforge/nodeforge/pkg/hardware"
)

var (
	run      = utils.RunTool
	rootDisk = hardware.RootDisk
	findDisk = hardware.FindDisk
)

// GuardNotRootDisk refuses to touch the disk the system is running from.
func GuardNotRootDisk(device string) error {
	root, err := rootDisk()
	if err != nil {
		return err
	}
	if root == hardware.ParentDisk(device) {
		return fmt.Errorf("%s is the current root disk", device)
	}
	return nil
}

// GuardNotMounted refuses disks with mounted partitions.
func GuardNotMounted(device string) error {
	disk, err := findDisk(hardware.ParentDisk(device))
	if err != nil {
		return err
	}
	if mounted := hardware.MountedPartitions(disk); len(mounted) > 0 {
		return fmt.Errorf("%s has mounted partitions: %s", device, strings.Join(mounted, ", "))
	}
	return nil
}

// PartitionDisk wipes the disk and creates a single partition spanning it.
func PartitionDisk(disk string) error {
	out, err := run("parted", "-s", disk, "mklabel", "gpt", "mkpart", "primary", "ext4", "0%", "100%")
	if err != nil {
		return fmt.Errorf("parted %s: %w: %s", disk, err, strings.TrimSpace(out))
	}
	if out, err = run("partprobe", disk); err != nil {
		return fmt.Errorf("partprobe %s: %w: %s", disk, err, strings.TrimSpace(out))
	}
	return nil
}

// Format creates an ext4 filesystem on the partition, waiting for the
// device node first because udev lags behind partprobe on these boards.
func Format(partition string) error {
	if err := hardware.WaitForDevice(partition, 30*time.Second); err != nil {
		return fmt.Errorf("waiting for %s: %w", partition, err)
	}
	out, err := run("mkfs.ext4", "-F", partition)
	if err != nil {
		return fmt.Errorf("mkfs.ext4 %s: %w: %s", partition, err, strings.TrimSpace(out))
	}
	return nil
}

// MountTarget mounts the clone target partition. Idempotent.
func MountTarget(partition, target string) error {
	if err := utils.CreateIfNotExists(target); err != nil {
		return err
	}
	if hardware.IsMounted(target) {
		return nil
	}
	m := mount.Mount{Type: "ext4", Source: partition, Options: []string{"rw"}}
	return mount.All([]mount.Mount{m}, target)
}

// UnmountTarget unmounts the clone target and flushes caches.
func UnmountTarget(target string) error {
	defer utils.Sync()
	if !hardware.IsMounted(target) {
		return nil
	}
	return mount.UnmountAll(target, 0)
}

// CloneRootfs copies the running root filesystem into target. rsync owns
// hardlinks, ACLs and xattrs; we only own the exclusion list.
func CloneRootfs(source, target string) error {
	args := []string{"-axHAWX", "--numeric-ids", "--delete"}
	for _, e := range constants.RsyncExcludes() {
		args = append(args, "--exclude", e)
	}
	args = append(args, strings.TrimSuffix(source, "/")+"/", strings.TrimSuffix(target, "/")+"/")

	out, err := run("rsync", args...)
	if err != nil {
		return fmt.Errorf("rsync: %w: %s", err, lastLines(out, 5))
	}
	return nil
}

// lastLines trims rsync/dd progress noise down to the part worth logging.
func lastLines(out string, n int) string {
	lines := utils.CleanupSlice(strings.Split(strings.TrimSpace(out), "\n"))
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
