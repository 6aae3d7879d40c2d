// Package hardware locates the fixed block devices of the supported carrier
// boards and answers the questions the runbooks used to answer with lsblk
// and blkid by hand.
package hardware

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/edgeforge/nodeforge/internal/constants"
	"github.com/edgeforge/nodeforge/internal/utils"
	"github.com/jaypipes/ghw"
	"github.com/jaypipes/ghw/pkg/block"
	"github.com/moby/sys/mountinfo"
)

// Factory vars, replaced in tests.
var (
	blockInfo = ghw.Block
	run       = utils.RunTool
)

// FindDisk returns the ghw view of a disk device such as /dev/nvme0n1.
func FindDisk(device string) (*block.Disk, error) {
	name := filepath.Base(device)
	info, err := blockInfo()
	if err != nil {
		return nil, fmt.Errorf("enumerating block devices: %w", err)
	}
	for _, d := range info.Disks {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("disk %s not present", device)
}

// MountedPartitions returns the device paths of every mounted partition on
// the disk. Formatting or imaging a disk with mounted partitions is refused.
func MountedPartitions(d *block.Disk) []string {
	var mounted []string
	for _, p := range d.Partitions {
		if p.MountPoint != "" {
			mounted = append(mounted, filepath.Join("/dev", p.Name))
		}
	}
	return mounted
}

// IsMounted reports whether target (a mountpoint path) has something mounted.
func IsMounted(target string) bool {
	mounted, err := mountinfo.Mounted(target)
	return err == nil && mounted
}

var (
	partWithSeparator = regexp.MustCompile(`^(.*[0-9])p[0-9]+$`)
	partPlain         = regexp.MustCompile(`^([a-z]+)[0-9]+$`)
)

// ParentDisk maps a partition device to its disk: /dev/mmcblk0p1 to
// /dev/mmcblk0, /dev/sda1 to /dev/sda. Disks map to themselves.
func ParentDisk(dev string) string {
	name := filepath.Base(dev)
	if m := partWithSeparator.FindStringSubmatch(name); m != nil {
		return filepath.Join("/dev", m[1])
	}
	if m := partPlain.FindStringSubmatch(name); m != nil {
		return filepath.Join("/dev", m[1])
	}
	return filepath.Join("/dev", name)
}

// FirstPartition returns the device path of partition 1 on the disk,
// following the kernel naming rules: mmcblk0 gets mmcblk0p1, sda gets sda1.
func FirstPartition(disk string) string {
	if len(disk) > 0 && disk[len(disk)-1] >= '0' && disk[len(disk)-1] <= '9' {
		return disk + "p1"
	}
	return disk + "1"
}

// RootDisk returns the disk the running system is booted from.
func RootDisk() (string, error) {
	mounts, err := mountinfo.GetMounts(mountinfo.SingleEntryFilter("/"))
	if err != nil {
		return "", err
	}
	if len(mounts) == 0 {
		return "", fmt.Errorf("cannot find the root mount")
	}

	src := mounts[0].Source
	if !strings.HasPrefix(src, "/dev/") {
		// overlay or tmpfs root, the kernel cmdline knows better
		src = utils.RootSource()
		if val, ok := strings.CutPrefix(src, "UUID="); ok {
			resolved, err := filepath.EvalSymlinks(filepath.Join("/dev/disk/by-uuid", val))
			if err != nil {
				return "", fmt.Errorf("resolving root UUID %s: %w", val, err)
			}
			src = resolved
		}
	}
	if src == "" {
		return "", fmt.Errorf("cannot determine the root device")
	}
	return ParentDisk(src), nil
}

// WaitForDevice waits for a device node to show up after the kernel re-reads
// a partition table. udev can take a few seconds on these boards.
func WaitForDevice(device string, timeout time.Duration) error {
	attempts := uint(timeout / time.Second)
	if attempts == 0 {
		attempts = 1
	}
	return retry.Do(
		func() error {
			_, err := os.Stat(device)
			return err
		},
		retry.Attempts(attempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
	)
}

// FilesystemUUID asks blkid for the filesystem UUID of a partition.
func FilesystemUUID(device string) (string, error) {
	out, err := run("blkid", "-s", "UUID", "-o", "value", device)
	if err != nil {
		return "", fmt.Errorf("blkid %s: %w", device, err)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		return "", fmt.Errorf("no filesystem UUID on %s", device)
	}
	return id, nil
}

// FilesystemType asks blkid for the filesystem type, empty when unknown.
func FilesystemType(device string) string {
	out, err := run("blkid", "-s", "TYPE", "-o", "value", device)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// BoardModel returns the device-tree model string, e.g.
// "NVIDIA Jetson Xavier NX Developer Kit". Empty on non device-tree systems.
func BoardModel() string {
	b, err := os.ReadFile(constants.DeviceTreeModel)
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(b), "\x00\n")
}
