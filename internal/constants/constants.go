package constants

import "errors"

// Op names used by the provisioning graphs.
const (
	OpPreflight   = "preflight"
	OpConfirm     = "confirm"
	OpStageBefore = "stage-before"
	OpStageAfter  = "stage-after"

	OpPartitionTarget = "partition-target"
	OpFormatTarget    = "format-target"
	OpMountTarget     = "mount-target"
	OpCloneRootfs     = "clone-rootfs"
	OpWriteFstab      = "write-fstab"
	OpRewriteBoot     = "rewrite-extlinux"
	OpFlushTarget     = "flush-target"
	OpNextSteps       = "next-steps"

	OpUnmountSDCard = "unmount-sdcard"
	OpReimageSDCard = "reimage-sdcard"

	OpInstallPackages   = "install-packages"
	OpConfigureRuntime  = "configure-runtime"
	OpKubeadmInit       = "kubeadm-init"
	OpKubeadmJoin       = "kubeadm-join"
	OpInstallKubeconfig = "install-kubeconfig"
	OpWaitNodeReady     = "wait-node-ready"
)

const (
	// ExtlinuxConf is where the Jetson class boards keep the bootloader config.
	ExtlinuxConf = "/boot/extlinux/extlinux.conf"

	// SDCardDevice and SSDDevice are fixed on the supported boards. The carrier
	// board exposes exactly one microSD slot and one M.2 slot.
	SDCardDevice = "/dev/mmcblk0"
	SSDDevice    = "/dev/nvme0n1"
	SSDPartition = "/dev/nvme0n1p1"

	DeviceTreeModel = "/proc/device-tree/model"
	EfiVarsDir      = "/sys/firmware/efi"

	AdminKubeconfig  = "/etc/kubernetes/admin.conf"
	DockerDaemonJSON = "/etc/docker/daemon.json"
	CNIConfDir       = "/etc/cni/net.d"
	SysctlConf       = "/etc/sysctl.d/90-nodeforge-k8s.conf"

	CloneMountpoint = "/mnt/nodeforge-target"

	StagesDir = "/etc/nodeforge/stages.d"
	LogDir    = "/var/log/nodeforge"
	PKIDir    = "/etc/nodeforge/pki"

	RegistryName = "registry"
	RegistryImage = "registry:2"
	RegistryPort  = 5000
)

// Confirmation phrases. Destructive operations require the operator to type
// these exactly, same as the runbooks they replace.
const (
	ConfirmReimage   = "reset this node"
	ConfirmMigrate   = "migrate this node"
	ConfirmNvram     = "clean the nvram"
	ConfirmKubeReset = "reset kubernetes"
)

// ReservedBootEntryMax is the highest firmware-standard NVRAM entry number.
// Boot0000 to Boot0008 ship with the UEFI firmware and must survive a clean.
const ReservedBootEntryMax uint16 = 0x0008

var (
	ErrNotRoot      = errors.New("this command must run as root")
	ErrNoEFI        = errors.New("no EFI support detected (efivarfs not present)")
	ErrNotConfirmed = errors.New("operation not confirmed")
)

// RsyncExcludes lists the pseudo and volatile filesystems that must never be
// copied onto the clone target.
func RsyncExcludes() []string {
	return []string{"/proc/*", "/sys/*", "/dev/*", "/run/*", "/tmp/*", "/mnt/*", "/media/*", "/lost+found"}
}

// KubePackages returns the apt packages pinned by the install chain.
func KubePackages() []string {
	return []string{"kubelet", "kubeadm", "kubectl"}
}

// PreflightTools returns the external binaries a workflow shells out to.
// Missing ones are reported together before anything runs.
func PreflightTools(ops ...string) []string {
	tools := map[string][]string{
		OpPartitionTarget: {"parted", "partprobe"},
		OpFormatTarget:    {"mkfs.ext4"},
		OpCloneRootfs:     {"rsync"},
		OpReimageSDCard:   {"dd"},
		OpInstallPackages: {"apt-get", "apt-mark"},
		OpKubeadmInit:     {"kubeadm"},
		OpKubeadmJoin:     {"kubeadm"},
	}
	seen := map[string]bool{}
	var out []string
	for _, op := range ops {
		for _, t := range tools[op] {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}
