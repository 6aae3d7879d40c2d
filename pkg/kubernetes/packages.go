package kubernetes

import (
	"fmt"
	"strings"

	"github.com/edgeforge/nodeforge/internal/constants"
	"github.com/twpayne/go-vfs/v4"
)

// sysctlConf is what kubeadm preflight expects from the kernel.
const sysctlConf = `net.bridge.bridge-nf-call-iptables  = 1
net.bridge.bridge-nf-call-ip6tables = 1
net.ipv4.ip_forward                 = 1
`

// UpdateIndex refreshes the apt package index.
func UpdateIndex() error {
	out, err := run("apt-get", "update")
	if err != nil {
		return fmt.Errorf("apt-get update: %w: %s", err, tail(out))
	}
	return nil
}

// InstallPackages installs kubelet, kubeadm and kubectl at the pinned
// version and holds them so unattended upgrades cannot skew the cluster.
func InstallPackages(version string) error {
	args := []string{"install", "-y"}
	for _, p := range constants.KubePackages() {
		if version != "" {
			p = p + "=" + version
		}
		args = append(args, p)
	}
	if out, err := run("apt-get", args...); err != nil {
		return fmt.Errorf("apt-get install: %w: %s", err, tail(out))
	}

	holdArgs := append([]string{"hold"}, constants.KubePackages()...)
	if out, err := run("apt-mark", holdArgs...); err != nil {
		return fmt.Errorf("apt-mark hold: %w: %s", err, tail(out))
	}
	return nil
}

// PrepareRuntime loads the kernel modules and sysctls kubeadm preflight
// checks for, and turns off swap for the current boot.
func PrepareRuntime(fsys vfs.FS) error {
	for _, mod := range []string{"overlay", "br_netfilter"} {
		if out, err := run("modprobe", mod); err != nil {
			return fmt.Errorf("modprobe %s: %w: %s", mod, err, strings.TrimSpace(out))
		}
	}

	if err := fsys.WriteFile(constants.SysctlConf, []byte(sysctlConf), 0o644); err != nil {
		return err
	}
	if out, err := run("sysctl", "--system"); err != nil {
		return fmt.Errorf("sysctl --system: %w: %s", err, tail(out))
	}

	if out, err := run("swapoff", "-a"); err != nil {
		return fmt.Errorf("swapoff: %w: %s", err, strings.TrimSpace(out))
	}
	return nil
}
