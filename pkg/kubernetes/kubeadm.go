// Package kubernetes wraps the node-side Kubernetes install chain: apt
// package pinning, kubeadm init/join/reset and kubeconfig installation.
// Cluster bootstrap itself belongs to kubeadm; this package only prepares
// its input and checks its outcome.
package kubernetes

import (
	"bytes"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edgeforge/nodeforge/internal/constants"
	"github.com/edgeforge/nodeforge/internal/utils"
	"github.com/twpayne/go-vfs/v4"
	"gopkg.in/yaml.v3"
)

var run = utils.RunTool

// InitOptions parameterize kubeadm init.
type InitOptions struct {
	ClusterName       string
	KubernetesVersion string
	PodSubnet         string
	ServiceSubnet     string
	AdvertiseAddress  string
	NodeName          string
	CRISocket         string
}

func (o *InitOptions) withDefaults() {
	if o.ClusterName == "" {
		o.ClusterName = "edge"
	}
	if o.PodSubnet == "" {
		o.PodSubnet = "10.244.0.0/16"
	}
	if o.ServiceSubnet == "" {
		o.ServiceSubnet = "10.96.0.0/12"
	}
	if o.CRISocket == "" {
		o.CRISocket = "unix:///run/containerd/containerd.sock"
	}
	if o.NodeName == "" {
		o.NodeName = DefaultNodeName()
	}
}

// DefaultNodeName is the lowercased hostname, which is the name kubeadm
// registers the node under.
func DefaultNodeName() string {
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return strings.ToLower(host)
}

// RenderInitConfig produces the two-document kubeadm configuration file.
func RenderInitConfig(o InitOptions) ([]byte, error) {
	o.withDefaults()

	initCfg := map[string]interface{}{
		"apiVersion": "kubeadm.k8s.io/v1beta3",
		"kind":       "InitConfiguration",
		"nodeRegistration": map[string]interface{}{
			"name":      o.NodeName,
			"criSocket": o.CRISocket,
		},
	}
	if o.AdvertiseAddress != "" {
		initCfg["localAPIEndpoint"] = map[string]interface{}{
			"advertiseAddress": o.AdvertiseAddress,
			"bindPort":         6443,
		}
	}

	clusterCfg := map[string]interface{}{
		"apiVersion":  "kubeadm.k8s.io/v1beta3",
		"kind":        "ClusterConfiguration",
		"clusterName": o.ClusterName,
		"networking": map[string]interface{}{
			"podSubnet":     o.PodSubnet,
			"serviceSubnet": o.ServiceSubnet,
		},
	}
	if o.KubernetesVersion != "" {
		clusterCfg["kubernetesVersion"] = o.KubernetesVersion
	}

	var buf bytes.Buffer
	for i, doc := range []interface{}{initCfg, clusterCfg} {
		if i > 0 {
			buf.WriteString("---\n")
		}
		b, err := yaml.Marshal(doc)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// Init renders the config and runs kubeadm init against it.
func Init(o InitOptions) error {
	cfg, err := RenderInitConfig(o)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp("", "nodeforge-kubeadm-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(cfg); err != nil {
		_ = f.Close()
		return err
	}
	_ = f.Close()

	out, err := run("kubeadm", "init", "--config", f.Name())
	if err != nil {
		return fmt.Errorf("kubeadm init: %w: %s", err, tail(out))
	}
	utils.Log.Info().Msg("kubeadm init complete")
	return nil
}

// JoinOptions parameterize kubeadm join.
type JoinOptions struct {
	Endpoint string // host:port of the control plane
	Token    string
	CAHash   string // sha256:... discovery hash
	NodeName string
}

func (o JoinOptions) Validate() error {
	if o.Endpoint == "" || o.Token == "" || o.CAHash == "" {
		return fmt.Errorf("join needs endpoint, token and CA hash")
	}
	if !strings.HasPrefix(o.CAHash, "sha256:") {
		return fmt.Errorf("CA hash must be of the form sha256:<hex>")
	}
	return nil
}

// JoinArgs builds the kubeadm join argument list.
func JoinArgs(o JoinOptions) []string {
	args := []string{"join", o.Endpoint,
		"--token", o.Token,
		"--discovery-token-ca-cert-hash", o.CAHash,
	}
	if o.NodeName != "" {
		args = append(args, "--node-name", o.NodeName)
	}
	return args
}

// Join runs kubeadm join for a worker node.
func Join(o JoinOptions) error {
	if err := o.Validate(); err != nil {
		return err
	}
	out, err := run("kubeadm", JoinArgs(o)...)
	if err != nil {
		return fmt.Errorf("kubeadm join: %w: %s", err, tail(out))
	}
	utils.Log.Info().Str("endpoint", o.Endpoint).Msg("joined cluster")
	return nil
}

// Reset tears the node out of the cluster and clears CNI leftovers, which
// kubeadm reset leaves behind on purpose.
func Reset() error {
	out, err := run("kubeadm", "reset", "-f")
	if err != nil {
		return fmt.Errorf("kubeadm reset: %w: %s", err, tail(out))
	}
	if err := os.RemoveAll(constants.CNIConfDir); err != nil {
		return err
	}
	return os.MkdirAll(constants.CNIConfDir, 0o755)
}

// InstallKubeconfig copies admin.conf into a user's ~/.kube/config, chowned
// to them. uid/gid of -1 skip the chown.
func InstallKubeconfig(fsys vfs.FS, home string, uid, gid int) error {
	data, err := fsys.ReadFile(constants.AdminKubeconfig)
	if err != nil {
		return fmt.Errorf("reading %s (did kubeadm init run?): %w", constants.AdminKubeconfig, err)
	}

	dir := filepath.Join(home, ".kube")
	if err := vfs.MkdirAll(fsys, dir, 0o750); err != nil {
		return err
	}
	target := filepath.Join(dir, "config")
	if err := fsys.WriteFile(target, data, 0o600); err != nil {
		return err
	}
	if uid >= 0 && gid >= 0 {
		if err := fsys.Chown(dir, uid, gid); err != nil {
			return err
		}
		if err := fsys.Chown(target, uid, gid); err != nil {
			return err
		}
	}
	return nil
}

// SudoUser resolves the user that invoked sudo, so the kubeconfig lands in
// their home instead of /root. Falls back to root when not under sudo.
func SudoUser() (home string, uid, gid int) {
	home, uid, gid = "/root", 0, 0

	uidStr := os.Getenv("SUDO_UID")
	gidStr := os.Getenv("SUDO_GID")
	if uidStr == "" {
		return home, uid, gid
	}
	u, err := strconv.Atoi(uidStr)
	if err != nil {
		return home, uid, gid
	}
	g, err := strconv.Atoi(gidStr)
	if err != nil {
		g = u
	}
	if usr, err := user.LookupId(uidStr); err == nil {
		return usr.HomeDir, u, g
	}
	return home, uid, gid
}

func tail(out string) string {
	lines := utils.CleanupSlice(strings.Split(strings.TrimSpace(out), "\n"))
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "\n")
}
