package cmd

import (
	"fmt"
	"time"

	"github.com/spectrocloud-labs/herd"
	"github.com/twpayne/go-vfs/v4"
	"github.com/urfave/cli/v2"

	"github.com/edgeforge/nodeforge/internal/constants"
	"github.com/edgeforge/nodeforge/internal/utils"
	"github.com/edgeforge/nodeforge/pkg/addons"
	"github.com/edgeforge/nodeforge/pkg/bootloader"
	"github.com/edgeforge/nodeforge/pkg/hardware"
	"github.com/edgeforge/nodeforge/pkg/kubernetes"
	"github.com/edgeforge/nodeforge/pkg/nvram"
	"github.com/edgeforge/nodeforge/pkg/pki"
	"github.com/edgeforge/nodeforge/pkg/provision"
	"github.com/edgeforge/nodeforge/pkg/registry"
)

var workflowFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:  "dry-run",
		Usage: "print the workflow graph and exit without running anything",
	},
	&cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "skip the typed confirmation (for automation)",
	},
}

var initFlags = append([]cli.Flag{
	&cli.StringFlag{Name: "cluster-name", Value: "edge"},
	&cli.StringFlag{Name: "kubernetes-version", Usage: "version passed to kubeadm, empty for the packaged one"},
	&cli.StringFlag{Name: "package-version", Usage: "apt version pin for kubelet/kubeadm/kubectl"},
	&cli.StringFlag{Name: "pod-subnet", Value: "10.244.0.0/16"},
	&cli.StringFlag{Name: "service-subnet", Value: "10.96.0.0/12"},
	&cli.StringFlag{Name: "advertise-address"},
	&cli.StringFlag{Name: "node-name"},
	&cli.DurationFlag{Name: "wait", Value: 10 * time.Minute, Usage: "how long to wait for the node to report Ready"},
}, workflowFlags...)

var joinFlags = append([]cli.Flag{
	&cli.StringFlag{Name: "endpoint", Required: true, Usage: "control plane endpoint host:port"},
	&cli.StringFlag{Name: "token", Required: true, Usage: "kubeadm bootstrap token"},
	&cli.StringFlag{Name: "ca-hash", Required: true, Usage: "discovery CA hash, sha256:..."},
	&cli.StringFlag{Name: "package-version"},
	&cli.StringFlag{Name: "node-name"},
}, workflowFlags...)

func controlPlaneAction(c *cli.Context) error {
	s := provision.NewState()
	s.PackageVersion = c.String("package-version")
	s.WaitTimeout = c.Duration("wait")
	s.Init = kubernetes.InitOptions{
		ClusterName:       c.String("cluster-name"),
		KubernetesVersion: c.String("kubernetes-version"),
		PodSubnet:         c.String("pod-subnet"),
		ServiceSubnet:     c.String("service-subnet"),
		AdvertiseAddress:  c.String("advertise-address"),
		NodeName:          c.String("node-name"),
	}
	return runGraph(c, s, s.RegisterControlPlane)
}

func workerAction(c *cli.Context) error {
	s := provision.NewState()
	s.PackageVersion = c.String("package-version")
	s.Join = kubernetes.JoinOptions{
		Endpoint: c.String("endpoint"),
		Token:    c.String("token"),
		CAHash:   c.String("ca-hash"),
		NodeName: c.String("node-name"),
	}
	return runGraph(c, s, s.RegisterWorker)
}

// runGraph registers a workflow, prints its layers, and runs it unless
// --dry-run was given. The graph is printed again afterwards so the operator
// sees which steps ran.
func runGraph(c *cli.Context, s *provision.State, register func(*herd.Graph) error) error {
	s.AssumeYes = c.Bool("yes")
	if c.App.Reader != nil {
		s.In = c.App.Reader
	}
	if c.App.Writer != nil {
		s.Out = c.App.Writer
	}
	g := herd.DAG()
	if err := register(g); err != nil {
		return err
	}
	utils.Log.Info().Msg(s.WriteDAG(g))
	if c.Bool("dry-run") {
		return nil
	}
	err := g.Run(c.Context)
	utils.Log.Info().Msg(s.WriteDAG(g))
	return err
}

var Commands = []*cli.Command{
	{
		Name:  "boot",
		Usage: "boot device management",
		Subcommands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "clone the running rootfs to the SSD and boot from it",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "device",
						Value: constants.SSDDevice,
						Usage: "target disk that receives the rootfs",
					},
				}, workflowFlags...),
				Action: func(c *cli.Context) error {
					s := provision.NewState()
					s.TargetDisk = c.String("device")
					s.TargetPartition = hardware.FirstPartition(s.TargetDisk)
					return runGraph(c, s, s.RegisterBootMigration)
				},
			},
			{
				Name:  "status",
				Usage: "show where the board boots from",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "board:         %s\n", hardware.BoardModel())
					if disk, err := hardware.RootDisk(); err == nil {
						fmt.Fprintf(c.App.Writer, "root disk:     %s\n", disk)
					}
					fmt.Fprintf(c.App.Writer, "cmdline root:  %s\n", utils.RootSource())
					if root, err := bootloader.NewDefault().Root(); err == nil {
						fmt.Fprintf(c.App.Writer, "extlinux root: %s\n", root)
					}
					if nvram.Supported() {
						if table, err := nvram.List(); err == nil {
							if table.HasCurrent {
								fmt.Fprintf(c.App.Writer, "boot current:  Boot%04X\n", table.BootCurrent)
							}
							if len(table.BootOrder) > 0 {
								fmt.Fprintf(c.App.Writer, "boot order:    %s\n", table.OrderString())
							}
						}
						fmt.Fprintf(c.App.Writer, "secure boot:   %t\n", nvram.SecureBootEnabled())
					}
					return nil
				},
			},
		},
	},
	{
		Name:  "nvram",
		Usage: "UEFI boot entry management",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list boot entries, marking the firmware-reserved ones",
				Action: func(c *cli.Context) error {
					if !nvram.Supported() {
						return constants.ErrNoEFI
					}
					table, err := nvram.List()
					if err != nil {
						return err
					}
					if table.HasCurrent {
						fmt.Fprintf(c.App.Writer, "BootCurrent: %04X\n", table.BootCurrent)
					}
					if len(table.BootOrder) > 0 {
						fmt.Fprintf(c.App.Writer, "BootOrder: %s\n", table.OrderString())
					}
					for _, e := range table.Entries {
						mark := " "
						if nvram.Reserved(e.Number) {
							mark = "*"
						}
						fmt.Fprintf(c.App.Writer, "%s %s  %s\n", mark, e.Name(), e.Description)
					}
					fmt.Fprintf(c.App.Writer, "entries marked * are firmware-reserved and never deleted\n")
					return nil
				},
			},
			{
				Name:  "clean",
				Usage: "delete every boot entry above the reserved range",
				Flags: workflowFlags,
				Action: func(c *cli.Context) error {
					if err := utils.RequireRoot(); err != nil {
						return err
					}
					if !nvram.Supported() {
						return constants.ErrNoEFI
					}
					if nvram.SecureBootEnabled() {
						utils.Log.Warn().Msg("secure boot is enabled, firmware may recreate deleted entries")
					}
					table, err := nvram.List()
					if err != nil {
						return err
					}
					removable := table.Removable()
					if len(removable) == 0 {
						utils.Log.Info().Msg("no removable boot entries")
						return nil
					}
					for _, e := range removable {
						fmt.Fprintf(c.App.Writer, "will delete %s  %s\n", e.Name(), e.Description)
					}
					if c.Bool("dry-run") {
						return nil
					}
					if err := utils.Confirm(c.App.Reader, c.App.Writer, constants.ConfirmNvram, c.Bool("yes")); err != nil {
						return err
					}
					deleted, err := nvram.Clean()
					utils.Log.Info().Int("deleted", len(deleted)).Msg("nvram clean finished")
					return err
				},
			},
		},
	},
	{
		Name:  "sdcard",
		Usage: "microSD management",
		Subcommands: []*cli.Command{
			{
				Name:  "reimage",
				Usage: "write a pristine image back onto the microSD",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "image",
						Required: true,
						Usage:    "raw image file to write",
					},
					&cli.StringFlag{
						Name:  "device",
						Value: constants.SDCardDevice,
						Usage: "microSD block device",
					},
				}, workflowFlags...),
				Action: func(c *cli.Context) error {
					s := provision.NewState()
					s.Image = c.String("image")
					s.SDCardDevice = c.String("device")
					return runGraph(c, s, s.RegisterNodeReset)
				},
			},
		},
	},
	{
		Name:  "kubernetes",
		Usage: "node-side Kubernetes install chain",
		Subcommands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "bootstrap the first control plane node",
				Flags:  initFlags,
				Action: controlPlaneAction,
			},
			{
				Name:   "join",
				Usage:  "join this node to an existing cluster",
				Flags:  joinFlags,
				Action: workerAction,
			},
			{
				Name:  "install",
				Usage: "install the Kubernetes packages and runtime settings only",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "package-version", Usage: "apt version pin for kubelet/kubeadm/kubectl"},
				}, workflowFlags...),
				Action: func(c *cli.Context) error {
					s := provision.NewState()
					s.PackageVersion = c.String("package-version")
					return runGraph(c, s, s.RegisterInstall)
				},
			},
			{
				Name:  "reset",
				Usage: "tear down the node's Kubernetes state",
				Flags: workflowFlags,
				Action: func(c *cli.Context) error {
					if err := utils.RequireRoot(); err != nil {
						return err
					}
					if c.Bool("dry-run") {
						fmt.Fprintln(c.App.Writer, "would run: kubeadm reset -f and clear CNI configuration")
						return nil
					}
					if err := utils.Confirm(c.App.Reader, c.App.Writer, constants.ConfirmKubeReset, c.Bool("yes")); err != nil {
						return err
					}
					return kubernetes.Reset()
				},
			},
		},
	},
	{
		Name:  "provision",
		Usage: "end-to-end node provisioning by role",
		Subcommands: []*cli.Command{
			{
				Name:   "controlplane",
				Usage:  "turn this node into the first control plane",
				Flags:  initFlags,
				Action: controlPlaneAction,
			},
			{
				Name:   "worker",
				Usage:  "turn this node into a worker of an existing cluster",
				Flags:  joinFlags,
				Action: workerAction,
			},
		},
	},
	{
		Name:  "pki",
		Usage: "cluster CA and service certificates",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Value: constants.PKIDir,
				Usage: "directory holding the CA and issued certificates",
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create the cluster CA",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "cn", Value: "edge-cluster-ca", Usage: "CA common name"},
				},
				Action: func(c *cli.Context) error {
					ca := pki.New(vfs.OSFS, c.String("dir"))
					return ca.Init(c.String("cn"))
				},
			},
			{
				Name:      "issue",
				Usage:     "issue a certificate for a service",
				ArgsUsage: "<service>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "san", Usage: "extra SAN (hostname or IP), repeatable"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("expected exactly one service name")
					}
					ca := pki.New(vfs.OSFS, c.String("dir"))
					return ca.Issue(c.Args().First(), c.StringSlice("san"))
				},
			},
			{
				Name:      "distribute",
				Usage:     "copy a service certificate and the CA to a node over ssh",
				ArgsUsage: "<service>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "host", Required: true},
					&cli.StringFlag{Name: "user", Value: "root"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("expected exactly one service name")
					}
					ca := pki.New(vfs.OSFS, c.String("dir"))
					target := pki.Target{Host: c.String("host"), User: c.String("user")}
					return ca.Distribute(target, c.Args().First())
				},
			},
		},
	},
	{
		Name:  "registry",
		Usage: "cluster-local container registry",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "start the registry container",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "port", Value: constants.RegistryPort},
					&cli.StringFlag{Name: "cert", Usage: "TLS certificate served by the registry"},
					&cli.StringFlag{Name: "key", Usage: "TLS key served by the registry"},
				},
				Action: func(c *cli.Context) error {
					return registry.Up(registry.Options{
						Port:     c.Int("port"),
						CertFile: c.String("cert"),
						KeyFile:  c.String("key"),
					})
				},
			},
			{
				Name:      "trust",
				Usage:     "allow the local docker daemon to pull from an insecure registry",
				ArgsUsage: "<host:port>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("expected exactly one host:port argument")
					}
					if err := utils.RequireRoot(); err != nil {
						return err
					}
					changed, err := registry.EnsureInsecureRegistry(vfs.OSFS, constants.DockerDaemonJSON, c.Args().First())
					if err != nil {
						return err
					}
					if !changed {
						utils.Log.Info().Msg("daemon.json already trusts the registry")
						return nil
					}
					return registry.RestartDocker()
				},
			},
		},
	},
	{
		Name:  "addons",
		Usage: "install cluster addons from Helm charts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "kubeconfig",
				Value: constants.AdminKubeconfig,
			},
			&cli.StringFlag{
				Name:  "pod-subnet",
				Value: "10.244.0.0/16",
				Usage: "pod CIDR handed to the CNI addon",
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list the addons this tool knows",
				Action: func(c *cli.Context) error {
					for _, name := range addons.Names() {
						fmt.Fprintln(c.App.Writer, name)
					}
					return nil
				},
			},
			{
				Name:      "install",
				Usage:     "install or upgrade an addon",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("expected exactly one addon name")
					}
					rel, err := addons.Lookup(c.Args().First(), c.String("pod-subnet"))
					if err != nil {
						return err
					}
					client := addons.NewClient(c.String("kubeconfig"))
					return client.InstallOrUpgrade(c.Context, rel)
				},
			},
		},
	},
}
