package provision

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spectrocloud-labs/herd"
	"github.com/twpayne/go-vfs/v4"

	cnst "github.com/edgeforge/nodeforge/internal/constants"
	"github.com/edgeforge/nodeforge/internal/utils"
	"github.com/edgeforge/nodeforge/pkg/bootloader"
	"github.com/edgeforge/nodeforge/pkg/hardware"
	"github.com/edgeforge/nodeforge/pkg/imaging"
	"github.com/edgeforge/nodeforge/pkg/kubernetes"
)

// PreflightDagStep checks root and every external tool the listed ops shell
// out to. Failures are aggregated so the operator sees the whole list at
// once, before anything runs.
func (s *State) PreflightDagStep(g *herd.Graph, ops ...string) error {
	return g.Add(cnst.OpPreflight, herd.WithCallback(
		func(_ context.Context) error {
			var result *multierror.Error
			if err := utils.RequireRoot(); err != nil {
				result = multierror.Append(result, err)
			}
			for _, tool := range cnst.PreflightTools(ops...) {
				if !utils.CommandExists(tool) {
					result = multierror.Append(result, fmt.Errorf("required tool %s not found in PATH", tool))
				}
			}
			return result.ErrorOrNil()
		},
	))
}

// ConfirmDagStep gates the workflow on the operator typing the phrase.
func (s *State) ConfirmDagStep(g *herd.Graph, phrase string, opts ...herd.OpOption) error {
	return g.Add(cnst.OpConfirm, append(opts, herd.WithCallback(
		func(_ context.Context) error {
			return utils.Confirm(s.In, s.Out, phrase, s.AssumeYes)
		},
	))...)
}

// StageDagStep runs the site customization hooks for the named stage.
func (s *State) StageDagStep(g *herd.Graph, opName, stage string, opts ...herd.OpOption) error {
	return g.Add(opName, append(opts, herd.WithCallback(
		func(_ context.Context) error {
			return utils.RunStage(stage)
		},
	))...)
}

// PartitionTargetDagStep wipes the target disk with a single-partition GPT
// label. Refuses the disk we are running from and disks with mounts.
func (s *State) PartitionTargetDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpPartitionTarget, append(opts, herd.WithCallback(
		func(_ context.Context) error {
			if err := imaging.GuardNotRootDisk(s.TargetDisk); err != nil {
				return err
			}
			if err := imaging.GuardNotMounted(s.TargetDisk); err != nil {
				return err
			}
			return imaging.PartitionDisk(s.TargetDisk)
		},
	))...)
}

func (s *State) FormatTargetDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpFormatTarget, append(opts, herd.WithCallback(
		func(_ context.Context) error {
			return imaging.Format(s.TargetPartition)
		},
	))...)
}

func (s *State) MountTargetDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpMountTarget, append(opts, herd.WithCallback(
		func(_ context.Context) error {
			return imaging.MountTarget(s.TargetPartition, s.Mountpoint)
		},
	))...)
}

func (s *State) CloneRootfsDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpCloneRootfs, append(opts, herd.WithCallback(
		func(_ context.Context) error {
			return imaging.CloneRootfs("/", s.Mountpoint)
		},
	))...)
}

// WriteFstabDagStep points the clone's fstab at the new partition by UUID.
func (s *State) WriteFstabDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpWriteFstab, append(opts, herd.WithCallback(
		func(_ context.Context) error {
			id, err := hardware.FilesystemUUID(s.TargetPartition)
			if err != nil {
				return err
			}
			path := filepath.Join(s.Mountpoint, "etc/fstab")
			return bootloader.RewriteFstabRoot(vfs.OSFS, path, "UUID="+id)
		},
	))...)
}

// RewriteBootDagStep flips root= in extlinux.conf on the live /boot, so the
// next boot mounts the clone. Idempotent, a second run is a no-op.
func (s *State) RewriteBootDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpRewriteBoot, append(opts, herd.WithCallback(
		func(_ context.Context) error {
			raw, err := hardware.FilesystemUUID(s.TargetPartition)
			if err != nil {
				return err
			}
			id, err := uuid.FromString(raw)
			if err != nil {
				return fmt.Errorf("%s has no valid filesystem UUID: %w", s.TargetPartition, err)
			}
			changed, err := bootloader.NewDefault().SetRootUUID(id)
			if err != nil {
				return err
			}
			if !changed {
				utils.Log.Info().Str("uuid", raw).Msg("extlinux.conf already points at target")
			}
			return nil
		},
	))...)
}

func (s *State) FlushTargetDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpFlushTarget, append(opts, herd.WithCallback(
		func(_ context.Context) error {
			if err := imaging.UnmountTarget(s.Mountpoint); err != nil {
				return err
			}
			utils.Sync()
			return nil
		},
	))...)
}

// NextStepsDagStep tells the operator what to do after the tool exits. The
// workflows deliberately stop short of rebooting the board themselves.
func (s *State) NextStepsDagStep(g *herd.Graph, lines []string, opts ...herd.OpOption) error {
	return g.Add(cnst.OpNextSteps, append(opts, herd.WithCallback(
		func(_ context.Context) error {
			fmt.Fprintln(s.Out)
			fmt.Fprintln(s.Out, "Next steps:")
			for _, l := range lines {
				fmt.Fprintf(s.Out, "  - %s\n", l)
			}
			return nil
		},
	))...)
}

// UnmountSDCardDagStep unmounts everything on the microSD so it can be
// written as a raw device.
func (s *State) UnmountSDCardDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpUnmountSDCard, append(opts, herd.WithCallback(
		func(_ context.Context) error {
			disk, err := hardware.FindDisk(s.SDCardDevice)
			if err != nil {
				return err
			}
			for _, p := range disk.Partitions {
				if p.MountPoint == "" {
					continue
				}
				utils.Log.Info().Str("partition", p.Name).Str("mountpoint", p.MountPoint).Msg("unmounting")
				if err := imaging.UnmountTarget(p.MountPoint); err != nil {
					return err
				}
			}
			return nil
		},
	))...)
}

func (s *State) ReimageSDCardDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpReimageSDCard, append(opts, herd.WithCallback(
		func(_ context.Context) error {
			return imaging.Reimage(s.Image, s.SDCardDevice)
		},
	))...)
}

func (s *State) InstallPackagesDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpInstallPackages, append(opts, herd.WithCallback(
		func(_ context.Context) error {
			if err := kubernetes.UpdateIndex(); err != nil {
				return err
			}
			return kubernetes.InstallPackages(s.PackageVersion)
		},
	))...)
}

func (s *State) ConfigureRuntimeDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpConfigureRuntime, append(opts, herd.WithCallback(
		func(_ context.Context) error {
			return kubernetes.PrepareRuntime(vfs.OSFS)
		},
	))...)
}

func (s *State) KubeadmInitDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpKubeadmInit, append(opts, herd.WithCallback(
		func(_ context.Context) error {
			return kubernetes.Init(s.Init)
		},
	))...)
}

func (s *State) KubeadmJoinDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpKubeadmJoin, append(opts, herd.WithCallback(
		func(_ context.Context) error {
			if err := s.Join.Validate(); err != nil {
				return err
			}
			return kubernetes.Join(s.Join)
		},
	))...)
}

// InstallKubeconfigDagStep copies admin.conf into the invoking user's home,
// resolving through sudo so the file lands owned by the operator.
func (s *State) InstallKubeconfigDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpInstallKubeconfig, append(opts, herd.WithCallback(
		func(_ context.Context) error {
			home, uid, gid := kubernetes.SudoUser()
			return kubernetes.InstallKubeconfig(vfs.OSFS, home, uid, gid)
		},
	))...)
}

func (s *State) WaitNodeReadyDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpWaitNodeReady, append(opts, herd.WithCallback(
		func(ctx context.Context) error {
			name := s.Init.NodeName
			if name == "" {
				name = kubernetes.DefaultNodeName()
			}
			return kubernetes.WaitNodeReady(ctx, cnst.AdminKubeconfig, name, s.WaitTimeout)
		},
	))...)
}
