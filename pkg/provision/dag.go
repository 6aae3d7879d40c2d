package provision

import (
	cnst "github.com/edgeforge/nodeforge/internal/constants"
	"github.com/spectrocloud-labs/herd"
)

// RegisterBootMigration builds the microSD to SSD migration graph: clone the
// running rootfs onto the target disk and point extlinux at it. Nothing is
// touched before the preflight and the typed confirmation pass.
func (s *State) RegisterBootMigration(g *herd.Graph) error {
	err := s.LogIfErrorAndReturn(s.PreflightDagStep(g,
		cnst.OpPartitionTarget, cnst.OpFormatTarget, cnst.OpCloneRootfs), "preflight")
	if err != nil {
		return err
	}

	s.LogIfError(s.ConfirmDagStep(g, cnst.ConfirmMigrate,
		herd.WithDeps(cnst.OpPreflight)), "confirm")
	s.LogIfError(s.StageDagStep(g, cnst.OpStageBefore, "migrate.before",
		herd.WithDeps(cnst.OpConfirm)), "before stage")

	s.LogIfError(s.PartitionTargetDagStep(g,
		herd.WithDeps(cnst.OpConfirm), herd.WithWeakDeps(cnst.OpStageBefore)), "partition target")
	s.LogIfError(s.FormatTargetDagStep(g,
		herd.WithDeps(cnst.OpPartitionTarget)), "format target")
	s.LogIfError(s.MountTargetDagStep(g,
		herd.WithDeps(cnst.OpFormatTarget)), "mount target")
	s.LogIfError(s.CloneRootfsDagStep(g,
		herd.WithDeps(cnst.OpMountTarget)), "clone rootfs")
	s.LogIfError(s.WriteFstabDagStep(g,
		herd.WithDeps(cnst.OpCloneRootfs)), "write fstab")
	s.LogIfError(s.RewriteBootDagStep(g,
		herd.WithDeps(cnst.OpWriteFstab)), "rewrite extlinux")
	s.LogIfError(s.FlushTargetDagStep(g,
		herd.WithDeps(cnst.OpRewriteBoot)), "flush target")

	s.LogIfError(s.StageDagStep(g, cnst.OpStageAfter, "migrate.after",
		herd.WithDeps(cnst.OpFlushTarget)), "after stage")
	return s.LogIfErrorAndReturn(s.NextStepsDagStep(g, []string{
		"reboot the board",
		"verify the new root with: findmnt /",
		"once stable, the microSD can be reimaged or removed",
	}, herd.WithDeps(cnst.OpFlushTarget), herd.WithWeakDeps(cnst.OpStageAfter)), "next steps")
}

// RegisterNodeReset builds the reset graph: write a pristine image back onto
// the microSD. The confirmation phrase for this one is deliberately scary.
func (s *State) RegisterNodeReset(g *herd.Graph) error {
	err := s.LogIfErrorAndReturn(s.PreflightDagStep(g, cnst.OpReimageSDCard), "preflight")
	if err != nil {
		return err
	}

	s.LogIfError(s.ConfirmDagStep(g, cnst.ConfirmReimage,
		herd.WithDeps(cnst.OpPreflight)), "confirm")
	s.LogIfError(s.UnmountSDCardDagStep(g,
		herd.WithDeps(cnst.OpConfirm)), "unmount sdcard")
	s.LogIfError(s.ReimageSDCardDagStep(g,
		herd.WithDeps(cnst.OpUnmountSDCard)), "reimage sdcard")

	return s.LogIfErrorAndReturn(s.NextStepsDagStep(g, []string{
		"move the microSD back to the board and power it on",
		"the board boots the factory image on first start",
	}, herd.WithDeps(cnst.OpReimageSDCard)), "next steps")
}

// RegisterControlPlane builds the first-node graph: packages, runtime
// settings, kubeadm init, kubeconfig for the operator, and a wait until the
// node reports Ready.
func (s *State) RegisterControlPlane(g *herd.Graph) error {
	err := s.LogIfErrorAndReturn(s.PreflightDagStep(g,
		cnst.OpInstallPackages, cnst.OpKubeadmInit), "preflight")
	if err != nil {
		return err
	}

	s.LogIfError(s.StageDagStep(g, cnst.OpStageBefore, "kubernetes.before",
		herd.WithDeps(cnst.OpPreflight)), "before stage")
	s.LogIfError(s.InstallPackagesDagStep(g,
		herd.WithDeps(cnst.OpPreflight), herd.WithWeakDeps(cnst.OpStageBefore)), "install packages")
	s.LogIfError(s.ConfigureRuntimeDagStep(g,
		herd.WithDeps(cnst.OpInstallPackages)), "configure runtime")
	s.LogIfError(s.KubeadmInitDagStep(g,
		herd.WithDeps(cnst.OpConfigureRuntime)), "kubeadm init")
	s.LogIfError(s.InstallKubeconfigDagStep(g,
		herd.WithDeps(cnst.OpKubeadmInit)), "install kubeconfig")
	s.LogIfError(s.WaitNodeReadyDagStep(g,
		herd.WithDeps(cnst.OpKubeadmInit)), "wait node ready")

	return s.LogIfErrorAndReturn(s.StageDagStep(g, cnst.OpStageAfter, "kubernetes.after",
		herd.WithDeps(cnst.OpWaitNodeReady)), "after stage")
}

// RegisterInstall builds the package-only graph: pinned Kubernetes tooling
// and runtime settings land on the node without touching cluster state.
func (s *State) RegisterInstall(g *herd.Graph) error {
	err := s.LogIfErrorAndReturn(s.PreflightDagStep(g, cnst.OpInstallPackages), "preflight")
	if err != nil {
		return err
	}

	s.LogIfError(s.StageDagStep(g, cnst.OpStageBefore, "kubernetes.before",
		herd.WithDeps(cnst.OpPreflight)), "before stage")
	s.LogIfError(s.InstallPackagesDagStep(g,
		herd.WithDeps(cnst.OpPreflight), herd.WithWeakDeps(cnst.OpStageBefore)), "install packages")

	return s.LogIfErrorAndReturn(s.ConfigureRuntimeDagStep(g,
		herd.WithDeps(cnst.OpInstallPackages)), "configure runtime")
}

// RegisterWorker builds the join graph for additional nodes.
func (s *State) RegisterWorker(g *herd.Graph) error {
	err := s.LogIfErrorAndReturn(s.PreflightDagStep(g,
		cnst.OpInstallPackages, cnst.OpKubeadmJoin), "preflight")
	if err != nil {
		return err
	}

	s.LogIfError(s.StageDagStep(g, cnst.OpStageBefore, "kubernetes.before",
		herd.WithDeps(cnst.OpPreflight)), "before stage")
	s.LogIfError(s.InstallPackagesDagStep(g,
		herd.WithDeps(cnst.OpPreflight), herd.WithWeakDeps(cnst.OpStageBefore)), "install packages")
	s.LogIfError(s.ConfigureRuntimeDagStep(g,
		herd.WithDeps(cnst.OpInstallPackages)), "configure runtime")

	return s.LogIfErrorAndReturn(s.KubeadmJoinDagStep(g,
		herd.WithDeps(cnst.OpConfigureRuntime)), "kubeadm join")
}
