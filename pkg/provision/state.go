// Package provision sequences the node workflows as herd DAGs. Each workflow
// (boot migration, node reset, control plane, worker) registers its steps on
// a graph; steps shell out to the privileged tools through the lower
// packages and never half-apply.
package provision

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/edgeforge/nodeforge/internal/constants"
	"github.com/edgeforge/nodeforge/internal/utils"
	"github.com/edgeforge/nodeforge/pkg/kubernetes"
	"github.com/spectrocloud-labs/herd"
)

type State struct {
	TargetDisk      string // disk that receives the cloned rootfs, e.g. /dev/nvme0n1
	TargetPartition string // partition created on it, e.g. /dev/nvme0n1p1
	SDCardDevice    string // e.g. /dev/mmcblk0
	Mountpoint      string // where the clone target gets mounted
	Image           string // raw image written back during a reset

	PackageVersion string // apt version pin for kubelet/kubeadm/kubectl
	Init           kubernetes.InitOptions
	Join           kubernetes.JoinOptions
	WaitTimeout    time.Duration

	// Confirmation plumbing. AssumeYes skips the typed phrase, for automation.
	AssumeYes bool
	In        io.Reader
	Out       io.Writer
}

func NewState() *State {
	return &State{
		TargetDisk:      constants.SSDDevice,
		TargetPartition: constants.SSDPartition,
		SDCardDevice:    constants.SDCardDevice,
		Mountpoint:      constants.CloneMountpoint,
		WaitTimeout:     10 * time.Minute,
		In:              os.Stdin,
		Out:             os.Stdout,
	}
}

// WriteDAG renders the graph layers for --dry-run and post-run reporting.
func (s *State) WriteDAG(g *herd.Graph) (out string) {
	for i, layer := range g.Analyze() {
		out += fmt.Sprintf("%d.\n", i+1)
		for _, op := range layer {
			if op.Error != nil {
				out += fmt.Sprintf(" <%s> (error: %s) (weak: %t) (run: %t)\n", op.Name, op.Error.Error(), op.WeakDeps, op.Executed)
			} else {
				out += fmt.Sprintf(" <%s> (weak: %t) (run: %t)\n", op.Name, op.WeakDeps, op.Executed)
			}
		}
	}
	return
}

// LogIfError will log if there is an error with the given context as message.
// Context can be empty.
func (s *State) LogIfError(e error, msgContext string) {
	if e != nil {
		utils.Log.Err(e).Msg(msgContext)
	}
}

// LogIfErrorAndReturn will log if there is an error with the given context as
// message, and return the error.
func (s *State) LogIfErrorAndReturn(e error, msgContext string) error {
	if e != nil {
		utils.Log.Err(e).Msg(msgContext)
	}
	return e
}
