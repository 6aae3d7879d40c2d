package utils

import (
	"github.com/edgeforge/nodeforge/internal/constants"
	"github.com/mudler/yip/pkg/console"
	"github.com/mudler/yip/pkg/executor"
	"github.com/twpayne/go-vfs/v4"
)

// RunStage executes the operator-supplied yip stage from StagesDir. Sites
// that used to patch the shell runbooks drop their tweaks there instead; the
// workflows expose <name>.before and <name>.after hook points.
func RunStage(stage string) error {
	y := executor.NewExecutor()
	return y.Run(stage, vfs.OSFS, console.NewStandardConsole(), constants.StagesDir)
}
