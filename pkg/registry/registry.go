// Package registry runs the cluster-local Docker registry the boards pull
// images from, and teaches the docker daemons to talk to it.
package registry

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/edgeforge/nodeforge/internal/constants"
	"github.com/edgeforge/nodeforge/internal/utils"
)

var run = utils.RunTool

// Options parameterize the registry container.
type Options struct {
	Name  string
	Image string
	Port  int

	// Optional TLS material served by the registry itself.
	CertFile string
	KeyFile  string
}

func (o *Options) withDefaults() {
	if o.Name == "" {
		o.Name = constants.RegistryName
	}
	if o.Image == "" {
		o.Image = constants.RegistryImage
	}
	if o.Port == 0 {
		o.Port = constants.RegistryPort
	}
}

// containerState classifies the named container as running, stopped or
// absent. docker inspect fails on unknown names.
func containerState(name string) string {
	out, err := run("docker", "inspect", "--format", "{{.State.Running}}", name)
	if err != nil {
		return "absent"
	}
	if strings.TrimSpace(out) == "true" {
		return "running"
	}
	return "stopped"
}

// Running reports whether the named container is currently running.
func Running(name string) bool {
	return containerState(name) == "running"
}

// Up starts the registry container. Idempotent: a running registry is left
// alone and a stopped one is restarted instead of colliding on the name.
func Up(o Options) error {
	o.withDefaults()
	switch containerState(o.Name) {
	case "running":
		utils.Log.Info().Str("name", o.Name).Msg("registry already running")
		return nil
	case "stopped":
		out, err := run("docker", "start", o.Name)
		if err != nil {
			return fmt.Errorf("docker start %s: %w: %s", o.Name, err, strings.TrimSpace(out))
		}
		utils.Log.Info().Str("name", o.Name).Msg("registry restarted")
		return nil
	}

	args := []string{"run", "-d", "--restart=always",
		"--name", o.Name,
		"-p", fmt.Sprintf("%d:5000", o.Port),
	}
	if o.CertFile != "" && o.KeyFile != "" {
		dir := filepath.Dir(o.CertFile)
		args = append(args,
			"-v", dir+":/certs:ro",
			"-e", "REGISTRY_HTTP_TLS_CERTIFICATE=/certs/"+filepath.Base(o.CertFile),
			"-e", "REGISTRY_HTTP_TLS_KEY=/certs/"+filepath.Base(o.KeyFile),
		)
	}
	args = append(args, o.Image)

	out, err := run("docker", args...)
	if err != nil {
		return fmt.Errorf("docker run: %w: %s", err, strings.TrimSpace(out))
	}
	utils.Log.Info().Str("name", o.Name).Int("port", o.Port).Msg("registry started")
	return nil
}

// RestartDocker reloads the daemon after a daemon.json edit.
func RestartDocker() error {
	out, err := run("systemctl", "restart", "docker")
	if err != nil {
		return fmt.Errorf("restarting docker: %w: %s", err, strings.TrimSpace(out))
	}
	return nil
}
