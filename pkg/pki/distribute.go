package pki

import (
	"fmt"
	"strings"
)

// Target is a remote node reachable over ssh.
type Target struct {
	Host string
	User string
}

func (t Target) addr() string {
	user := t.User
	if user == "" {
		user = "root"
	}
	return user + "@" + t.Host
}

// Distribute copies the service cert/key pair plus ca.crt to the target and
// installs the CA into the system trust store there. docker is restarted so
// the daemon picks up the trust change.
func (c *CA) Distribute(t Target, service string) error {
	files := []string{
		c.path(service + ".crt"),
		c.path(service + ".key"),
		c.CertPath(),
	}
	for _, f := range files {
		if _, err := c.fs.Stat(f); err != nil {
			return fmt.Errorf("missing %s: %w", f, err)
		}
	}

	scpArgs := append(files, t.addr()+":/tmp/")
	if out, err := run("scp", scpArgs...); err != nil {
		return fmt.Errorf("scp to %s: %w: %s", t.Host, err, strings.TrimSpace(out))
	}

	remote := strings.Join([]string{
		"install -m 0644 /tmp/ca.crt /usr/local/share/ca-certificates/" + service + "-ca.crt",
		"update-ca-certificates",
		"systemctl restart docker",
	}, " && ")
	if out, err := run("ssh", t.addr(), remote); err != nil {
		return fmt.Errorf("ssh %s: %w: %s", t.Host, err, strings.TrimSpace(out))
	}
	return nil
}
