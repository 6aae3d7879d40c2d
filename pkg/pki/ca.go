// Package pki wraps openssl for the cluster's private CA and the per-service
// certificates, and pushes them to nodes over ssh. The crypto stays in
// openssl; this package owns naming, SAN rendering and distribution.
package pki

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/edgeforge/nodeforge/internal/utils"
	"github.com/twpayne/go-vfs/v4"
)

var run = utils.RunTool

// CA manages a directory of PEM files: ca.key/ca.crt plus
// <service>.key/<service>.crt pairs.
type CA struct {
	fs  vfs.FS
	dir string
}

func New(fsys vfs.FS, dir string) *CA {
	return &CA{fs: fsys, dir: dir}
}

func (c *CA) path(name string) string { return filepath.Join(c.dir, name) }

func (c *CA) CertPath() string { return c.path("ca.crt") }
func (c *CA) KeyPath() string  { return c.path("ca.key") }

// Exists reports whether CA material is already on disk.
func (c *CA) Exists() bool {
	_, errCrt := c.fs.Stat(c.CertPath())
	_, errKey := c.fs.Stat(c.KeyPath())
	return errCrt == nil && errKey == nil
}

// Init creates the CA key and a self-signed root valid for ten years.
// An existing CA is never overwritten.
func (c *CA) Init(commonName string) error {
	if c.Exists() {
		return fmt.Errorf("CA already present in %s", c.dir)
	}
	if err := vfs.MkdirAll(c.fs, c.dir, 0o700); err != nil {
		return err
	}
	if out, err := run("openssl", "genrsa", "-out", c.KeyPath(), "4096"); err != nil {
		return fmt.Errorf("openssl genrsa: %w: %s", err, strings.TrimSpace(out))
	}
	if out, err := run("openssl", "req", "-x509", "-new", "-nodes",
		"-key", c.KeyPath(), "-sha256", "-days", "3650",
		"-subj", "/CN="+commonName, "-out", c.CertPath()); err != nil {
		return fmt.Errorf("openssl req -x509: %w: %s", err, strings.TrimSpace(out))
	}
	utils.Log.Info().Str("cn", commonName).Str("dir", c.dir).Msg("CA initialized")
	return nil
}

// SANConfig renders the openssl extension line for a leaf certificate.
// IPs become IP: entries, everything else DNS:.
func SANConfig(sans []string) string {
	parts := make([]string, 0, len(sans))
	for _, s := range sans {
		if net.ParseIP(s) != nil {
			parts = append(parts, "IP:"+s)
		} else {
			parts = append(parts, "DNS:"+s)
		}
	}
	return "subjectAltName = " + strings.Join(parts, ",") + "\n"
}

// Issue creates <service>.key and <service>.crt signed by the CA. The
// service name is always included as a DNS SAN.
func (c *CA) Issue(service string, sans []string) error {
	if !c.Exists() {
		return fmt.Errorf("no CA in %s, run pki init first", c.dir)
	}

	hasName := false
	for _, s := range sans {
		if s == service {
			hasName = true
		}
	}
	if !hasName {
		sans = append([]string{service}, sans...)
	}

	key := c.path(service + ".key")
	csr := c.path(service + ".csr")
	crt := c.path(service + ".crt")
	ext := c.path(service + ".ext")

	if out, err := run("openssl", "genrsa", "-out", key, "2048"); err != nil {
		return fmt.Errorf("openssl genrsa: %w: %s", err, strings.TrimSpace(out))
	}
	if out, err := run("openssl", "req", "-new", "-key", key,
		"-subj", "/CN="+service, "-out", csr); err != nil {
		return fmt.Errorf("openssl req: %w: %s", err, strings.TrimSpace(out))
	}
	if err := c.fs.WriteFile(ext, []byte(SANConfig(sans)), 0o600); err != nil {
		return err
	}
	defer func() {
		_ = c.fs.Remove(csr)
		_ = c.fs.Remove(ext)
	}()

	if out, err := run("openssl", "x509", "-req", "-in", csr,
		"-CA", c.CertPath(), "-CAkey", c.KeyPath(), "-CAcreateserial",
		"-out", crt, "-days", "825", "-sha256", "-extfile", ext); err != nil {
		return fmt.Errorf("openssl x509: %w: %s", err, strings.TrimSpace(out))
	}

	if out, err := run("openssl", "verify", "-CAfile", c.CertPath(), crt); err != nil {
		return fmt.Errorf("issued certificate does not verify: %w: %s", err, strings.TrimSpace(out))
	}
	utils.Log.Info().Str("service", service).Strs("sans", sans).Msg("certificate issued")
	return nil
}
