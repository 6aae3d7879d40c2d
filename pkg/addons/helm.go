// Package addons installs cluster addons from Helm charts using the Helm SDK
// directly, so no helm binary is needed on the node.
package addons

import (
	"context"
	"errors"
	"fmt"
	"time"

	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/kube"
	"helm.sh/helm/v3/pkg/storage/driver"

	"github.com/edgeforge/nodeforge/internal/utils"
)

// Release describes a chart to install and where to put it.
type Release struct {
	Name      string
	Namespace string
	Chart     string
	RepoURL   string
	Version   string
	Values    map[string]interface{}

	Wait    bool
	Timeout time.Duration
}

// Client drives Helm against one kubeconfig.
type Client struct {
	kubeconfig string
	settings   *cli.EnvSettings
}

func NewClient(kubeconfig string) *Client {
	return &Client{kubeconfig: kubeconfig, settings: cli.New()}
}

func (c *Client) actionConfig(namespace string) (*action.Configuration, error) {
	cfg := new(action.Configuration)
	getter := kube.GetConfig(c.kubeconfig, "", namespace)
	logFn := func(format string, v ...interface{}) {
		utils.Log.Debug().Msgf(format, v...)
	}
	if err := cfg.Init(getter, namespace, "secret", logFn); err != nil {
		return nil, fmt.Errorf("initializing helm for namespace %s: %w", namespace, err)
	}
	return cfg, nil
}

// InstallOrUpgrade installs the release, or upgrades it when it already
// exists. Charts are pulled from the release's RepoURL.
func (c *Client) InstallOrUpgrade(ctx context.Context, rel Release) error {
	if rel.Timeout == 0 {
		rel.Timeout = 5 * time.Minute
	}

	cfg, err := c.actionConfig(rel.Namespace)
	if err != nil {
		return err
	}

	history := action.NewHistory(cfg)
	history.Max = 1
	_, err = history.Run(rel.Name)
	switch {
	case errors.Is(err, driver.ErrReleaseNotFound):
		return c.install(ctx, cfg, rel)
	case err != nil:
		return fmt.Errorf("querying release %s: %w", rel.Name, err)
	default:
		return c.upgrade(ctx, cfg, rel)
	}
}

func (c *Client) install(ctx context.Context, cfg *action.Configuration, rel Release) error {
	install := action.NewInstall(cfg)
	install.ReleaseName = rel.Name
	install.Namespace = rel.Namespace
	install.CreateNamespace = true
	install.Wait = rel.Wait
	install.Timeout = rel.Timeout
	install.ChartPathOptions.RepoURL = rel.RepoURL
	install.ChartPathOptions.Version = rel.Version

	path, err := install.ChartPathOptions.LocateChart(rel.Chart, c.settings)
	if err != nil {
		return fmt.Errorf("locating chart %s: %w", rel.Chart, err)
	}
	chart, err := loader.Load(path)
	if err != nil {
		return fmt.Errorf("loading chart %s: %w", path, err)
	}

	utils.Log.Info().Str("release", rel.Name).Str("chart", rel.Chart).Str("version", rel.Version).Msg("installing addon")
	if _, err := install.RunWithContext(ctx, chart, rel.Values); err != nil {
		return fmt.Errorf("installing %s: %w", rel.Name, err)
	}
	return nil
}

func (c *Client) upgrade(ctx context.Context, cfg *action.Configuration, rel Release) error {
	upgrade := action.NewUpgrade(cfg)
	upgrade.Namespace = rel.Namespace
	upgrade.Wait = rel.Wait
	upgrade.Timeout = rel.Timeout
	upgrade.ChartPathOptions.RepoURL = rel.RepoURL
	upgrade.ChartPathOptions.Version = rel.Version

	path, err := upgrade.ChartPathOptions.LocateChart(rel.Chart, c.settings)
	if err != nil {
		return fmt.Errorf("locating chart %s: %w", rel.Chart, err)
	}
	chart, err := loader.Load(path)
	if err != nil {
		return fmt.Errorf("loading chart %s: %w", path, err)
	}

	utils.Log.Info().Str("release", rel.Name).Str("chart", rel.Chart).Str("version", rel.Version).Msg("upgrading addon")
	if _, err := upgrade.RunWithContext(ctx, rel.Name, chart, rel.Values); err != nil {
		return fmt.Errorf("upgrading %s: %w", rel.Name, err)
	}
	return nil
}

// Uninstall removes the release. Missing releases are not an error.
func (c *Client) Uninstall(rel Release) error {
	cfg, err := c.actionConfig(rel.Namespace)
	if err != nil {
		return err
	}
	uninstall := action.NewUninstall(cfg)
	_, err = uninstall.Run(rel.Name)
	if errors.Is(err, driver.ErrReleaseNotFound) {
		return nil
	}
	return err
}
