package addons

import (
	"fmt"
	"sort"
)

// Catalog holds the addons this tool knows how to install, with values tuned
// for the arm64 boards the clusters run on.
func Catalog(podCIDR string) map[string]Release {
	return map[string]Release{
		"flannel": {
			Name:      "flannel",
			Namespace: "kube-flannel",
			Chart:     "flannel",
			RepoURL:   "https://flannel-io.github.io/flannel/",
			Values: map[string]interface{}{
				"podCidr": podCIDR,
			},
			Wait: true,
		},
		"cert-manager": {
			Name:      "cert-manager",
			Namespace: "cert-manager",
			Chart:     "cert-manager",
			RepoURL:   "https://charts.jetstack.io",
			Values: map[string]interface{}{
				"installCRDs": true,
			},
			Wait: true,
		},
		"ingress-nginx": {
			Name:      "ingress-nginx",
			Namespace: "ingress-nginx",
			Chart:     "ingress-nginx",
			RepoURL:   "https://kubernetes.github.io/ingress-nginx",
			Values: map[string]interface{}{
				// No cloud load balancer on bare metal boards.
				"controller": map[string]interface{}{
					"service": map[string]interface{}{
						"type": "NodePort",
					},
				},
			},
		},
		"metrics-server": {
			Name:      "metrics-server",
			Namespace: "kube-system",
			Chart:     "metrics-server",
			RepoURL:   "https://kubernetes-sigs.github.io/metrics-server/",
			Values: map[string]interface{}{
				// kubeadm kubelets serve self-signed certs.
				"args": []interface{}{"--kubelet-insecure-tls"},
			},
		},
	}
}

// Lookup resolves an addon by name from the catalog.
func Lookup(name, podCIDR string) (Release, error) {
	catalog := Catalog(podCIDR)
	rel, ok := catalog[name]
	if !ok {
		return Release{}, fmt.Errorf("unknown addon %q, known: %v", name, Names())
	}
	return rel, nil
}

// Names lists the catalog in stable order.
func Names() []string {
	catalog := Catalog("")
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
