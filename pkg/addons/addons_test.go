package addons_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/edgeforge/nodeforge/pkg/addons"
)

var _ = Describe("addon catalog", func() {
	It("lists the known addons in stable order", func() {
		Expect(addons.Names()).To(Equal([]string{"cert-manager", "flannel", "ingress-nginx", "metrics-server"}))
	})

	It("hands the pod CIDR to the CNI addon", func() {
		rel, err := addons.Lookup("flannel", "10.244.0.0/16")
		Expect(err).ToNot(HaveOccurred())
		Expect(rel.Values).To(HaveKeyWithValue("podCidr", "10.244.0.0/16"))
		Expect(rel.Namespace).To(Equal("kube-flannel"))
	})

	It("pins every addon to a chart repository", func() {
		for _, name := range addons.Names() {
			rel, err := addons.Lookup(name, "10.244.0.0/16")
			Expect(err).ToNot(HaveOccurred())
			Expect(rel.RepoURL).To(HavePrefix("https://"), name)
			Expect(rel.Chart).ToNot(BeEmpty(), name)
			Expect(rel.Namespace).ToNot(BeEmpty(), name)
		}
	})

	It("rejects unknown addons with the known names", func() {
		_, err := addons.Lookup("istio", "")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("cert-manager"))
	})
})
