package kubernetes

import (
	"bytes"
	"io"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/twpayne/go-vfs/v4"
	"github.com/twpayne/go-vfs/v4/vfst"
	"gopkg.in/yaml.v3"

	"github.com/edgeforge/nodeforge/internal/utils"
)

func decodeDocs(data []byte) []map[string]interface{} {
	var docs []map[string]interface{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		doc := map[string]interface{}{}
		err := dec.Decode(&doc)
		if err == io.EOF {
			break
		}
		Expect(err).ToNot(HaveOccurred())
		docs = append(docs, doc)
	}
	return docs
}

var _ = Describe("kubeadm configuration", func() {
	It("renders init and cluster documents", func() {
		cfg, err := RenderInitConfig(InitOptions{
			ClusterName:      "edge",
			NodeName:         "node-a",
			AdvertiseAddress: "192.168.7.10",
		})
		Expect(err).ToNot(HaveOccurred())

		docs := decodeDocs(cfg)
		Expect(docs).To(HaveLen(2))

		Expect(docs[0]["kind"]).To(Equal("InitConfiguration"))
		reg := docs[0]["nodeRegistration"].(map[string]interface{})
		Expect(reg["name"]).To(Equal("node-a"))
		Expect(reg["criSocket"]).To(Equal("unix:///run/containerd/containerd.sock"))
		endpoint := docs[0]["localAPIEndpoint"].(map[string]interface{})
		Expect(endpoint["advertiseAddress"]).To(Equal("192.168.7.10"))

		Expect(docs[1]["kind"]).To(Equal("ClusterConfiguration"))
		Expect(docs[1]["clusterName"]).To(Equal("edge"))
		networking := docs[1]["networking"].(map[string]interface{})
		Expect(networking["podSubnet"]).To(Equal("10.244.0.0/16"))
		Expect(networking["serviceSubnet"]).To(Equal("10.96.0.0/12"))
	})

	It("omits the API endpoint and version unless given", func() {
		cfg, err := RenderInitConfig(InitOptions{})
		Expect(err).ToNot(HaveOccurred())
		docs := decodeDocs(cfg)
		Expect(docs[0]).ToNot(HaveKey("localAPIEndpoint"))
		Expect(docs[1]).ToNot(HaveKey("kubernetesVersion"))
	})
})

var _ = Describe("kubeadm join", func() {
	Context("Validate", func() {
		It("requires endpoint, token and hash", func() {
			Expect(JoinOptions{}.Validate()).To(HaveOccurred())
			Expect(JoinOptions{Endpoint: "cp:6443", Token: "t"}.Validate()).To(HaveOccurred())
		})
		It("requires the sha256 prefix on the hash", func() {
			o := JoinOptions{Endpoint: "cp:6443", Token: "t", CAHash: "deadbeef"}
			Expect(o.Validate()).To(HaveOccurred())
			o.CAHash = "sha256:deadbeef"
			Expect(o.Validate()).To(Succeed())
		})
	})

	Context("JoinArgs", func() {
		It("builds the argument list", func() {
			args := JoinArgs(JoinOptions{
				Endpoint: "cp:6443",
				Token:    "abcdef.0123456789abcdef",
				CAHash:   "sha256:deadbeef",
			})
			Expect(args).To(Equal([]string{
				"join", "cp:6443",
				"--token", "abcdef.0123456789abcdef",
				"--discovery-token-ca-cert-hash", "sha256:deadbeef",
			}))
		})
		It("adds the node name when set", func() {
			args := JoinArgs(JoinOptions{Endpoint: "cp:6443", Token: "t", CAHash: "sha256:d", NodeName: "node-b"})
			Expect(args[len(args)-2:]).To(Equal([]string{"--node-name", "node-b"}))
		})
	})

	Context("Join", func() {
		var calls [][]string

		BeforeEach(func() {
			calls = nil
			run = func(name string, args ...string) (string, error) {
				calls = append(calls, append([]string{name}, args...))
				return "", nil
			}
		})
		AfterEach(func() {
			run = utils.RunTool
		})

		It("refuses invalid options before running anything", func() {
			Expect(Join(JoinOptions{})).To(HaveOccurred())
			Expect(calls).To(BeEmpty())
		})
		It("runs kubeadm join", func() {
			Expect(Join(JoinOptions{Endpoint: "cp:6443", Token: "t", CAHash: "sha256:d"})).To(Succeed())
			Expect(calls).To(HaveLen(1))
			Expect(calls[0][0]).To(Equal("kubeadm"))
			Expect(calls[0][1]).To(Equal("join"))
		})
	})
})

var _ = Describe("kubeconfig installation", func() {
	var fs vfs.FS
	var cleanup func()

	BeforeEach(func() {
		var err error
		fs, cleanup, err = vfst.NewTestFS(map[string]interface{}{
			"/etc/kubernetes/admin.conf": "apiVersion: v1\nkind: Config\n",
			"/home/operator/.profile":    "",
		})
		Expect(err).ToNot(HaveOccurred())
	})
	AfterEach(func() {
		cleanup()
	})

	It("copies admin.conf into the user's home", func() {
		Expect(InstallKubeconfig(fs, "/home/operator", os.Getuid(), os.Getgid())).To(Succeed())
		data, err := fs.ReadFile("/home/operator/.kube/config")
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("kind: Config"))

		info, err := fs.Stat("/home/operator/.kube/config")
		Expect(err).ToNot(HaveOccurred())
		Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
	})

	It("skips chown for negative ids", func() {
		Expect(InstallKubeconfig(fs, "/home/operator", -1, -1)).To(Succeed())
	})

	It("fails cleanly when admin.conf is missing", func() {
		Expect(fs.Remove("/etc/kubernetes/admin.conf")).To(Succeed())
		err := InstallKubeconfig(fs, "/home/operator", -1, -1)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("kubeadm init"))
	})
})
