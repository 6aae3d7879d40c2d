package utils_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/twpayne/go-vfs/v4"
	"github.com/twpayne/go-vfs/v4/vfst"

	"github.com/edgeforge/nodeforge/internal/constants"
	"github.com/edgeforge/nodeforge/internal/utils"
)

var _ = Describe("cmdline", func() {
	var fs vfs.FS
	var cleanup func()

	BeforeEach(func() {
		var err error
		fs, cleanup, err = vfst.NewTestFS(map[string]interface{}{
			"/proc/cmdline": "",
		})
		Expect(err).ToNot(HaveOccurred())
		fakeCmdline, err := fs.RawPath("/proc/cmdline")
		Expect(err).ToNot(HaveOccurred())
		Expect(os.Setenv("HOST_PROC_CMDLINE", fakeCmdline)).To(Succeed())
	})
	AfterEach(func() {
		Expect(os.Unsetenv("HOST_PROC_CMDLINE")).To(Succeed())
		cleanup()
	})

	Context("ReadCMDLineArg", func() {
		BeforeEach(func() {
			err := fs.WriteFile("/proc/cmdline", []byte("console=ttyTCU0,115200 root=/dev/mmcblk0p1 rw rootwait quiet empty=\n"), os.ModePerm)
			Expect(err).ToNot(HaveOccurred())
		})
		It("splits arguments from cmdline", func() {
			value := utils.ReadCMDLineArg("root=")
			Expect(len(value)).To(Equal(1))
			Expect(value[0]).To(Equal("/dev/mmcblk0p1"))
			value = utils.ReadCMDLineArg("console=")
			Expect(len(value)).To(Equal(1))
			Expect(value[0]).To(Equal("ttyTCU0,115200"))
			value = utils.ReadCMDLineArg("empty=")
			Expect(len(value)).To(Equal(1))
			Expect(value[0]).To(Equal(""))
		})
		It("returns nothing for absent stanzas", func() {
			Expect(utils.ReadCMDLineArg("missing=")).To(BeEmpty())
		})
	})

	Context("RootSource", func() {
		It("returns the root stanza", func() {
			err := fs.WriteFile("/proc/cmdline", []byte("root=UUID=0657ec1a-9b65-4b9e-b2a9-d1ba68787c45 rw rootwait\n"), os.ModePerm)
			Expect(err).ToNot(HaveOccurred())
			Expect(utils.RootSource()).To(Equal("UUID=0657ec1a-9b65-4b9e-b2a9-d1ba68787c45"))
		})
		It("returns empty without a root stanza", func() {
			err := fs.WriteFile("/proc/cmdline", []byte("quiet\n"), os.ModePerm)
			Expect(err).ToNot(HaveOccurred())
			Expect(utils.RootSource()).To(Equal(""))
		})
	})
})

var _ = Describe("slices", func() {
	Context("UniqueSlice", func() {
		It("removes duplicates", func() {
			dups := []string{"a", "b", "c", "d", "b", "a"}
			Expect(len(utils.UniqueSlice(dups))).To(Equal(4))
		})
	})
	Context("CleanupSlice", func() {
		It("drops empty and whitespace values", func() {
			slice := []string{"", " ", "keep"}
			Expect(utils.CleanupSlice(slice)).To(Equal([]string{"keep"}))
		})
	})
})

var _ = Describe("ReadEnv", func() {
	It("parses an env file", func() {
		tmpDir, err := os.MkdirTemp("", "")
		Expect(err).ToNot(HaveOccurred())
		defer os.RemoveAll(tmpDir)
		file := filepath.Join(tmpDir, "test.env")
		err = os.WriteFile(file, []byte("REGISTRY=\"registry.local:5000\"\nCLUSTER=edge\n"), os.ModePerm)
		Expect(err).ToNot(HaveOccurred())
		env, err := utils.ReadEnv(file)
		Expect(err).ToNot(HaveOccurred())
		Expect(env).To(HaveKeyWithValue("REGISTRY", "registry.local:5000"))
		Expect(env).To(HaveKeyWithValue("CLUSTER", "edge"))
	})
})

var _ = Describe("Confirm", func() {
	var out *bytes.Buffer

	BeforeEach(func() {
		out = &bytes.Buffer{}
	})

	It("accepts the exact phrase", func() {
		in := strings.NewReader("reset this node\n")
		Expect(utils.Confirm(in, out, "reset this node", false)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("reset this node"))
	})
	It("refuses anything else", func() {
		in := strings.NewReader("yes\n")
		err := utils.Confirm(in, out, "reset this node", false)
		Expect(err).To(MatchError(constants.ErrNotConfirmed))
	})
	It("refuses on EOF", func() {
		in := strings.NewReader("")
		err := utils.Confirm(in, out, "reset this node", false)
		Expect(err).To(MatchError(constants.ErrNotConfirmed))
	})
	It("tolerates surrounding whitespace", func() {
		in := strings.NewReader("  reset this node  \n")
		Expect(utils.Confirm(in, out, "reset this node", false)).To(Succeed())
	})
	It("skips the prompt with assumeYes", func() {
		in := strings.NewReader("")
		Expect(utils.Confirm(in, out, "reset this node", true)).To(Succeed())
		Expect(out.Len()).To(Equal(0))
	})
})
