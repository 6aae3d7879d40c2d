package bootloader_test

import (
	"os"

	"github.com/gofrs/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/twpayne/go-vfs/v4"
	"github.com/twpayne/go-vfs/v4/vfst"

	"github.com/edgeforge/nodeforge/pkg/bootloader"
)

const extlinuxConf = `TIMEOUT 30
DEFAULT primary

MENU TITLE L4T boot options

LABEL primary
      MENU LABEL primary kernel
      LINUX /boot/Image
      INITRD /boot/initrd
      APPEND ${cbootargs} quiet root=/dev/mmcblk0p1 rw rootwait rootfstype=ext4 console=ttyTCU0,115200n8
`

var _ = Describe("extlinux.conf rewriting", func() {
	var fs vfs.FS
	var cleanup func()
	var id uuid.UUID
	const confPath = "/boot/extlinux/extlinux.conf"

	BeforeEach(func() {
		var err error
		fs, cleanup, err = vfst.NewTestFS(map[string]interface{}{
			confPath: extlinuxConf,
		})
		Expect(err).ToNot(HaveOccurred())
		id = uuid.Must(uuid.FromString("0657ec1a-9b65-4b9e-b2a9-d1ba68787c45"))
	})
	AfterEach(func() {
		cleanup()
	})

	It("returns the current root token", func() {
		root, err := bootloader.New(fs, confPath).Root()
		Expect(err).ToNot(HaveOccurred())
		Expect(root).To(Equal("root=/dev/mmcblk0p1"))
	})

	It("swaps only the root token", func() {
		changed, err := bootloader.New(fs, confPath).SetRootUUID(id)
		Expect(err).ToNot(HaveOccurred())
		Expect(changed).To(BeTrue())

		content, err := fs.ReadFile(confPath)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(content)).To(ContainSubstring("root=UUID=0657ec1a-9b65-4b9e-b2a9-d1ba68787c45"))
		Expect(string(content)).ToNot(ContainSubstring("/dev/mmcblk0p1"))
		Expect(string(content)).To(ContainSubstring("${cbootargs} quiet "))
		Expect(string(content)).To(ContainSubstring(" rw rootwait rootfstype=ext4 console=ttyTCU0,115200n8"))
		Expect(string(content)).To(ContainSubstring("TIMEOUT 30"))
	})

	It("is idempotent", func() {
		e := bootloader.New(fs, confPath)
		changed, err := e.SetRootUUID(id)
		Expect(err).ToNot(HaveOccurred())
		Expect(changed).To(BeTrue())

		before, err := fs.ReadFile(confPath)
		Expect(err).ToNot(HaveOccurred())

		changed, err = e.SetRootUUID(id)
		Expect(err).ToNot(HaveOccurred())
		Expect(changed).To(BeFalse())

		after, err := fs.ReadFile(confPath)
		Expect(err).ToNot(HaveOccurred())
		Expect(after).To(Equal(before))
	})

	It("appends root= to an APPEND line without one", func() {
		err := fs.WriteFile(confPath, []byte("LABEL primary\n      APPEND ${cbootargs} quiet\n"), os.ModePerm)
		Expect(err).ToNot(HaveOccurred())

		changed, err := bootloader.New(fs, confPath).SetRootUUID(id)
		Expect(err).ToNot(HaveOccurred())
		Expect(changed).To(BeTrue())

		root, err := bootloader.New(fs, confPath).Root()
		Expect(err).ToNot(HaveOccurred())
		Expect(root).To(Equal("root=UUID=0657ec1a-9b65-4b9e-b2a9-d1ba68787c45"))
	})

	It("never touches tokens that merely contain root=", func() {
		err := fs.WriteFile(confPath, []byte("LABEL netboot\n      APPEND ${cbootargs} nfsroot=192.168.1.1:/srv/nfs rw rootwait\n"), os.ModePerm)
		Expect(err).ToNot(HaveOccurred())

		changed, err := bootloader.New(fs, confPath).SetRootUUID(id)
		Expect(err).ToNot(HaveOccurred())
		Expect(changed).To(BeTrue())

		content, err := fs.ReadFile(confPath)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(content)).To(ContainSubstring("nfsroot=192.168.1.1:/srv/nfs"))
		Expect(string(content)).To(ContainSubstring("root=UUID=0657ec1a-9b65-4b9e-b2a9-d1ba68787c45"))
	})

	It("replaces only the real root token next to a lookalike", func() {
		err := fs.WriteFile(confPath, []byte("LABEL mixed\n      APPEND nfsroot=10.0.0.1:/srv root=/dev/mmcblk0p1 rw\n"), os.ModePerm)
		Expect(err).ToNot(HaveOccurred())

		changed, err := bootloader.New(fs, confPath).SetRootUUID(id)
		Expect(err).ToNot(HaveOccurred())
		Expect(changed).To(BeTrue())

		content, err := fs.ReadFile(confPath)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(content)).To(ContainSubstring("nfsroot=10.0.0.1:/srv"))
		Expect(string(content)).To(ContainSubstring("root=UUID=0657ec1a-9b65-4b9e-b2a9-d1ba68787c45 rw"))
		Expect(string(content)).ToNot(ContainSubstring("/dev/mmcblk0p1"))
	})

	It("errors when there is no APPEND line", func() {
		err := fs.WriteFile(confPath, []byte("TIMEOUT 30\n"), os.ModePerm)
		Expect(err).ToNot(HaveOccurred())

		_, err = bootloader.New(fs, confPath).SetRootUUID(id)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("no APPEND line"))
	})
})
