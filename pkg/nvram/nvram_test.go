package nvram

import (
	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/edgeforge/nodeforge/internal/utils"
)

const efibootmgrOutput = `BootCurrent: 0001
Timeout: 1 seconds
BootOrder: 0001,0000,0008,000A
Boot0000* UiApp
Boot0001* UEFI Samsung SSD 980 500GB
Boot0002* UEFI PXEv4 (MAC:48B02D3E1F00)
Boot0008* UEFI Shell
Boot000A* ubuntu
Boot000B  debian
some garbage line
Boot00ZZ* not-an-entry
`

var _ = ginkgo.Describe("efibootmgr output parsing", func() {
	var table Table

	ginkgo.BeforeEach(func() {
		table = Parse(efibootmgrOutput)
	})

	ginkgo.It("parses the boot entries", func() {
		Expect(len(table.Entries)).To(Equal(6))
		Expect(table.Entries[0].Number).To(Equal(uint16(0x0000)))
		Expect(table.Entries[0].Description).To(Equal("UiApp"))
		Expect(table.Entries[4].Number).To(Equal(uint16(0x000A)))
		Expect(table.Entries[4].Description).To(Equal("ubuntu"))
	})
	ginkgo.It("parses the active marker", func() {
		Expect(table.Entries[4].Active).To(BeTrue())
		Expect(table.Entries[5].Active).To(BeFalse())
	})
	ginkgo.It("parses BootCurrent and BootOrder", func() {
		Expect(table.HasCurrent).To(BeTrue())
		Expect(table.BootCurrent).To(Equal(uint16(0x0001)))
		Expect(table.BootOrder).To(Equal([]uint16{0x0001, 0x0000, 0x0008, 0x000A}))
	})
	ginkgo.It("skips lines that are not boot entries", func() {
		for _, e := range table.Entries {
			Expect(e.Description).ToNot(ContainSubstring("garbage"))
			Expect(e.Description).ToNot(ContainSubstring("not-an-entry"))
		}
	})
	ginkgo.It("formats entry names the firmware way", func() {
		Expect(table.Entries[4].Name()).To(Equal("Boot000A"))
	})
	ginkgo.It("renders the boot order the way efibootmgr prints it", func() {
		Expect(table.OrderString()).To(Equal("0001,0000,0008,000A"))
		Expect(Table{}.OrderString()).To(Equal(""))
	})
})

var _ = ginkgo.Describe("reserved entries", func() {
	ginkgo.It("keeps Boot0000 through Boot0008", func() {
		for n := uint16(0); n <= 8; n++ {
			Expect(Reserved(n)).To(BeTrue())
		}
		Expect(Reserved(0x0009)).To(BeFalse())
		Expect(Reserved(0x000A)).To(BeFalse())
	})

	ginkgo.It("never lists a reserved entry as removable", func() {
		table := Parse(efibootmgrOutput)
		removable := table.Removable()
		Expect(len(removable)).To(Equal(2))
		Expect(removable[0].Number).To(Equal(uint16(0x000A)))
		Expect(removable[1].Number).To(Equal(uint16(0x000B)))
	})
})

var _ = ginkgo.Describe("Delete", func() {
	var calls [][]string

	ginkgo.BeforeEach(func() {
		calls = nil
		run = func(name string, args ...string) (string, error) {
			calls = append(calls, append([]string{name}, args...))
			return "", nil
		}
	})
	ginkgo.AfterEach(func() {
		run = utils.RunTool
	})

	ginkgo.It("passes the entry number in firmware hex form", func() {
		Expect(Delete(Entry{Number: 0x000A, Description: "ubuntu"})).To(Succeed())
		Expect(calls).To(HaveLen(1))
		Expect(calls[0]).To(Equal([]string{"efibootmgr", "--bootnum", "000A", "--delete-bootnum"}))
	})
})
