package hardware_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/edgeforge/nodeforge/pkg/hardware"
)

var _ = Describe("device naming", func() {
	Context("ParentDisk", func() {
		It("maps mmc and nvme partitions to their disk", func() {
			Expect(hardware.ParentDisk("/dev/mmcblk0p1")).To(Equal("/dev/mmcblk0"))
			Expect(hardware.ParentDisk("/dev/nvme0n1p2")).To(Equal("/dev/nvme0n1"))
		})
		It("maps sd-style partitions to their disk", func() {
			Expect(hardware.ParentDisk("/dev/sda1")).To(Equal("/dev/sda"))
			Expect(hardware.ParentDisk("/dev/sdb12")).To(Equal("/dev/sdb"))
		})
		It("maps disks to themselves", func() {
			Expect(hardware.ParentDisk("/dev/mmcblk0")).To(Equal("/dev/mmcblk0"))
			Expect(hardware.ParentDisk("/dev/sda")).To(Equal("/dev/sda"))
		})
	})

	Context("FirstPartition", func() {
		It("uses the p separator for disks ending in a digit", func() {
			Expect(hardware.FirstPartition("/dev/mmcblk0")).To(Equal("/dev/mmcblk0p1"))
			Expect(hardware.FirstPartition("/dev/nvme0n1")).To(Equal("/dev/nvme0n1p1"))
		})
		It("appends the number directly otherwise", func() {
			Expect(hardware.FirstPartition("/dev/sda")).To(Equal("/dev/sda1"))
		})
	})

	It("round-trips disk to partition and back", func() {
		for _, disk := range []string{"/dev/mmcblk0", "/dev/nvme0n1", "/dev/sda"} {
			Expect(hardware.ParentDisk(hardware.FirstPartition(disk))).To(Equal(disk))
		}
	})
})
