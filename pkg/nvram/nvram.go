// Package nvram reads and prunes UEFI boot entries. The firmware on the
// supported boards ships nine standard entries (Boot0000 to Boot0008);
// everything above that is leftover from OS installs and netboot experiments
// and accumulates until the boot menu is unusable.
//
// Listing parses efibootmgr output. Mutation also goes through efibootmgr,
// writing EFI variables ourselves is not worth the firmware bricking risk.
package nvram

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/edgeforge/nodeforge/internal/constants"
	"github.com/edgeforge/nodeforge/internal/utils"
	"github.com/foxboron/go-uefi/efi"
)

var run = utils.RunTool

// Entry is one BootXXXX variable as reported by efibootmgr.
type Entry struct {
	Number      uint16
	Active      bool
	Description string
}

func (e Entry) Name() string {
	return fmt.Sprintf("Boot%04X", e.Number)
}

// Table is the parsed state of the boot manager.
type Table struct {
	Entries     []Entry
	BootOrder   []uint16
	BootCurrent uint16
	HasCurrent  bool
}

var (
	entryRe   = regexp.MustCompile(`^Boot([0-9A-Fa-f]{4})(\*?)\s+(.*)$`)
	orderRe   = regexp.MustCompile(`^BootOrder:\s*(.*)$`)
	currentRe = regexp.MustCompile(`^BootCurrent:\s*([0-9A-Fa-f]{4})`)
)

// Parse reads efibootmgr text output. Lines that do not look like boot
// entries are skipped, and a skipped line can never end up deleted.
func Parse(out string) Table {
	var t Table
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if m := entryRe.FindStringSubmatch(line); m != nil {
			n, err := strconv.ParseUint(m[1], 16, 16)
			if err != nil {
				continue
			}
			t.Entries = append(t.Entries, Entry{
				Number:      uint16(n),
				Active:      m[2] == "*",
				Description: strings.TrimSpace(m[3]),
			})
			continue
		}
		if m := currentRe.FindStringSubmatch(line); m != nil {
			n, err := strconv.ParseUint(m[1], 16, 16)
			if err == nil {
				t.BootCurrent = uint16(n)
				t.HasCurrent = true
			}
			continue
		}
		if m := orderRe.FindStringSubmatch(line); m != nil {
			for _, f := range strings.Split(m[1], ",") {
				n, err := strconv.ParseUint(strings.TrimSpace(f), 16, 16)
				if err != nil {
					continue
				}
				t.BootOrder = append(t.BootOrder, uint16(n))
			}
		}
	}
	return t
}

// Supported reports whether the firmware exposes EFI variables at all.
func Supported() bool {
	_, err := os.Stat(constants.EfiVarsDir)
	return err == nil
}

// SecureBootEnabled reads the SecureBoot variable from efivarfs.
func SecureBootEnabled() bool {
	return efi.GetSecureBoot()
}

// List shells out to efibootmgr and parses the result.
func List() (Table, error) {
	if !Supported() {
		return Table{}, constants.ErrNoEFI
	}
	out, err := run("efibootmgr")
	if err != nil {
		return Table{}, fmt.Errorf("efibootmgr: %w: %s", err, strings.TrimSpace(out))
	}
	return Parse(out), nil
}

// OrderString renders BootOrder the way efibootmgr prints it.
func (t Table) OrderString() string {
	parts := make([]string, 0, len(t.BootOrder))
	for _, n := range t.BootOrder {
		parts = append(parts, fmt.Sprintf("%04X", n))
	}
	return strings.Join(parts, ",")
}

// Reserved reports whether an entry number is on the firmware allow-list.
func Reserved(n uint16) bool {
	return n <= constants.ReservedBootEntryMax
}

// Removable returns the entries Clean would delete, reserved ones excluded.
func (t Table) Removable() []Entry {
	var out []Entry
	for _, e := range t.Entries {
		if !Reserved(e.Number) {
			out = append(out, e)
		}
	}
	return out
}

// Delete removes a single entry from NVRAM.
func Delete(e Entry) error {
	out, err := run("efibootmgr", "--bootnum", fmt.Sprintf("%04X", e.Number), "--delete-bootnum")
	if err != nil {
		return fmt.Errorf("deleting %s: %w: %s", e.Name(), err, strings.TrimSpace(out))
	}
	return nil
}

// Clean deletes every non-reserved entry and returns what was deleted.
// It stops on the first efibootmgr failure.
func Clean() ([]Entry, error) {
	t, err := List()
	if err != nil {
		return nil, err
	}
	var deleted []Entry
	for _, e := range t.Removable() {
		if err := Delete(e); err != nil {
			return deleted, err
		}
		utils.Log.Info().Str("entry", e.Name()).Str("description", e.Description).Msg("Deleted boot entry")
		deleted = append(deleted, e)
	}
	return deleted, nil
}
