package bam

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cm5674/emu/internal/bus"
)

type ramHandler struct{ data []byte }

func (h *ramHandler) MMIORead(addr, offset uint32, size int) ([]byte, error) {
	return append([]byte(nil), h.data[offset:offset+uint32(size)]...), nil
}

func (h *ramHandler) MMIOWrite(addr, offset uint32, data []byte) error {
	copy(h.data[offset:], data)
	return nil
}

func newFlashBus(t *testing.T) (*bus.Bus, *ramHandler) {
	t.Helper()
	b := bus.New()
	h := &ramHandler{data: make([]byte, 0x400000)}
	b.Map(&bus.Region{Name: "flash", Base: 0, Size: 0x400000, Perm: bus.PermRead | bus.PermWrite, Handler: h})
	return b, h
}

func writeRCHW(t *testing.T, h *ramHandler, offset, pc uint32) {
	t.Helper()
	h.data[offset] = 0
	h.data[offset+1] = bootID
	h.data[offset+2] = 0
	h.data[offset+3] = 0
	h.data[offset+4] = byte(pc >> 24)
	h.data[offset+5] = byte(pc >> 16)
	h.data[offset+6] = byte(pc >> 8)
	h.data[offset+7] = byte(pc)
}

// TestS1ScanFindsFirstValidRCHW mirrors §8 scenario S1: a valid RCHW at
// the second candidate offset is found and its following word taken as
// the entry PC.
func TestS1ScanFindsFirstValidRCHW(t *testing.T) {
	b, h := newFlashBus(t)
	writeRCHW(t, h, rchwOffsets[1], 0x00123456)

	o := New(0x40000000, 0x40000, 0x4000)
	pc, ok := o.ScanRCHW(b)
	require.True(t, ok)
	require.Equal(t, uint32(0x00123456), pc)
}

func TestScanRCHWRejectsWrongBootID(t *testing.T) {
	b, h := newFlashBus(t)
	h.data[rchwOffsets[0]+1] = 0x00 // not 0x5A
	h.data[rchwOffsets[0]+4] = 0xFF

	o := New(0x40000000, 0x40000, 0x4000)
	_, ok := o.ScanRCHW(b)
	require.False(t, ok)
}

// TestS1ExactLiteral mirrors §8 S1 verbatim: the RCHW word 0x005AFFFF (BOOT_ID
// 0x5A in bits 23:16) at offset 0x20000 followed by PC 0x00021234.
func TestS1ExactLiteral(t *testing.T) {
	b, h := newFlashBus(t)
	h.data[0x20000] = 0x00
	h.data[0x20001] = 0x5A
	h.data[0x20002] = 0xFF
	h.data[0x20003] = 0xFF
	h.data[0x20004] = 0x00
	h.data[0x20005] = 0x02
	h.data[0x20006] = 0x12
	h.data[0x20007] = 0x34

	o := New(0x40000000, 0x40000, 0x4000)
	pc, ok := o.ScanRCHW(b)
	require.True(t, ok)
	require.Equal(t, uint32(0x00021234), pc)
}

func TestScanRCHWTriesAllOffsetsInOrder(t *testing.T) {
	b, h := newFlashBus(t)
	writeRCHW(t, h, rchwOffsets[len(rchwOffsets)-1], 0xABCDEF00)

	o := New(0x40000000, 0x40000, 0x4000)
	pc, ok := o.ScanRCHW(b)
	require.True(t, ok)
	require.Equal(t, uint32(0xABCDEF00), pc)
}

// TestColdResetZeroesEverything mirrors §4.G: a cold reset clears the
// entire SRAM, including the standby region.
func TestColdResetZeroesEverything(t *testing.T) {
	o := New(0x40000000, 0x1000, 0x100)
	for i := range o.ram {
		o.ram[i] = 0xFF
	}
	o.ColdReset()
	for i, b := range o.ram {
		require.Equal(t, byte(0), b, "byte %d must be zero after a cold reset", i)
	}
}

// TestWarmResetPreservesStandbyRegion mirrors §8 scenario S5: only the
// [standbySize, end) tail of SRAM is cleared on a warm reset.
func TestWarmResetPreservesStandbyRegion(t *testing.T) {
	o := New(0x40000000, 0x1000, 0x100)
	for i := range o.ram {
		o.ram[i] = 0xAB
	}
	o.WarmReset()
	for i := 0; i < int(o.standbySize); i++ {
		require.Equal(t, byte(0xAB), o.ram[i], "standby byte %d must survive a warm reset", i)
	}
	for i := int(o.standbySize); i < len(o.ram); i++ {
		require.Equal(t, byte(0), o.ram[i], "non-standby byte %d must be cleared", i)
	}
}

func TestBootColdResetScansRCHW(t *testing.T) {
	b, h := newFlashBus(t)
	writeRCHW(t, h, rchwOffsets[0], 0x00001000)

	o := New(0x40000000, 0x1000, 0x100)
	for i := range o.ram {
		o.ram[i] = 0xFF
	}

	pc, err := o.Boot(b, true)
	require.NoError(t, err)
	require.Equal(t, uint32(0x00001000), pc)
	for _, x := range o.ram {
		require.Equal(t, byte(0), x)
	}
}

// TestBootWarmResetPreservesSRAMAndRescans mirrors the corrected §4.G
// behavior: a warm reset still rescans the RCHW from flash (flash is
// unaffected by reset type) while leaving the standby SRAM region intact.
func TestBootWarmResetPreservesSRAMAndRescans(t *testing.T) {
	b, h := newFlashBus(t)
	writeRCHW(t, h, rchwOffsets[0], 0x00002000)

	o := New(0x40000000, 0x1000, 0x100)
	for i := range o.ram {
		o.ram[i] = 0xCD
	}

	pc, err := o.Boot(b, false)
	require.NoError(t, err)
	require.Equal(t, uint32(0x00002000), pc)
	for i := 0; i < int(o.standbySize); i++ {
		require.Equal(t, byte(0xCD), o.ram[i])
	}
	for i := int(o.standbySize); i < len(o.ram); i++ {
		require.Equal(t, byte(0), o.ram[i])
	}
}

func TestBootReturnsErrorWhenNoRCHWFound(t *testing.T) {
	b, _ := newFlashBus(t)
	o := New(0x40000000, 0x1000, 0x100)
	_, err := o.Boot(b, true)
	require.Error(t, err)
}

// TestEntryPointOverrideWinsOverScan exercises §4.G's loader override.
func TestEntryPointOverrideWinsOverScan(t *testing.T) {
	b, h := newFlashBus(t)
	writeRCHW(t, h, rchwOffsets[0], 0x00001000)

	o := New(0x40000000, 0x1000, 0x100)
	o.SetEntryPoint(0xDEADBEEF)

	pc, err := o.Boot(b, true)
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), pc)
}

// TestEntryPointOverrideWinsEvenWithNoRCHW exercises the override taking
// effect when the scan itself would have failed.
func TestEntryPointOverrideWinsEvenWithNoRCHW(t *testing.T) {
	b, _ := newFlashBus(t)
	o := New(0x40000000, 0x1000, 0x100)
	o.SetEntryPoint(0x00005000)

	pc, err := o.Boot(b, true)
	require.NoError(t, err)
	require.Equal(t, uint32(0x00005000), pc)
}

func TestStackPointerAlignsToCallConvention(t *testing.T) {
	o := New(0x40000000, 0x1000, 0x100)
	require.Equal(t, o.RAMBase()+uint32(len(o.RAM()))-8, o.StackPointer())
}
