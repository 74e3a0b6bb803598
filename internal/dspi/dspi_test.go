package dspi

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cm5674/emu/internal/intc"
	"github.com/cm5674/emu/internal/tracelog"
)

type recordingTarget struct {
	calls     []uint32
	responses []uint32
	next      int
}

func (r *recordingTarget) SPITransfer(value uint32, widthBits int) uint32 {
	r.calls = append(r.calls, value)
	if r.next >= len(r.responses) {
		return 0
	}
	v := r.responses[r.next]
	r.next++
	return v
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	return New("DSPI_A", intc.New(), EventTable{}, tracelog.New(io.Discard))
}

func beBytes(word uint32) []byte {
	return []byte{byte(word >> 24), byte(word >> 16), byte(word >> 8), byte(word)}
}

func writeMCR(t *testing.T, c *Controller, word uint32) {
	t.Helper()
	require.NoError(t, c.MMIOWrite(0, offMCR, beBytes(word)))
}

func pushr(t *testing.T, c *Controller, word uint32) {
	t.Helper()
	require.NoError(t, c.MMIOWrite(0, offPUSHR, beBytes(word)))
}

func popr(t *testing.T, c *Controller) uint32 {
	t.Helper()
	b, err := c.MMIORead(0, offPOPR, 4)
	require.NoError(t, err)
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// TestS2TxWithEOQ mirrors §8 scenario S2: three PUSHR writes queued while
// halted, the second carrying EOQ, then MCR.halt cleared. Draining must
// stop right after the EOQ frame, leaving the third frame staged and
// halt/txrxs reset by the EOQ itself.
func TestS2TxWithEOQ(t *testing.T) {
	c := newTestController(t)
	target := &recordingTarget{responses: []uint32{0x1111, 0x2222, 0x3333}}
	c.RegisterTarget(0, target)

	// mstr=1, halt=1 (reset default): frames stage into the Tx FIFO rather
	// than transmitting immediately.
	writeMCR(t, c, 0x80000000|0x00000001)

	pushr(t, c, 0x00000001)
	pushr(t, c, 0x08000002) // eoq=1, data=0x0002
	pushr(t, c, 0x00000003)

	require.Equal(t, uint32(3), c.sr.Get("txctr"))

	// mstr=1, halt=0: starts the mode machine running and drains the FIFO.
	writeMCR(t, c, 0x80000000)

	require.Equal(t, []uint32{0x0001, 0x0002}, target.calls, "drain must stop after the EOQ frame")
	require.Equal(t, uint32(1), c.sr.Get("txctr"), "the post-EOQ frame stays queued")
	require.Equal(t, uint32(2), c.tcr.Get("spi_tcnt"))
	require.Equal(t, uint32(1), c.sr.Get("eoqf"))
	require.True(t, c.mcr.Bit("halt"), "EOQ re-asserts halt")
	require.Equal(t, uint32(0), c.sr.Get("txrxs"))
}

// TestS3RxOverflowWithROOE mirrors §8 scenario S3: pushing A..F with
// ROOE=0 drops the 6th arrival once the 5-slot Rx FIFO is full; enabling
// ROOE and pushing G overwrites the hidden shift slot instead.
func TestS3RxOverflowWithROOE(t *testing.T) {
	c := newTestController(t)
	responses := []uint32{0x41, 0x42, 0x43, 0x44, 0x45, 0x46, 0x47} // A..G
	target := &recordingTarget{responses: responses}
	c.RegisterTarget(0, target)

	// mstr=1, halt=0 from the start: every PUSHR transmits immediately.
	writeMCR(t, c, 0x80000000)

	for i := 0; i < 6; i++ { // A..F
		pushr(t, c, uint32(i))
	}
	require.Equal(t, uint32(1), c.sr.Get("rfof"), "the 6th arrival (F) must overflow")
	require.Equal(t, uint32(4), c.sr.Get("rxctr"), "rxctr freezes at the visible FIFO depth")

	writeMCR(t, c, 0x80000000|0x01000000) // rooe=1, still running
	pushr(t, c, 6)                        // G

	got := make([]uint32, 0, 5)
	for i := 0; i < 5; i++ {
		got = append(got, popr(t, c)&0xFF)
	}
	require.Equal(t, []uint32{0x41, 0x42, 0x43, 0x44, 0x47}, got, "E is overwritten by G once ROOE is set")
}

// TestPOPRReturnsDeviceFillerWhenEmpty exercises §4.F's per-device filler:
// DSPI_D returns 0x000087AD and every other instance returns 0x0000FFFF.
func TestPOPRReturnsDeviceFillerWhenEmpty(t *testing.T) {
	a := newTestController(t)
	require.Equal(t, uint32(0x0000FFFF), popr(t, a))

	d := New("DSPI_D", intc.New(), EventTable{}, tracelog.New(io.Discard))
	require.Equal(t, uint32(0x000087AD), popr(t, d))
}

// TestClrTxfEmptiesFIFOAndResetsCounters exercises MCR.clr_txf.
func TestClrTxfEmptiesFIFOAndResetsCounters(t *testing.T) {
	c := newTestController(t)
	writeMCR(t, c, 0x80000000|0x00000001) // mstr=1, halt=1: stage, don't drain
	pushr(t, c, 1)
	pushr(t, c, 2)
	require.Equal(t, uint32(2), c.sr.Get("txctr"))

	writeMCR(t, c, 0x80000000|0x00000001|0x00000800) // clr_txf bit, still halted
	require.Equal(t, uint32(0), c.sr.Get("txctr"))
}

// TestModeDisableWhenMDIS exercises the mode machine collapsing to
// ModeDisable regardless of mstr/dconf when MDIS is set.
func TestModeDisableWhenMDIS(t *testing.T) {
	c := newTestController(t)
	writeMCR(t, c, 0x80000000|0x00004000) // mstr=1, mdis=1
	require.Equal(t, ModeDisable, c.mode)
}

// TestDSIModeIsRejected exercises §4 Non-goals: DSI/CSI configurations
// surface as a returned error from updateMode rather than a panic, since
// dconf is still a plain RW field the register happily accepts.
func TestDSIModeIsRejected(t *testing.T) {
	c := newTestController(t)
	c.mcr.Override("dconf", 0b01)
	require.Error(t, c.updateMode())
	require.Equal(t, ModeDSIPeripheral, c.mode)
}
