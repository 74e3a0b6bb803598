package flash

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cm5674/emu/internal/tracelog"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	return New(tracelog.New(io.Discard))
}

func writeWord(t *testing.T, a *Array, idx uint32, word uint32) {
	t.Helper()
	var buf [4]byte
	buf[0] = byte(word >> 24)
	buf[1] = byte(word >> 16)
	buf[2] = byte(word >> 8)
	buf[3] = byte(word)
	require.NoError(t, a.MMIOWrite(0, idx*4, buf[:]))
}

func readWord(t *testing.T, a *Array, idx uint32) uint32 {
	t.Helper()
	b, err := a.MMIORead(0, idx*4, 4)
	require.NoError(t, err)
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func fillPattern(start, size uint32, val byte) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = val
	}
	_ = start
	return buf
}

// programBlock drives the MCR write hook to program data at offset within
// the main flash window, mirroring §4.E's ARMED -> STAGED -> EXECUTING
// state machine.
func programBlock(t *testing.T, c *Controller, offset uint32, data []byte) {
	t.Helper()
	writeWord(t, c.A, idxMCR, 1<<4) // pgm=1 (bit 4 from LSB in declared order)
	require.NoError(t, c.MainHandler().MMIOWrite(0, offset, data))
	// ehv:=1 triggers EXECUTING; pgm bit must still be set in the word we
	// write since Parse applies kind rules against the whole word.
	writeWord(t, c.A, idxMCR, (1<<4)|1) // pgm=1, ehv=1
}

func TestS1NotApplicableHere(t *testing.T) {
	// RCHW boot scanning lives in internal/bam; covered there.
	t.SkipNow()
}

// TestProgramThenReadBack exercises the ARMED/STAGED/EXECUTING state
// machine end to end against an unlocked block.
func TestProgramThenReadBack(t *testing.T) {
	c := newTestController(t)
	pattern := fillPattern(0, 0x4000, 0xAA)

	programBlock(t, c, 0x000000, pattern)

	got, err := c.MainHandler().MMIORead(0, 0, 16)
	require.NoError(t, err)
	for _, b := range got {
		require.Equal(t, byte(0xAA), b)
	}
	require.Equal(t, uint32(1), c.A.mcr.Get("done"))
	require.Equal(t, uint32(1), c.A.mcr.Get("peg"))
}

// TestS4LockedBlockRejectsProgram mirrors §8 scenario S4: with L0 locked,
// a program targeting L0 must leave the flash bytes untouched. The backup
// file and the log diagnostic are not checked here.
func TestS4LockedBlockRejectsProgram(t *testing.T) {
	c := newTestController(t)

	before, err := c.MainHandler().MMIORead(0, 0, 16)
	require.NoError(t, err)

	// Unlock LMLR with its magic word, then set llock bit 0 (L0).
	writeWord(t, c.A, idxLMLR, unlockLMLR)
	require.Equal(t, uint32(1), c.A.lmlr.Get("lme"))
	writeWord(t, c.A, idxLMLR, 0x00000001)
	require.Equal(t, uint32(1), c.A.lmlr.Get("llock")&1)

	programBlock(t, c, 0x000000, fillPattern(0, 0x4000, 0xAA))

	after, err := c.MainHandler().MMIORead(0, 0, 16)
	require.NoError(t, err)
	require.Equal(t, before, after, "locked block must not change")
}

// TestEraseIdempotent mirrors invariant 4: erase(B); erase(B) == erase(B).
func TestEraseIdempotent(t *testing.T) {
	c := newTestController(t)
	eraseL0 := func() {
		writeWord(t, c.A, idxLMSR, 0x00000001) // lsel bit 0 selects L0
		writeWord(t, c.A, idxMCR, 1<<2)        // ers=1
		require.NoError(t, c.MainHandler().MMIOWrite(0, 0, []byte{0}))
		writeWord(t, c.A, idxMCR, (1<<2)|1) // ers=1, ehv=1
	}
	eraseL0()
	first, _ := c.MainHandler().MMIORead(0, 0, 0x10)
	eraseL0()
	second, _ := c.MainHandler().MMIORead(0, 0, 0x10)
	require.Equal(t, first, second)
	for _, b := range first {
		require.Equal(t, byte(0xFF), b)
	}
}

// TestProgramEraseProgramIdempotence mirrors invariant 4's full statement:
// program(B,p); erase(B); program(B,p) == program(B,p) alone.
func TestProgramEraseProgramIdempotence(t *testing.T) {
	pattern := fillPattern(0, 0x4000, 0x42)

	c1 := newTestController(t)
	programBlock(t, c1, 0x000000, pattern)
	want, err := c1.MainHandler().MMIORead(0, 0, 0x20)
	require.NoError(t, err)

	c2 := newTestController(t)
	programBlock(t, c2, 0x000000, pattern)
	writeWord(t, c2.A, idxLMSR, 0x00000001)
	writeWord(t, c2.A, idxMCR, 1<<2)
	require.NoError(t, c2.MainHandler().MMIOWrite(0, 0, []byte{0}))
	writeWord(t, c2.A, idxMCR, (1<<2)|1)
	programBlock(t, c2, 0x000000, pattern)
	got, err := c2.MainHandler().MMIORead(0, 0, 0x20)
	require.NoError(t, err)

	require.Equal(t, want, got)
}

// TestHighBlockInterleave exercises §4.E's "High-block interleave": a
// program of array A's H0 block must leave array B's own H0 half
// untouched, interleaved at 16-byte stripe granularity. Writes are issued
// 4 bytes at a time, as the real bus would, so resolveMainOffset routes
// each one to its owning array independently.
func TestHighBlockInterleave(t *testing.T) {
	c := newTestController(t)

	// The first 16 bytes of each 32-byte stripe belong to array A and the
	// next 16 to array B, per resolveMainOffset's stripe split, so B's
	// half of the first stripe lives at 0x100010-0x10001F.
	writeWord(t, c.B, idxMCR, 1<<4) // B.pgm=1
	for off := uint32(0); off < 16; off += 4 {
		require.NoError(t, c.MainHandler().MMIOWrite(0, 0x100010+off, []byte{0xBB, 0xBB, 0xBB, 0xBB}))
	}
	writeWord(t, c.B, idxMCR, (1<<4)|1)

	writeWord(t, c.A, idxMCR, 1<<4) // A.pgm=1
	for off := uint32(0); off < 16; off += 4 {
		require.NoError(t, c.MainHandler().MMIOWrite(0, 0x100000+off, []byte{0xAA, 0xAA, 0xAA, 0xAA}))
	}
	writeWord(t, c.A, idxMCR, (1<<4)|1)

	got, err := c.MainHandler().MMIORead(0, 0x100000, 32)
	require.NoError(t, err)
	for i := 0; i < 16; i++ {
		require.Equal(t, byte(0xAA), got[i], "first half-stripe belongs to array A")
	}
	for i := 16; i < 32; i++ {
		require.Equal(t, byte(0xBB), got[i], "second half-stripe belongs to array B")
	}
}

// TestHighBlockSecondHalfOfLogicalSpan exercises the back half of a High
// block's logical span: each array's own byte count (0x40000) covers only
// half of the block's 0x80000 logical address range, so addresses like
// 0x140000 (still inside H0, per §4.E's contiguous 0x100000-0x3FFFFF
// layout) must resolve to a block instead of faulting as unmapped.
func TestHighBlockSecondHalfOfLogicalSpan(t *testing.T) {
	c := newTestController(t)

	writeWord(t, c.A, idxMCR, 1<<4) // A.pgm=1
	require.NoError(t, c.MainHandler().MMIOWrite(0, 0x140000, []byte{0xCC, 0xCC, 0xCC, 0xCC}))
	writeWord(t, c.A, idxMCR, (1<<4)|1)

	got, err := c.MainHandler().MMIORead(0, 0x140000, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0xCC, 0xCC, 0xCC, 0xCC}, got)
}

func TestDefaultShadowACanonicalValues(t *testing.T) {
	c := newTestController(t)
	got, err := c.ShadowAHandler().MMIORead(0, 0x3DD8, 8)
	require.NoError(t, err)
	require.Equal(t, []byte{0xFE, 0xED, 0xFA, 0xCE, 0xCA, 0xFE, 0xBE, 0xEF}, got)

	censor, err := c.ShadowAHandler().MMIORead(0, 0x3DE0, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0x55, 0xAA, 0x55, 0xAA}, censor)
}

func TestLockRegisterRequiresMagicBeforeAcceptingWrites(t *testing.T) {
	c := newTestController(t)
	writeWord(t, c.A, idxLMLR, 0x000003FF) // no magic yet
	require.Equal(t, uint32(0), c.A.lmlr.Get("llock"), "writes before the magic word must not change llock")

	writeWord(t, c.A, idxLMLR, unlockLMLR)
	writeWord(t, c.A, idxLMLR, 0x000003FF)
	require.Equal(t, uint32(0x3FF), c.A.lmlr.Get("llock"))
}

func TestConfigRegisterReadBack(t *testing.T) {
	c := newTestController(t)
	require.Equal(t, uint32(0b101), c.A.mcr.Get("size"))
	require.Equal(t, uint32(1), c.A.mcr.Get("done"))
	require.Equal(t, uint32(1), c.A.mcr.Get("peg"))
	_ = readWord(t, c.A, idxMCR)
}
