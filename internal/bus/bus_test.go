package bus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cm5674/emu/internal/bitops"
)

type ramHandler struct{ data []byte }

func (h *ramHandler) MMIORead(addr, offset uint32, size int) ([]byte, error) {
	return append([]byte(nil), h.data[offset:offset+uint32(size)]...), nil
}

func (h *ramHandler) MMIOWrite(addr, offset uint32, data []byte) error {
	copy(h.data[offset:], data)
	return nil
}

func newTestBus() (*Bus, *ramHandler) {
	b := New()
	h := &ramHandler{data: make([]byte, 0x1000)}
	b.Map(&Region{Name: "ram", Base: 0x1000, Size: 0x1000, Perm: PermRead | PermWrite, Handler: h})
	return b, h
}

func TestReadWriteRoundTrip(t *testing.T) {
	b, _ := newTestBus()
	require.NoError(t, b.WriteUint32(0x1000, 0xCAFEBABE))
	v, err := b.ReadUint32(0x1000)
	require.NoError(t, err)
	require.Equal(t, uint32(0xCAFEBABE), v)
}

func TestBigEndianSerialization(t *testing.T) {
	b, h := newTestBus()
	require.NoError(t, b.WriteUint32(0x1000, 0x01020304))
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, h.data[0:4])
}

func TestUnmappedReadIsBusError(t *testing.T) {
	b, _ := newTestBus()
	_, err := b.Read(0x5000, 4)
	var be *BusError
	require.ErrorAs(t, err, &be)
	require.Equal(t, ErrUnmapped, be.Kind)
}

func TestMisalignedAccessIsAlignmentError(t *testing.T) {
	b, _ := newTestBus()
	_, err := b.Read(0x1001, 4)
	var be *BusError
	require.ErrorAs(t, err, &be)
	require.Equal(t, ErrAlignment, be.Kind)
}

func TestSupervisorOnlyRejectsUserMode(t *testing.T) {
	b := New()
	h := &ramHandler{data: make([]byte, 0x10)}
	b.Map(&Region{Name: "priv", Base: 0x2000, Size: 0x10, Perm: PermRead | PermWrite, SupervisorOnly: true, Handler: h})
	b.SetMode(bitops.User)

	_, err := b.Read(0x2000, 4)
	var be *BusError
	require.ErrorAs(t, err, &be)
	require.Equal(t, ErrSupervisor, be.Kind)
}

func TestSupervisorOverrideRestoresPriorMode(t *testing.T) {
	b := New()
	h := &ramHandler{data: make([]byte, 0x10)}
	b.Map(&Region{Name: "priv", Base: 0x2000, Size: 0x10, Perm: PermRead | PermWrite, SupervisorOnly: true, Handler: h})
	b.SetMode(bitops.User)

	override := bitops.NewSupervisorOverride(b.ModePtr())
	var readErr error
	override.Scoped(func() {
		_, readErr = b.Read(0x2000, 4)
	})
	require.NoError(t, readErr)
	require.Equal(t, bitops.User, b.Mode(), "mode must be restored after the scoped override exits")
}

func TestSupervisorOverrideRestoresOnPanic(t *testing.T) {
	b := New()
	override := bitops.NewSupervisorOverride(b.ModePtr())
	b.SetMode(bitops.User)

	require.Panics(t, func() {
		override.Scoped(func() { panic("boom") })
	})
	require.Equal(t, bitops.User, b.Mode())
}

func TestPermissionDenied(t *testing.T) {
	b := New()
	h := &ramHandler{data: make([]byte, 0x10)}
	b.Map(&Region{Name: "ro", Base: 0x3000, Size: 0x10, Perm: PermRead, Handler: h})

	err := b.Write(0x3000, []byte{1, 2, 3, 4})
	var be *BusError
	require.ErrorAs(t, err, &be)
	require.Equal(t, ErrPermission, be.Kind)
}

func TestMapPanicsOnOverlap(t *testing.T) {
	b := New()
	h := &ramHandler{data: make([]byte, 0x1000)}
	b.Map(&Region{Name: "a", Base: 0x1000, Size: 0x1000, Perm: PermRead, Handler: h})
	require.Panics(t, func() {
		b.Map(&Region{Name: "b", Base: 0x1800, Size: 0x100, Perm: PermRead, Handler: h})
	})
}

func TestSubWordSizes(t *testing.T) {
	b, h := newTestBus()
	require.NoError(t, b.Write(0x1000, []byte{0x42}))
	require.Equal(t, byte(0x42), h.data[0])
	data, err := b.Read(0x1000, 1)
	require.NoError(t, err)
	require.Equal(t, []byte{0x42}, data)
}
