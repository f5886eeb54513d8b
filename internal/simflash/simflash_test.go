package simflash

import (
	"bytes"
	"testing"

	"github.com/bigbag/spiprobe/internal/gpio"
	"github.com/bigbag/spiprobe/internal/spi"
)

func testModel() Model {
	return Model{Name: "test", ID: [3]byte{0xAA, 0xBB, 0xCC}, Size: 2 * blockSize, Bulk: []byte{opChipEraseC7}}
}

// txn runs one chip-select bracketed transaction.
func txn(c *Chip, w []byte, n int) []byte {
	c.Select(true)
	defer c.Select(false)
	r := make([]byte, len(w)+n)
	c.Tx(append(append([]byte{}, w...), make([]byte, n)...), r)
	return r[len(w):]
}

func TestChip_ErasedState(t *testing.T) {
	c := New(testModel())
	got := txn(c, []byte{opRead, 0, 0x10, 0}, 8)
	if !bytes.Equal(got, bytes.Repeat([]byte{0xFF}, 8)) {
		t.Errorf("read of erased chip = %X, want all FF", got)
	}
}

func TestChip_ProgramRequiresWriteEnable(t *testing.T) {
	c := New(testModel(), WithBusyPolls(0))
	txn(c, []byte{opPageProgram, 0, 0, 0, 0x12}, 0)
	if c.Bytes()[0] != 0xFF {
		t.Fatalf("program without write enable changed memory to %02X", c.Bytes()[0])
	}
	if last := c.Log()[len(c.Log())-1]; !last.Ignored {
		t.Errorf("program without write enable not marked ignored: %+v", last)
	}

	txn(c, []byte{opWriteEnable}, 0)
	txn(c, []byte{opPageProgram, 0, 0, 0, 0x12}, 0)
	if c.Bytes()[0] != 0x12 {
		t.Errorf("mem[0] = %02X, want 12", c.Bytes()[0])
	}
	if st := txn(c, []byte{opReadStatus}, 1)[0]; st&0x02 != 0 {
		t.Errorf("status after program = %02X, want WEL clear", st)
	}
}

func TestChip_ProgramOnlyClearsBits(t *testing.T) {
	c := New(testModel(), WithBusyPolls(0))
	for _, b := range []byte{0xF0, 0x3C} {
		txn(c, []byte{opWriteEnable}, 0)
		txn(c, []byte{opPageProgram, 0, 0, 5, b}, 0)
	}
	if got := c.Bytes()[5]; got != 0x30 {
		t.Errorf("mem[5] = %02X, want 30", got)
	}
}

func TestChip_ProgramWrapsInPage(t *testing.T) {
	c := New(testModel(), WithBusyPolls(0))
	txn(c, []byte{opWriteEnable}, 0)
	txn(c, []byte{opPageProgram, 0, 0x01, 0xFF, 0x11, 0x22}, 0)
	if got := c.Bytes()[0x1FF]; got != 0x11 {
		t.Errorf("mem[0x1FF] = %02X, want 11", got)
	}
	if got := c.Bytes()[0x100]; got != 0x22 {
		t.Errorf("mem[0x100] = %02X, want 22 (wrapped)", got)
	}
	if got := c.Bytes()[0x200]; got != 0xFF {
		t.Errorf("mem[0x200] = %02X, want FF", got)
	}
}

func TestChip_BusyPolls(t *testing.T) {
	c := New(testModel(), WithBusyPolls(3))
	txn(c, []byte{opWriteEnable}, 0)
	txn(c, []byte{opSectorErase, 0, 0x10, 0}, 0)
	var wip []bool
	for i := 0; i < 5; i++ {
		wip = append(wip, txn(c, []byte{opReadStatus}, 1)[0]&0x01 != 0)
	}
	want := []bool{true, true, true, false, false}
	for i := range want {
		if wip[i] != want[i] {
			t.Errorf("poll %d WIP = %v, want %v", i, wip[i], want[i])
		}
	}
}

func TestChip_EraseGranularity(t *testing.T) {
	c := New(testModel(), WithBusyPolls(0))
	for i := range c.Bytes() {
		c.Bytes()[i] = 0
	}
	txn(c, []byte{opWriteEnable}, 0)
	txn(c, []byte{opSectorErase, 0, 0x10, 0x23}, 0)
	if c.Bytes()[0x1000] != 0xFF || c.Bytes()[0x1FFF] != 0xFF {
		t.Errorf("sector 0x1000 not erased")
	}
	if c.Bytes()[0x0FFF] != 0 || c.Bytes()[0x2000] != 0 {
		t.Errorf("sector erase touched neighbours")
	}

	txn(c, []byte{opWriteEnable}, 0)
	txn(c, []byte{opBlockErase, 0x01, 0, 0}, 0)
	if c.Bytes()[blockSize] != 0xFF || c.Bytes()[2*blockSize-1] != 0xFF {
		t.Errorf("block 1 not erased")
	}
	if c.Bytes()[blockSize-1] != 0 {
		t.Errorf("block erase touched block 0")
	}
}

func TestChip_BulkEraseSupport(t *testing.T) {
	c := New(testModel(), WithBusyPolls(0))
	c.Bytes()[10] = 0

	txn(c, []byte{opWriteEnable}, 0)
	txn(c, []byte{opChipErase60}, 0)
	if c.Bytes()[10] != 0 {
		t.Fatalf("unsupported bulk opcode erased the chip")
	}

	txn(c, []byte{opWriteEnable}, 0)
	txn(c, []byte{opChipEraseC7}, 0)
	if c.Bytes()[10] != 0xFF {
		t.Errorf("supported bulk opcode did not erase the chip")
	}
}

func TestChip_ReadID(t *testing.T) {
	c := New(Models["n25q064a"])
	got := txn(c, []byte{opReadID}, 4)
	if want := []byte{0x20, 0xBA, 0x17, 0x10}; !bytes.Equal(got, want) {
		t.Errorf("read id = %X, want %X", got, want)
	}
}

func TestChip_Unselected(t *testing.T) {
	c := New(testModel())
	if b, _ := c.Transfer(opReadID); b != 0xFF {
		t.Errorf("Transfer while unselected = %02X, want FF", b)
	}
	if len(c.Log()) != 0 {
		t.Errorf("log = %v, want empty", c.Log())
	}
}

func TestChip_AttachActiveLow(t *testing.T) {
	bank := gpio.NewSimBank()
	bits := gpio.New(bank)
	c := New(testModel())
	c.Attach(bank, 0xB0)

	bits.Write(0xB0, true)
	bits.SetDirection(0xB0, true)
	bits.Write(0xB0, false)
	c.Transfer(opReadID)
	bits.Write(0xB0, true)

	if ops := c.Ops(); !bytes.Equal(ops, []byte{opReadID}) {
		t.Errorf("ops = %X, want %X", ops, []byte{opReadID})
	}
}

func TestChip_LoadAndSave(t *testing.T) {
	c := New(testModel())
	img := []byte{1, 2, 3, 4}
	if err := c.Load(bytes.NewReader(img)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	var out bytes.Buffer
	if _, err := c.WriteTo(&out); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	if out.Len() != int(testModel().Size) {
		t.Errorf("saved image is %d bytes, want %d", out.Len(), testModel().Size)
	}
	if !bytes.Equal(out.Bytes()[:4], img) || out.Bytes()[4] != 0xFF {
		t.Errorf("saved image starts %X", out.Bytes()[:5])
	}

	if err := c.Load(bytes.NewReader(make([]byte, testModel().Size+1))); err == nil {
		t.Error("Load() of oversized image succeeded")
	}
}

func TestLookup(t *testing.T) {
	m, err := Lookup("")
	if err != nil || m.Name != "N25Q064A" {
		t.Errorf("Lookup(\"\") = %v, %v", m.Name, err)
	}
	if _, err := Lookup("nope"); err == nil {
		t.Error("Lookup(\"nope\") succeeded")
	}
}

func TestChip_WireBitBang(t *testing.T) {
	const (
		cs   = gpio.Pin(0xB0)
		sclk = gpio.Pin(0xB1)
		mosi = gpio.Pin(0xB2)
		miso = gpio.Pin(0xB3)
	)
	bank := gpio.NewSimBank()
	bits := gpio.New(bank)
	c := New(testModel(), WithBusyPolls(0))
	c.Attach(bank, cs)
	c.Wire(bank, sclk, mosi, miso)
	bits.Write(cs, true)
	bits.SetDirection(cs, true)
	bus := spi.NewBitBang(bits, sclk, mosi, miso)

	xfer := func(w []byte, n int) []byte {
		bits.Write(cs, false)
		defer bits.Write(cs, true)
		r := make([]byte, n)
		if err := bus.Tx(w, nil); err != nil {
			t.Fatal(err)
		}
		if err := bus.Tx(nil, r); err != nil {
			t.Fatal(err)
		}
		return r
	}

	if got := xfer([]byte{opReadID}, 3); !bytes.Equal(got, []byte{0xAA, 0xBB, 0xCC}) {
		t.Errorf("read id over wire = %X, want AABBCC", got)
	}
	xfer([]byte{opWriteEnable}, 0)
	xfer([]byte{opPageProgram, 0, 0x01, 0x00, 0x5A, 0xA5}, 0)
	if got := xfer([]byte{opRead, 0, 0x01, 0x00}, 2); !bytes.Equal(got, []byte{0x5A, 0xA5}) {
		t.Errorf("read back over wire = %X, want 5AA5", got)
	}
	if got := c.Ops(); !bytes.Equal(got, []byte{opReadID, opWriteEnable, opPageProgram, opRead}) {
		t.Errorf("ops = %X", got)
	}
}
