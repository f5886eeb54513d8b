package flash

import "strings"

// UniqueLen is the number of extended id bytes read from parts that have them.
const UniqueLen = 16

// ID is the JEDEC identification of a part.
type ID struct {
	Manufacturer byte
	Type         byte
	Capacity     byte

	// Unique holds the extended device id and unique id of Micron N25Q
	// parts, nil for everything else.
	Unique []byte
}

var vendors = map[byte]string{
	0x20: "Micron",
	0xC2: "Macronix",
	0x01: "Spansion",
	0xEF: "Winbond",
	0x1C: "Eon",
	0xBF: "SST",
	0x7F: "pFLASH",
}

// parts is keyed by memory type and capacity.
var parts = map[[2]byte]string{
	{0xBA, 0x17}: "N25Q064A",
	{0x20, 0x17}: "MX25L6406E",
	{0x20, 0x14}: "MX25L8006E (8 Mbit)",
	{0x20, 0x15}: "MX25L1606E (16 Mbit)",
	{0x20, 0x18}: "S25FL128S/P",
	{0x02, 0x19}: "S25FL256S/P",
	{0x15, 0x20}: "EN25P16",
	{0x25, 0x8D}: "SST25VF040B (4 Mbit)",
	{0x25, 0x8E}: "SST25VF080B (8 Mbit)",
	{0x25, 0x41}: "SST25VF016B (16 Mbit)",
	{0x25, 0x4A}: "SST25VF032B (32 Mbit)",
}

// fullParts needs the manufacturer byte as well.
var fullParts = map[[3]byte]string{
	{0x7F, 0x9D, 0x20}: "Pm25LD512 (512 Kbit)",
	{0x7F, 0x9D, 0x21}: "Pm25LD010 (1 Mbit)",
	{0x7F, 0x9D, 0x22}: "Pm25LD020 (2 Mbit)",
}

// hasUnique reports whether the part answers with extended id bytes.
func hasUnique(manufacturer, typ byte) bool {
	return manufacturer == 0x20 && typ == 0xBA
}

// Identify reads the JEDEC id and, on Micron N25Q parts, the unique id.
// Unknown parts are not an error.
func (c *Chip) Identify() (ID, error) {
	c.PowerOn()
	defer c.PowerOff()

	c.selectChip()
	defer c.Deselect()

	if err := c.bus.Tx([]byte{CmdReadID}, nil); err != nil {
		return ID{}, err
	}
	var r [3]byte
	if err := c.bus.Tx(nil, r[:]); err != nil {
		return ID{}, err
	}
	id := ID{Manufacturer: r[0], Type: r[1], Capacity: r[2]}
	if !hasUnique(id.Manufacturer, id.Type) {
		return id, nil
	}

	// one length byte, then the extended and unique id
	buf := make([]byte, 1+UniqueLen)
	if err := c.bus.Tx(nil, buf); err != nil {
		return ID{}, err
	}
	id.Unique = buf[1:]
	c.log.Debug("unique id", "length", buf[0])
	return id, nil
}

// Vendor returns the manufacturer name.
func (id ID) Vendor() string {
	if v, ok := vendors[id.Manufacturer]; ok {
		return v
	}
	return "Unknown manufacturer"
}

// Part returns the part name, or "unknown chip".
func (id ID) Part() string {
	if p, ok := parts[[2]byte{id.Type, id.Capacity}]; ok {
		return p
	}
	if p, ok := fullParts[[3]byte{id.Manufacturer, id.Type, id.Capacity}]; ok {
		return p
	}
	return "unknown chip"
}

// Known reports whether the part name was found.
func (id ID) Known() bool { return id.Part() != "unknown chip" }

const hexDigits = "0123456789ABCDEF"

func appendHex(b []byte, v byte) []byte {
	return append(b, hexDigits[v>>4], hexDigits[v&0xF])
}

// Hex returns the id as six uppercase hex digits. Parts with a unique id get
// "-", the two extended id bytes, "-" and the fourteen unique id bytes.
func (id ID) Hex() string {
	b := make([]byte, 0, 6+2+2*UniqueLen)
	b = appendHex(b, id.Manufacturer)
	b = appendHex(b, id.Type)
	b = appendHex(b, id.Capacity)
	if len(id.Unique) == UniqueLen {
		b = append(b, '-')
		for _, v := range id.Unique[:2] {
			b = appendHex(b, v)
		}
		b = append(b, '-')
		for _, v := range id.Unique[2:] {
			b = appendHex(b, v)
		}
	}
	return string(b)
}

func (id ID) String() string {
	return strings.Join([]string{id.Vendor(), id.Part(), id.Hex()}, " ")
}
