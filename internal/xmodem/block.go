// Package xmodem implements the sending side of the checksum XMODEM variant
// used to dump flash contents: 128-byte payloads, 8-bit additive checksum,
// stop-and-wait with ACK/NAK/CAN from the receiver.
package xmodem

// Control bytes
const (
	SOH byte = 0x01
	EOT byte = 0x04
	ACK byte = 0x06
	NAK byte = 0x15
	CAN byte = 0x18
)

const (
	// PayloadSize is the fixed number of data bytes per block.
	PayloadSize = 128

	// FrameSize is SOH, sequence, complement, payload and checksum.
	FrameSize = 3 + PayloadSize + 1
)

// Block is one transfer block. A sender owns a single Block for a whole
// transfer and refills Data in place.
type Block struct {
	Seq        byte
	Complement byte
	Data       [PayloadSize]byte
	Checksum   byte
}

// Checksum returns the 8-bit sum of p.
func Checksum(p []byte) byte {
	var sum byte
	for _, b := range p {
		sum += b
	}
	return sum
}

// next advances the sequence number and seals the current payload.
func (b *Block) next() {
	b.Checksum = Checksum(b.Data[:])
	b.Seq++
	b.Complement = 0xFF - b.Seq
}

// Encode writes the frame into dst, which must hold FrameSize bytes.
func (b *Block) Encode(dst []byte) []byte {
	// Frame format:
	// 0: SOH
	// 1: sequence number
	// 2: 0xFF - sequence number
	// 3-130: payload
	// 131: checksum
	dst = dst[:FrameSize]
	dst[0] = SOH
	dst[1] = b.Seq
	dst[2] = b.Complement
	copy(dst[3:3+PayloadSize], b.Data[:])
	dst[FrameSize-1] = b.Checksum
	return dst
}
