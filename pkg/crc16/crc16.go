// Package crc16 implements the bit-serial CRC16 used by cartfriend settings
// records.
//
// The register starts at 0xFFFF and is shifted right once per data bit. For
// data bit k (k = 0..7, least significant first) the feedback decision
// compares bit k of the shifting register against bit k of the data byte,
// which is not the textbook reflected CCITT step. Records already stored on
// cartridges depend on this exact behaviour, so it must not be "corrected".
//
// Records shorter than the checksummed region are padded with 0xFF, matching
// the value an erased flash cell reads back as. The final register is
// inverted and byte-swapped.
package crc16

// Polynomial is the reversed CCITT polynomial.
const Polynomial = 0x8408

// InitialValue is the register value before any data is processed.
const InitialValue = 0xFFFF

// PadByte is the implicit value of every byte between len(data) and padLen.
const PadByte = 0xFF

// Update feeds one byte into the register.
func Update(crc uint16, v byte) uint16 {
	for k := 0; k < 8; k++ {
		mask := uint16(1) << k
		if (crc&mask)^(uint16(v)&mask) != 0 {
			crc = (crc >> 1) ^ Polynomial
		} else {
			crc >>= 1
		}
	}
	return crc
}

// Finish inverts and byte-swaps the register.
func Finish(crc uint16) uint16 {
	crc = ^crc
	return crc<<8 | crc>>8
}

// Checksum computes the CRC of data, padded with PadByte up to padLen bytes.
// A padLen shorter than data is ignored.
func Checksum(data []byte, padLen int) uint16 {
	crc := uint16(InitialValue)
	for _, v := range data {
		crc = Update(crc, v)
	}
	for pos := len(data); pos < padLen; pos++ {
		crc = Update(crc, PadByte)
	}
	return Finish(crc)
}

// Digest is a streaming form of Checksum.
type Digest struct {
	crc uint16
	n   int
}

// New returns a Digest ready to accept data.
func New() *Digest {
	return &Digest{crc: InitialValue}
}

// Write implements io.Writer. It never fails.
func (d *Digest) Write(p []byte) (int, error) {
	for _, v := range p {
		d.crc = Update(d.crc, v)
	}
	d.n += len(p)
	return len(p), nil
}

// Len returns the number of bytes written so far.
func (d *Digest) Len() int {
	return d.n
}

// Sum16 pads the stream to padLen and returns the finished checksum. The
// Digest itself is left unchanged.
func (d *Digest) Sum16(padLen int) uint16 {
	crc := d.crc
	for pos := d.n; pos < padLen; pos++ {
		crc = Update(crc, PadByte)
	}
	return Finish(crc)
}

// Reset returns the Digest to its initial state.
func (d *Digest) Reset() {
	d.crc = InitialValue
	d.n = 0
}
