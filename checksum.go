package sst25

import "hash"

const crcPoly = 0xEDB88320 // IEEE 802.3, reflected

// Checksum accumulates the CRC-32 used by zlib and gzip, one bit at a time
// so no table is needed. The zero value is the checksum of no data.
//
// The shift register starts at all ones and the result is its complement;
// crc holds the complemented form so that Sum32 is a plain read.
type Checksum struct {
	crc uint32
}

var _ hash.Hash32 = (*Checksum)(nil)

func updateCRC(crc uint32, b byte) uint32 {
	crc = ^crc
	crc ^= uint32(b)
	for range 8 {
		if crc&1 != 0 {
			crc = crc>>1 ^ crcPoly
		} else {
			crc >>= 1
		}
	}
	return ^crc
}

// WriteByte adds one byte to the checksum. It never fails.
func (c *Checksum) WriteByte(b byte) error {
	c.crc = updateCRC(c.crc, b)
	return nil
}

// Write adds p to the checksum. It never fails.
func (c *Checksum) Write(p []byte) (int, error) {
	for _, b := range p {
		c.crc = updateCRC(c.crc, b)
	}
	return len(p), nil
}

// Sum32 returns the CRC-32 of the bytes written so far.
func (c *Checksum) Sum32() uint32 { return c.crc }

// Sum appends the big-endian checksum to b.
func (c *Checksum) Sum(b []byte) []byte {
	s := c.crc
	return append(b, byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}

func (c *Checksum) Reset()         { c.crc = 0 }
func (c *Checksum) Size() int      { return 4 }
func (c *Checksum) BlockSize() int { return 1 }
