package sensor

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/banshee-data/ecoship/internal/nav"
)

// YDLIDAR X4 serial protocol.
var (
	cmdStartScan = []byte{0xA5, 0x60}
	cmdStopScan  = []byte{0xA5, 0x65}
)

const (
	packetHeader     = 0x55AA // little-endian on the wire: AA 55
	packetHeaderSize = 10     // PH(2) CT(1) LSN(1) FSA(2) LSA(2) CS(2)
	maxPacketSamples = 128
	ctStartFlag      = 0x01
)

var (
	errShortPacket = errors.New("short packet")
	errBadHeader   = errors.New("bad packet header")
	errBadChecksum = errors.New("packet checksum mismatch")
	errBadLength   = errors.New("packet sample count out of range")
)

// Packet is one decoded sample packet.
type Packet struct {
	Start   bool // first packet of a rotation
	Samples []nav.RangeSample
}

// DecodePacket decodes one packet at the start of buf. It returns the
// number of bytes consumed; on errShortPacket the caller should wait for
// more data.
func DecodePacket(buf []byte) (Packet, int, error) {
	if len(buf) < packetHeaderSize {
		return Packet{}, 0, errShortPacket
	}
	if binary.LittleEndian.Uint16(buf[0:2]) != packetHeader {
		return Packet{}, 0, errBadHeader
	}
	ct := buf[2]
	lsn := int(buf[3])
	if lsn == 0 || lsn > maxPacketSamples {
		return Packet{}, 2, errBadLength
	}
	total := packetHeaderSize + 2*lsn
	if len(buf) < total {
		return Packet{}, 0, errShortPacket
	}

	fsa := binary.LittleEndian.Uint16(buf[4:6])
	lsa := binary.LittleEndian.Uint16(buf[6:8])
	cs := binary.LittleEndian.Uint16(buf[8:10])

	check := uint16(packetHeader) ^ fsa ^ lsa ^ (uint16(ct) | uint16(lsn)<<8)
	raw := make([]uint16, lsn)
	for i := range raw {
		raw[i] = binary.LittleEndian.Uint16(buf[packetHeaderSize+2*i:])
		check ^= raw[i]
	}
	if check != cs {
		return Packet{}, 2, errBadChecksum
	}

	startDeg := float64(fsa>>1) / 64
	endDeg := float64(lsa>>1) / 64
	diff := endDeg - startDeg
	if diff < 0 {
		diff += 360
	}

	pkt := Packet{Start: ct&ctStartFlag != 0, Samples: make([]nav.RangeSample, lsn)}
	for i, s := range raw {
		mm := float64(s) / 4
		deg := startDeg
		if lsn > 1 {
			deg += diff / float64(lsn-1) * float64(i)
		}
		deg += angleCorrection(mm)
		r := mm / 1000
		if s == 0 {
			r = 0 // no return; dropped by validation
		}
		pkt.Samples[i] = nav.RangeSample{Angle: nav.WrapAngle(nav.DegToRad(deg)), Range: r}
	}
	return pkt, total, nil
}

// angleCorrection is the X4 triangulation parallax correction in degrees
// for a distance in millimetres.
func angleCorrection(mm float64) float64 {
	if mm == 0 {
		return 0
	}
	return nav.RadToDeg(math.Atan(21.8 * (155.3 - mm) / (155.3 * mm)))
}

// EncodePacket builds a wire packet from raw fields. Used by the simulator
// loopback and tests.
func EncodePacket(start bool, fsa, lsa uint16, raw []uint16) []byte {
	var ct byte
	if start {
		ct = ctStartFlag
	}
	lsn := len(raw)
	buf := make([]byte, packetHeaderSize+2*lsn)
	binary.LittleEndian.PutUint16(buf[0:2], packetHeader)
	buf[2] = ct
	buf[3] = byte(lsn)
	binary.LittleEndian.PutUint16(buf[4:6], fsa)
	binary.LittleEndian.PutUint16(buf[6:8], lsa)

	check := uint16(packetHeader) ^ fsa ^ lsa ^ (uint16(ct) | uint16(lsn)<<8)
	for i, s := range raw {
		binary.LittleEndian.PutUint16(buf[packetHeaderSize+2*i:], s)
		check ^= s
	}
	binary.LittleEndian.PutUint16(buf[8:10], check)
	return buf
}

// AngleField encodes an angle in degrees into the FSA/LSA field format.
func AngleField(deg float64) uint16 {
	return uint16(math.Round(deg*64))<<1 | 1
}

// scanAssembler accumulates packets into whole rotations.
type scanAssembler struct {
	buf     []byte
	current []nav.RangeSample
	started bool
	errs    int
}

// feed appends bytes and returns every rotation completed by them.
func (a *scanAssembler) feed(data []byte) [][]nav.RangeSample {
	a.buf = append(a.buf, data...)
	var done [][]nav.RangeSample
	for {
		idx := findHeader(a.buf)
		if idx < 0 {
			// Keep a trailing 0xAA that may start the next header.
			if n := len(a.buf); n > 0 && a.buf[n-1] == 0xAA {
				a.buf = append(a.buf[:0], 0xAA)
			} else {
				a.buf = a.buf[:0]
			}
			return done
		}
		a.buf = a.buf[idx:]

		pkt, n, err := DecodePacket(a.buf)
		if errors.Is(err, errShortPacket) {
			return done
		}
		if err != nil {
			a.errs++
			a.buf = a.buf[n:]
			continue
		}
		a.buf = a.buf[n:]

		if pkt.Start {
			if a.started && len(a.current) > 0 {
				done = append(done, a.current)
			}
			a.current = nil
			a.started = true
			continue
		}
		if a.started {
			a.current = append(a.current, pkt.Samples...)
		}
	}
}

func findHeader(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == 0xAA && buf[i+1] == 0x55 {
			return i
		}
	}
	return -1
}
