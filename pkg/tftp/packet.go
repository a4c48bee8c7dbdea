// Package tftp implements a minimal lockstep file transfer over UDP: a
// packet codec, the sending and receiving sessions, the server dispatcher
// and the client driver.
package tftp

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// BlockSize is the fixed payload size of a full Data packet.
	BlockSize = 512

	// MaxDatagramSize is the largest datagram either side expects to read.
	MaxDatagramSize = 1472

	// DefaultPort is the well-known server port.
	DefaultPort = 69

	headerLen      = 1 // kind(1 byte)
	blockHeaderLen = 2 // kind(1 byte), block(1 byte)
)

// ErrMalformedPacket is returned when a datagram is too short to hold the header
// of its kind, or carries a Data payload larger than BlockSize.
var ErrMalformedPacket = errors.New("malformed packet")

// Kind represents the packet kind tag carried in byte 0.
type Kind byte

// Packet kinds.
const (
	KindRequest = Kind(0x1)
	KindData    = Kind(0x2)
	KindAck     = Kind(0x3)
	KindError   = Kind(0x4)
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindData:
		return "DATA"
	case KindAck:
		return "ACK"
	case KindError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN:%d", byte(k))
	}
}

// HasBlock reports whether packets of this kind carry a block number.
func (k Kind) HasBlock() bool { return k == KindData || k == KindAck }

// Packet is a decoded protocol message.
type Packet struct {
	Kind    Kind
	Block   uint8
	Payload []byte
}

// MakeRequest creates a Request packet for the given filename.
func MakeRequest(filename string) Packet {
	return Packet{Kind: KindRequest, Payload: []byte(filename)}
}

// MakeData creates a Data packet.
func MakeData(block uint8, chunk []byte) Packet {
	return Packet{Kind: KindData, Block: block, Payload: chunk}
}

// MakeAck creates an Ack packet.
func MakeAck(block uint8) Packet {
	return Packet{Kind: KindAck, Block: block}
}

// MakeError creates an Error packet carrying a diagnostic text.
func MakeError(msg string) Packet {
	return Packet{Kind: KindError, Payload: []byte(msg)}
}

// Encode serializes the packet. There is no length field: framing relies on datagram boundaries.
func (p Packet) Encode() []byte {
	if p.Kind.HasBlock() {
		b := make([]byte, blockHeaderLen+len(p.Payload))
		b[0] = byte(p.Kind)
		b[1] = p.Block
		copy(b[blockHeaderLen:], p.Payload)
		return b
	}
	b := make([]byte, headerLen+len(p.Payload))
	b[0] = byte(p.Kind)
	copy(b[headerLen:], p.Payload)
	return b
}

// String implements fmt.Stringer
func (p Packet) String() string {
	if p.Kind.HasBlock() {
		return fmt.Sprintf("<kind:%s><block:%d><size:%d>", p.Kind, p.Block, len(p.Payload))
	}
	return fmt.Sprintf("<kind:%s><size:%d>", p.Kind, len(p.Payload))
}

// Decode parses a raw datagram payload.
// Unknown kinds are accepted structurally with their payload starting at byte 1;
// it is up to the session logic to reject them. The Ack payload is never extracted.
func Decode(b []byte) (Packet, error) {
	if len(b) < headerLen {
		return Packet{}, ErrMalformedPacket
	}
	p := Packet{Kind: Kind(b[0])}

	switch p.Kind {
	case KindAck:
		if len(b) < blockHeaderLen {
			return Packet{}, ErrMalformedPacket
		}
		p.Block = b[1]
	case KindData:
		if len(b) < blockHeaderLen || len(b)-blockHeaderLen > BlockSize {
			return Packet{}, ErrMalformedPacket
		}
		p.Block = b[1]
		p.Payload = copyBytes(b[blockHeaderLen:])
	default:
		p.Payload = copyBytes(b[headerLen:])
	}
	return p, nil
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
