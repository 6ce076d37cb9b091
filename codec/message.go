package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/compose-network/hyperlane-eutxo"
)

// HeaderLen is the size of the fixed message header:
// version(1) | nonce(4) | origin(4) | sender(32) | destination(4) | recipient(32).
const HeaderLen = 1 + 4 + 4 + 32 + 4 + 32

// Message is immutable once dispatched; its ID is the keccak256 of Encode().
type Message struct {
	Version     uint8
	Nonce       uint32
	Origin      hyperlane.Domain
	Sender      hyperlane.Bytes32
	Destination hyperlane.Domain
	Recipient   hyperlane.Bytes32
	Body        []byte
}

func (m Message) Encode() []byte {
	out := make([]byte, HeaderLen+len(m.Body))
	out[0] = m.Version
	binary.BigEndian.PutUint32(out[1:5], m.Nonce)
	binary.BigEndian.PutUint32(out[5:9], uint32(m.Origin))
	copy(out[9:41], m.Sender[:])
	binary.BigEndian.PutUint32(out[41:45], uint32(m.Destination))
	copy(out[45:77], m.Recipient[:])
	copy(out[77:], m.Body)
	return out
}

func DecodeMessage(b []byte) (Message, error) {
	if len(b) < HeaderLen {
		return Message{}, fmt.Errorf("message is %d bytes, header needs %d: %w",
			len(b), HeaderLen, hyperlane.ErrMalformedMessage)
	}
	m := Message{
		Version:     b[0],
		Nonce:       binary.BigEndian.Uint32(b[1:5]),
		Origin:      hyperlane.Domain(binary.BigEndian.Uint32(b[5:9])),
		Destination: hyperlane.Domain(binary.BigEndian.Uint32(b[41:45])),
		Body:        append([]byte{}, b[77:]...),
	}
	copy(m.Sender[:], b[9:41])
	copy(m.Recipient[:], b[45:77])
	return m, nil
}

func (m Message) ID() hyperlane.Bytes32 {
	return hyperlane.Bytes32(crypto.Keccak256Hash(m.Encode()))
}

func (m Message) Equal(o Message) bool {
	return m.Version == o.Version &&
		m.Nonce == o.Nonce &&
		m.Origin == o.Origin &&
		m.Sender == o.Sender &&
		m.Destination == o.Destination &&
		m.Recipient == o.Recipient &&
		bytes.Equal(m.Body, o.Body)
}

// VerifyID recomputes the id of the encoded message and compares it to the
// id claimed by a caller.
func VerifyID(encoded []byte, claimed hyperlane.Bytes32) (Message, error) {
	m, err := DecodeMessage(encoded)
	if err != nil {
		return Message{}, err
	}
	if id := m.ID(); id != claimed {
		return Message{}, fmt.Errorf("message id %s does not match claimed %s: %w",
			id, claimed, hyperlane.ErrMalformedMessage)
	}
	return m, nil
}
