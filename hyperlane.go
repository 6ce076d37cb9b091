package hyperlane

import (
	"encoding/hex"
)

const (
	// Version of the message format produced and accepted by the mailbox.
	MessageVersion uint8 = 3

	// Depth of the outbound merkle accumulator.
	TreeDepth = 32
)

type (
	Domain  uint32
	Bytes32 [32]byte
	// Hash28 is a script or key hash in the destination ledger family.
	Hash28 [28]byte
)

// Credential prefixes used to widen a 28-byte ledger hash into a 32-byte
// cross-chain address.
var (
	KeyAddressPrefix    = [4]byte{0x01, 0x00, 0x00, 0x00}
	ScriptAddressPrefix = [4]byte{0x02, 0x00, 0x00, 0x00}
)

func (b Bytes32) String() string {
	return hex.EncodeToString(b[:])
}

func (b Bytes32) IsZero() bool {
	return b == Bytes32{}
}

func (h Hash28) String() string {
	return hex.EncodeToString(h[:])
}

func BytesToBytes32(b []byte) Bytes32 {
	var out Bytes32
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(out[32-len(b):], b)
	return out
}

// ScriptAddress left-pads a script hash with the script credential prefix.
func ScriptAddress(h Hash28) Bytes32 {
	return widen(ScriptAddressPrefix, h)
}

// KeyAddress left-pads a key hash with the key credential prefix.
func KeyAddress(h Hash28) Bytes32 {
	return widen(KeyAddressPrefix, h)
}

func widen(prefix [4]byte, h Hash28) Bytes32 {
	var out Bytes32
	copy(out[:4], prefix[:])
	copy(out[4:], h[:])
	return out
}

// ScriptHash returns the script hash carried by a script-credential address.
func (b Bytes32) ScriptHash() (Hash28, bool) {
	return b.narrow(ScriptAddressPrefix)
}

// KeyHash returns the key hash carried by a key-credential address.
func (b Bytes32) KeyHash() (Hash28, bool) {
	return b.narrow(KeyAddressPrefix)
}

func (b Bytes32) narrow(prefix [4]byte) (Hash28, bool) {
	var h Hash28
	if [4]byte(b[:4]) != prefix {
		return h, false
	}
	copy(h[:], b[4:])
	return h, true
}

// DeliveryState is the outcome of an inbound delivery as seen by the relayer.
type DeliveryState int

const (
	DeliveryStatePending DeliveryState = iota
	DeliveryStateDelivered
	DeliveryStateAlreadyDelivered
	DeliveryStateRejected
	DeliveryStateStuck
)

func (d DeliveryState) String() string {
	switch d {
	case DeliveryStatePending:
		return "Pending"
	case DeliveryStateDelivered:
		return "Delivered"
	case DeliveryStateAlreadyDelivered:
		return "AlreadyDelivered"
	case DeliveryStateRejected:
		return "Rejected"
	case DeliveryStateStuck:
		return "Stuck"
	default:
		return "Unknown"
	}
}

// Done reports whether no further delivery attempt should be made.
func (d DeliveryState) Done() bool {
	return d != DeliveryStatePending
}
