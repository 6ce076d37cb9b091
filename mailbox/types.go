// Package mailbox is the mailbox state machine. Dispatch advances the
// outbound nonce and accumulator; processing an inbound message never
// changes the mailbox state and is coordinated with the verifier, the
// recipient and the replay marker in one transaction.
package mailbox

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/merkle"
)

// MaxBodyLen bounds the body of a dispatched message.
const MaxBodyLen = 2048

var (
	ErrMissingIdentity = errors.New("record does not hold the mailbox identity")
	ErrUnknownAction   = errors.New("unknown mailbox action")
	ErrMarkerNotMinted = errors.New("replay marker not minted")
	ErrBadTransition   = errors.New("invalid mailbox transition")
)

// Datum is the mailbox state.
type Datum struct {
	LocalDomain uint32
	DefaultIsm  ledger.AssetClass
	Owner       hyperlane.Hash28
	Nonce       uint32
	Tree        merkle.Tree
}

func (d Datum) Encode() []byte {
	b, err := rlp.EncodeToBytes(d)
	if err != nil {
		panic(fmt.Sprintf("encode mailbox datum: %v", err))
	}
	return b
}

func DecodeDatum(b []byte) (Datum, error) {
	var d Datum
	if err := rlp.DecodeBytes(b, &d); err != nil {
		return Datum{}, fmt.Errorf("mailbox datum: %w", err)
	}
	return d, nil
}

// Dispatched returns the message a Dispatch with these arguments would
// produce from state d.
func (d Datum) Dispatched(sender hyperlane.Bytes32, destination hyperlane.Domain, recipient hyperlane.Bytes32, body []byte) codec.Message {
	return codec.Message{
		Version:     hyperlane.MessageVersion,
		Nonce:       d.Nonce,
		Origin:      hyperlane.Domain(d.LocalDomain),
		Sender:      sender,
		Destination: destination,
		Recipient:   recipient,
		Body:        hyperlane.CloneBytes(body),
	}
}

// AfterDispatch is the state following the dispatch of msg.
func (d Datum) AfterDispatch(msg codec.Message) (Datum, error) {
	next := d
	if err := next.Tree.Insert(msg.ID()); err != nil {
		return Datum{}, err
	}
	next.Nonce++
	return next, nil
}

// Process is the inbound payload. Metadata is only needed when the verifier
// is referenced rather than spent.
type Process struct {
	Message   []byte
	Metadata  []byte
	MessageID hyperlane.Bytes32
}

func NewProcess(msg codec.Message, md *codec.Metadata) Process {
	p := Process{Message: msg.Encode(), MessageID: msg.ID()}
	if md != nil {
		p.Metadata = md.Encode()
	}
	return p
}

func (p Process) Encode() []byte {
	b, err := rlp.EncodeToBytes(p)
	if err != nil {
		panic(fmt.Sprintf("encode process: %v", err))
	}
	return b
}

func DecodeProcess(b []byte) (Process, error) {
	var p Process
	if err := rlp.DecodeBytes(b, &p); err != nil {
		return Process{}, fmt.Errorf("process payload: %w", err)
	}
	return p, nil
}

type Action uint8

const (
	ActionDispatch Action = iota
	ActionProcess
	ActionSetDefaultIsm
	ActionTransferOwnership
)

func (a Action) String() string {
	switch a {
	case ActionDispatch:
		return "Dispatch"
	case ActionProcess:
		return "Process"
	case ActionSetDefaultIsm:
		return "SetDefaultIsm"
	case ActionTransferOwnership:
		return "TransferOwnership"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// Redeemer is the instruction the mailbox record is spent with. Only the
// fields of the chosen action are meaningful.
type Redeemer struct {
	Action      Action
	Destination uint32
	Recipient   hyperlane.Bytes32
	Sender      hyperlane.Bytes32
	Body        []byte
	Process     Process
	Ism         ledger.AssetClass
	Owner       hyperlane.Hash28
}

func DispatchRedeemer(sender hyperlane.Bytes32, destination hyperlane.Domain, recipient hyperlane.Bytes32, body []byte) Redeemer {
	return Redeemer{
		Action:      ActionDispatch,
		Destination: uint32(destination),
		Recipient:   recipient,
		Sender:      sender,
		Body:        body,
	}
}

func ProcessRedeemer(p Process) Redeemer {
	return Redeemer{Action: ActionProcess, Process: p}
}

func SetDefaultIsmRedeemer(ism ledger.AssetClass) Redeemer {
	return Redeemer{Action: ActionSetDefaultIsm, Ism: ism}
}

func TransferOwnershipRedeemer(owner hyperlane.Hash28) Redeemer {
	return Redeemer{Action: ActionTransferOwnership, Owner: owner}
}

func (r Redeemer) Encode() []byte {
	b, err := rlp.EncodeToBytes(r)
	if err != nil {
		panic(fmt.Sprintf("encode mailbox redeemer: %v", err))
	}
	return b
}

func DecodeRedeemer(b []byte) (Redeemer, error) {
	var r Redeemer
	if err := rlp.DecodeBytes(b, &r); err != nil {
		return Redeemer{}, fmt.Errorf("mailbox redeemer: %w", err)
	}
	return r, nil
}

// Handle is the instruction a recipient is exercised with when it receives
// a message.
type Handle struct {
	MessageID hyperlane.Bytes32
	Origin    uint32
	Sender    hyperlane.Bytes32
	Body      []byte
}

func HandleFor(msg codec.Message) Handle {
	return Handle{
		MessageID: msg.ID(),
		Origin:    uint32(msg.Origin),
		Sender:    msg.Sender,
		Body:      hyperlane.CloneBytes(msg.Body),
	}
}

func (h Handle) Matches(msg codec.Message) bool {
	return h.MessageID == msg.ID() &&
		h.Origin == uint32(msg.Origin) &&
		h.Sender == msg.Sender &&
		string(h.Body) == string(msg.Body)
}

type RecipientAction uint8

const (
	RecipientHandle RecipientAction = iota
	// RecipientControl is an owner-authorised action. Payload, when set, is
	// the replacement state.
	RecipientControl
	// RecipientProcessStored consumes a stored message in a second phase.
	RecipientProcessStored
)

// RecipientRedeemer is the instruction every recipient record is spent with.
type RecipientRedeemer struct {
	Action  RecipientAction
	Handle  Handle
	Payload []byte
}

func HandleRedeemer(msg codec.Message) RecipientRedeemer {
	return RecipientRedeemer{Action: RecipientHandle, Handle: HandleFor(msg)}
}

func ControlRedeemer(payload []byte) RecipientRedeemer {
	return RecipientRedeemer{Action: RecipientControl, Payload: payload}
}

func ProcessStoredRedeemer(id hyperlane.Bytes32) RecipientRedeemer {
	return RecipientRedeemer{Action: RecipientProcessStored, Handle: Handle{MessageID: id}}
}

func (r RecipientRedeemer) Encode() []byte {
	b, err := rlp.EncodeToBytes(r)
	if err != nil {
		panic(fmt.Sprintf("encode recipient redeemer: %v", err))
	}
	return b
}

func DecodeRecipientRedeemer(b []byte) (RecipientRedeemer, error) {
	var r RecipientRedeemer
	if err := rlp.DecodeBytes(b, &r); err != nil {
		return RecipientRedeemer{}, fmt.Errorf("recipient redeemer: %w", err)
	}
	return r, nil
}

// StoredMessage is held by a deferred recipient until a second, independent
// step consumes it.
type StoredMessage struct {
	Origin    uint32
	Sender    hyperlane.Bytes32
	Body      []byte
	MessageID hyperlane.Bytes32
	Nonce     uint32
}

func StoredMessageFor(msg codec.Message) StoredMessage {
	return StoredMessage{
		Origin:    uint32(msg.Origin),
		Sender:    msg.Sender,
		Body:      hyperlane.CloneBytes(msg.Body),
		MessageID: msg.ID(),
		Nonce:     msg.Nonce,
	}
}

func (s StoredMessage) Matches(msg codec.Message) bool {
	return s.MessageID == msg.ID() &&
		s.Origin == uint32(msg.Origin) &&
		s.Sender == msg.Sender &&
		s.Nonce == msg.Nonce &&
		string(s.Body) == string(msg.Body)
}

func (s StoredMessage) Encode() []byte {
	b, err := rlp.EncodeToBytes(s)
	if err != nil {
		panic(fmt.Sprintf("encode stored message: %v", err))
	}
	return b
}

func DecodeStoredMessage(b []byte) (StoredMessage, error) {
	var s StoredMessage
	if err := rlp.DecodeBytes(b, &s); err != nil {
		return StoredMessage{}, fmt.Errorf("stored message: %w", err)
	}
	return s, nil
}

// MarkerAsset is the replay marker of message id under policy.
func MarkerAsset(policy hyperlane.Hash28, id hyperlane.Bytes32) ledger.AssetClass {
	return ledger.AssetClass{Policy: policy, Name: string(id[:])}
}

// ProofAsset is the message-proof token a deferred recipient mints under its
// own script hash for message id.
func ProofAsset(recipient hyperlane.Hash28, id hyperlane.Bytes32) ledger.AssetClass {
	return ledger.AssetClass{Policy: recipient, Name: string(id[:])}
}
