package chain

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrMissingSigner is returned when a transaction requires a signature that
// none of the provided signers can produce.
var ErrMissingSigner = errors.New("missing signer")

// AccountMeta describes how an instruction uses an account.
type AccountMeta struct {
	PublicKey  PublicKey
	IsSigner   bool
	IsWritable bool
}

// Meta helpers for building instruction account lists.
func Writable(pk PublicKey) AccountMeta { return AccountMeta{PublicKey: pk, IsWritable: true} }
func Readonly(pk PublicKey) AccountMeta { return AccountMeta{PublicKey: pk} }
func WritableSigner(pk PublicKey) AccountMeta { return AccountMeta{PublicKey: pk, IsSigner: true, IsWritable: true} }
func ReadonlySigner(pk PublicKey) AccountMeta { return AccountMeta{PublicKey: pk, IsSigner: true} }

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// MessageHeader counts the signer and read-only sections of AccountKeys.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction references accounts by index into the message keys.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is a legacy transaction message.
type Message struct {
	Header          MessageHeader
	AccountKeys     []PublicKey
	RecentBlockhash Hash
	Instructions    []CompiledInstruction
}

// NewMessage compiles instructions into a message paid for by payer.
//
// Keys are ordered payer first, then writable signers, read-only signers,
// writable non-signers and read-only non-signers, each group in first-use
// order. A key used several times gets the union of its flags.
func NewMessage(payer PublicKey, instructions []Instruction, blockhash Hash) (Message, error) {
	type entry struct {
		meta  AccountMeta
		order int
	}
	entries := map[PublicKey]*entry{
		payer: {meta: WritableSigner(payer), order: 0},
	}
	order := []PublicKey{payer}
	add := func(m AccountMeta) {
		if e, ok := entries[m.PublicKey]; ok {
			e.meta.IsSigner = e.meta.IsSigner || m.IsSigner
			e.meta.IsWritable = e.meta.IsWritable || m.IsWritable
			return
		}
		entries[m.PublicKey] = &entry{meta: m, order: len(order)}
		order = append(order, m.PublicKey)
	}
	for _, ix := range instructions {
		for _, a := range ix.Accounts {
			add(a)
		}
		add(Readonly(ix.ProgramID))
	}

	var groups [4][]PublicKey
	for _, pk := range order[1:] {
		m := entries[pk].meta
		switch {
		case m.IsSigner && m.IsWritable:
			groups[0] = append(groups[0], pk)
		case m.IsSigner:
			groups[1] = append(groups[1], pk)
		case m.IsWritable:
			groups[2] = append(groups[2], pk)
		default:
			groups[3] = append(groups[3], pk)
		}
	}

	keys := append([]PublicKey{payer}, groups[0]...)
	keys = append(keys, groups[1]...)
	keys = append(keys, groups[2]...)
	keys = append(keys, groups[3]...)
	if len(keys) > 256 {
		return Message{}, fmt.Errorf("transaction references %d accounts", len(keys))
	}

	index := make(map[PublicKey]uint8, len(keys))
	for i, pk := range keys {
		index[pk] = uint8(i)
	}

	msg := Message{
		Header: MessageHeader{
			NumRequiredSignatures:       uint8(1 + len(groups[0]) + len(groups[1])),
			NumReadonlySignedAccounts:   uint8(len(groups[1])),
			NumReadonlyUnsignedAccounts: uint8(len(groups[3])),
		},
		AccountKeys:     keys,
		RecentBlockhash: blockhash,
	}
	for _, ix := range instructions {
		ci := CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID],
			Accounts:       make([]uint8, len(ix.Accounts)),
			Data:           ix.Data,
		}
		for i, a := range ix.Accounts {
			ci.Accounts[i] = index[a.PublicKey]
		}
		msg.Instructions = append(msg.Instructions, ci)
	}
	return msg, nil
}

// Signers returns the keys that must sign the message, in signature order.
func (m Message) Signers() []PublicKey {
	return m.AccountKeys[:m.Header.NumRequiredSignatures]
}

// Serialize encodes the message in the legacy wire format.
func (m Message) Serialize() []byte {
	b := []byte{m.Header.NumRequiredSignatures, m.Header.NumReadonlySignedAccounts, m.Header.NumReadonlyUnsignedAccounts}
	b = appendCompactU16(b, len(m.AccountKeys))
	for _, pk := range m.AccountKeys {
		b = append(b, pk[:]...)
	}
	b = append(b, m.RecentBlockhash[:]...)
	b = appendCompactU16(b, len(m.Instructions))
	for _, ix := range m.Instructions {
		b = append(b, ix.ProgramIDIndex)
		b = appendCompactU16(b, len(ix.Accounts))
		b = append(b, ix.Accounts...)
		b = appendCompactU16(b, len(ix.Data))
		b = append(b, ix.Data...)
	}
	return b
}

// Signer produces transaction signatures.
type Signer interface {
	PublicKey() PublicKey
	Sign(message []byte) Signature
}

// Transaction is a signed legacy transaction.
type Transaction struct {
	Signatures []Signature
	Message    Message
}

// NewTransaction compiles and signs instructions. Every required signer must
// be among signers; extra signers are ignored.
func NewTransaction(instructions []Instruction, blockhash Hash, payer PublicKey, signers ...Signer) (*Transaction, error) {
	msg, err := NewMessage(payer, instructions, blockhash)
	if err != nil {
		return nil, err
	}
	byKey := make(map[PublicKey]Signer, len(signers))
	for _, s := range signers {
		byKey[s.PublicKey()] = s
	}

	data := msg.Serialize()
	tx := &Transaction{Message: msg}
	for _, pk := range msg.Signers() {
		s, ok := byKey[pk]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSigner, pk)
		}
		tx.Signatures = append(tx.Signatures, s.Sign(data))
	}
	return tx, nil
}

// Signature returns the transaction id (the fee payer's signature).
func (t *Transaction) Signature() Signature {
	if len(t.Signatures) == 0 {
		return Signature{}
	}
	return t.Signatures[0]
}

// Verify checks every signature against the message.
func (t *Transaction) Verify() bool {
	data := t.Message.Serialize()
	signers := t.Message.Signers()
	if len(signers) != len(t.Signatures) {
		return false
	}
	for i, pk := range signers {
		if !ed25519.Verify(pk[:], data, t.Signatures[i][:]) {
			return false
		}
	}
	return true
}

// Serialize encodes the signed transaction.
func (t *Transaction) Serialize() []byte {
	b := appendCompactU16(nil, len(t.Signatures))
	for _, s := range t.Signatures {
		b = append(b, s[:]...)
	}
	return append(b, t.Message.Serialize()...)
}

// Base64 returns the serialized transaction as sent to sendTransaction.
func (t *Transaction) Base64() string {
	return base64.StdEncoding.EncodeToString(t.Serialize())
}

// appendCompactU16 appends n in the compact-u16 ("shortvec") encoding.
func appendCompactU16(b []byte, n int) []byte {
	v := uint16(n)
	for {
		elem := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(b, elem)
		}
		b = append(b, elem|0x80)
	}
}
