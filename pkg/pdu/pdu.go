// Package pdu encodes and decodes Link Layer Control PDUs. Endian
// conversion for multi-byte wire fields happens only here; every other
// package deals exclusively in host-order Go values.
package pdu

import (
	"encoding/binary"
	"fmt"
)

// LLID values for the link-layer PDU header. LLIDControl marks a Control
// PDU as opposed to empty or data payloads.
const LLIDControl uint8 = 0b11

// Control PDU opcodes.
const (
	OpcodeVersionInd uint8 = 0x0C
)

const (
	// versionIndHeaderOffset is the size, in octets, of the opcode field
	// that precedes the version-exchange payload within the control PDU
	// body — mirrors offsetof(struct pdu_data_llctrl, version_ind) in the
	// source this protocol is drawn from.
	versionIndHeaderOffset = 1
	versionIndPayloadSize  = 5
)

// VersionRecord is the payload of an LL_VERSION_IND PDU.
type VersionRecord struct {
	VersionNumber uint8
	CompanyID     uint16
	SubVersion    uint16
}

// ControlPDU is the on-the-wire envelope for a Link Layer Control PDU.
type ControlPDU struct {
	LLID    uint8
	Length  uint8
	Opcode  uint8
	Payload []byte
}

// MarshalBinary renders the PDU to wire bytes: LLID, length, opcode,
// payload, in that order.
func (p *ControlPDU) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 3+len(p.Payload))
	buf[0] = p.LLID
	buf[1] = p.Length
	buf[2] = p.Opcode
	copy(buf[3:], p.Payload)
	return buf, nil
}

// ErrShortPDU is returned when a buffer is too small to hold a valid
// ControlPDU or a recognized payload.
var ErrShortPDU = fmt.Errorf("pdu: buffer too short")

// UnmarshalControlPDU parses wire bytes produced by MarshalBinary.
func UnmarshalControlPDU(raw []byte) (*ControlPDU, error) {
	if len(raw) < 3 {
		return nil, ErrShortPDU
	}
	payload := make([]byte, len(raw)-3)
	copy(payload, raw[3:])
	return &ControlPDU{
		LLID:    raw[0],
		Length:  raw[1],
		Opcode:  raw[2],
		Payload: payload,
	}, nil
}

func encodeVersionInd(rec VersionRecord) *ControlPDU {
	payload := make([]byte, versionIndPayloadSize)
	payload[0] = rec.VersionNumber
	binary.LittleEndian.PutUint16(payload[1:3], rec.CompanyID)
	binary.LittleEndian.PutUint16(payload[3:5], rec.SubVersion)
	return &ControlPDU{
		LLID:    LLIDControl,
		Length:  versionIndHeaderOffset + versionIndPayloadSize,
		Opcode:  OpcodeVersionInd,
		Payload: payload,
	}
}

// EncodeVersionIndRequest builds an LL_VERSION_IND carrying our own
// identity, to be sent as the initiating request of a local-lane exchange.
func EncodeVersionIndRequest(identity VersionRecord) *ControlPDU {
	return encodeVersionInd(identity)
}

// EncodeVersionIndResponse builds an LL_VERSION_IND carrying our own
// identity, to be sent as the remote-lane's response to a peer request.
// The wire shape is identical to the request; the two are kept as distinct
// entry points because future procedures will not share this symmetry.
func EncodeVersionIndResponse(identity VersionRecord) *ControlPDU {
	return encodeVersionInd(identity)
}

// EncodeVersionIndNotification builds the host-notification PDU carrying
// the peer's (cached) version record rather than our own.
func EncodeVersionIndNotification(cached VersionRecord) *ControlPDU {
	return encodeVersionInd(cached)
}

// DecodeVersionInd extracts a VersionRecord from a decoded control PDU.
func DecodeVersionInd(p *ControlPDU) (VersionRecord, error) {
	if p.Opcode != OpcodeVersionInd {
		return VersionRecord{}, fmt.Errorf("pdu: opcode 0x%02X is not VERSION_IND", p.Opcode)
	}
	if len(p.Payload) < versionIndPayloadSize {
		return VersionRecord{}, ErrShortPDU
	}
	return VersionRecord{
		VersionNumber: p.Payload[0],
		CompanyID:     binary.LittleEndian.Uint16(p.Payload[1:3]),
		SubVersion:    binary.LittleEndian.Uint16(p.Payload[3:5]),
	}, nil
}
