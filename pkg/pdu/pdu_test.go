package pdu

import "testing"

func TestVersionIndRoundTrip(t *testing.T) {
	rec := VersionRecord{VersionNumber: 0x0A, CompanyID: 0x1234, SubVersion: 0x5678}

	p := EncodeVersionIndRequest(rec)
	if p.LLID != LLIDControl {
		t.Fatalf("LLID = %#b, want control", p.LLID)
	}
	if p.Opcode != OpcodeVersionInd {
		t.Fatalf("opcode = %#x, want %#x", p.Opcode, OpcodeVersionInd)
	}
	if int(p.Length) != len(p.Payload)+versionIndHeaderOffset {
		t.Fatalf("length = %d, want %d", p.Length, len(p.Payload)+versionIndHeaderOffset)
	}

	raw, err := p.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded, err := UnmarshalControlPDU(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, err := DecodeVersionInd(decoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != rec {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, rec)
	}
}

func TestLittleEndianWireBytes(t *testing.T) {
	rec := VersionRecord{VersionNumber: 0x0A, CompanyID: 0x1234, SubVersion: 0x5678}
	p := encodeVersionInd(rec)

	wantCompany := []byte{0x34, 0x12}
	if p.Payload[1] != wantCompany[0] || p.Payload[2] != wantCompany[1] {
		t.Fatalf("company_id bytes = %02x %02x, want %02x %02x", p.Payload[1], p.Payload[2], wantCompany[0], wantCompany[1])
	}
	wantSub := []byte{0x78, 0x56}
	if p.Payload[3] != wantSub[0] || p.Payload[4] != wantSub[1] {
		t.Fatalf("sub_version bytes = %02x %02x, want %02x %02x", p.Payload[3], p.Payload[4], wantSub[0], wantSub[1])
	}
}

func TestDecodeRejectsWrongOpcode(t *testing.T) {
	p := &ControlPDU{Opcode: 0xFF, Payload: make([]byte, versionIndPayloadSize)}
	if _, err := DecodeVersionInd(p); err == nil {
		t.Fatal("expected error decoding wrong opcode")
	}
}

func TestDecodeRejectsShortPayload(t *testing.T) {
	p := &ControlPDU{Opcode: OpcodeVersionInd, Payload: []byte{0x0A, 0x12}}
	if _, err := DecodeVersionInd(p); err == nil {
		t.Fatal("expected error decoding short payload")
	}
}

func TestUnmarshalRejectsShortBuffer(t *testing.T) {
	if _, err := UnmarshalControlPDU([]byte{0x03, 0x06}); err == nil {
		t.Fatal("expected error unmarshaling short buffer")
	}
}
