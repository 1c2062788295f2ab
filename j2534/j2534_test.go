// j2534/j2534_test.go
package j2534

import "testing"

func TestFamilyMappingIsTotal(t *testing.T) {
	want := map[Protocol]Family{
		CAN:        FamilyCAN,
		ISO15765:   FamilyCAN,
		ISO9141:    FamilyKLine,
		ISO14230:   FamilyKLine,
		J1850PWM:   FamilyJ1850,
		J1850VPW:   FamilyJ1850,
		SCIAEngine: FamilySCI,
		SCIATrans:  FamilySCI,
		SCIBEngine: FamilySCI,
		SCIBTrans:  FamilySCI,
	}
	for raw := uint32(1); raw <= 10; raw++ {
		p, ok := ProtocolFromRaw(raw)
		if !ok {
			t.Fatalf("protocol 0x%02X missing from enum", raw)
		}
		if got := p.Family(); got != want[p] {
			t.Errorf("%s -> %s, want %s", p, got, want[p])
		}
	}
}

func TestProtocolFromRawRejectsUnknown(t *testing.T) {
	for _, raw := range []uint32{0, 11, 0x8000} {
		if _, ok := ProtocolFromRaw(raw); ok {
			t.Errorf("0x%X accepted as protocol", raw)
		}
	}
}

func TestFamilyFromID(t *testing.T) {
	for id := uint32(0); id < NumFamilies; id++ {
		if _, err := FamilyFromID(id); err != nil {
			t.Errorf("id %d rejected: %v", id, err)
		}
	}
	if _, err := FamilyFromID(4); err == nil {
		t.Fatal("id 4 accepted")
	}
}

func TestIoctlIDFromRaw(t *testing.T) {
	if _, ok := IoctlIDFromRaw(uint32(ReadVBatt)); !ok {
		t.Fatal("READ_VBATT rejected")
	}
	if _, ok := IoctlIDFromRaw(0x06); ok {
		t.Fatal("reserved ioctl id 0x06 accepted")
	}
}

func TestConfigParamFromRaw(t *testing.T) {
	if _, ok := ConfigParamFromRaw(uint32(DataRate)); !ok {
		t.Fatal("DATA_RATE rejected")
	}
	for _, raw := range []uint32{0x00, 0x02, 0x20, 0x7000} {
		if _, ok := ConfigParamFromRaw(raw); ok {
			t.Errorf("0x%X accepted as config param", raw)
		}
	}
}

func TestMsgBytes(t *testing.T) {
	var m Msg
	m.SetBytes([]byte{1, 2, 3})
	if m.DataSize != 3 || len(m.Bytes()) != 3 {
		t.Fatalf("DataSize = %d, Bytes len = %d", m.DataSize, len(m.Bytes()))
	}

	// A hostile DataSize must not walk past the inline buffer.
	m.DataSize = MaxDataSize + 100
	if len(m.Bytes()) != MaxDataSize {
		t.Fatalf("Bytes len = %d, want clamp at %d", len(m.Bytes()), MaxDataSize)
	}

	// SetBytes truncates at the record's capacity.
	m.SetBytes(make([]byte, MaxDataSize+5))
	if m.DataSize != MaxDataSize {
		t.Fatalf("DataSize = %d after oversized SetBytes", m.DataSize)
	}
}
