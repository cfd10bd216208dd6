package zilctest

import "testing"

// Scenario 1 from spec §8: the minimal compiling program.
func TestMinimalProgram(t *testing.T) {
	h := New(t, 3)
	r := h.MustCompile(`<VERSION 3> <ROUTINE GO () <QUIT>>`)

	if r.Image[0] != 0x03 {
		t.Errorf("header version byte = 0x%02X, want 0x03", r.Image[0])
	}
	if len(r.Image) < 64 {
		t.Fatalf("image too short: %d bytes", len(r.Image))
	}
	if err := CheckFileLength(r.Image); err != nil {
		t.Error(err)
	}
	if err := CheckChecksum(r.Image); err != nil {
		t.Error(err)
	}
	if err := CheckMemoryRegionOrder(r.Image); err != nil {
		t.Error(err)
	}

	// GO's body is just <QUIT>: its first instruction byte must be the
	// real 0xBA quit opcode, not a call to an unresolved routine named
	// QUIT (the bug this scenario exists to catch).
	divisor := divisorFor(3)
	initialPC := int(r.Image[6])<<8 | int(r.Image[7])
	byteOffset := initialPC * divisor
	if byteOffset <= 0 || byteOffset >= len(r.Image) {
		t.Fatalf("initial PC byte offset out of range: %d", byteOffset)
	}
	if got := r.Image[byteOffset]; got != 0xBA {
		t.Errorf("GO's first instruction byte = 0x%02X, want 0xBA (quit)", got)
	}
}

// Scenario 4 from spec §8: packed initial PC scales with the version's
// divisor and always points at GO's first instruction byte offset.
func TestPackedAddressAcrossVersions(t *testing.T) {
	src := `<ROUTINE GO () <QUIT>>`
	for _, tc := range []struct {
		version, divisor int
	}{
		{3, 2},
		{5, 4},
		{8, 8},
	} {
		h := New(t, tc.version)
		r := h.MustCompile(src)
		initialPC := int(r.Image[6])<<8 | int(r.Image[7])
		byteOffset := initialPC * tc.divisor
		if byteOffset <= 0 {
			t.Errorf("version %d: byte offset from packed PC is non-positive: %d", tc.version, byteOffset)
		}
		if err := CheckFileLength(r.Image); err != nil {
			t.Errorf("version %d: %v", tc.version, err)
		}
	}
}

// Boundary behavior from spec §8: a routine with 16 locals is rejected.
func TestTooManyLocalsRejected(t *testing.T) {
	h := New(t, 3)
	src := `<ROUTINE TOOMANY (A B C D E F G H I J K L M N O P) <RFALSE>>
	        <ROUTINE GO () <QUIT>>`
	if _, err := h.Compile(src); err == nil {
		t.Fatal("expected an error for a routine with 16 locals, got nil")
	}
}
