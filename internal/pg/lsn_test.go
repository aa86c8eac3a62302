package pg

import "testing"

func TestLSN_String(t *testing.T) {
	tests := []struct {
		name string
		lsn  LSN
		want string
	}{
		{"zero", 0, "0/0"},
		{"low half only", 0x16B3748, "0/16B3748"},
		{"both halves", (2 << 32) | 0x3000170, "2/3000170"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.lsn.String(); got != tt.want {
				t.Errorf("String() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseLSN(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    LSN
		wantErr bool
	}{
		{"round trip", "2/3000170", (2 << 32) | 0x3000170, false},
		{"zero", "0/0", 0, false},
		{"garbage", "not-an-lsn", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLSN(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLSN(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseXID(t *testing.T) {
	xid, err := ParseXID("756423")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if xid != 756423 {
		t.Errorf("ParseXID = %d, want 756423", xid)
	}
	if xid.String() != "756423" {
		t.Errorf("String() = %s, want 756423", xid.String())
	}

	if _, err := ParseXID("abc"); err == nil {
		t.Error("expected error for non-numeric xid")
	}
}
