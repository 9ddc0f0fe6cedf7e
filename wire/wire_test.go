package wire

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Type: DataStdout, Length: 42}
	got, err := DecodeHeader(EncodeHeader(h))
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestDecodeHeaderShort(t *testing.T) {
	if _, err := DecodeHeader([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding a short header, got nil")
	}
}

func TestPeerInfoRoundTrip(t *testing.T) {
	p := PeerInfo{Version: ProtocolVersion}
	got, err := UnpackPeerInfo(PackPeerInfo(p))
	if err != nil {
		t.Fatalf("UnpackPeerInfo: %v", err)
	}
	if got != p {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestExecParamsRoundTrip(t *testing.T) {
	p := ExecParams{ConnectDomain: 7, ConnectPort: 1337, Cmdline: []byte("alice:cat\x00")}
	packed := PackExecParams(p)
	got, err := UnpackExecParams(packed)
	if err != nil {
		t.Fatalf("UnpackExecParams: %v", err)
	}
	if got.ConnectDomain != p.ConnectDomain || got.ConnectPort != p.ConnectPort {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
	if !bytes.Equal(got.Cmdline, p.Cmdline) {
		t.Fatalf("cmdline mismatch: got %q, want %q", got.Cmdline, p.Cmdline)
	}
}

func TestExecParamsFixedPrefix(t *testing.T) {
	p := ExecParams{ConnectDomain: 9, ConnectPort: 512, Cmdline: []byte("x:y\x00")}
	packed := PackExecParams(p)
	if !bytes.Equal(p.FixedPrefix(), packed[:execParamsFixedSize]) {
		t.Fatal("FixedPrefix must equal the first 8 bytes of the packed payload")
	}
}

func TestParseCmdline(t *testing.T) {
	cases := []struct {
		in       string
		wantUser string
		wantCmd  string
		wantErr  bool
	}{
		{"user:/bin/true\x00", "user", "/bin/true", false},
		{"alice:cat\x00", "alice", "cat", false},
		{"no-colon\x00", "", "", true},
		{"user:cmd", "", "", true}, // missing NUL
		{"", "", "", true},
	}

	for _, tc := range cases {
		user, cmd, err := ParseCmdline([]byte(tc.in))
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseCmdline(%q): expected error, got none", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCmdline(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if user != tc.wantUser || cmd != tc.wantCmd {
			t.Errorf("ParseCmdline(%q) = (%q, %q), want (%q, %q)", tc.in, user, cmd, tc.wantUser, tc.wantCmd)
		}
	}
}

func TestExitStatusRoundTrip(t *testing.T) {
	cases := []int64{0, 1, 255, -1, -255}
	for _, rc := range cases {
		s := ExitStatus{ReturnCode: rc}
		got, err := UnpackExitStatus(PackExitStatus(s))
		if err != nil {
			t.Fatalf("UnpackExitStatus(%d): %v", rc, err)
		}
		if got != s {
			t.Fatalf("round trip mismatch for %d: got %+v", rc, got)
		}
	}
}

func TestTypeStringUnknown(t *testing.T) {
	if got := Type(99).String(); got != "unknown(99)" {
		t.Fatalf("Type(99).String() = %q, want %q", got, "unknown(99)")
	}
}
