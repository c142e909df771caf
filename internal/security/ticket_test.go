package security

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

const testKey = "4a7d1ed414474e4033ac29ccb8653d9b4a7d1ed414474e4033ac29ccb8653d9b"

func TestGenerateTicketId(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := GenerateTicketId()
		if !strings.HasPrefix(id, "TCK") {
			t.Fatalf("GenerateTicketId() = %q, want TCK prefix", id)
		}
		if id != strings.ToUpper(id) {
			t.Fatalf("GenerateTicketId() = %q, want uppercase", id)
		}
		if seen[id] {
			t.Fatalf("GenerateTicketId() produced duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	p := NewTicketPayload("TCKABC123", "GJ05AB1234", "device-1", testKey, 24)

	if p.Sig == "" {
		t.Fatal("NewTicketPayload() left Sig empty")
	}
	if p.Sig != SignPayload(p, testKey) {
		t.Error("Sig does not match SignPayload over the same fields")
	}
	if !VerifySignature(p, testKey) {
		t.Error("VerifySignature() = false for a freshly signed payload")
	}
	if VerifySignature(p, "0000") {
		t.Error("VerifySignature() = true under a different key")
	}
}

func TestVerifySignatureTamper(t *testing.T) {
	base := NewTicketPayload("TCKABC123", "GJ05AB1234", "device-1", testKey, 24)

	tests := []struct {
		name   string
		mutate func(p *TicketPayload)
	}{
		{name: "ticketId", mutate: func(p *TicketPayload) { p.TicketId = "TCKXYZ999" }},
		{name: "vehicleNo", mutate: func(p *TicketPayload) { p.VehicleNo = "MH01XX0001" }},
		{name: "entryTime", mutate: func(p *TicketPayload) { p.EntryTime = "2020-01-01T00:00:00Z" }},
		{name: "expiry", mutate: func(p *TicketPayload) { p.Expiry = "2099-01-01T00:00:00Z" }},
		{name: "deviceId", mutate: func(p *TicketPayload) { p.DeviceId = "device-2" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			if VerifySignature(p, testKey) {
				t.Errorf("VerifySignature() = true after tampering with %s", tt.name)
			}
		})
	}
}

func TestVerifySignatureFailsClosed(t *testing.T) {
	p := NewTicketPayload("TCKABC123", "GJ05AB1234", "device-1", testKey, 24)

	missing := p
	missing.Sig = ""
	if VerifySignature(missing, testKey) {
		t.Error("VerifySignature() = true with no signature")
	}

	malformed := p
	malformed.Sig = "not-hex!!"
	if VerifySignature(malformed, testKey) {
		t.Error("VerifySignature() = true with malformed signature")
	}

	truncated := p
	truncated.Sig = p.Sig[:16]
	if VerifySignature(truncated, testKey) {
		t.Error("VerifySignature() = true with truncated signature")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := NewTicketPayload("TCKABC123", "GJ05AB1234", "device-1", testKey, 24)

	got, err := DecodePayload(EncodePayload(p))
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if got != p {
		t.Errorf("round trip = %+v, want %+v", got, p)
	}
	if !VerifySignature(got, testKey) {
		t.Error("decoded payload no longer verifies")
	}
}

func TestDecodePayloadRejects(t *testing.T) {
	valid := NewTicketPayload("TCKABC123", "GJ05AB1234", "device-1", testKey, 24)

	noSig := valid
	noSig.Sig = ""
	noVersion := valid
	noVersion.V = 0
	noId := valid
	noId.TicketId = ""

	tests := []struct {
		name string
		code string
	}{
		{name: "notBase64", code: "%%%not base64%%%"},
		{name: "notJSON", code: base64.StdEncoding.EncodeToString([]byte("not json"))},
		{name: "missingSig", code: EncodePayload(noSig)},
		{name: "missingVersion", code: EncodePayload(noVersion)},
		{name: "missingTicketId", code: EncodePayload(noId)},
		{name: "empty", code: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodePayload(tt.code); err != ErrInvalidPayload {
				t.Errorf("DecodePayload() error = %v, want ErrInvalidPayload", err)
			}
		})
	}
}

func TestExpiredBoundary(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expiry string
		want   bool
	}{
		{name: "beforeExpiry", expiry: now.Add(time.Minute).Format(time.RFC3339), want: false},
		{name: "exactlyAtExpiry", expiry: now.Format(time.RFC3339), want: true},
		{name: "afterExpiry", expiry: now.Add(-time.Minute).Format(time.RFC3339), want: true},
		{name: "malformedExpiry", expiry: "not-a-time", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := TicketPayload{Expiry: tt.expiry}
			if got := Expired(p, now); got != tt.want {
				t.Errorf("Expired(%q) = %v, want %v", tt.expiry, got, tt.want)
			}
		})
	}
}

func TestNewTicketPayloadWindow(t *testing.T) {
	p := NewTicketPayload("TCKABC123", "GJ05AB1234", "device-1", testKey, 0)

	entry, err := time.Parse(time.RFC3339, p.EntryTime)
	if err != nil {
		t.Fatalf("bad entryTime %q: %v", p.EntryTime, err)
	}
	exp, err := time.Parse(time.RFC3339, p.Expiry)
	if err != nil {
		t.Fatalf("bad expiry %q: %v", p.Expiry, err)
	}
	if got := exp.Sub(entry); got != 24*time.Hour {
		t.Errorf("validity window = %v, want 24h default", got)
	}
}

func TestGenerateDeviceKey(t *testing.T) {
	k := GenerateDeviceKey()
	if len(k) != 64 {
		t.Fatalf("GenerateDeviceKey() length = %d, want 64 hex chars", len(k))
	}
	if k == GenerateDeviceKey() {
		t.Error("GenerateDeviceKey() returned the same key twice")
	}
}
