package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// TicketPayload is the signed, portable form of a ticket embedded in a QR
// code or typed in manually. Immutable once signed.
type TicketPayload struct {
	V         int    `json:"v"`
	TicketId  string `json:"ticketId"`
	VehicleNo string `json:"vehicleNo"`
	EntryTime string `json:"entryTime"`
	Expiry    string `json:"expiry"`
	DeviceId  string `json:"deviceId"`
	Sig       string `json:"sig,omitempty"`
}

// ErrInvalidPayload covers malformed base64, malformed JSON and missing
// required fields. Decoding never panics and never returns a partial payload.
var ErrInvalidPayload = errors.New("invalid ticket payload")

const ticketPrefix = "TCK"

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateTicketId returns a compact, roughly creation-ordered identifier:
// TCK + base36 millisecond timestamp + 6 random base36 chars, uppercased.
func GenerateTicketId() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	var sfx strings.Builder
	for _, b := range buf {
		sfx.WriteByte(base36[int(b)%len(base36)])
	}
	id := ticketPrefix + strconv.FormatInt(time.Now().UnixMilli(), 36) + sfx.String()
	return strings.ToUpper(id)
}

// canonical is the fixed, order-sensitive MAC input. Signer and verifier must
// produce the same string byte for byte.
func canonical(p TicketPayload) string {
	return strings.Join([]string{p.TicketId, p.VehicleNo, p.EntryTime, p.Expiry, p.DeviceId}, "|")
}

// SignPayload computes an HMAC-SHA256 over the canonical payload fields and
// returns the hex digest.
func SignPayload(p TicketPayload, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(canonical(p)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the MAC and compares in constant time. An
// absent or malformed signature fails closed.
func VerifySignature(p TicketPayload, key string) bool {
	if p.Sig == "" {
		return false
	}
	presented, err := hex.DecodeString(p.Sig)
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(SignPayload(p, key))
	if err != nil || len(presented) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare(presented, expected) == 1
}

// NewTicketPayload stamps entry and expiry times and signs the payload with
// the device key. hoursValid <= 0 falls back to the 24h default window.
func NewTicketPayload(ticketId, vehicleNo, deviceId, key string, hoursValid int) TicketPayload {
	if hoursValid <= 0 {
		hoursValid = 24
	}
	now := time.Now().UTC()
	p := TicketPayload{
		V:         1,
		TicketId:  ticketId,
		VehicleNo: vehicleNo,
		EntryTime: now.Format(time.RFC3339),
		Expiry:    now.Add(time.Duration(hoursValid) * time.Hour).Format(time.RFC3339),
		DeviceId:  deviceId,
	}
	p.Sig = SignPayload(p, key)
	return p
}

// EncodePayload serializes the payload as base64(JSON) for QR or manual entry.
func EncodePayload(p TicketPayload) string {
	b, err := json.Marshal(p)
	if err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}

// DecodePayload is the total inverse of EncodePayload. Any defect in the
// encoding, or a missing v/ticketId/sig field, yields ErrInvalidPayload.
func DecodePayload(code string) (TicketPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(code))
	if err != nil {
		return TicketPayload{}, ErrInvalidPayload
	}
	var p TicketPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return TicketPayload{}, ErrInvalidPayload
	}
	if p.V == 0 || p.TicketId == "" || p.Sig == "" {
		return TicketPayload{}, ErrInvalidPayload
	}
	return p, nil
}

// Expired reports whether the payload's validity window has closed at the
// given instant. A payload whose expiry equals now is expired, and an
// unparseable expiry fails closed.
func Expired(p TicketPayload, now time.Time) bool {
	exp, err := time.Parse(time.RFC3339, p.Expiry)
	if err != nil {
		return true
	}
	return !now.Before(exp)
}

// GenerateDeviceKey returns a fresh 32-byte signing secret, hex-encoded.
func GenerateDeviceKey() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
