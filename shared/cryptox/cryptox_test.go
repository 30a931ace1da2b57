package cryptox

import (
	"encoding/json"
	"strings"
	"testing"
)

const testKey = "0000000000000000000000000000000000000000000000000000000000000000"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	codec, err := NewCodec(testKey)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	creds := map[string]string{
		"accessKeyId":     "AKIAEXAMPLE",
		"secretAccessKey": "secret/with:colons",
		"region":          "us-east-1",
	}
	raw, _ := json.Marshal(creds)

	blob, err := codec.Encrypt(raw)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if len(strings.Split(blob, ":")) != 3 {
		t.Fatalf("expected iv:tag:ciphertext, got %q", blob)
	}

	plain, err := codec.Decrypt(blob)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(plain, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["secretAccessKey"] != creds["secretAccessKey"] {
		t.Fatalf("round trip mismatch: %#v", got)
	}
}

func TestDecryptLegacyPlainJSON(t *testing.T) {
	codec, err := NewCodec("")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	if !codec.Insecure() {
		t.Fatalf("expected keyless codec to report insecure mode")
	}
	legacy := `{"accessKeyId":"AKIAEXAMPLE","region":"us-east-1"}`
	plain, err := codec.Decrypt(legacy)
	if err != nil {
		t.Fatalf("legacy decrypt: %v", err)
	}
	if string(plain) != legacy {
		t.Fatalf("legacy blob must pass through unchanged")
	}
}

func TestDecryptTamperedBlobFails(t *testing.T) {
	codec, _ := NewCodec(testKey)
	blob, err := codec.Encrypt([]byte(`{"token":"x"}`))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	parts := strings.Split(blob, ":")
	tampered := parts[0] + ":" + parts[1] + ":" + parts[2][:len(parts[2])-4] + "AAA="
	if _, err := codec.Decrypt(tampered); err == nil {
		t.Fatalf("expected tampered ciphertext to fail authentication")
	}
}

func TestNewCodecRejectsShortKey(t *testing.T) {
	if _, err := NewCodec("deadbeef"); err == nil {
		t.Fatalf("expected short key to be rejected")
	}
}
