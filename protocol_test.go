package main

import (
	"bytes"
	"testing"
)

func TestVarIntRoundTrip(t *testing.T) {
	cases := []int{0, 1, 127, 128, 255, 300, 2097151, 1 << 20, 1<<31 - 1}
	for _, v := range cases {
		buf := new(bytes.Buffer)
		if err := WriteVarInt(buf, v); err != nil {
			t.Fatalf("WriteVarInt(%d): %v", v, err)
		}
		got, err := ReadVarInt(buf)
		if err != nil {
			t.Fatalf("ReadVarInt after writing %d: %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d got %d", v, got)
		}
	}
}

func TestReadVarIntRejectsOverlong(t *testing.T) {
	buf := bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := ReadVarInt(buf); err != errVarIntTooBig {
		t.Fatalf("expected errVarIntTooBig, got %v", err)
	}
}

func TestStringRoundTrip(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := WriteString(buf, "Steve123"); err != nil {
		t.Fatal(err)
	}
	got, err := ReadString(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Steve123" {
		t.Errorf("got %q", got)
	}
}

func TestReadStringRejectsOverLimit(t *testing.T) {
	buf := new(bytes.Buffer)
	WriteVarInt(buf, 32767*4+1)
	if _, err := ReadString(buf); err != errStringTooLong {
		t.Fatalf("expected errStringTooLong, got %v", err)
	}
}

func TestReadLoginStartValidatesUsernameLength(t *testing.T) {
	buf := new(bytes.Buffer)
	WriteString(buf, "")
	if _, err := readLoginStart(buf.Bytes()); err == nil {
		t.Fatal("expected error for empty username")
	}

	buf.Reset()
	WriteString(buf, "ThisUsernameIsWayTooLongToBeValid")
	if _, err := readLoginStart(buf.Bytes()); err == nil {
		t.Fatal("expected error for too-long username")
	}

	buf.Reset()
	WriteString(buf, "Notch")
	pkt, err := readLoginStart(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if pkt.Username != "Notch" {
		t.Errorf("got %q", pkt.Username)
	}
}

func TestReadEncryptionResponseRejectsOversizedBlob(t *testing.T) {
	buf := new(bytes.Buffer)
	WriteVarInt(buf, maxCipherBlobLen+1)
	buf.Write(make([]byte, maxCipherBlobLen+1))
	if _, err := readEncryptionResponse(buf.Bytes()); err == nil {
		t.Fatal("expected error for oversized shared secret blob")
	}
}

func TestBuildAndReadEncryptionResponseRoundTrip(t *testing.T) {
	secret := bytes.Repeat([]byte{0xAB}, 128)
	token := bytes.Repeat([]byte{0xCD}, 128)

	buf := new(bytes.Buffer)
	WriteVarInt(buf, len(secret))
	buf.Write(secret)
	WriteVarInt(buf, len(token))
	buf.Write(token)

	pkt, err := readEncryptionResponse(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(pkt.EncryptedSharedSecret, secret) || !bytes.Equal(pkt.EncryptedVerifyToken, token) {
		t.Error("round trip mismatch")
	}
}

func TestBuildLoginSuccessLayout(t *testing.T) {
	var uuid [16]byte
	for i := range uuid {
		uuid[i] = byte(i)
	}
	body := buildLoginSuccess(uuid, "Alex")

	if !bytes.Equal(body[:16], uuid[:]) {
		t.Fatal("uuid prefix mismatch")
	}
	name, err := ReadString(bytes.NewReader(body[16:]))
	if err != nil || name != "Alex" {
		t.Fatalf("username decode: %q, %v", name, err)
	}
}

func TestBuildSetCompressionNegativeDisables(t *testing.T) {
	body := buildSetCompression(-1)
	v, err := ReadVarInt(bytes.NewReader(body))
	if err != nil || v != -1 {
		t.Fatalf("got %d, %v", v, err)
	}
}

func TestReadPluginResponseCarriesRemainingData(t *testing.T) {
	buf := new(bytes.Buffer)
	WriteVarInt(buf, 7)
	WriteBool(buf, true)
	buf.Write([]byte{1, 2, 3})

	pkt, err := readPluginResponse(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if pkt.MessageID != 7 || !pkt.Success || !bytes.Equal(pkt.Data, []byte{1, 2, 3}) {
		t.Errorf("got %+v", pkt)
	}
}
