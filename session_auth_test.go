package main

import (
	"encoding/hex"
	"errors"
	"testing"
)

func TestParseHasJoinedBodyWellFormed(t *testing.T) {
	body := `{
		"id": "4566e69fc90748ee8d71d7ba5aa00d20",
		"name": "Thinkofdeath",
		"properties": [
			{"name": "textures", "value": "eyJ0ZXN0IjoxfQ==", "signature": "c2ln"}
		]
	}`
	identity, err := parseHasJoinedBody([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if identity.Username != "Thinkofdeath" {
		t.Errorf("username = %q", identity.Username)
	}
	if identity.Textures.Kind != PropertyTextures {
		t.Errorf("textures kind = %v", identity.Textures.Kind)
	}
	if identity.Textures.Value != "eyJ0ZXN0IjoxfQ==" {
		t.Errorf("textures value = %q", identity.Textures.Value)
	}
}

func TestParseHasJoinedBodyFieldOrderIndependent(t *testing.T) {
	body := `{"properties": [], "name": "Alex", "id": "00000000000000000000000000000000"}`
	identity, err := parseHasJoinedBody([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if identity.Username != "Alex" {
		t.Errorf("username = %q", identity.Username)
	}
}

func TestParseHasJoinedBodyUnrecognizedPropertyIgnored(t *testing.T) {
	body := `{"id": "00000000000000000000000000000000", "name": "Alex",
		"properties": [{"name": "unknown_prop", "value": "x", "signature": "y"}]}`
	identity, err := parseHasJoinedBody([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if identity.Textures.Kind != PropertyUnknown {
		t.Errorf("expected unknown property to be dropped, got %v", identity.Textures.Kind)
	}
}

func TestParseHasJoinedBodyRejectsMissingPropertyName(t *testing.T) {
	body := `{"id": "00000000000000000000000000000000", "name": "Alex",
		"properties": [{"value": "x", "signature": "y"}]}`
	_, err := parseHasJoinedBody([]byte(body))
	if !errors.Is(err, ErrMalformedAuth) {
		t.Fatalf("expected ErrMalformedAuth, got %v", err)
	}
}

func TestParseHasJoinedBodyRejectsBadUUID(t *testing.T) {
	body := `{"id": "not-a-uuid", "name": "Alex", "properties": []}`
	_, err := parseHasJoinedBody([]byte(body))
	if !errors.Is(err, ErrMalformedAuth) {
		t.Fatalf("expected ErrMalformedAuth, got %v", err)
	}
}

func TestParseHasJoinedBodyRejectsGarbage(t *testing.T) {
	_, err := parseHasJoinedBody([]byte("not json at all"))
	if !errors.Is(err, ErrMalformedAuth) {
		t.Fatalf("expected ErrMalformedAuth, got %v", err)
	}
}

func TestParseHasJoinedBodyDecodesUUIDBytes(t *testing.T) {
	body := `{"id": "4566e69fc90748ee8d71d7ba5aa00d20", "name": "Thinkofdeath", "properties": []}`
	identity, err := parseHasJoinedBody([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	got := hex.EncodeToString(identity.UUID[:])
	if got != "4566e69fc90748ee8d71d7ba5aa00d20" {
		t.Errorf("uuid bytes = %q", got)
	}
}
