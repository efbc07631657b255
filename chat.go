package main

import "encoding/json"

// Translator renders a translatable chat component into the JSON-chat
// document this handler writes into Disconnect packets. Spec.md §1
// lists "chat-component/translation formatting" as an external
// collaborator the real server supplies; this interface is the seam —
// a host embedding palisade supplies its own localized Translator,
// and defaultTranslator below is the minimal stand-in this module
// ships so the binary and tests run standalone.
type Translator interface {
	// Translate renders translationKey with the given ordered
	// arguments ("with" parameters) into a JSON-chat string no longer
	// than 128 bytes, per §4.7.
	Translate(translationKey string, with ...string) string
}

const (
	TranslationOutdatedClient = "multiplayer.disconnect.outdated_client"
	TranslationOutdatedServer = "multiplayer.disconnect.outdated_server"
)

// defaultTranslator renders a flat English fallback instead of a real
// client-side translation lookup, truncating to 128 bytes as required.
type defaultTranslator struct{}

type chatComponent struct {
	Text string `json:"text"`
}

func (defaultTranslator) Translate(translationKey string, with ...string) string {
	text := translationKey
	switch translationKey {
	case TranslationOutdatedClient:
		if len(with) > 0 {
			text = "Outdated client! Please use " + with[0]
		}
	case TranslationOutdatedServer:
		if len(with) > 0 {
			text = "Outdated server! I'm still on " + with[0]
		}
	}

	encoded, err := json.Marshal(chatComponent{Text: text})
	if err != nil {
		return `{"text":"disconnected"}`
	}
	if len(encoded) <= 128 {
		return string(encoded)
	}

	// The wrapped document must fit in 128 bytes, not just the inner
	// text (§4.7) — shrink text by however much the JSON wrapper and
	// its escaping grew the encoding, then re-encode.
	overhead := len(encoded) - len(text)
	budget := 128 - overhead
	if budget < 0 {
		budget = 0
	}
	if budget < len(text) {
		text = text[:budget]
	}
	encoded, err = json.Marshal(chatComponent{Text: text})
	if err != nil || len(encoded) > 128 {
		return `{"text":"disconnected"}`
	}
	return string(encoded)
}
