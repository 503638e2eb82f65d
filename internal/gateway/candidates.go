package gateway

import (
	"strings"
	"unicode"
)

// Conversation modes understood by the gateway. Any other mode is treated
// as live chat.
const (
	ModeLiveChat       = "live_chat"
	ModeImmersiveIntro = "immersive_intro"
	ModeDeepDive       = "deep_dive"
)

// Languages accepted in a synthesis request.
const (
	LanguageAuto    = "auto"
	LanguageEnglish = "en"
	LanguageHindi   = "hi"
)

// ImmersiveMarker in the request text selects the immersive profile for
// callers that cannot set the mode. It is removed before synthesis.
const ImmersiveMarker = "[[immersive]]"

// devanagari covers the Devanagari block and Devanagari Extended.
var devanagari = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0900, Hi: 0x097F, Stride: 1},
		{Lo: 0xA8E0, Hi: 0xA8FF, Stride: 1},
	},
}

// IsImmersive reports whether mode or text selects the immersive profile.
func IsImmersive(mode, text string) bool {
	switch mode {
	case ModeImmersiveIntro, ModeDeepDive:
		return true
	}
	return containsMarker(text)
}

func containsMarker(text string) bool {
	return markerIndex(text) >= 0
}

// markerIndex returns the byte offset of the first case-insensitive
// occurrence of the marker in text, or -1.
func markerIndex(text string) int {
	n := len(ImmersiveMarker)
	for i := 0; i+n <= len(text); i++ {
		if text[i] == '[' && strings.EqualFold(text[i:i+n], ImmersiveMarker) {
			return i
		}
	}
	return -1
}

// stripMarker removes every occurrence of the marker from text.
func stripMarker(text string) string {
	var b strings.Builder
	for {
		i := markerIndex(text)
		if i < 0 {
			b.WriteString(text)
			return b.String()
		}
		b.WriteString(text[:i])
		text = text[i+len(ImmersiveMarker):]
	}
}

// HasDevanagari reports whether text contains any Devanagari code point.
func HasDevanagari(text string) bool {
	for _, r := range text {
		if unicode.Is(devanagari, r) {
			return true
		}
	}
	return false
}

// PrefersMultilingual reports whether the multilingual model must lead the
// candidate list: explicit Hindi, or auto-detection finding Devanagari.
func PrefersMultilingual(language, text string) bool {
	switch language {
	case LanguageHindi:
		return true
	case LanguageAuto, "":
		return HasDevanagari(text)
	default:
		return false
	}
}

// VoiceCandidates returns the voices to try in order.
func VoiceCandidates(p Profile, immersive bool) []string {
	if immersive {
		return dedupe([]string{p.ImmersiveVoice, p.LiveVoice})
	}
	return dedupe([]string{p.LiveVoice})
}

// ModelCandidates returns the models to try in order:
// [multilingual?, requested-or-mode-default, ...fallbacks], deduplicated
// with the first occurrence winning.
func ModelCandidates(p Profile, requested string, immersive, multilingual bool) []string {
	list := make([]string, 0, 2+len(p.FallbackModels))
	if multilingual {
		list = append(list, p.MultilingualModel)
	}
	switch {
	case strings.TrimSpace(requested) != "":
		list = append(list, requested)
	case immersive:
		list = append(list, p.ImmersiveModel)
	default:
		list = append(list, p.LiveModel)
	}
	list = append(list, p.FallbackModels...)
	return dedupe(list)
}
