package detector

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"
)

// minLanguageRunes is the shortest text worth classifying.
const minLanguageRunes = 12

var (
	languageOnce     sync.Once
	languageDetector lingua.LanguageDetector
)

// Only languages commonly seen in captured posts are loaded; building the
// detector over all languages costs hundreds of megabytes.
var detectableLanguages = []lingua.Language{
	lingua.English,
	lingua.Spanish,
	lingua.French,
	lingua.German,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Dutch,
	lingua.Japanese,
	lingua.Korean,
	lingua.Chinese,
	lingua.Russian,
}

// LanguageResult is the detected ISO 639-1 code with a 0-1 confidence.
type LanguageResult struct {
	Code       string  `json:"language"`
	Confidence float64 `json:"language_confidence"`
}

func detector() lingua.LanguageDetector {
	languageOnce.Do(func() {
		languageDetector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(detectableLanguages...).
			WithPreloadedLanguageModels().
			Build()
	})
	return languageDetector
}

// DetectLanguage guesses the language of text. Short or ambiguous text
// returns false.
func DetectLanguage(text string) (LanguageResult, bool) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minLanguageRunes {
		return LanguageResult{}, false
	}

	d := detector()
	language, ok := d.DetectLanguageOf(text)
	if !ok {
		return LanguageResult{}, false
	}
	return LanguageResult{
		Code:       strings.ToLower(language.IsoCode639_1().String()),
		Confidence: d.ComputeLanguageConfidence(text, language),
	}, true
}
