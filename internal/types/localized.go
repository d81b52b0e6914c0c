package types

import (
	"regexp"
	"sort"

	"golang.org/x/text/language"
)

// DefaultLanguage is used when neither the requested nor the fallback
// language has text
const DefaultLanguage = "en"

var variablePattern = regexp.MustCompile(`\{([^{}]+)\}`)

// LocalizedText maps language codes ("en", "ru", "pt-BR") to text
type LocalizedText map[string]string

// Text builds a single-language LocalizedText
func Text(lang, text string) LocalizedText {
	return LocalizedText{lang: text}
}

// Resolve picks the best text for lang, then fallback, then any available
// language, and substitutes {name} tokens from vars. Unknown tokens are kept.
func (lt LocalizedText) Resolve(lang, fallback string, vars map[string]string) string {
	text, ok := lt.lookup(lang)
	if !ok && fallback != "" {
		text, ok = lt.lookup(fallback)
	}
	if !ok {
		text, ok = lt[DefaultLanguage]
	}
	if !ok {
		text = lt.first()
	}
	return Substitute(text, vars)
}

// lookup matches lang against the available languages, so "en-GB" finds
// "en" and "pt" finds "pt-BR"
func (lt LocalizedText) lookup(lang string) (string, bool) {
	if lang == "" || len(lt) == 0 {
		return "", false
	}
	if text, ok := lt[lang]; ok {
		return text, true
	}
	requested, err := language.Parse(lang)
	if err != nil {
		return "", false
	}

	codes := lt.codes()
	tags := make([]language.Tag, 0, len(codes))
	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		tag, err := language.Parse(code)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		keys = append(keys, code)
	}
	if len(tags) == 0 {
		return "", false
	}

	_, index, confidence := language.NewMatcher(tags).Match(requested)
	if confidence < language.High {
		return "", false
	}
	return lt[keys[index]], true
}

func (lt LocalizedText) codes() []string {
	codes := make([]string, 0, len(lt))
	for code := range lt {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (lt LocalizedText) first() string {
	codes := lt.codes()
	if len(codes) == 0 {
		return ""
	}
	return lt[codes[0]]
}

// Substitute replaces {name} tokens with values from vars
func Substitute(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	return variablePattern.ReplaceAllStringFunc(text, func(token string) string {
		name := token[1 : len(token)-1]
		if value, ok := vars[name]; ok {
			return value
		}
		return token
	})
}
