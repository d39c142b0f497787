package report

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"

	"github.com/cockroachdb/errors"
)

// Language is a locale code used for summaries and report strings.
type Language string

const (
	LangFrench  Language = "fr"
	LangEnglish Language = "en"
)

var ErrUnsupportedLanguage = errors.New("report: unsupported language")

// Locale files are named after their Language code.
//
//go:embed *.json
var localeFS embed.FS

var locales = loadLocales()

func loadLocales() map[Language]map[string]string {
	files, err := fs.Glob(localeFS, "*.json")
	if err != nil {
		panic(err)
	}
	out := make(map[Language]map[string]string, len(files))
	for _, file := range files {
		data, err := localeFS.ReadFile(file)
		if err != nil {
			panic(fmt.Sprintf("report: read %s: %v", file, err))
		}
		strs := map[string]string{}
		if err := json.Unmarshal(data, &strs); err != nil {
			panic(fmt.Sprintf("report: parse %s: %v", file, err))
		}
		out[Language(strings.TrimSuffix(file, ".json"))] = strs
	}
	return out
}

// Translator looks strings up in one language, then in English, then
// returns the key itself. Unknown languages resolve to French.
type Translator struct {
	lang Language
}

func NewTranslator(lang Language) Translator {
	if _, ok := locales[lang]; !ok {
		lang = LangFrench
	}
	return Translator{lang: lang}
}

func (t Translator) Lang() Language {
	return t.lang
}

func (t Translator) T(key string) string {
	for _, lang := range []Language{t.lang, LangEnglish} {
		if val, ok := locales[lang][key]; ok {
			return val
		}
	}
	return key
}

func (t Translator) Format(key string, args ...interface{}) string {
	return fmt.Sprintf(t.T(key), args...)
}

// ParseLanguage converts a flag or LANG value into a supported Language.
func ParseLanguage(lang string) (Language, error) {
	l := strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(l, "._"); i > 0 {
		l = l[:i]
	}
	switch l {
	case "", "fr", "french", "français", "francais":
		return LangFrench, nil
	case "en", "english":
		return LangEnglish, nil
	default:
		return LangFrench, errors.Wrapf(ErrUnsupportedLanguage, "%s", lang)
	}
}
