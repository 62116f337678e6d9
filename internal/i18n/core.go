package i18n

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/amoylab/osrf/internal/common/cnst"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// I18n translates status texts into the locale of a session
type I18n struct {
	bundle      *i18n.Bundle
	defaultLang language.Tag
}

// NewI18n creates a translator preloaded with the English status texts
func NewI18n() *I18n {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)
	if err := bundle.AddMessages(language.English, defaultMessages...); err != nil {
		panic(fmt.Errorf("invalid default messages: %w", err))
	}
	return &I18n{
		bundle:      bundle,
		defaultLang: language.English,
	}
}

// Load creates a translator and loads the translations found in dir.
// An empty or missing dir leaves only the built-in English texts.
func Load(dir string) (*I18n, error) {
	t := NewI18n()
	if dir == "" {
		return t, nil
	}
	if err := t.LoadTranslations(dir); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadTranslations loads every .toml translation file in translationsDir
func (i *I18n) LoadTranslations(translationsDir string) error {
	files, err := os.ReadDir(translationsDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read translations directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".toml") {
			continue
		}
		if _, err := i.bundle.LoadMessageFile(filepath.Join(translationsDir, file.Name())); err != nil {
			return fmt.Errorf("failed to load %s: %w", file.Name(), err)
		}
	}
	return nil
}

// Translate returns the text of msgID in locale, falling back to English
// and then to the message ID itself
func (i *I18n) Translate(msgID string, locale string, templateData map[string]any) string {
	localizer := i18n.NewLocalizer(i.bundle, normalizeLocale(locale), i.defaultLang.String())

	lc := &i18n.LocalizeConfig{MessageID: msgID}
	if len(templateData) > 0 {
		lc.TemplateData = templateData
	}

	// a key missing in locale yields the English text along with an error
	msg, _ := localizer.Localize(lc)
	if msg == "" {
		return msgID
	}
	return msg
}

// Languages returns the languages translations are loaded for
func (i *I18n) Languages() []string {
	tags := i.bundle.LanguageTags()
	langs := make([]string, 0, len(tags))
	for _, tag := range tags {
		langs = append(langs, tag.String())
	}
	return langs
}

// LocaleFromRequest extracts the caller locale from the X-Lang or
// Accept-Language headers
func LocaleFromRequest(r *http.Request) string {
	if lang := r.Header.Get(cnst.XLang); lang != "" {
		return lang
	}
	if tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language")); err == nil && len(tags) > 0 {
		return tags[0].String()
	}
	return ""
}

// normalizeLocale turns OpenSRF style locales (en_US) into BCP 47 tags
func normalizeLocale(locale string) string {
	if locale == "" {
		return cnst.LangDefault
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return cnst.LangDefault
	}
	return tag.String()
}
