package utils

import (
	"cuchimail/models"
	"fmt"
	"io/fs"
	"path"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

var (
	// Bundle is the global translation bundle
	Bundle *i18n.Bundle
	// Localizer is the fallback localizer used when a request carries none
	Localizer *i18n.Localizer
)

// InitI18n loads active.<lang>.toml for every supported language from dir inside fsys
func InitI18n(fsys fs.FS, dir string, defaultLang string) error {
	tag, err := language.Parse(defaultLang)
	if err != nil {
		return fmt.Errorf("parse default language %q: %w", defaultLang, err)
	}

	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, lang := range models.Languages {
		file := path.Join(dir, "active."+lang+".toml")
		if _, err := bundle.LoadMessageFileFS(fsys, file); err != nil {
			return fmt.Errorf("load locale %s: %w", file, err)
		}
	}

	Bundle = bundle
	Localizer = i18n.NewLocalizer(bundle, defaultLang)

	Log.Info("i18n system initialized (default=%s)", defaultLang)
	return nil
}

// GetLocalizer returns a localizer for the specified language
func GetLocalizer(lang string) *i18n.Localizer {
	if Bundle == nil {
		return nil
	}
	return i18n.NewLocalizer(Bundle, lang)
}

// T translates a message ID, falling back to the ID itself
func T(localizer *i18n.Localizer, messageID string) string {
	return TWithData(localizer, messageID, nil)
}

// TWithData translates a message ID with template data
func TWithData(localizer *i18n.Localizer, messageID string, data map[string]interface{}) string {
	if localizer == nil {
		localizer = Localizer
	}
	if localizer == nil {
		return messageID
	}
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		Log.Debug("Translation error for '%s': %v", messageID, err)
		return messageID
	}
	return msg
}

// TPlural translates a message ID with plural support
func TPlural(localizer *i18n.Localizer, messageID string, count int) string {
	if localizer == nil {
		localizer = Localizer
	}
	if localizer == nil {
		return messageID
	}
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:   messageID,
		PluralCount: count,
		TemplateData: map[string]interface{}{
			"Count": count,
		},
	})
	if err != nil {
		Log.Debug("Translation error for '%s': %v", messageID, err)
		return messageID
	}
	return msg
}
