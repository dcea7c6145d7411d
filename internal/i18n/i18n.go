// Package i18n selects the response locale for a request. The service speaks
// English and Russian; anything unrecognized falls back to English.
package i18n

import (
	"strings"

	"github.com/gin-gonic/gin"
)

type Locale string

const (
	LocaleEN Locale = "en"
	LocaleRU Locale = "ru"
)

// Parse maps a raw language tag to a supported locale.
func Parse(lang string) Locale {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "ru", "ru-ru":
		return LocaleRU
	default:
		return LocaleEN
	}
}

// Detect picks the locale for a request: an explicit ?lang= query parameter
// wins, then the Accept-Language header, defaulting to English.
func Detect(c *gin.Context) Locale {
	if lang := c.Query("lang"); lang != "" {
		return Parse(lang)
	}
	accept := strings.ToLower(c.GetHeader("Accept-Language"))
	if strings.HasPrefix(accept, "ru") {
		return LocaleRU
	}
	return LocaleEN
}

// Pick returns the variant matching the locale.
func Pick(locale Locale, en, ru string) string {
	if locale == LocaleRU {
		return ru
	}
	return en
}

// DirectionLabel localizes a popularity-trend direction for display.
func DirectionLabel(locale Locale, direction string) string {
	if locale == LocaleRU {
		switch direction {
		case "growing":
			return "рост"
		case "decreasing":
			return "снижение"
		}
	}
	return direction
}
