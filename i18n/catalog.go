// Package i18n holds the storefront's translated payment messages.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/language"

	"storefront-payment/paymentform"
)

//go:embed locales/*.json
var locales embed.FS

const (
	Spanish  = "es"
	English  = "en"
	fallback = English
)

var (
	supported = []language.Tag{language.Spanish, language.English}
	matcher   = language.NewMatcher(supported)
)

// Catalog maps a language code to its messages.
type Catalog struct {
	messages map[string]map[string]string
}

// Load reads the embedded locale files.
func Load() (*Catalog, error) {
	entries, err := locales.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("failed to list locales: %w", err)
	}

	c := &Catalog{messages: make(map[string]map[string]string)}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".json" {
			continue
		}
		raw, err := locales.ReadFile(path.Join("locales", name))
		if err != nil {
			return nil, fmt.Errorf("failed to read locale %s: %w", name, err)
		}
		var msgs map[string]string
		if err := json.Unmarshal(raw, &msgs); err != nil {
			return nil, fmt.Errorf("invalid locale %s: %w", name, err)
		}
		c.messages[strings.TrimSuffix(name, ".json")] = msgs
	}

	if _, ok := c.messages[fallback]; !ok {
		return nil, fmt.Errorf("fallback locale %q is missing", fallback)
	}
	return c, nil
}

// MustLoad is Load for package-level setup where the embedded files are known good.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Has reports whether a catalog exists for lang.
func (c *Catalog) Has(lang string) bool {
	_, ok := c.messages[Normalize(lang)]
	return ok
}

// Lookup falls back to English for unknown languages and to the key itself
// when no catalog has it.
func (c *Catalog) Lookup(lang, key string) string {
	if msgs, ok := c.messages[Normalize(lang)]; ok {
		if m, ok := msgs[key]; ok {
			return m
		}
	}
	if m, ok := c.messages[fallback][key]; ok {
		return m
	}
	return key
}

// MessageKey is the catalog key of a field failure.
func MessageKey(f paymentform.Field, k paymentform.ErrorKind) string {
	return "payment." + f.String() + "." + k.String()
}

// Messages renders field failures in lang.
func (c *Catalog) Messages(lang string) paymentform.Messages {
	return paymentform.MessagesFunc(func(f paymentform.Field, k paymentform.ErrorKind) string {
		return c.Lookup(lang, MessageKey(f, k))
	})
}

// Normalize drops the region: "es-CO" and "es_CO" become "es".
func Normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	return code
}

func isSupported(code string) bool {
	return code == Spanish || code == English
}

// Negotiate picks the request language: query parameter, then cookie, then
// Accept-Language, then def. Anything but es/en ends at Spanish.
func Negotiate(query, cookie, acceptLanguage, def string) string {
	for _, candidate := range []string{query, cookie} {
		if code := Normalize(candidate); isSupported(code) {
			return code
		}
	}

	if acceptLanguage != "" {
		tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
		if err == nil && len(tags) > 0 {
			if tag, _, conf := matcher.Match(tags...); conf != language.No {
				base, _ := tag.Base()
				if code := base.String(); isSupported(code) {
					return code
				}
			}
		}
	}

	if code := Normalize(def); isSupported(code) {
		return code
	}
	return Spanish
}
