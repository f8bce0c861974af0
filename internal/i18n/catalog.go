// Package i18n renders localizable texts from a YAML message catalog.
//
// Catalog files map a language to its messages:
//
//	en:
//	  text.new-prayer-1: "{authorName1} shared a prayer request"
//
// Messages reference params as {name}.
package i18n

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"nudger/internal/domain"
)

const DefaultLanguage = "en"

//go:embed messages.yaml
var defaultMessages []byte

type Catalog struct {
	messages map[string]map[string]string
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultMessages)
	if err != nil {
		panic(fmt.Sprintf("i18n: built-in catalog: %v", err))
	}
	return c
}

func Parse(data []byte) (*Catalog, error) {
	var m map[string]map[string]string
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if m == nil {
		m = map[string]map[string]string{}
	}
	return &Catalog{messages: m}, nil
}

// Load reads a catalog file and layers it over the built-in messages.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for lang, msgs := range extra.messages {
		if c.messages[lang] == nil {
			c.messages[lang] = map[string]string{}
		}
		for k, v := range msgs {
			c.messages[lang][k] = v
		}
	}
	return c, nil
}

// Render resolves t for lang. Unknown languages fall back to English and
// unknown keys render as the key itself.
func (c *Catalog) Render(lang string, t domain.Text) string {
	if t.Pure {
		return t.Key
	}
	if t.Key == "" {
		return ""
	}
	msg, ok := c.lookup(lang, t.Key)
	if !ok {
		msg = t.Key
	}
	return substitute(msg, t.Params)
}

func (c *Catalog) lookup(lang, key string) (string, bool) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if msgs, ok := c.messages[lang]; ok {
		if m, ok := msgs[key]; ok {
			return m, true
		}
	}
	// "pt-BR" -> "pt"
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		if m, ok := c.messages[lang[:i]][key]; ok {
			return m, true
		}
	}
	m, ok := c.messages[DefaultLanguage][key]
	return m, ok
}

func substitute(msg string, params map[string]string) string {
	if len(params) == 0 {
		return msg
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}
