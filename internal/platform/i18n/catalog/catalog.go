// Package catalog loads the command-line strings from embedded locale files
// and registers them with x/text/message.
//
// Files live at locales/<locale>/<namespace>.yaml and hold a flat key/value
// map:
//
//	locale: "en-US"
//	namespace: "cli"
//	messages:
//	  "cli.verify.ok": "%s: %d assets verified"
//
// Values are fmt-style formats so a message.Printer can render them.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the canonical source locale.
const BaseLocale = "en-US"

// Bundle holds messages per locale.
type Bundle struct {
	locales map[string]map[string]string
}

//go:embed locales/*/*.yaml
var embeddedFS embed.FS

var defaultBundle = mustLoadAndRegisterEmbedded()

// Default returns the process-wide embedded bundle. Its messages are already
// registered with x/text/message.
func Default() *Bundle {
	return defaultBundle
}

// LoadEmbedded loads the bundled locale files.
func LoadEmbedded() (*Bundle, error) {
	return LoadFromFS(embeddedFS)
}

// LoadFromFS loads every locales/*/*.yaml file in fsys.
func LoadFromFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	bundle := &Bundle{locales: map[string]map[string]string{}}
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		file, err := parseCatalogFile(data)
		if err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}
		if err := bundle.add(p, file); err != nil {
			return nil, err
		}
	}
	if !bundle.HasLocale(BaseLocale) {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}
	return bundle, nil
}

type catalogFile struct {
	locale    string
	namespace string
	messages  map[string]string
}

func (b *Bundle) add(p string, file catalogFile) error {
	if file.locale != path.Base(path.Dir(p)) {
		return fmt.Errorf("catalog %s: locale %q must match its directory", p, file.locale)
	}
	if file.namespace != strings.TrimSuffix(path.Base(p), path.Ext(p)) {
		return fmt.Errorf("catalog %s: namespace %q must match its file name", p, file.namespace)
	}
	messages, ok := b.locales[file.locale]
	if !ok {
		messages = map[string]string{}
		b.locales[file.locale] = messages
	}
	for key, value := range file.messages {
		if !strings.HasPrefix(key, file.namespace+".") {
			return fmt.Errorf("catalog %s: key %q must start with %q", p, key, file.namespace+".")
		}
		if _, exists := messages[key]; exists {
			return fmt.Errorf("catalog %s: duplicate key %q in locale %q", p, key, file.locale)
		}
		messages[key] = value
	}
	return nil
}

// Register makes every message available to message.Printer under its
// locale and, for regional locales, its base language. Keys a locale does
// not translate are registered with the base locale's value.
func (b *Bundle) Register() error {
	for _, locale := range b.Locales() {
		messages := make(map[string]string, len(b.locales[BaseLocale]))
		for key, value := range b.locales[BaseLocale] {
			messages[key] = value
		}
		for key, value := range b.locales[locale] {
			messages[key] = value
		}
		tag, err := language.Parse(locale)
		if err != nil {
			return fmt.Errorf("parse locale tag %q: %w", locale, err)
		}
		tags := []language.Tag{tag}
		if base, conf := tag.Base(); conf != language.No {
			if baseTag := language.Make(base.String()); baseTag != tag {
				tags = append(tags, baseTag)
			}
		}
		for key, value := range messages {
			for _, t := range tags {
				if err := message.SetString(t, key, value); err != nil {
					return fmt.Errorf("register %s %s: %w", locale, key, err)
				}
			}
		}
	}
	return nil
}

// HasLocale reports whether the bundle defines locale.
func (b *Bundle) HasLocale(locale string) bool {
	_, ok := b.locales[strings.TrimSpace(locale)]
	return ok
}

// Locales lists the defined locales in order.
func (b *Bundle) Locales() []string {
	out := make([]string, 0, len(b.locales))
	for locale := range b.locales {
		out = append(out, locale)
	}
	sort.Strings(out)
	return out
}

// Message returns the value for key, falling back to the base locale.
func (b *Bundle) Message(locale, key string) (string, bool) {
	if value, ok := b.locales[strings.TrimSpace(locale)][key]; ok {
		return value, true
	}
	value, ok := b.locales[BaseLocale][key]
	return value, ok
}

// Keys lists the keys defined for locale.
func (b *Bundle) Keys(locale string) []string {
	messages := b.locales[strings.TrimSpace(locale)]
	out := make([]string, 0, len(messages))
	for key := range messages {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// NamespaceMessages returns the messages locale defines in namespace, keyed
// without the "namespace." prefix.
func (b *Bundle) NamespaceMessages(locale, namespace string) map[string]string {
	prefix := strings.TrimSpace(namespace) + "."
	out := map[string]string{}
	for key, value := range b.locales[strings.TrimSpace(locale)] {
		if name, ok := strings.CutPrefix(key, prefix); ok {
			out[name] = value
		}
	}
	return out
}

// NamespaceMessagesWithFallback resolves locale to the closest defined one
// and returns its namespace messages layered over the base locale's.
func (b *Bundle) NamespaceMessagesWithFallback(locale, namespace string) (string, map[string]string) {
	resolved := b.Resolve(locale)
	messages := b.NamespaceMessages(BaseLocale, namespace)
	if resolved != BaseLocale {
		for key, value := range b.NamespaceMessages(resolved, namespace) {
			messages[key] = value
		}
	}
	return resolved, messages
}

// Resolve returns the defined locale closest to locale, or BaseLocale.
func (b *Bundle) Resolve(locale string) string {
	if b.HasLocale(locale) {
		return strings.TrimSpace(locale)
	}
	supported := []string{BaseLocale}
	tags := []language.Tag{language.Make(BaseLocale)}
	for _, l := range b.Locales() {
		if l != BaseLocale {
			supported = append(supported, l)
			tags = append(tags, language.Make(l))
		}
	}
	requested, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(requested) == 0 {
		return BaseLocale
	}
	_, index, confidence := language.NewMatcher(tags).Match(requested...)
	if confidence == language.No {
		return BaseLocale
	}
	return supported[index]
}

// Printer returns a printer for the closest defined locale.
func (b *Bundle) Printer(locale string) *message.Printer {
	return message.NewPrinter(language.Make(b.Resolve(locale)))
}

func mustLoadAndRegisterEmbedded() *Bundle {
	bundle, err := LoadEmbedded()
	if err != nil {
		panic(err)
	}
	if err := bundle.Register(); err != nil {
		panic(err)
	}
	return bundle
}

func parseCatalogFile(data []byte) (catalogFile, error) {
	var raw struct {
		Locale    string            `yaml:"locale"`
		Namespace string            `yaml:"namespace"`
		Messages  map[string]string `yaml:"messages"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return catalogFile{}, err
	}
	out := catalogFile{
		locale:    strings.TrimSpace(raw.Locale),
		namespace: strings.TrimSpace(raw.Namespace),
		messages:  make(map[string]string, len(raw.Messages)),
	}
	for key, value := range raw.Messages {
		key = strings.TrimSpace(key)
		if key == "" {
			return catalogFile{}, fmt.Errorf("message key cannot be blank")
		}
		out.messages[key] = value
	}
	switch {
	case out.locale == "":
		return catalogFile{}, fmt.Errorf("missing locale")
	case out.namespace == "":
		return catalogFile{}, fmt.Errorf("missing namespace")
	case len(out.messages) == 0:
		return catalogFile{}, fmt.Errorf("missing messages")
	}
	return out, nil
}
