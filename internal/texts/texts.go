// Package texts holds the bot's user-facing copy: message templates,
// button labels and FAQ entries loaded from an embedded YAML document.
package texts

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/m3rciful/esimbot/core/telegram/format"
)

//go:embed texts.yaml
var defaultData []byte

// ErrUnknownKey is returned by Render for a key with no template.
var ErrUnknownKey = errors.New("texts: unknown key")

// QA is one FAQ entry.
type QA struct {
	Key      string `yaml:"key"`
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

// Texts is immutable after Load and safe for concurrent use.
type Texts struct {
	tmpl    *template.Template
	buttons map[string]string
	links   map[string]string
	faq     []QA
	faqIdx  map[string]int
}

var funcs = template.FuncMap{"md": format.MD}

// Load parses a texts document and compiles every message template.
func Load(data []byte) (*Texts, error) {
	var doc struct {
		Messages map[string]string `yaml:"messages"`
		Buttons  map[string]string `yaml:"buttons"`
		Links    map[string]string `yaml:"links"`
		FAQ      []QA              `yaml:"faq"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("texts: parse: %w", err)
	}

	root := template.New("texts").Funcs(funcs).Option("missingkey=error")
	keys := make([]string, 0, len(doc.Messages))
	for k := range doc.Messages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := root.New(k).Parse(doc.Messages[k]); err != nil {
			return nil, fmt.Errorf("texts: template %q: %w", k, err)
		}
	}

	t := &Texts{
		tmpl:    root,
		buttons: doc.Buttons,
		links:   doc.Links,
		faq:     doc.FAQ,
		faqIdx:  make(map[string]int, len(doc.FAQ)),
	}
	for i, qa := range doc.FAQ {
		if qa.Key == "" {
			return nil, fmt.Errorf("texts: faq item %d has no key", i)
		}
		if _, dup := t.faqIdx[qa.Key]; dup {
			return nil, fmt.Errorf("texts: duplicate faq key %q", qa.Key)
		}
		t.faqIdx[qa.Key] = i
	}
	return t, nil
}

// Default returns the embedded texts. It panics if they do not compile.
func Default() *Texts {
	t, err := Load(defaultData)
	if err != nil {
		panic(err)
	}
	return t
}

// Has reports whether key names a message template.
func (t *Texts) Has(key string) bool {
	return t.tmpl.Lookup(key) != nil
}

// Render executes the template named key with data.
func (t *Texts) Render(key string, data any) (string, error) {
	tm := t.tmpl.Lookup(key)
	if tm == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	var buf bytes.Buffer
	if err := tm.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("texts: render %q: %w", key, err)
	}
	return buf.String(), nil
}

// Text renders a template that takes no data; on failure it returns key so
// the user still sees something.
func (t *Texts) Text(key string) string {
	s, err := t.Render(key, nil)
	if err != nil {
		return key
	}
	return s
}

// Button returns a button label, or key when none is defined.
func (t *Texts) Button(key string) string {
	if s, ok := t.buttons[key]; ok {
		return s
	}
	return key
}

// Link returns a configured URL.
func (t *Texts) Link(key string) string { return t.links[key] }

// FAQ returns entries in document order.
func (t *Texts) FAQ() []QA {
	out := make([]QA, len(t.faq))
	copy(out, t.faq)
	return out
}

// Question looks up one FAQ entry.
func (t *Texts) Question(key string) (QA, bool) {
	i, ok := t.faqIdx[key]
	if !ok {
		return QA{}, false
	}
	return t.faq[i], true
}
