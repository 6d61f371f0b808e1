// Package compose personalizes outreach messages from business data.
package compose

import (
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/contacts"
)

// Composer picks a template per message and fills in business fields.
// The rng is injected so tests can pin template selection.
type Composer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func New(rng *rand.Rand) *Composer {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Composer{rng: rng}
}

// DetectKind returns the template family for a business.
func DetectKind(b contacts.Business) Kind {
	if b.HasWebsite() {
		return KindEnhancement
	}
	return KindCreation
}

// Message composes a personalized message for the business.
func (c *Composer) Message(b contacts.Business) string {
	var pool []string
	switch DetectKind(b) {
	case KindEnhancement:
		pool = enhancementTemplates
	default:
		pool = creationTemplates
	}

	c.mu.Lock()
	tmpl := pool[c.rng.Intn(len(pool))]
	c.mu.Unlock()

	return personalize(tmpl, b)
}

// Preview truncates an already composed message for logs and reports.
// The cut never splits a rune.
func Preview(msg string, maxLen int) string {
	if maxLen <= 0 || len(msg) <= maxLen {
		return msg
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "..."
}

// SendURL builds the direct send URL with the text pre-filled.
func SendURL(phone, text string) string {
	digits := strings.NewReplacer("+", "", " ", "", "-", "").Replace(phone)
	return "https://web.whatsapp.com/send?phone=" + digits + "&text=" + url.QueryEscape(text)
}

func personalize(tmpl string, b contacts.Business) string {
	msg := tmpl
	for placeholder, value := range buildReplacements(b) {
		msg = strings.ReplaceAll(msg, "{"+placeholder+"}", value)
	}
	return msg
}

func buildReplacements(b contacts.Business) map[string]string {
	r := map[string]string{
		"business_name": b.Name,
		"name":          b.Name, // alias
	}
	if b.Description != "" {
		r["description"] = b.Description
	}
	if b.Website != "" {
		r["website"] = b.Website
		if d := domainOf(b.Website); d != "" {
			r["domain"] = d
		}
	}
	if b.MapsLink != "" {
		r["maps_link"] = b.MapsLink
		r["google_maps"] = b.MapsLink // alias
	}
	return r
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
