package contacts

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// normalize validates a raw row and returns the cleaned business plus a skip
// reason ("" when the row is usable).
//
// Invalid websites are dropped rather than rejected: the row is still worth
// messaging, it just gets the no-website template.
func normalize(b Business, region string) (Business, string) {
	b.Name = strings.TrimSpace(b.Name)
	b.Description = strings.TrimSpace(b.Description)
	b.MapsLink = strings.TrimSpace(b.MapsLink)

	if b.Name == "" {
		return b, "missing business name"
	}

	phone, err := normalizePhone(b.Phone, region)
	if err != nil {
		return b, err.Error()
	}
	b.Phone = phone

	if w := strings.TrimSpace(b.Website); w != "" && !validURL(w) {
		b.Website = ""
	} else {
		b.Website = w
	}

	return b, ""
}

// normalizePhone returns the number in E.164 form.
func normalizePhone(raw, region string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("missing phone number")
	}
	// Bare digit strings of 11+ digits already carry a country code; shorter
	// ones are national numbers and parse against the default region.
	if !strings.HasPrefix(s, "+") && s == onlyDigits(s) && len(s) >= 11 {
		s = "+" + s
	}

	num, err := phonenumbers.Parse(s, region)
	if err != nil {
		return "", fmt.Errorf("invalid phone number %q: %w", raw, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number %q", raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func validURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
