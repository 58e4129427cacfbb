package tools

import "strings"

const defaultCountryCode = "225"

var countryPrefixes = []string{"225", "33", "1"}

// NormalizePhone converts a free-form phone number to E.164-ish form.
// Unknown local numbers get the default country code (Côte d'Ivoire).
func NormalizePhone(phone string) string {
	if phone == "" {
		return "+000000000000"
	}

	n := strings.TrimSpace(phone)
	n = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(n)

	if strings.HasPrefix(n, "00") {
		n = "+" + n[2:]
	}
	if strings.HasPrefix(n, "+") {
		return n
	}

	for _, prefix := range countryPrefixes {
		if strings.HasPrefix(n, prefix) {
			return "+" + n
		}
	}

	if strings.HasPrefix(n, "0") && len(n) >= 8 {
		return "+" + defaultCountryCode + n[1:]
	}

	return "+" + defaultCountryCode + digitsOnly(n)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
