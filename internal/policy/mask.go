package policy

import "unicode"

const visibleTail = 2

// MaskPhone hides every digit except the last two. Non-digit characters
// (+, spaces, dashes) keep their place. Numbers with fewer than four digits
// are masked completely.
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}

	runes := []rune(phone)
	digits := 0
	for _, r := range runes {
		if unicode.IsDigit(r) {
			digits++
		}
	}

	keep := visibleTail
	if digits < 4 {
		keep = 0
	}

	seen := 0
	for i, r := range runes {
		if !unicode.IsDigit(r) {
			continue
		}
		seen++
		if seen <= digits-keep {
			runes[i] = 'x'
		}
	}
	return string(runes)
}
