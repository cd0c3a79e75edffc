// Package document validates Brazilian taxpayer documents (CPF and CNPJ)
// using the official check-digit algorithms.
package document

import "strings"

var (
	cpfWeightsFirst   = []int{10, 9, 8, 7, 6, 5, 4, 3, 2}
	cpfWeightsSecond  = []int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeightsFirst  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeightsSecond = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// Digits strips every non-numeric rune from s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate checks a CPF or CNPJ, deciding by digit count. Formatting
// characters are ignored. Any internal failure counts as invalid rather
// than propagating.
func Validate(doc string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	digits := Digits(doc)
	switch len(digits) {
	case 11:
		return validCPF(digits)
	case 14:
		return validCNPJ(digits)
	default:
		return false
	}
}

// ValidateCPF checks an 11-digit CPF, formatted or not.
func ValidateCPF(doc string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	digits := Digits(doc)
	return len(digits) == 11 && validCPF(digits)
}

// ValidateCNPJ checks a 14-digit CNPJ, formatted or not.
func ValidateCNPJ(doc string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	digits := Digits(doc)
	return len(digits) == 14 && validCNPJ(digits)
}

func validCPF(digits string) bool {
	if allSame(digits) {
		return false
	}
	if checkDigit(digits[:9], cpfWeightsFirst) != int(digits[9]-'0') {
		return false
	}
	return checkDigit(digits[:10], cpfWeightsSecond) == int(digits[10]-'0')
}

func validCNPJ(digits string) bool {
	if allSame(digits) {
		return false
	}
	if checkDigit(digits[:12], cnpjWeightsFirst) != int(digits[12]-'0') {
		return false
	}
	return checkDigit(digits[:13], cnpjWeightsSecond) == int(digits[13]-'0')
}

// checkDigit computes a modulo-11 verification digit over digits with the
// given positional weights.
func checkDigit(digits string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

// allSame reports whether every digit is identical. Sequences like
// 111.111.111-11 satisfy the check-digit math but are not valid documents.
func allSame(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}
