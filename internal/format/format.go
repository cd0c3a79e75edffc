// Package format renders values for pt-BR user-facing output.
package format

import (
	"fmt"
	"strings"

	"github.com/eloscloud/caixinha-banking-go/internal/document"
)

// Currency formats an amount as Brazilian reais, e.g. "R$ 1.234,50".
// A nil amount renders as the empty string.
func Currency(amount *float64) string {
	if amount == nil {
		return ""
	}
	neg := *amount < 0
	v := *amount
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%.2f", v)
	intPart, fracPart := s[:len(s)-3], s[len(s)-2:]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := "R$ " + b.String() + "," + fracPart
	if neg {
		return "-" + out
	}
	return out
}

// CurrencyValue is Currency for a non-optional amount.
func CurrencyValue(amount float64) string {
	return Currency(&amount)
}

// CPF masks an 11-digit CPF as 000.000.000-00. Inputs that do not carry
// exactly 11 digits are returned unchanged.
func CPF(doc string) string {
	d := document.Digits(doc)
	if len(d) != 11 {
		return doc
	}
	return d[:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:]
}

// CNPJ masks a 14-digit CNPJ as 00.000.000/0000-00. Inputs that do not
// carry exactly 14 digits are returned unchanged.
func CNPJ(doc string) string {
	d := document.Digits(doc)
	if len(d) != 14 {
		return doc
	}
	return d[:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:]
}

// Document masks a CPF or CNPJ, deciding by digit count.
func Document(doc string) string {
	switch len(document.Digits(doc)) {
	case 11:
		return CPF(doc)
	case 14:
		return CNPJ(doc)
	default:
		return doc
	}
}

// CEP masks an 8-digit postal code as 00000-000.
func CEP(cep string) string {
	d := document.Digits(cep)
	if len(d) != 8 {
		return cep
	}
	return d[:5] + "-" + d[5:]
}
