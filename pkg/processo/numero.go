// Package processo handles SEI process-number normalization.
//
// Process numbers arrive either punctuated (00002.012041/2025-95) or as bare
// digits (00002012041202595). All cache keys and upstream calls use the
// normalized digit form.
package processo

import (
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

// Normalize strips every non-digit character from a process number.
func Normalize(numero string) string {
	return nonDigits.ReplaceAllString(numero, "")
}

// Format renders a 17-digit process number as NNNNN.NNNNNN/AAAA-DD.
// Numbers of any other length are returned unchanged.
func Format(numero string) string {
	digits := Normalize(numero)
	if len(digits) != 17 {
		return numero
	}

	var builder strings.Builder
	builder.WriteString(digits[:5])
	builder.WriteByte('.')
	builder.WriteString(digits[5:11])
	builder.WriteByte('/')
	builder.WriteString(digits[11:15])
	builder.WriteByte('-')
	builder.WriteString(digits[15:17])
	return builder.String()
}
