package pricing

import "strings"

var (
	wordOnes = []string{"", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine"}

	wordTeens = []string{"Ten", "Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen",
		"Sixteen", "Seventeen", "Eighteen", "Nineteen"}

	wordTens = []string{"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety"}
)

// NumberToWords spells out an integer in the Indian numbering system
// (Crore, Lakh, Thousand). Printed invoices carry the grand total in words.
func NumberToWords(number int64) string {
	if number == 0 {
		return "Zero"
	}
	if number < 0 {
		return "Minus " + NumberToWords(-number)
	}

	var b strings.Builder
	if number >= 10000000 {
		b.WriteString(underThousand(number / 10000000))
		b.WriteString("Crore ")
		number %= 10000000
	}
	if number >= 100000 {
		b.WriteString(underThousand(number / 100000))
		b.WriteString("Lakh ")
		number %= 100000
	}
	if number >= 1000 {
		b.WriteString(underThousand(number / 1000))
		b.WriteString("Thousand ")
		number %= 1000
	}
	if number > 0 {
		b.WriteString(underThousand(number))
	}
	return strings.TrimSpace(b.String()) + " Only"
}

// AmountInWords renders a paise amount as spoken rupees. The caller is
// expected to pass a whole-rupee amount (a rounded grand total); leftover
// paise are spelled out separately when present.
func AmountInWords(m Money) string {
	rupees, paise := Rupees(m)
	words := NumberToWords(rupees)
	if paise == 0 {
		return words
	}
	base := strings.TrimSuffix(words, " Only")
	return base + " and " + strings.TrimSuffix(NumberToWords(paise), " Only") + " Paise Only"
}

func underThousand(n int64) string {
	var b strings.Builder
	if n >= 100 {
		b.WriteString(wordOnes[n/100])
		b.WriteString(" Hundred ")
		n %= 100
	}
	switch {
	case n >= 20:
		b.WriteString(wordTens[n/10])
		b.WriteString(" ")
		n %= 10
	case n >= 10:
		b.WriteString(wordTeens[n-10])
		b.WriteString(" ")
		return b.String()
	}
	if n > 0 {
		b.WriteString(wordOnes[n])
		b.WriteString(" ")
	}
	return b.String()
}
