package acquirer

import (
	"fmt"
	"math/rand"
	"strings"
)

const defaultCustomerName = "Doador Anônimo"

// SynthesizeCustomer fills the customer fields acquirers insist on. Only the
// name comes from the caller; document, email and phone are placeholders.
func SynthesizeCustomer(name string) Customer {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultCustomerName
	}

	return Customer{
		Name:     name,
		Document: GenerateCPF(),
		Email:    fmt.Sprintf("doador.%08d@pix.invalid", rand.Intn(100_000_000)),
		Phone:    fmt.Sprintf("119%08d", rand.Intn(100_000_000)),
	}
}

// GenerateCPF returns a random 11-digit CPF with valid check digits.
func GenerateCPF() string {
	digits := make([]int, 11)
	for {
		for i := 0; i < 9; i++ {
			digits[i] = rand.Intn(10)
		}
		if !repeated(digits[:9]) {
			break
		}
	}
	digits[9] = cpfCheckDigit(digits[:9])
	digits[10] = cpfCheckDigit(digits[:10])

	var sb strings.Builder
	for _, d := range digits {
		sb.WriteByte(byte('0' + d))
	}
	return sb.String()
}

// ValidCPF checks length and both check digits. Punctuation is ignored.
func ValidCPF(cpf string) bool {
	var digits []int
	for _, r := range cpf {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == '.' || r == '-':
		default:
			return false
		}
	}
	if len(digits) != 11 || repeated(digits) {
		return false
	}
	return digits[9] == cpfCheckDigit(digits[:9]) && digits[10] == cpfCheckDigit(digits[:10])
}

func cpfCheckDigit(digits []int) int {
	sum := 0
	weight := len(digits) + 1
	for i, d := range digits {
		sum += d * (weight - i)
	}
	r := sum * 10 % 11
	if r == 10 {
		return 0
	}
	return r
}

func repeated(digits []int) bool {
	for _, d := range digits[1:] {
		if d != digits[0] {
			return false
		}
	}
	return true
}
