// Package domain holds constructor-validated value types shared by the
// import pipeline, dispatcher and API layer. A value of one of these types
// is always valid; invalid input is rejected at construction.
package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrEmailInvalido    = errors.New("e-mail inválido")
	ErrTelefoneInvalido = errors.New("telefone fora do formato internacional (+5511999999999)")
	ErrDocumentoInvalido = errors.New("CPF/CNPJ inválido")
)

var (
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	telefoneRe = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
	digitosRe  = regexp.MustCompile(`[^0-9]`)
)

// Email is a validated e-mail address, stored lowercased and trimmed.
type Email string

func NovoEmail(raw string) (Email, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !emailRe.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrEmailInvalido, raw)
	}
	return Email(s), nil
}

func (e Email) String() string { return string(e) }

// Telefone is a phone number in E.164 form: +<country code><number>.
type Telefone string

func NovoTelefone(raw string) (Telefone, error) {
	s := strings.TrimSpace(raw)
	// Tolerate separators commonly present in spreadsheet cells.
	s = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(s)
	if !telefoneRe.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrTelefoneInvalido, raw)
	}
	return Telefone(s), nil
}

func (t Telefone) String() string { return string(t) }

// Dinheiro is a money amount as an integer count of centavos.
// Arithmetic on it can never introduce floating point drift.
type Dinheiro int64

// NovoDinheiro parses a decimal string ("1234.56" or "1234,56") into centavos.
func NovoDinheiro(raw string) (Dinheiro, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if s == "" {
		return 0, errors.New("valor vazio")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	parts := strings.SplitN(s, ".", 2)
	var inteiro, fracao string
	inteiro = parts[0]
	if len(parts) == 2 {
		fracao = parts[1]
	}
	if inteiro == "" {
		inteiro = "0"
	}
	if len(fracao) > 2 {
		return 0, fmt.Errorf("valor com mais de duas casas decimais: %q", raw)
	}
	for len(fracao) < 2 {
		fracao += "0"
	}
	var total int64
	for _, r := range inteiro + fracao {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("valor não numérico: %q", raw)
		}
		total = total*10 + int64(r-'0')
	}
	if neg {
		total = -total
	}
	return Dinheiro(total), nil
}

// Centavos returns the raw minor-unit count.
func (d Dinheiro) Centavos() int64 { return int64(d) }

// Formatado renders the amount as "1234.56" for template substitution.
func (d Dinheiro) Formatado() string {
	v := int64(d)
	sinal := ""
	if v < 0 {
		sinal = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sinal, v/100, v%100)
}

// Documento is a validated CPF (11 digits) or CNPJ (14 digits) tax id,
// stored as bare digits.
type Documento string

func NovoDocumento(raw string) (Documento, error) {
	d := digitosRe.ReplaceAllString(raw, "")
	switch len(d) {
	case 11:
		if !cpfValido(d) {
			return "", fmt.Errorf("%w: %q", ErrDocumentoInvalido, raw)
		}
	case 14:
		if !cnpjValido(d) {
			return "", fmt.Errorf("%w: %q", ErrDocumentoInvalido, raw)
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrDocumentoInvalido, raw)
	}
	return Documento(d), nil
}

func (d Documento) String() string { return string(d) }

func todosIguais(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

func cpfValido(d string) bool {
	if todosIguais(d) {
		return false
	}
	for _, n := range []int{9, 10} {
		soma := 0
		for i := 0; i < n; i++ {
			soma += int(d[i]-'0') * (n + 1 - i)
		}
		dv := (soma * 10) % 11 % 10
		if dv != int(d[n]-'0') {
			return false
		}
	}
	return true
}

func cnpjValido(d string) bool {
	if todosIguais(d) {
		return false
	}
	pesos := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	for _, n := range []int{12, 13} {
		soma := 0
		offset := 13 - n
		for i := 0; i < n; i++ {
			soma += int(d[i]-'0') * pesos[offset+i]
		}
		dv := soma % 11
		if dv < 2 {
			dv = 0
		} else {
			dv = 11 - dv
		}
		if dv != int(d[n]-'0') {
			return false
		}
	}
	return true
}
