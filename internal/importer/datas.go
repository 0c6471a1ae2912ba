package importer

import (
	"fmt"
	"strings"
	"time"
)

// formatosData are the accepted due-date formats, tried in this order. The
// first match wins, which disambiguates "2026-01-02" style dates from the
// Brazilian day-first forms.
var formatosData = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"02/01/2006 15:04",
}

// ParseDataVencimento parses a due date in one of the four accepted formats.
// Date-only forms get midnight as the time component.
func ParseDataVencimento(raw string) (time.Time, error) {
	valor := strings.TrimSpace(raw)
	if valor == "" {
		return time.Time{}, fmt.Errorf("data de vencimento vazia")
	}

	for _, formato := range formatosData {
		if t, err := time.Parse(formato, valor); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("data de vencimento %q fora dos formatos aceitos", valor)
}
