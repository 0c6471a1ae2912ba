package importer

import (
	"encoding/json"
	"fmt"
	"io"
)

// LerJSON parses a JSON batch: an ordered array of row objects. Line numbers
// follow array order, 1-based.
func LerJSON(r io.Reader) ([]LinhaImportacao, error) {
	var linhas []LinhaImportacao
	dec := json.NewDecoder(r)
	if err := dec.Decode(&linhas); err != nil {
		return nil, fmt.Errorf("decodificar lote JSON: %w", err)
	}

	for i := range linhas {
		linhas[i].Numero = i + 1
	}

	return linhas, nil
}
