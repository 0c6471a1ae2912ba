package importer

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Recognized spreadsheet headers (case-insensitive). Any other column goes
// into the row payload under its own header name.
const (
	colunaRegra      = "regra_id"
	colunaNome       = "nome"
	colunaEmail      = "email"
	colunaTelefone   = "telefone"
	colunaDocumento  = "documento"
	colunaValor      = "valor"
	colunaVencimento = "vencimento"
)

// LerPlanilha parses an .xlsx stream into import rows. The first sheet is
// used; its first row must be a header. Line numbers are 1-based data rows,
// matching what a user sees when they open the file minus the header.
func LerPlanilha(r io.Reader) ([]LinhaImportacao, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("abrir planilha: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("planilha sem abas")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("ler linhas: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("planilha vazia")
	}

	cabecalho := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		cabecalho[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var linhas []LinhaImportacao
	for i, row := range rows[1:] {
		if linhaVazia(row) {
			continue
		}
		linha := LinhaImportacao{Numero: i + 1}
		for col, valor := range row {
			if col >= len(cabecalho) {
				break
			}
			valor = strings.TrimSpace(valor)
			switch cabecalho[col] {
			case colunaRegra:
				linha.RegraID = valor
			case colunaNome, "nome_destinatario":
				linha.NomeDestinatario = valor
			case colunaEmail:
				linha.Email = valor
			case colunaTelefone:
				linha.Telefone = valor
			case colunaDocumento, "cpf", "cnpj", "cpf_cnpj":
				linha.Documento = valor
			case colunaValor:
				linha.Valor = valor
			case colunaVencimento, "data_vencimento":
				linha.DataVencimento = valor
			case "":
				// Unnamed column, ignore.
			default:
				if valor != "" {
					if linha.Payload == nil {
						linha.Payload = map[string]interface{}{}
					}
					linha.Payload[cabecalho[col]] = valor
				}
			}
		}
		linhas = append(linhas, linha)
	}

	return linhas, nil
}

func linhaVazia(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
