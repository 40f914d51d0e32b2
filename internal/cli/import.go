package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ledgerlens/internal/core"
)

// ImportFile is the layout read by the import command. JSON works too.
//
//	expenses:
//	  - merchant: Jollibee Ayala
//	    amount: "1,250.50"
//	    date: 2024-03-02
//	    category: food
//	  - id: receipt-7      # optional; generated when empty
//	    merchant: Grab
//	    amount: 180
//	    source: scanned
//	    confirmed: true    # record even if a likely duplicate exists
//
// A bare list of entries without the expenses key is accepted as well.
type ImportFile struct {
	Expenses []ImportEntry `yaml:"expenses"`
}

type ImportEntry struct {
	ID        string `yaml:"id"`
	Merchant  string `yaml:"merchant"`
	Amount    string `yaml:"amount"`
	Date      string `yaml:"date"`
	Category  string `yaml:"category"`
	Source    string `yaml:"source"`
	Version   int    `yaml:"version"`
	Confirmed bool   `yaml:"confirmed"`
}

func (e ImportEntry) raw() core.RawExpense {
	raw := core.RawExpense{
		ID:        e.ID,
		Merchant:  e.Merchant,
		Category:  e.Category,
		Source:    e.Source,
		Version:   e.Version,
		Confirmed: e.Confirmed,
	}
	if e.Amount != "" {
		raw.Amount = e.Amount
	}
	if e.Date != "" {
		raw.Date = e.Date
	}
	if raw.Source == "" {
		raw.Source = string(core.SourceImported)
	}
	return raw
}

// LoadImportFile reads an import file into raw records in file order.
func LoadImportFile(path string) ([]core.RawExpense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	return ParseImport(data)
}

// ParseImport parses the YAML or JSON content of an import file.
func ParseImport(data []byte) ([]core.RawExpense, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse import file: %w", err)
	}
	var file ImportFile
	if len(root.Content) > 0 {
		doc := root.Content[0]
		var err error
		if doc.Kind == yaml.SequenceNode {
			err = doc.Decode(&file.Expenses)
		} else {
			err = doc.Decode(&file)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse import file: %w", err)
		}
	}

	raws := make([]core.RawExpense, 0, len(file.Expenses))
	for _, entry := range file.Expenses {
		raws = append(raws, entry.raw())
	}
	return raws, nil
}
