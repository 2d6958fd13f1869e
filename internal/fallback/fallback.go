// Package fallback contiene el banco de items embebido que se sirve cuando el
// almacen principal no esta disponible.
package fallback

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"eiq-engine/internal/domain"
)

//go:embed items.yaml
var itemsYAML []byte

type bankFile struct {
	Items []itemRecord `yaml:"items"`
}

type itemRecord struct {
	ID                 string           `yaml:"id"`
	Domain             string           `yaml:"domain"`
	Subject            string           `yaml:"subject"`
	IRT                domain.IRTParams `yaml:"irt"`
	Hints              []string         `yaml:"hints"`
	domain.ContentSpec `yaml:",inline"`
}

// Items devuelve una copia nueva del banco embebido.
func Items() ([]domain.Item, error) {
	return parse(itemsYAML)
}

func parse(raw []byte) ([]domain.Item, error) {
	var file bankFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode fallback bank: %w", err)
	}
	items := make([]domain.Item, 0, len(file.Items))
	seen := make(map[string]struct{}, len(file.Items))
	for _, rec := range file.Items {
		if _, dup := seen[rec.ID]; dup {
			return nil, fmt.Errorf("fallback item %s: duplicated id", rec.ID)
		}
		seen[rec.ID] = struct{}{}

		d, err := domain.ParseDomain(rec.Domain)
		if err != nil {
			return nil, fmt.Errorf("fallback item %s: %w", rec.ID, err)
		}
		content, err := rec.ContentSpec.Build()
		if err != nil {
			return nil, fmt.Errorf("fallback item %s: %w", rec.ID, err)
		}
		items = append(items, domain.Item{
			ID:      rec.ID,
			Domain:  d,
			Subject: rec.Subject,
			IRT:     rec.IRT,
			Content: content,
			Hints:   append([]string(nil), rec.Hints...),
			Weight:  1,
			Active:  true,
		})
	}
	return items, nil
}
