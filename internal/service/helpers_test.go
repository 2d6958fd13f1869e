package service

import (
	"fmt"
	"testing"

	"eiq-engine/internal/domain"
)

// numericItem arma un item numerico cuya respuesta correcta es "1".
func numericItem(id string, d domain.Domain, a, b, c float64) domain.Item {
	return domain.Item{
		ID:      id,
		Domain:  d,
		Subject: string(d),
		IRT:     domain.IRTParams{Discrimination: a, Difficulty: b, Guessing: c},
		Content: domain.NumericEntry{Text: "question " + id, Answer: 1, Tolerance: 0.001},
		Hints:   []string{"first " + id, "second " + id, "third " + id},
		Weight:  1,
		Active:  true,
	}
}

// spreadItems crea n items del dominio con dificultades repartidas en [-2, 2].
func spreadItems(d domain.Domain, prefix string, n int) []domain.Item {
	items := make([]domain.Item, 0, n)
	for i := 0; i < n; i++ {
		b := -2.0
		if n > 1 {
			b += 4 * float64(i) / float64(n-1)
		}
		items = append(items, numericItem(fmt.Sprintf("%s-%02d", prefix, i), d, 1.2, b, 0))
	}
	return items
}

func mustBank(t *testing.T, items []domain.Item, degraded bool) *ItemBank {
	t.Helper()
	bank, err := NewItemBank(items, degraded)
	if err != nil {
		t.Fatalf("new item bank: %v", err)
	}
	return bank
}

func unlimitedSelector(bank *ItemBank) *ItemSelector {
	return NewItemSelector(bank, NewMemoryExposureTracker(), ExposurePolicy{}, nil)
}
