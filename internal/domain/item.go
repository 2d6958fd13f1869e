package domain

import (
	"fmt"
	"strings"
)

// Domain identifica la seccion de la evaluacion a la que pertenece un item.
type Domain string

const (
	DomainCoreMath         Domain = "core-math"
	DomainAppliedReasoning Domain = "applied-reasoning"
	DomainAIConceptual     Domain = "ai-conceptual"
)

// AllDomains devuelve los dominios soportados en orden estable.
func AllDomains() []Domain {
	return []Domain{DomainCoreMath, DomainAppliedReasoning, DomainAIConceptual}
}

// legacySubjects mapea las materias del almacen de items a secciones.
var legacySubjects = map[string]Domain{
	"mathematical_reasoning": DomainCoreMath,
	"algebra_foundations":    DomainCoreMath,
	"calculus_basics":        DomainCoreMath,
	"differential_equations": DomainCoreMath,
	"logical_reasoning":      DomainAppliedReasoning,
	"spatial_intelligence":   DomainAppliedReasoning,
	"verbal_comprehension":   DomainAppliedReasoning,
	"quantitative_reasoning": DomainAppliedReasoning,
	"systems_thinking":       DomainAppliedReasoning,
	"emotional_awareness":    DomainAIConceptual,
	"social_skills":          DomainAIConceptual,
	"ml_theory":              DomainAIConceptual,
	"ai_ethics":              DomainAIConceptual,
}

// ParseDomain normaliza un nombre de dominio. Acepta guiones o guiones bajos
// y las materias heredadas del almacen de items.
func ParseDomain(raw string) (Domain, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if d, ok := legacySubjects[key]; ok {
		return d, nil
	}
	candidate := Domain(strings.ReplaceAll(key, "_", "-"))
	for _, d := range AllDomains() {
		if d == candidate {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown domain %q", raw)
}

// Valid indica si el dominio pertenece al conjunto enumerado.
func (d Domain) Valid() bool {
	for _, known := range AllDomains() {
		if d == known {
			return true
		}
	}
	return false
}

// IRTParams son los parametros calibrados del modelo logistico (3PL).
type IRTParams struct {
	Discrimination float64 `json:"discrimination" yaml:"discrimination"` // a
	Difficulty     float64 `json:"difficulty" yaml:"difficulty"`         // b
	Guessing       float64 `json:"guessing" yaml:"guessing"`             // c
}

// Item es una pregunta calibrada del banco. El motor no la modifica.
type Item struct {
	ID      string    `json:"id"`
	Domain  Domain    `json:"domain"`
	Subject string    `json:"subject,omitempty"`
	IRT     IRTParams `json:"irt"`
	Content Content   `json:"-"`
	Hints   []string  `json:"-"`
	Weight  float64   `json:"weight"`
	Active  bool      `json:"active"`
}

// Format devuelve el formato del contenido del item.
func (i Item) Format() ItemFormat {
	if i.Content == nil {
		return ""
	}
	return i.Content.Format()
}

// Prompt devuelve el enunciado del item.
func (i Item) Prompt() string {
	if i.Content == nil {
		return ""
	}
	return i.Content.Prompt()
}

// ItemView es la representacion publica de un item (sin respuesta correcta).
type ItemView struct {
	ID      string     `json:"id"`
	Domain  Domain     `json:"domain"`
	Format  ItemFormat `json:"format"`
	Prompt  string     `json:"prompt"`
	Options []string   `json:"options,omitempty"`
}

// View construye la vista publica del item.
func (i Item) View() ItemView {
	view := ItemView{
		ID:     i.ID,
		Domain: i.Domain,
		Format: i.Format(),
		Prompt: i.Prompt(),
	}
	if mc, ok := i.Content.(MultipleChoice); ok {
		view.Options = append([]string(nil), mc.Options...)
	}
	return view
}
