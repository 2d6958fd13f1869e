package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ItemFormat etiqueta la variante de contenido de un item.
type ItemFormat string

const (
	FormatMultipleChoice ItemFormat = "multiple_choice"
	FormatNumeric        ItemFormat = "numeric"
	FormatFreeResponse   ItemFormat = "free_response"
)

// ErrUnknownContent se devuelve cuando un item no tiene contenido evaluable.
var ErrUnknownContent = errors.New("unknown item content")

// Content es la variante cerrada de contenidos de item. Solo los tipos de este
// paquete la implementan, de modo que Evaluate cubre todos los casos.
type Content interface {
	Format() ItemFormat
	Prompt() string
	sealed()
}

// MultipleChoice es una pregunta de opcion multiple.
type MultipleChoice struct {
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
}

func (MultipleChoice) Format() ItemFormat { return FormatMultipleChoice }
func (m MultipleChoice) Prompt() string   { return m.Text }
func (MultipleChoice) sealed()            {}

// CorrectOption devuelve el texto de la opcion correcta.
func (m MultipleChoice) CorrectOption() string {
	if m.CorrectIndex < 0 || m.CorrectIndex >= len(m.Options) {
		return ""
	}
	return m.Options[m.CorrectIndex]
}

// NumericEntry es una pregunta de respuesta numerica con tolerancia absoluta.
type NumericEntry struct {
	Text      string  `json:"text"`
	Answer    float64 `json:"answer"`
	Tolerance float64 `json:"tolerance"`
}

func (NumericEntry) Format() ItemFormat { return FormatNumeric }
func (n NumericEntry) Prompt() string   { return n.Text }
func (NumericEntry) sealed()            {}

// FreeResponse es una pregunta abierta evaluada contra una referencia y palabras clave.
type FreeResponse struct {
	Text      string   `json:"text"`
	Reference string   `json:"reference"`
	Keywords  []string `json:"keywords,omitempty"`
}

func (FreeResponse) Format() ItemFormat { return FormatFreeResponse }
func (f FreeResponse) Prompt() string   { return f.Text }
func (FreeResponse) sealed()            {}

// Evaluation es el resultado de comparar una respuesta con la referencia del item.
// Distance va de 0 (exacta) a 1 (muy lejos); sirve para distinguir casi-aciertos.
type Evaluation struct {
	Correct  bool
	Distance float64
}

// Evaluate compara la respuesta enviada con la referencia del contenido.
func Evaluate(c Content, answer string) (Evaluation, error) {
	switch content := c.(type) {
	case MultipleChoice:
		return evaluateChoice(content, answer), nil
	case NumericEntry:
		return evaluateNumeric(content, answer), nil
	case FreeResponse:
		return evaluateFree(content, answer), nil
	default:
		return Evaluation{}, ErrUnknownContent
	}
}

func evaluateChoice(m MultipleChoice, answer string) Evaluation {
	chosen := m.optionIndex(answer)
	if chosen < 0 || len(m.Options) == 0 {
		return Evaluation{Correct: false, Distance: 1}
	}
	if chosen == m.CorrectIndex {
		return Evaluation{Correct: true, Distance: 0}
	}
	span := len(m.Options) - 1
	if span <= 0 {
		return Evaluation{Correct: false, Distance: 1}
	}
	gap := math.Abs(float64(chosen - m.CorrectIndex))
	return Evaluation{Correct: false, Distance: gap / float64(span)}
}

// optionIndex acepta el texto de la opcion o su letra (A, B, C...).
func (m MultipleChoice) optionIndex(answer string) int {
	normalized := NormalizeAnswer(answer)
	if normalized == "" {
		return -1
	}
	for i, opt := range m.Options {
		if NormalizeAnswer(opt) == normalized {
			return i
		}
	}
	if len(normalized) == 1 {
		idx := int(normalized[0] - 'a')
		if idx >= 0 && idx < len(m.Options) {
			return idx
		}
	}
	return -1
}

func evaluateNumeric(n NumericEntry, answer string) Evaluation {
	value, err := strconv.ParseFloat(strings.TrimSpace(answer), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return Evaluation{Correct: false, Distance: 1}
	}
	tolerance := n.Tolerance
	if tolerance <= 0 {
		tolerance = 1e-9
	}
	diff := math.Abs(value - n.Answer)
	if diff <= tolerance {
		return Evaluation{Correct: true, Distance: 0}
	}
	relative := diff / math.Max(math.Abs(n.Answer), 1)
	return Evaluation{Correct: false, Distance: math.Min(1, relative*3)}
}

func evaluateFree(f FreeResponse, answer string) Evaluation {
	normalized := NormalizeAnswer(answer)
	if normalized == "" {
		return Evaluation{Correct: false, Distance: 1}
	}
	if normalized == NormalizeAnswer(f.Reference) {
		return Evaluation{Correct: true, Distance: 0}
	}
	if len(f.Keywords) == 0 {
		return Evaluation{Correct: false, Distance: 1}
	}
	matched := 0
	for _, kw := range f.Keywords {
		if strings.Contains(normalized, NormalizeAnswer(kw)) {
			matched++
		}
	}
	coverage := float64(matched) / float64(len(f.Keywords))
	return Evaluation{Correct: matched == len(f.Keywords), Distance: 1 - coverage}
}

// ContentSpec es la forma plana en que el almacen y el banco de respaldo
// describen el contenido. Build la convierte en la variante tipada.
type ContentSpec struct {
	Format       ItemFormat `json:"format" yaml:"format"`
	Prompt       string     `json:"prompt" yaml:"prompt"`
	Options      []string   `json:"options,omitempty" yaml:"options"`
	CorrectIndex int        `json:"correct_index,omitempty" yaml:"correct_index"`
	Answer       float64    `json:"answer,omitempty" yaml:"answer"`
	Tolerance    float64    `json:"tolerance,omitempty" yaml:"tolerance"`
	Reference    string     `json:"reference,omitempty" yaml:"reference"`
	Keywords     []string   `json:"keywords,omitempty" yaml:"keywords"`
}

// Build valida la especificacion y devuelve el contenido tipado.
func (s ContentSpec) Build() (Content, error) {
	if strings.TrimSpace(s.Prompt) == "" {
		return nil, errors.New("content prompt is empty")
	}
	switch s.Format {
	case FormatMultipleChoice:
		if len(s.Options) < 2 {
			return nil, fmt.Errorf("multiple choice needs at least 2 options, got %d", len(s.Options))
		}
		if s.CorrectIndex < 0 || s.CorrectIndex >= len(s.Options) {
			return nil, fmt.Errorf("correct index %d out of range", s.CorrectIndex)
		}
		return MultipleChoice{Text: s.Prompt, Options: append([]string(nil), s.Options...), CorrectIndex: s.CorrectIndex}, nil
	case FormatNumeric:
		return NumericEntry{Text: s.Prompt, Answer: s.Answer, Tolerance: s.Tolerance}, nil
	case FormatFreeResponse:
		if strings.TrimSpace(s.Reference) == "" && len(s.Keywords) == 0 {
			return nil, errors.New("free response needs a reference or keywords")
		}
		return FreeResponse{Text: s.Prompt, Reference: s.Reference, Keywords: append([]string(nil), s.Keywords...)}, nil
	default:
		return nil, fmt.Errorf("%w: format %q", ErrUnknownContent, s.Format)
	}
}

// NormalizeAnswer pasa a minusculas, recorta y colapsa espacios.
func NormalizeAnswer(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
