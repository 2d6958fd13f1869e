package main

import (
	"strconv"

	"eiq-engine/internal/domain"
)

// keyAnswer devuelve una respuesta que el evaluador acepta como correcta.
func keyAnswer(c domain.Content) string {
	switch v := c.(type) {
	case domain.MultipleChoice:
		return v.CorrectOption()
	case domain.NumericEntry:
		return strconv.FormatFloat(v.Answer, 'f', -1, 64)
	case domain.FreeResponse:
		return v.Reference
	default:
		return ""
	}
}

// wrongAnswer devuelve una respuesta incorrecta para el mismo item.
func wrongAnswer(c domain.Content) string {
	switch v := c.(type) {
	case domain.MultipleChoice:
		for i, opt := range v.Options {
			if i != v.CorrectIndex {
				return opt
			}
		}
		return "none of the above"
	case domain.NumericEntry:
		return strconv.FormatFloat(v.Answer+10*v.Tolerance+1, 'f', -1, 64)
	default:
		return "i do not know"
	}
}
