package service

import (
	"math"

	"eiq-engine/internal/domain"
)

const (
	thetaMin  = -4.0
	thetaMax  = 4.0
	probFloor = 1e-9
)

// sanitizeIRT normaliza parametros fuera de rango para que el modelo 3PL sea valido.
func sanitizeIRT(p domain.IRTParams) domain.IRTParams {
	if p.Discrimination <= 0 || math.IsNaN(p.Discrimination) {
		p.Discrimination = 1
	}
	if p.Guessing < 0 || math.IsNaN(p.Guessing) {
		p.Guessing = 0
	}
	if p.Guessing > 0.5 {
		p.Guessing = 0.5
	}
	return p
}

// Probability devuelve P(correcta | theta) bajo el modelo logistico de tres parametros.
func Probability(theta float64, params domain.IRTParams) float64 {
	p := sanitizeIRT(params)
	logistic := 1 / (1 + math.Exp(-p.Discrimination*(theta-p.Difficulty)))
	prob := p.Guessing + (1-p.Guessing)*logistic
	return math.Min(math.Max(prob, probFloor), 1-probFloor)
}

// Information es la informacion de Fisher del item en theta.
// Con c = 0 se reduce a a^2 * P * (1 - P), maxima cuando theta = b.
func Information(theta float64, params domain.IRTParams) float64 {
	p := sanitizeIRT(params)
	prob := Probability(theta, p)
	num := p.Discrimination * p.Discrimination * (prob - p.Guessing) * (prob - p.Guessing) * (1 - prob)
	den := prob * (1 - p.Guessing) * (1 - p.Guessing)
	if den <= 0 {
		return 0
	}
	return num / den
}

// EiQScore convierte theta a la escala compuesta [0, 1000].
func EiQScore(theta float64) float64 {
	return math.Min(math.Max(500+100*theta, 0), 1000)
}
