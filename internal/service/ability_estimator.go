package service

import (
	"math"
	"time"

	"eiq-engine/internal/domain"
)

// AbilityEstimate es el estado del estimador para un dominio de una sesion.
type AbilityEstimate struct {
	Theta         float64
	Information   float64
	StandardError float64
	Administered  int
}

// PriorEstimate es el punto de partida neutral: theta 0 con prior N(0, 1).
func PriorEstimate() AbilityEstimate {
	return AbilityEstimate{Theta: 0, StandardError: 1}
}

// AbilityEstimator aplica un paso de Fisher scoring contra el modelo 3PL con
// prior normal estandar. El paso se divide por la informacion acumulada, asi
// que se achica a medida que se administran items.
type AbilityEstimator struct {
	useLatency bool
}

func NewAbilityEstimator(useLatency bool) *AbilityEstimator {
	return &AbilityEstimator{useLatency: useLatency}
}

// Update devuelve la estimacion tras responder item. Una respuesta correcta
// nunca baja theta y una incorrecta nunca lo sube.
func (e *AbilityEstimator) Update(est AbilityEstimate, item domain.Item, correct bool, timeSpent time.Duration) AbilityEstimate {
	params := sanitizeIRT(item.IRT)
	theta := est.Theta
	prob := Probability(theta, params)
	info := Information(theta, params)

	u := 0.0
	if correct {
		u = 1
	}
	// Derivada de la log-verosimilitud 3PL respecto de theta.
	score := params.Discrimination * (u - prob) * (prob - params.Guessing) / (prob * (1 - params.Guessing))
	total := est.Information + info
	step := score / (1 + total)

	if e != nil && e.useLatency {
		step *= latencyFactor(item, correct, timeSpent)
	}

	next := theta + step
	// Se recorta a [-4, 4] sin invertir el sentido del movimiento.
	next = math.Max(next, math.Min(theta, thetaMin))
	next = math.Min(next, math.Max(theta, thetaMax))

	return AbilityEstimate{
		Theta:         next,
		Information:   total,
		StandardError: 1 / math.Sqrt(1+total),
		Administered:  est.Administered + 1,
	}
}

// expectedResponseTime crece con la dificultad del item.
func expectedResponseTime(item domain.Item) time.Duration {
	seconds := 30 * math.Exp(0.3*item.IRT.Difficulty)
	return time.Duration(seconds * float64(time.Second))
}

// latencyFactor queda en [0.8, 1.2].
func latencyFactor(item domain.Item, correct bool, timeSpent time.Duration) float64 {
	if timeSpent <= 0 {
		return 1
	}
	ratio := timeSpent.Seconds() / expectedResponseTime(item).Seconds()
	switch {
	case correct && ratio < 0.5:
		return 1.2
	case correct && ratio > 2:
		return 0.8
	case !correct && ratio < 0.5:
		return 0.8
	default:
		return 1
	}
}
