package domain

import "time"

// DifficultyBand agrupa items por dificultad calibrada.
type DifficultyBand string

const (
	BandVeryEasy DifficultyBand = "very_easy"
	BandEasy     DifficultyBand = "easy"
	BandMedium   DifficultyBand = "medium"
	BandHard     DifficultyBand = "hard"
	BandVeryHard DifficultyBand = "very_hard"
)

// BandFor devuelve la banda de una dificultad b.
func BandFor(difficulty float64) DifficultyBand {
	switch {
	case difficulty < -1.5:
		return BandVeryEasy
	case difficulty < -0.5:
		return BandEasy
	case difficulty < 0.5:
		return BandMedium
	case difficulty < 1.5:
		return BandHard
	default:
		return BandVeryHard
	}
}

// ErrorKind clasifica una respuesta incorrecta.
type ErrorKind string

const (
	ErrorCareless   ErrorKind = "careless"
	ErrorNearMiss   ErrorKind = "near_miss"
	ErrorConceptual ErrorKind = "conceptual"
)

// EWStat es una media y varianza con ponderacion exponencial.
type EWStat struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	Count    int     `json:"count"`
}

// Observe incorpora x con factor de olvido alpha.
func (s EWStat) Observe(x, alpha float64) EWStat {
	if s.Count == 0 {
		return EWStat{Mean: x, Count: 1}
	}
	diff := x - s.Mean
	incr := alpha * diff
	return EWStat{
		Mean:     s.Mean + incr,
		Variance: (1 - alpha) * (s.Variance + diff*incr),
		Count:    s.Count + 1,
	}
}

// BandStats son las senales de una banda de dificultad. ResponseTime en segundos.
type BandStats struct {
	ResponseTime EWStat  `json:"response_time"`
	Accuracy     float64 `json:"accuracy"`
	Count        int     `json:"count"`
}

// FormatStats mide el compromiso del usuario con un formato de item.
type FormatStats struct {
	Accuracy float64 `json:"accuracy"`
	Pace     float64 `json:"pace_seconds"`
	Count    int     `json:"count"`
}

// DomainStats resume el desempeno por dominio.
type DomainStats struct {
	Accuracy float64 `json:"accuracy"`
	Count    int     `json:"count"`
	Theta    float64 `json:"theta"`
}

// BehavioralProfile acumula senales de un usuario entre sesiones.
type BehavioralProfile struct {
	UserID            string                       `json:"user_id"`
	Bands             map[DifficultyBand]BandStats `json:"bands"`
	Formats           map[ItemFormat]FormatStats   `json:"formats"`
	Domains           map[Domain]DomainStats       `json:"domains"`
	HintRate          float64                      `json:"hint_rate"`
	RecentCorrectness float64                      `json:"recent_correctness"`
	Responses         int                          `json:"responses"`
	Errors            map[ErrorKind]int            `json:"errors"`
	RecentItems       []string                     `json:"recent_items"`
	UpdatedAt         time.Time                    `json:"updated_at"`
}

// NewBehavioralProfile crea un perfil vacio.
func NewBehavioralProfile(userID string) BehavioralProfile {
	return BehavioralProfile{
		UserID:  userID,
		Bands:   make(map[DifficultyBand]BandStats),
		Formats: make(map[ItemFormat]FormatStats),
		Domains: make(map[Domain]DomainStats),
		Errors:  make(map[ErrorKind]int),
	}
}

// Clone devuelve una copia profunda del perfil.
func (p BehavioralProfile) Clone() BehavioralProfile {
	out := p
	out.Bands = make(map[DifficultyBand]BandStats, len(p.Bands))
	for k, v := range p.Bands {
		out.Bands[k] = v
	}
	out.Formats = make(map[ItemFormat]FormatStats, len(p.Formats))
	for k, v := range p.Formats {
		out.Formats[k] = v
	}
	out.Domains = make(map[Domain]DomainStats, len(p.Domains))
	for k, v := range p.Domains {
		out.Domains[k] = v
	}
	out.Errors = make(map[ErrorKind]int, len(p.Errors))
	for k, v := range p.Errors {
		out.Errors[k] = v
	}
	out.RecentItems = append([]string(nil), p.RecentItems...)
	return out
}

// HintKind es el tipo de ayuda entregada.
type HintKind string

const (
	HintStrategic     HintKind = "strategic"
	HintConceptual    HintKind = "conceptual"
	HintStepByStep    HintKind = "step_by_step"
	HintEncouragement HintKind = "encouragement"
)

// Hint es una pista personalizada. Level va de 1 (sutil) a 3 (detallada).
type Hint struct {
	Level   int      `json:"level"`
	Kind    HintKind `json:"kind"`
	Content string   `json:"content"`
	Source  string   `json:"source"`
}

// HintContext describe el intento actual del usuario sobre un item.
type HintContext struct {
	Attempts   int           `json:"attempts"`
	TimeSpent  time.Duration `json:"time_spent"`
	LastAnswer string        `json:"last_answer,omitempty"`
}
