package domain

import "time"

// ScorePoint es el puntaje compuesto de una sesion completada.
type ScorePoint struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	Score      float64   `json:"score"`
	Theta      float64   `json:"theta"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Projection es un puntaje proyectado a un horizonte en dias.
type Projection struct {
	HorizonDays int     `json:"horizon_days"`
	Score       float64 `json:"score"`
	Lower       float64 `json:"lower"`
	Upper       float64 `json:"upper"`
}

// Prediction es derivada y nunca se persiste como estado autoritativo.
type Prediction struct {
	UserID          string       `json:"user_id"`
	CurrentScore    float64      `json:"current_score"`
	ProjectedScore  float64      `json:"projected_score"`
	Lower           float64      `json:"lower"`
	Upper           float64      `json:"upper"`
	ConfidenceLevel float64      `json:"confidence_level"`
	SlopePerDay     float64      `json:"slope_per_day"`
	HorizonDays     int          `json:"horizon_days"`
	Projections     []Projection `json:"projections"`
	SessionsUsed    int          `json:"sessions_used"`
	GrowthFactors   []string     `json:"growth_factors"`
	Interventions   []string     `json:"interventions"`
	GeneratedAt     time.Time    `json:"generated_at"`
}
