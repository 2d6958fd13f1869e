package domain

import "time"

// SessionState es el estado del ciclo de vida de una evaluacion.
type SessionState string

const (
	SessionCreated    SessionState = "created"
	SessionInProgress SessionState = "in_progress"
	SessionCompleted  SessionState = "completed"
	SessionAbandoned  SessionState = "abandoned"
)

// Terminal indica si el estado ya no acepta operaciones.
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionAbandoned
}

// DomainPlan describe el criterio de parada solicitado para un dominio.
// MaxItems es obligatorio; SEThreshold > 0 habilita la parada por error estandar
// una vez administrados MinItems.
type DomainPlan struct {
	Domain      Domain  `json:"domain"`
	MaxItems    int     `json:"max_items"`
	MinItems    int     `json:"min_items,omitempty"`
	SEThreshold float64 `json:"se_threshold,omitempty"`
}

// DomainProgress es el estado mutable de un dominio dentro de una sesion.
type DomainProgress struct {
	Theta         float64 `json:"theta"`
	Information   float64 `json:"information"`
	StandardError float64 `json:"standard_error"`
	Administered  int     `json:"administered"`
	Answered      int     `json:"answered"`
	Correct       int     `json:"correct"`
	Exhausted     bool    `json:"exhausted"`
	Completed     bool    `json:"completed"`
}

// Session es un intento de evaluacion de un usuario.
type Session struct {
	ID             string                     `json:"id"`
	UserID         string                     `json:"user_id"`
	Plans          []DomainPlan               `json:"plans"`
	State          SessionState               `json:"state"`
	Progress       map[Domain]*DomainProgress `json:"progress"`
	Administered   map[string]Domain          `json:"-"`
	Pending        map[Domain]string          `json:"-"`
	Responses      []Response                 `json:"responses"`
	StartedAt      time.Time                  `json:"started_at"`
	EndedAt        *time.Time                 `json:"ended_at,omitempty"`
	LastActivityAt time.Time                  `json:"last_activity_at"`
}

// Plan devuelve el plan del dominio solicitado.
func (s *Session) Plan(d Domain) (DomainPlan, bool) {
	for _, p := range s.Plans {
		if p.Domain == d {
			return p, true
		}
	}
	return DomainPlan{}, false
}

// AdministeredIDs devuelve el conjunto de items ya administrados.
func (s *Session) AdministeredIDs() map[string]struct{} {
	out := make(map[string]struct{}, len(s.Administered))
	for id := range s.Administered {
		out[id] = struct{}{}
	}
	return out
}

// AllDomainsDone indica si todos los dominios alcanzaron su criterio de parada.
func (s *Session) AllDomainsDone() bool {
	for _, p := range s.Plans {
		prog := s.Progress[p.Domain]
		if prog == nil || !(prog.Completed || prog.Exhausted) {
			return false
		}
	}
	return true
}

// Response es el registro inmutable de una respuesta.
type Response struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	UserID     string        `json:"user_id"`
	ItemID     string        `json:"item_id"`
	Domain     Domain        `json:"domain"`
	Answer     string        `json:"answer"`
	Correct    bool          `json:"correct"`
	Distance   float64       `json:"distance"`
	TimeSpent  time.Duration `json:"time_spent"`
	HintsUsed  int           `json:"hints_used"`
	ThetaAfter float64       `json:"theta_after"`
	AnsweredAt time.Time     `json:"answered_at"`
}
