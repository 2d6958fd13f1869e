package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eiq-engine/internal/domain"
	"eiq-engine/internal/metrics"
	"eiq-engine/internal/repository"
)

var (
	ErrSessionNotFound           = errors.New("session not found")
	ErrSessionTerminated         = errors.New("session terminated")
	ErrInvalidResponseSubmission = errors.New("invalid response submission")
	ErrInvalidResponseInput      = errors.New("invalid response input")
	ErrInvalidAssessmentRequest  = errors.New("invalid assessment request")
	ErrDomainNotRequested        = errors.New("domain not requested for session")
	ErrDomainCompleted           = errors.New("domain already completed")
)

// domainWeights pondera cada seccion en el puntaje compuesto.
var domainWeights = map[domain.Domain]float64{
	domain.DomainCoreMath:         0.25,
	domain.DomainAppliedReasoning: 0.40,
	domain.DomainAIConceptual:     0.35,
}

// ResponseObserver recibe cada respuesta registrada. Se invoca fuera del lock
// de la sesion.
type ResponseObserver interface {
	Record(ctx context.Context, userID string, response domain.Response, item domain.Item) error
}

// HintLedger entrega cuantas veces pidio pistas un usuario para un item desde
// su ultima respuesta. Si el observer lo implementa, cada respuesta lleva ese
// conteo.
type HintLedger interface {
	TakeHintRequests(userID, itemID string) int
}

// AssessmentOptions son los valores por defecto del servicio.
type AssessmentOptions struct {
	DefaultItemsPerDomain int
	DefaultSEThreshold    float64
	IdleTimeout           time.Duration
	Retention             time.Duration
	Now                   func() time.Time
}

// SubmitResult es lo que ve el cliente tras responder.
type SubmitResult struct {
	ResponseID      string              `json:"response_id"`
	Correct         bool                `json:"correct"`
	State           domain.SessionState `json:"state"`
	Domain          domain.Domain       `json:"domain"`
	Theta           float64             `json:"theta"`
	StandardError   float64             `json:"standard_error"`
	DomainCompleted bool                `json:"domain_completed"`
}

// SessionView es una copia de solo lectura de la sesion.
type SessionView struct {
	ID        string                                  `json:"id"`
	UserID    string                                  `json:"user_id"`
	State     domain.SessionState                     `json:"state"`
	Plans     []domain.DomainPlan                     `json:"plans"`
	Progress  map[domain.Domain]domain.DomainProgress `json:"progress"`
	Answered  int                                     `json:"answered"`
	StartedAt time.Time                               `json:"started_at"`
	EndedAt   *time.Time                              `json:"ended_at,omitempty"`
}

type sessionEntry struct {
	mu      sync.Mutex
	session *domain.Session
}

// AssessmentService es la maquina de estados de las evaluaciones adaptativas.
type AssessmentService struct {
	logger    *zap.Logger
	selector  *ItemSelector
	estimator *AbilityEstimator
	repo      repository.AssessmentRepository
	scores    ScoreStore
	observer  ResponseObserver
	hints     HintLedger
	metrics   *metrics.Metrics
	opts      AssessmentOptions

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

func NewAssessmentService(
	logger *zap.Logger,
	selector *ItemSelector,
	estimator *AbilityEstimator,
	repo repository.AssessmentRepository,
	scores ScoreStore,
	observer ResponseObserver,
	m *metrics.Metrics,
	opts AssessmentOptions,
) *AssessmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if estimator == nil {
		estimator = NewAbilityEstimator(false)
	}
	if scores == nil {
		scores = NewMemoryScoreStore()
	}
	if opts.DefaultItemsPerDomain <= 0 {
		opts.DefaultItemsPerDomain = 5
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 45 * time.Minute
	}
	if opts.Retention <= 0 {
		opts.Retention = 2 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	hints, _ := observer.(HintLedger)
	return &AssessmentService{
		logger:    logger,
		selector:  selector,
		estimator: estimator,
		repo:      repo,
		scores:    scores,
		observer:  observer,
		hints:     hints,
		metrics:   m,
		opts:      opts,
		sessions:  make(map[string]*sessionEntry),
	}
}

// StartAssessment crea la sesion y la deja en curso.
func (s *AssessmentService) StartAssessment(ctx context.Context, userID string, plans []domain.DomainPlan) (SessionView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return SessionView{}, fmt.Errorf("%w: user id is required", ErrInvalidAssessmentRequest)
	}
	normalized, err := s.normalizePlans(plans)
	if err != nil {
		return SessionView{}, err
	}

	now := s.opts.Now()
	sess := &domain.Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		Plans:          normalized,
		State:          domain.SessionCreated,
		Progress:       make(map[domain.Domain]*domain.DomainProgress, len(normalized)),
		Administered:   make(map[string]domain.Domain),
		Pending:        make(map[domain.Domain]string),
		StartedAt:      now,
		LastActivityAt: now,
	}
	prior := PriorEstimate()
	for _, p := range normalized {
		sess.Progress[p.Domain] = &domain.DomainProgress{
			Theta:         prior.Theta,
			StandardError: prior.StandardError,
		}
	}

	if s.repo != nil {
		if err := s.repo.CreateSession(ctx, *sess); err != nil {
			return SessionView{}, fmt.Errorf("persist session: %w", err)
		}
	}
	for _, p := range normalized {
		if _, err := s.selector.Exposure().DomainSessionStarted(ctx, p.Domain); err != nil {
			return SessionView{}, fmt.Errorf("register domain session: %w", err)
		}
	}

	sess.State = domain.SessionInProgress
	s.persistState(ctx, sess)
	s.metrics.RecordTransition(string(domain.SessionInProgress))

	s.mu.Lock()
	s.sessions[sess.ID] = &sessionEntry{session: sess}
	s.mu.Unlock()

	s.logger.Info("assessment started",
		zap.String("session_id", sess.ID),
		zap.String("user_id", userID),
		zap.Int("domains", len(normalized)),
		zap.Bool("degraded_bank", s.selector.Bank().Degraded()),
	)
	return viewOf(sess), nil
}

func (s *AssessmentService) normalizePlans(plans []domain.DomainPlan) ([]domain.DomainPlan, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: at least one domain is required", ErrInvalidAssessmentRequest)
	}
	seen := make(map[domain.Domain]struct{}, len(plans))
	out := make([]domain.DomainPlan, 0, len(plans))
	for _, p := range plans {
		if !p.Domain.Valid() {
			return nil, fmt.Errorf("%w: unknown domain %q", ErrInvalidAssessmentRequest, p.Domain)
		}
		if _, dup := seen[p.Domain]; dup {
			return nil, fmt.Errorf("%w: domain %s requested twice", ErrInvalidAssessmentRequest, p.Domain)
		}
		seen[p.Domain] = struct{}{}

		if p.MaxItems < 0 || p.MinItems < 0 || p.SEThreshold < 0 {
			return nil, fmt.Errorf("%w: negative stopping rule for %s", ErrInvalidAssessmentRequest, p.Domain)
		}
		if p.MaxItems == 0 {
			p.MaxItems = s.opts.DefaultItemsPerDomain
		}
		if p.SEThreshold == 0 {
			p.SEThreshold = s.opts.DefaultSEThreshold
		}
		if p.SEThreshold > 0 && p.MinItems == 0 {
			p.MinItems = 1
		}
		if p.MinItems > p.MaxItems {
			return nil, fmt.Errorf("%w: min items %d above max items %d", ErrInvalidAssessmentRequest, p.MinItems, p.MaxItems)
		}
		out = append(out, p)
	}
	return out, nil
}

// NextItem devuelve el item pendiente del dominio o administra uno nuevo.
// (nil, nil) significa que el dominio se agoto.
func (s *AssessmentService) NextItem(ctx context.Context, sessionID string, d domain.Domain) (*domain.Item, error) {
	entry, err := s.entry(sessionID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	sess := entry.session
	if sess.State.Terminal() {
		return nil, ErrSessionTerminated
	}
	if _, ok := sess.Plan(d); !ok {
		return nil, fmt.Errorf("%w: %s", ErrDomainNotRequested, d)
	}
	prog := sess.Progress[d]
	if prog.Completed || prog.Exhausted {
		return nil, fmt.Errorf("%w: %s", ErrDomainCompleted, d)
	}

	// Reintento de un cliente: se devuelve el mismo item sin volver a administrarlo.
	if pendingID, ok := sess.Pending[d]; ok {
		if item, found := s.selector.Bank().Item(pendingID); found {
			return &item, nil
		}
	}

	item, err := s.selector.SelectNext(ctx, prog.Theta, d, sess.AdministeredIDs())
	if err != nil {
		return nil, fmt.Errorf("select next item: %w", err)
	}
	sess.LastActivityAt = s.opts.Now()
	if item == nil {
		prog.Exhausted = true
		s.logger.Info("domain exhausted",
			zap.String("session_id", sess.ID),
			zap.String("domain", string(d)),
			zap.Int("answered", prog.Answered),
		)
		if sess.AllDomainsDone() {
			s.complete(ctx, sess)
		}
		return nil, nil
	}

	sess.Administered[item.ID] = d
	sess.Pending[d] = item.ID
	prog.Administered++
	return item, nil
}

// SubmitResponse registra la respuesta al item pendiente y actualiza theta.
func (s *AssessmentService) SubmitResponse(ctx context.Context, sessionID, itemID, answer string, timeSpent time.Duration) (SubmitResult, error) {
	entry, err := s.entry(sessionID)
	if err != nil {
		return SubmitResult{}, err
	}

	result, response, item, userID, err := s.submitLocked(ctx, entry, itemID, answer, timeSpent)
	if err != nil {
		return SubmitResult{}, err
	}

	if s.observer != nil {
		if err := s.observer.Record(ctx, userID, response, item); err != nil {
			s.logger.Warn("behavior record failed",
				zap.String("user_id", userID),
				zap.String("item_id", item.ID),
				zap.Error(err),
			)
		}
	}
	return result, nil
}

func (s *AssessmentService) submitLocked(ctx context.Context, entry *sessionEntry, itemID, answer string, timeSpent time.Duration) (SubmitResult, domain.Response, domain.Item, string, error) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	sess := entry.session
	if sess.State.Terminal() {
		return SubmitResult{}, domain.Response{}, domain.Item{}, "", ErrSessionTerminated
	}
	d, administered := sess.Administered[itemID]
	if !administered {
		return SubmitResult{}, domain.Response{}, domain.Item{}, "", fmt.Errorf("%w: item %s was not served to this session", ErrInvalidResponseSubmission, itemID)
	}
	if sess.Pending[d] != itemID {
		return SubmitResult{}, domain.Response{}, domain.Item{}, "", fmt.Errorf("%w: item %s already answered", ErrInvalidResponseSubmission, itemID)
	}
	if timeSpent < 0 {
		return SubmitResult{}, domain.Response{}, domain.Item{}, "", fmt.Errorf("%w: negative time spent", ErrInvalidResponseInput)
	}
	item, ok := s.selector.Bank().Item(itemID)
	if !ok {
		return SubmitResult{}, domain.Response{}, domain.Item{}, "", fmt.Errorf("%w: item %s not in bank", ErrInvalidResponseSubmission, itemID)
	}
	eval, err := domain.Evaluate(item.Content, answer)
	if err != nil {
		return SubmitResult{}, domain.Response{}, domain.Item{}, "", fmt.Errorf("evaluate item %s: %w", itemID, err)
	}

	hintsUsed := 0
	if s.hints != nil {
		hintsUsed = s.hints.TakeHintRequests(sess.UserID, itemID)
	}

	prog := sess.Progress[d]
	est := s.estimator.Update(AbilityEstimate{
		Theta:         prog.Theta,
		Information:   prog.Information,
		StandardError: prog.StandardError,
		Administered:  prog.Answered,
	}, item, eval.Correct, timeSpent)
	prog.Theta = est.Theta
	prog.Information = est.Information
	prog.StandardError = est.StandardError
	prog.Answered++
	if eval.Correct {
		prog.Correct++
	}
	delete(sess.Pending, d)

	now := s.opts.Now()
	response := domain.Response{
		ID:         uuid.NewString(),
		SessionID:  sess.ID,
		UserID:     sess.UserID,
		ItemID:     itemID,
		Domain:     d,
		Answer:     answer,
		Correct:    eval.Correct,
		Distance:   eval.Distance,
		TimeSpent:  timeSpent,
		HintsUsed:  hintsUsed,
		ThetaAfter: est.Theta,
		AnsweredAt: now,
	}
	sess.Responses = append(sess.Responses, response)
	sess.LastActivityAt = now

	plan, _ := sess.Plan(d)
	if stoppingReached(plan, prog) {
		prog.Completed = true
	}

	if s.repo != nil {
		if err := s.repo.InsertResponse(ctx, response); err != nil {
			s.logger.Error("persist response failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	s.metrics.RecordResponse(string(d), eval.Correct)

	if sess.AllDomainsDone() {
		s.complete(ctx, sess)
	}

	return SubmitResult{
		ResponseID:      response.ID,
		Correct:         eval.Correct,
		State:           sess.State,
		Domain:          d,
		Theta:           est.Theta,
		StandardError:   est.StandardError,
		DomainCompleted: prog.Completed,
	}, response, item, sess.UserID, nil
}

// stoppingReached aplica el tope de items o el umbral de error estandar.
func stoppingReached(plan domain.DomainPlan, prog *domain.DomainProgress) bool {
	if prog.Answered >= plan.MaxItems {
		return true
	}
	return plan.SEThreshold > 0 && prog.Answered >= plan.MinItems && prog.StandardError <= plan.SEThreshold
}

// complete se llama con el lock de la sesion tomado.
func (s *AssessmentService) complete(ctx context.Context, sess *domain.Session) {
	now := s.opts.Now()
	sess.State = domain.SessionCompleted
	sess.EndedAt = &now
	s.persistState(ctx, sess)
	s.metrics.RecordTransition(string(domain.SessionCompleted))

	theta := compositeTheta(sess)
	score := EiQScore(theta)
	if len(sess.Responses) > 0 {
		point := domain.ScorePoint{
			SessionID:  sess.ID,
			UserID:     sess.UserID,
			Score:      score,
			Theta:      theta,
			RecordedAt: now,
		}
		if err := s.scores.Append(ctx, point); err != nil {
			s.logger.Error("append score failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	s.logger.Info("assessment completed",
		zap.String("session_id", sess.ID),
		zap.String("user_id", sess.UserID),
		zap.Float64("eiq", score),
		zap.Int("responses", len(sess.Responses)),
	)
}

// Abandon termina la sesion a pedido del cliente.
func (s *AssessmentService) Abandon(ctx context.Context, sessionID string) (SessionView, error) {
	entry, err := s.entry(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.session.State.Terminal() {
		return SessionView{}, ErrSessionTerminated
	}
	s.abandon(ctx, entry.session)
	return viewOf(entry.session), nil
}

func (s *AssessmentService) abandon(ctx context.Context, sess *domain.Session) {
	now := s.opts.Now()
	sess.State = domain.SessionAbandoned
	sess.EndedAt = &now
	sess.Pending = make(map[domain.Domain]string)
	s.persistState(ctx, sess)
	s.metrics.RecordTransition(string(domain.SessionAbandoned))
	s.logger.Info("assessment abandoned", zap.String("session_id", sess.ID))
}

// Session devuelve una copia del estado actual.
func (s *AssessmentService) Session(sessionID string) (SessionView, error) {
	entry, err := s.entry(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return viewOf(entry.session), nil
}

// DomainResult es el resumen de un dominio.
type DomainResult struct {
	Domain        domain.Domain `json:"domain"`
	Theta         float64       `json:"theta"`
	StandardError float64       `json:"standard_error"`
	Score         int           `json:"score"`
	Answered      int           `json:"answered"`
	Correct       int           `json:"correct"`
	Accuracy      float64       `json:"accuracy"`
	HintsUsed     int           `json:"hints_used"`
	Completed     bool          `json:"completed"`
}

// HintUsage resume la dependencia de pistas en la sesion.
type HintUsage struct {
	Requests       int      `json:"requests"`
	ItemsWithHints int      `json:"items_with_hints"`
	Rate           float64  `json:"rate"`
	Suggestions    []string `json:"suggestions"`
}

// AssessmentResult resume una sesion; en curso devuelve resultados parciales.
type AssessmentResult struct {
	SessionID        string              `json:"session_id"`
	UserID           string              `json:"user_id"`
	State            domain.SessionState `json:"state"`
	Domains          []DomainResult      `json:"domains"`
	EiQScore         float64             `json:"eiq_score"`
	Placement        string              `json:"placement"`
	Strengths        []domain.Domain     `json:"strengths"`
	ImprovementAreas []domain.Domain     `json:"improvement_areas"`
	AdaptationSignal string              `json:"adaptation_signal"`
	Hints            HintUsage           `json:"hints"`
	StartedAt        time.Time           `json:"started_at"`
	EndedAt          *time.Time          `json:"ended_at,omitempty"`
}

// Results calcula puntajes por dominio y el compuesto EiQ.
func (s *AssessmentService) Results(_ context.Context, sessionID string) (AssessmentResult, error) {
	entry, err := s.entry(sessionID)
	if err != nil {
		return AssessmentResult{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	sess := entry.session

	res := AssessmentResult{
		SessionID:        sess.ID,
		UserID:           sess.UserID,
		State:            sess.State,
		StartedAt:        sess.StartedAt,
		EndedAt:          sess.EndedAt,
		Strengths:        []domain.Domain{},
		ImprovementAreas: []domain.Domain{},
	}
	hintsByDomain := make(map[domain.Domain]int, len(sess.Plans))
	for _, r := range sess.Responses {
		hintsByDomain[r.Domain] += r.HintsUsed
	}
	var seSum float64
	for _, p := range sess.Plans {
		prog := sess.Progress[p.Domain]
		dr := DomainResult{
			Domain:        p.Domain,
			Theta:         prog.Theta,
			StandardError: prog.StandardError,
			Score:         int(math.Round(500 + 100*prog.Theta)),
			Answered:      prog.Answered,
			Correct:       prog.Correct,
			HintsUsed:     hintsByDomain[p.Domain],
			Completed:     prog.Completed || prog.Exhausted,
		}
		if prog.Answered > 0 {
			dr.Accuracy = float64(prog.Correct) / float64(prog.Answered)
		}
		if prog.Answered >= 2 {
			switch {
			case dr.Accuracy >= 0.75:
				res.Strengths = append(res.Strengths, p.Domain)
			case dr.Accuracy < 0.5:
				res.ImprovementAreas = append(res.ImprovementAreas, p.Domain)
			}
		}
		seSum += prog.StandardError
		res.Domains = append(res.Domains, dr)
	}
	theta := compositeTheta(sess)
	res.EiQScore = EiQScore(theta)
	res.Placement = placementFor(theta)
	res.AdaptationSignal = adaptationSignal(sess.Responses, seSum/float64(len(sess.Plans)))
	res.Hints = hintUsage(sess.Responses)
	return res, nil
}

func hintUsage(responses []domain.Response) HintUsage {
	usage := HintUsage{Suggestions: []string{}}
	for _, r := range responses {
		if r.HintsUsed > 0 {
			usage.Requests += r.HintsUsed
			usage.ItemsWithHints++
		}
	}
	if len(responses) == 0 || usage.ItemsWithHints == 0 {
		return usage
	}
	usage.Rate = float64(usage.ItemsWithHints) / float64(len(responses))
	if usage.Rate > 0.5 {
		usage.Suggestions = append(usage.Suggestions, "Attempt each problem on your own before asking for a hint")
	}
	if usage.Requests >= 2*usage.ItemsWithHints {
		usage.Suggestions = append(usage.Suggestions, "Review the core concepts behind the items where you needed several hints")
	}
	return usage
}

// compositeTheta promedia theta con los pesos de seccion renormalizados a los
// dominios pedidos.
func compositeTheta(sess *domain.Session) float64 {
	var sum, weights float64
	for _, p := range sess.Plans {
		w := domainWeights[p.Domain]
		if w <= 0 {
			w = 1
		}
		sum += w * sess.Progress[p.Domain].Theta
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

func placementFor(theta float64) string {
	switch {
	case theta < -1:
		return "foundation"
	case theta < 1:
		return "immersion"
	default:
		return "mastery"
	}
}

// adaptationSignal mira las ultimas tres respuestas y la incertidumbre media.
func adaptationSignal(responses []domain.Response, meanSE float64) string {
	if len(responses) == 0 {
		return "gather_more_evidence"
	}
	recent := responses
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	correct := 0
	for _, r := range recent {
		if r.Correct {
			correct++
		}
	}
	switch {
	case len(recent) == 3 && correct == 3:
		return "increase_difficulty"
	case correct == 0:
		return "decrease_difficulty"
	case meanSE > 0.5:
		return "gather_more_evidence"
	default:
		return "maintain_level"
	}
}

// ExpireIdle abandona sesiones inactivas y libera las terminadas hace mucho.
// Devuelve cuantas sesiones abandono y cuantas libero.
func (s *AssessmentService) ExpireIdle(ctx context.Context, now time.Time) (abandoned, evicted int) {
	s.mu.RLock()
	entries := make(map[string]*sessionEntry, len(s.sessions))
	for id, e := range s.sessions {
		entries[id] = e
	}
	s.mu.RUnlock()

	var evict []string
	for id, e := range entries {
		e.mu.Lock()
		sess := e.session
		switch {
		case !sess.State.Terminal() && now.Sub(sess.LastActivityAt) > s.opts.IdleTimeout:
			s.abandon(ctx, sess)
			abandoned++
		case sess.State.Terminal() && sess.EndedAt != nil && now.Sub(*sess.EndedAt) > s.opts.Retention:
			evict = append(evict, id)
		}
		e.mu.Unlock()
	}

	if len(evict) > 0 {
		sort.Strings(evict)
		s.mu.Lock()
		for _, id := range evict {
			delete(s.sessions, id)
		}
		s.mu.Unlock()
		evicted = len(evict)
	}
	return abandoned, evicted
}

// RunJanitor ejecuta ExpireIdle cada interval hasta que ctx se cancele.
func (s *AssessmentService) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			abandoned, evicted := s.ExpireIdle(ctx, s.opts.Now())
			if abandoned > 0 || evicted > 0 {
				s.logger.Info("session janitor sweep",
					zap.Int("abandoned", abandoned),
					zap.Int("evicted", evicted),
				)
			}
		}
	}
}

func (s *AssessmentService) entry(sessionID string) (*sessionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

func (s *AssessmentService) persistState(ctx context.Context, sess *domain.Session) {
	if s.repo == nil {
		return
	}
	if err := s.repo.UpdateSessionState(ctx, sess.ID, sess.State, sess.EndedAt); err != nil {
		s.logger.Error("persist session state failed",
			zap.String("session_id", sess.ID),
			zap.String("state", string(sess.State)),
			zap.Error(err),
		)
	}
}

func viewOf(sess *domain.Session) SessionView {
	progress := make(map[domain.Domain]domain.DomainProgress, len(sess.Progress))
	for d, p := range sess.Progress {
		progress[d] = *p
	}
	var ended *time.Time
	if sess.EndedAt != nil {
		t := *sess.EndedAt
		ended = &t
	}
	return SessionView{
		ID:        sess.ID,
		UserID:    sess.UserID,
		State:     sess.State,
		Plans:     append([]domain.DomainPlan(nil), sess.Plans...),
		Progress:  progress,
		Answered:  len(sess.Responses),
		StartedAt: sess.StartedAt,
		EndedAt:   ended,
	}
}
