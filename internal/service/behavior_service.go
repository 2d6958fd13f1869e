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
)

var (
	ErrItemNotFound         = errors.New("item not found")
	ErrNoEligibleItem       = errors.New("no eligible item")
	ErrInvalidBehaviorInput = errors.New("invalid behavior input")
)

const (
	adaptedShortlistSize = 5
	nearMissDistance     = 0.34
	pendingHintLimit     = 4096
)

// BehaviorOptions configura el seguimiento conductual.
type BehaviorOptions struct {
	Decay       float64
	RecentLimit int
	// HintTTL descarta pedidos de pistas que nunca terminaron en respuesta.
	HintTTL     time.Duration
	Now         func() time.Time
}

// BehaviorService acumula senales por usuario y personaliza items y pistas.
type BehaviorService struct {
	logger   *zap.Logger
	selector *ItemSelector
	store    ProfileStore
	writer   HintWriter
	metrics  *metrics.Metrics
	opts     BehaviorOptions

	hintMu       sync.Mutex
	pendingHints map[hintKey]hintTally
}

type hintKey struct {
	userID string
	itemID string
}

type hintTally struct {
	count int
	at    time.Time
}

func NewBehaviorService(logger *zap.Logger, selector *ItemSelector, store ProfileStore, writer HintWriter, m *metrics.Metrics, opts BehaviorOptions) *BehaviorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewMemoryProfileStore()
	}
	if opts.Decay <= 0 || opts.Decay >= 1 {
		opts.Decay = 0.2
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 100
	}
	if opts.HintTTL <= 0 {
		opts.HintTTL = time.Hour
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &BehaviorService{
		logger:       logger,
		selector:     selector,
		store:        store,
		writer:       writer,
		metrics:      m,
		opts:         opts,
		pendingHints: make(map[hintKey]hintTally),
	}
}

// noteHintRequest anota un pedido de pistas hasta que llegue la respuesta.
func (s *BehaviorService) noteHintRequest(userID, itemID string) {
	now := s.opts.Now()
	s.hintMu.Lock()
	defer s.hintMu.Unlock()
	if len(s.pendingHints) >= pendingHintLimit {
		for k, v := range s.pendingHints {
			if now.Sub(v.at) > s.opts.HintTTL {
				delete(s.pendingHints, k)
			}
		}
	}
	key := hintKey{userID: userID, itemID: itemID}
	tally := s.pendingHints[key]
	tally.count++
	tally.at = now
	s.pendingHints[key] = tally
}

// TakeHintRequests devuelve y borra los pedidos de pistas de userID para
// itemID desde su ultima respuesta.
func (s *BehaviorService) TakeHintRequests(userID, itemID string) int {
	key := hintKey{userID: strings.TrimSpace(userID), itemID: itemID}
	s.hintMu.Lock()
	defer s.hintMu.Unlock()
	tally, ok := s.pendingHints[key]
	if !ok {
		return 0
	}
	delete(s.pendingHints, key)
	if s.opts.Now().Sub(tally.at) > s.opts.HintTTL {
		return 0
	}
	return tally.count
}

// Profile devuelve el perfil del usuario; found es false si nunca respondio.
func (s *BehaviorService) Profile(ctx context.Context, userID string) (domain.BehavioralProfile, bool, error) {
	return s.store.Get(ctx, userID)
}

// Record incorpora una respuesta al perfil del usuario.
func (s *BehaviorService) Record(ctx context.Context, userID string, response domain.Response, item domain.Item) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidBehaviorInput)
	}
	_, err := s.store.Update(ctx, userID, func(p *domain.BehavioralProfile) {
		s.apply(p, response, item)
	})
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (s *BehaviorService) apply(p *domain.BehavioralProfile, response domain.Response, item domain.Item) {
	alpha := s.opts.Decay
	u := 0.0
	if response.Correct {
		u = 1
	}
	secs := response.TimeSpent.Seconds()

	band := domain.BandFor(item.IRT.Difficulty)
	bs := p.Bands[band]
	// Se clasifica contra la media previa, antes de incorporar este tiempo.
	if !response.Correct {
		p.Errors[classifyError(bs, secs, response.Distance)]++
	}
	if secs > 0 {
		bs.ResponseTime = bs.ResponseTime.Observe(secs, alpha)
	}
	bs.Accuracy = ewUpdate(bs.Accuracy, u, alpha, bs.Count)
	bs.Count++
	p.Bands[band] = bs

	format := item.Format()
	fs := p.Formats[format]
	fs.Accuracy = ewUpdate(fs.Accuracy, u, alpha, fs.Count)
	if secs > 0 {
		fs.Pace = ewUpdate(fs.Pace, secs, alpha, fs.Count)
	}
	fs.Count++
	p.Formats[format] = fs

	d := item.Domain
	if response.Domain != "" {
		d = response.Domain
	}
	ds := p.Domains[d]
	ds.Accuracy = ewUpdate(ds.Accuracy, u, alpha, ds.Count)
	ds.Count++
	if response.SessionID != "" {
		ds.Theta = response.ThetaAfter
	}
	p.Domains[d] = ds

	hinted := 0.0
	if response.HintsUsed > 0 {
		hinted = 1
	}
	p.HintRate = ewUpdate(p.HintRate, hinted, alpha, p.Responses)
	p.RecentCorrectness = ewUpdate(p.RecentCorrectness, u, alpha, p.Responses)
	p.Responses++

	p.RecentItems = append(p.RecentItems, item.ID)
	if over := len(p.RecentItems) - s.opts.RecentLimit; over > 0 {
		p.RecentItems = append([]string(nil), p.RecentItems[over:]...)
	}
	p.UpdatedAt = s.opts.Now()
}

// ewUpdate siembra con la primera observacion y luego suaviza.
func ewUpdate(prev, x, alpha float64, count int) float64 {
	if count == 0 {
		return x
	}
	return prev + alpha*(x-prev)
}

// classifyError distingue descuidos (respuesta mucho mas rapida que la media
// de la banda), casi-aciertos y errores conceptuales.
func classifyError(bs domain.BandStats, secs, distance float64) domain.ErrorKind {
	if bs.ResponseTime.Count >= 3 && secs > 0 && secs < 0.5*bs.ResponseTime.Mean {
		return domain.ErrorCareless
	}
	if distance <= nearMissDistance {
		return domain.ErrorNearMiss
	}
	return domain.ErrorConceptual
}

// LearnInput es una respuesta reportada fuera de una sesion adaptativa.
type LearnInput struct {
	ItemID    string
	Answer    string
	Correct   *bool
	TimeSpent time.Duration
	HintsUsed int
}

// LearnFromResponse registra una respuesta suelta. Si Correct es nil se evalua
// la respuesta contra el item. Las pistas pedidas para el item desde la ultima
// respuesta cuentan aunque el cliente no las informe.
func (s *BehaviorService) LearnFromResponse(ctx context.Context, userID string, in LearnInput) (domain.BehavioralProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.BehavioralProfile{}, fmt.Errorf("%w: user id is required", ErrInvalidBehaviorInput)
	}
	if in.TimeSpent < 0 || in.HintsUsed < 0 {
		return domain.BehavioralProfile{}, fmt.Errorf("%w: negative time or hint count", ErrInvalidBehaviorInput)
	}
	item, ok := s.selector.Bank().Item(in.ItemID)
	if !ok {
		return domain.BehavioralProfile{}, fmt.Errorf("%w: %s", ErrItemNotFound, in.ItemID)
	}

	eval, err := domain.Evaluate(item.Content, in.Answer)
	if err != nil {
		return domain.BehavioralProfile{}, fmt.Errorf("evaluate item %s: %w", item.ID, err)
	}
	if in.Correct != nil {
		eval.Correct = *in.Correct
		if eval.Correct {
			eval.Distance = 0
		}
	}

	if pending := s.TakeHintRequests(userID, item.ID); pending > in.HintsUsed {
		in.HintsUsed = pending
	}

	response := domain.Response{
		ID:         uuid.NewString(),
		UserID:     userID,
		ItemID:     item.ID,
		Domain:     item.Domain,
		Answer:     in.Answer,
		Correct:    eval.Correct,
		Distance:   eval.Distance,
		TimeSpent:  in.TimeSpent,
		HintsUsed:  in.HintsUsed,
		AnsweredAt: s.opts.Now(),
	}
	if err := s.Record(ctx, userID, response, item); err != nil {
		return domain.BehavioralProfile{}, err
	}
	profile, _, err := s.store.Get(ctx, userID)
	if err != nil {
		return domain.BehavioralProfile{}, fmt.Errorf("load profile: %w", err)
	}
	s.logger.Debug("behavior response learned",
		zap.String("user_id", userID),
		zap.String("item_id", item.ID),
		zap.Bool("correct", eval.Correct),
	)
	return profile, nil
}

// AdaptedItem es la sugerencia del re-ranking conductual.
type AdaptedItem struct {
	Item        domain.Item `json:"-"`
	Theta       float64     `json:"theta"`
	Information float64     `json:"information"`
	Affinity    float64     `json:"affinity"`
	Score       float64     `json:"score"`
}

// AdaptedQuestion reordena la lista corta del selector por afinidad del
// usuario. Nunca sugiere un item fuera de esa lista y no lo administra.
func (s *BehaviorService) AdaptedQuestion(ctx context.Context, userID string, d domain.Domain) (AdaptedItem, error) {
	if strings.TrimSpace(userID) == "" || !d.Valid() {
		return AdaptedItem{}, fmt.Errorf("%w: user id and a known domain are required", ErrInvalidBehaviorInput)
	}
	profile, found, err := s.store.Get(ctx, userID)
	if err != nil {
		return AdaptedItem{}, fmt.Errorf("load profile: %w", err)
	}
	if !found {
		profile = domain.NewBehavioralProfile(userID)
	}

	theta := profile.Domains[d].Theta
	excluded := make(map[string]struct{}, len(profile.RecentItems))
	for _, id := range profile.RecentItems {
		excluded[id] = struct{}{}
	}
	shortlist, err := s.selector.Shortlist(ctx, theta, d, excluded, adaptedShortlistSize)
	if err != nil {
		return AdaptedItem{}, fmt.Errorf("shortlist: %w", err)
	}
	if len(shortlist) == 0 {
		return AdaptedItem{}, fmt.Errorf("%w: domain %s", ErrNoEligibleItem, d)
	}

	maxInfo := 0.0
	for _, c := range shortlist {
		maxInfo = math.Max(maxInfo, c.Information)
	}
	ranked := make([]AdaptedItem, 0, len(shortlist))
	for _, c := range shortlist {
		norm := 1.0
		if maxInfo > 0 {
			norm = c.Information / maxInfo
		}
		aff := affinity(profile, c.Item)
		ranked = append(ranked, AdaptedItem{
			Item:        c.Item,
			Theta:       theta,
			Information: c.Information,
			Affinity:    aff,
			Score:       0.7*norm + 0.3*aff,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked[0], nil
}

// affinity combina el compromiso con el formato y la comodidad en la banda de
// dificultad. Sin historial vale 0.5.
func affinity(p domain.BehavioralProfile, item domain.Item) float64 {
	formatScore := 0.5
	if fs, ok := p.Formats[item.Format()]; ok && fs.Count > 0 {
		formatScore = fs.Accuracy
	}
	bandScore := 0.5
	if bs, ok := p.Bands[domain.BandFor(item.IRT.Difficulty)]; ok && bs.Count > 0 {
		bandScore = 1 - math.Abs(bs.Accuracy-0.7)
	}
	return 0.5*formatScore + 0.5*bandScore
}
