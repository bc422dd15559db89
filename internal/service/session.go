package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joeblew999/plat-hotspots/internal/basemap"
	"github.com/joeblew999/plat-hotspots/internal/catalog"
	"github.com/joeblew999/plat-hotspots/internal/metadata"
	"github.com/joeblew999/plat-hotspots/internal/overlay"
	"github.com/joeblew999/plat-hotspots/internal/welcome"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// BrowserFlag is the welcome dismissal flag kept in the browser's storage.
// The page reports its current value on start; SetHidden marks it for the
// adapter to write back.
type BrowserFlag struct {
	hidden  bool
	pending bool
}

// Hidden implements welcome.FlagStore.
func (f *BrowserFlag) Hidden() bool { return f.hidden }

// SetHidden implements welcome.FlagStore.
func (f *BrowserFlag) SetHidden() error {
	f.hidden = true
	f.pending = true
	return nil
}

func (f *BrowserFlag) takePending() bool {
	p := f.pending
	f.pending = false
	return p
}

// Session is one open viewer page. Its mutex plays the role of the page's
// event loop: every transition runs to completion before the next starts.
type Session struct {
	ID string

	mu       sync.Mutex
	machine  *overlay.Machine
	modal    *welcome.Modal
	flag     *BrowserFlag
	lastSeen time.Time
}

// State returns a snapshot of the session's overlay state.
func (s *Session) State() overlay.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State()
}

// SessionService owns all live viewer sessions.
type SessionService struct {
	catalog *catalog.Catalog
	fetcher metadata.Fetcher
	bus     *EventBus
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// SessionOptions configures a SessionService.
type SessionOptions struct {
	Catalog *catalog.Catalog
	Fetcher metadata.Fetcher
	Bus     *EventBus
	TTL     time.Duration
	Logger  *slog.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(opts SessionOptions) *SessionService {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Bus == nil {
		opts.Bus = NewEventBus()
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &SessionService{
		catalog:  opts.Catalog,
		fetcher:  opts.Fetcher,
		bus:      opts.Bus,
		ttl:      opts.TTL,
		logger:   opts.Logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Bus returns the event bus sessions publish to.
func (s *SessionService) Bus() *EventBus { return s.bus }

// Catalog returns the layer catalog.
func (s *SessionService) Catalog() *catalog.Catalog { return s.catalog }

// Create starts a new session: decides the welcome modal from the browser's
// flag, fetches metadata once and selects the first catalog entry.
func (s *SessionService) Create(ctx context.Context, welcomeHidden bool) (*Session, Result) {
	s.Sweep()

	flag := &BrowserFlag{hidden: welcomeHidden}
	sess := &Session{
		ID:       uuid.NewString(),
		machine:  overlay.NewMachine(s.catalog, s.logger),
		modal:    welcome.Open(flag),
		flag:     flag,
		lastSeen: s.now(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()

	var res Result
	store, err := s.load(ctx)
	if err != nil {
		res.Commands = sess.machine.StartFailed(err)
	} else {
		res.Commands, res.Err = sess.machine.Start(store)
		if res.Err == nil {
			s.publish(sess.ID, ActionSelected, sess.machine.State().ActiveLayerID)
		}
	}
	res.WelcomeVisible = sess.modal.Visible()

	s.logger.Info("session started", "session", sess.ID, "metadata", err == nil)
	return sess, res
}

func (s *SessionService) load(ctx context.Context) (*metadata.Store, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("%w: no metadata source configured", metadata.ErrFetch)
	}
	return metadata.Load(ctx, s.fetcher)
}

// Get returns a live session, refreshing its idle timer.
func (s *SessionService) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	if s.expired(sess) {
		delete(s.sessions, id)
		return nil, fmt.Errorf("%w: %q expired", ErrSessionNotFound, id)
	}
	sess.lastSeen = s.now()
	return sess, nil
}

// Len returns the number of live sessions.
func (s *SessionService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep evicts sessions idle longer than the TTL.
func (s *SessionService) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			n++
		}
	}
	if n > 0 {
		s.logger.Info("evicted idle sessions", "count", n)
	}
	return n
}

func (s *SessionService) expired(sess *Session) bool {
	return s.now().Sub(sess.lastSeen) > s.ttl
}

// do runs fn on the session under its lock.
func (s *SessionService) do(id string, fn func(*Session) Result) (Result, error) {
	sess, err := s.Get(id)
	if err != nil {
		return Result{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	res := fn(sess)
	res.WelcomeVisible = sess.modal.Visible()
	res.PersistWelcome = sess.flag.takePending()
	return res, nil
}

// Select changes the active layer. An empty layer id deselects.
func (s *SessionService) Select(id, layerID string) (Result, error) {
	return s.do(id, func(sess *Session) Result {
		cmds, err := sess.machine.SelectLayer(layerID)
		if err == nil {
			action := ActionSelected
			if layerID == "" {
				action = ActionDeselected
			}
			s.publish(sess.ID, action, layerID)
		}
		return Result{Commands: cmds, Err: err}
	})
}

// Toggle flips overlay visibility.
func (s *SessionService) Toggle(id string) (Result, error) {
	return s.do(id, func(sess *Session) Result {
		cmds := sess.machine.ToggleVisibility()
		if st := sess.machine.State(); len(cmds) > 0 {
			action := ActionHidden
			if st.Visible {
				action = ActionShown
			}
			s.publish(sess.ID, action, st.ActiveLayerID)
		}
		return Result{Commands: cmds}
	})
}

// SetOpacity applies a slider percentage.
func (s *SessionService) SetOpacity(id string, percent int) (Result, error) {
	return s.do(id, func(sess *Session) Result {
		return Result{Commands: sess.machine.SetOpacity(percent)}
	})
}

// ChangeBaseLayer switches the base map.
func (s *SessionService) ChangeBaseLayer(id string, kind basemap.Kind) (Result, error) {
	return s.do(id, func(sess *Session) Result {
		cmds := sess.machine.ChangeBaseLayer(kind)
		s.publish(sess.ID, ActionBaseLayer, string(sess.machine.State().BaseLayer))
		return Result{Commands: cmds}
	})
}

// OverlayOutcome reports the terminal outcome of load attempt gen.
// Stale outcomes produce no commands.
func (s *SessionService) OverlayOutcome(id string, gen uint64, loaded bool) (Result, error) {
	return s.do(id, func(sess *Session) Result {
		layerID := sess.machine.State().ActiveLayerID
		var cmds []overlay.Command
		action := ActionLoaded
		if loaded {
			cmds = sess.machine.OverlayLoaded(gen)
		} else {
			cmds = sess.machine.OverlayFailed(gen)
			action = ActionFailed
		}
		if len(cmds) > 0 {
			s.publish(sess.ID, action, layerID)
		}
		return Result{Commands: cmds}
	})
}

// CloseWelcome is the modal's close button.
func (s *SessionService) CloseWelcome(id string, dontShowAgain bool) (Result, error) {
	return s.do(id, func(sess *Session) Result {
		return Result{Err: sess.modal.Close(dontShowAgain)}
	})
}

// ShowWelcome is the "show info" button.
func (s *SessionService) ShowWelcome(id string) (Result, error) {
	return s.do(id, func(sess *Session) Result {
		sess.modal.ShowInfo()
		return Result{}
	})
}

// DismissWelcome is a click outside the modal content.
func (s *SessionService) DismissWelcome(id string) (Result, error) {
	return s.do(id, func(sess *Session) Result {
		sess.modal.DismissOutside()
		return Result{}
	})
}

func (s *SessionService) publish(sessionID, action, layerID string) {
	s.bus.Publish(Event{
		SessionID: sessionID,
		LayerID:   layerID,
		Action:    action,
		At:        s.now(),
	})
}
