package playback

import (
	"sync"

	"github.com/google/uuid"

	"github.com/meloplay/meloplay/internal/config"
	"github.com/meloplay/meloplay/internal/music"
	"github.com/meloplay/meloplay/internal/preview"
)

// Manager tracks one controller per listening session. Sessions are
// identified by opaque ids the client stores locally.
type Manager struct {
	cfg      *config.Config
	resolver Resolver
	history  HistoryRecorder
	det      *preview.Detector

	// OnPreviewDetected propagates late preview detections from any
	// session to the cross-source matcher.
	OnPreviewDetected func(song music.Song, res *music.ResolvedURL)

	mu       sync.Mutex
	sessions map[string]*Controller
}

func NewManager(cfg *config.Config, resolver Resolver, history HistoryRecorder, det *preview.Detector) *Manager {
	return &Manager{
		cfg:      cfg,
		resolver: resolver,
		history:  history,
		det:      det,
		sessions: make(map[string]*Controller),
	}
}

// Get returns the controller for a session, creating it on first use.
// An empty id mints a fresh session.
func (m *Manager) Get(id string) (string, *Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id != "" {
		if c, ok := m.sessions[id]; ok {
			return id, c
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	c := NewController(m.cfg, m.resolver, NewStateSink(), m.history)
	c.SetDetector(m.det)
	c.OnPreviewDetected = func(song music.Song, res *music.ResolvedURL) {
		if m.OnPreviewDetected != nil {
			m.OnPreviewDetected(song, res)
		}
	}
	m.sessions[id] = c
	return id, c
}

// Peek returns an existing session without creating one.
func (m *Manager) Peek(id string) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// ForEach visits every live session, for broadcasting late full-version
// swaps.
func (m *Manager) ForEach(fn func(id string, c *Controller)) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	cs := make([]*Controller, 0, len(m.sessions))
	for id, c := range m.sessions {
		ids = append(ids, id)
		cs = append(cs, c)
	}
	m.mu.Unlock()
	for i := range ids {
		fn(ids[i], cs[i])
	}
}

// Remove drops a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.sessions[id]; ok {
		c.ClearQueue()
		delete(m.sessions, id)
	}
}
