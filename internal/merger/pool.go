package merger

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sadopc/autotrackr/internal/metrics"
	"github.com/sadopc/autotrackr/internal/store"
)

// SessionForeground is the session of the focused window.
const SessionForeground = "foreground"

// TerminalSession is the session of a background terminal tab.
func TerminalSession(tab string) string { return "terminal:" + tab }

// MusicSession is the session of a background music source.
func MusicSession(source string) string { return "music:" + source }

// SessionKind strips the per-instance suffix from a session key.
func SessionKind(session string) string {
	if i := strings.IndexByte(session, ':'); i >= 0 {
		return session[:i]
	}
	return session
}

type sessionMerger struct {
	mu sync.Mutex
	m  *Merger
}

// Pool owns one Merger per logical session. Each merger is driven by at most
// one goroutine at a time; different sessions proceed independently.
type Pool struct {
	store      Store
	classifier Classifier
	config     Config
	logger     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionMerger
}

// NewPool creates an empty pool. Mergers are created on first use.
func NewPool(s Store, classifier Classifier, cfg Config, logger zerolog.Logger) *Pool {
	return &Pool{
		store:      s,
		classifier: classifier,
		config:     cfg,
		logger:     logger,
		sessions:   make(map[string]*sessionMerger),
	}
}

func (p *Pool) get(session string) *sessionMerger {
	p.mu.Lock()
	defer p.mu.Unlock()
	sm, ok := p.sessions[session]
	if !ok {
		sm = &sessionMerger{m: New(session, p.store, p.classifier, p.config, p.logger)}
		p.sessions[session] = sm
	}
	return sm
}

func (p *Pool) snapshot() []*sessionMerger {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.sessions))
	for k := range p.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*sessionMerger, 0, len(keys))
	for _, k := range keys {
		out = append(out, p.sessions[k])
	}
	return out
}

// Process feeds a heartbeat to the session's merger.
func (p *Pool) Process(session string, hb Heartbeat, intervalSeconds int64) {
	sm := p.get(session)
	sm.mu.Lock()
	sm.m.Process(hb, intervalSeconds)
	sm.mu.Unlock()
	p.updateGauge()
}

// Current returns a copy of the session's open record, or nil.
func (p *Pool) Current(session string) *store.ActivityRecord {
	p.mu.Lock()
	sm, ok := p.sessions[session]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.m.Current()
}

// IsPassiveMedia reports whether any session is currently playing or showing
// passive content.
func (p *Pool) IsPassiveMedia() bool {
	for _, sm := range p.snapshot() {
		sm.mu.Lock()
		passive := sm.m.IsCurrentPassiveMedia()
		sm.mu.Unlock()
		if passive {
			return true
		}
	}
	return false
}

// FlushAll persists every open record without closing it.
func (p *Pool) FlushAll() {
	for _, sm := range p.snapshot() {
		sm.mu.Lock()
		sm.m.Flush()
		sm.mu.Unlock()
	}
}

// EndAll flushes and closes every open record.
func (p *Pool) EndAll() {
	for _, sm := range p.snapshot() {
		sm.mu.Lock()
		sm.m.End()
		sm.mu.Unlock()
	}
	p.updateGauge()
	p.logger.Info().Str("component", "merger-pool").Msg("Closed all open records")
}

// Sessions returns the known session keys in sorted order.
func (p *Pool) Sessions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.sessions))
	for k := range p.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *Pool) updateGauge() {
	open := 0
	for _, sm := range p.snapshot() {
		sm.mu.Lock()
		if sm.m.current != nil {
			open++
		}
		sm.mu.Unlock()
	}
	metrics.OpenSessions.Set(float64(open))
}
