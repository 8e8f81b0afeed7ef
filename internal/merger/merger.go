// Package merger turns the periodic heartbeats of one logical session into
// the smallest number of activity records.
package merger

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sadopc/autotrackr/internal/clock"
	"github.com/sadopc/autotrackr/internal/matcher"
	"github.com/sadopc/autotrackr/internal/metrics"
	"github.com/sadopc/autotrackr/internal/store"
)

const (
	// DefaultFlushInterval bounds how much tracked time an abrupt exit can lose.
	DefaultFlushInterval = 30 * time.Second

	// maxUnsaved bounds the closed records held for a retry while the
	// database is failing. The oldest is dropped first.
	maxUnsaved = 256
)

// Heartbeat is one observation of a session at a polling tick.
type Heartbeat struct {
	AppName     string  `json:"app_name"`
	BundleID    string  `json:"bundle_id"`
	WindowTitle string  `json:"window_title"`
	URL         *string `json:"url,omitempty"`
	ExtraInfo   *string `json:"extra_info,omitempty"`
}

func (hb Heartbeat) fields() matcher.Fields {
	return matcher.Fields{
		AppName:     hb.AppName,
		BundleID:    hb.BundleID,
		WindowTitle: hb.WindowTitle,
		URL:         hb.URL,
		ExtraInfo:   hb.ExtraInfo,
	}
}

// Store is the write side of the activity log used by a merger.
type Store interface {
	InsertActivity(rec store.ActivityRecord, projectID *int64, source *store.ProjectSource) (int64, error)
	UpdateDuration(id, seconds int64) error
	UpdateWindowTitle(id int64, title string, url, extraInfo *string) error
}

// Classifier picks a project for a new record.
type Classifier interface {
	Match(f matcher.Fields) (int64, bool)
}

// Bundles whose records continue across title changes. Video sites embedded
// in the browser report as "virtual.*" bundles.
var mergeByAppOnly = map[string]bool{
	"com.apple.Music":    true,
	"com.spotify.client": true,
}

const virtualBundlePrefix = "virtual."

var passiveMediaBundles = map[string]bool{
	"com.apple.Music":               true,
	"com.spotify.client":            true,
	"com.apple.TV":                  true,
	"org.videolan.vlc":              true,
	"com.colliderli.iina":           true,
	"com.apple.QuickTimePlayerX":    true,
	"com.apple.iBooksX":             true,
	"com.amazon.Kindle":             true,
	"com.amazon.Lassen":             true,
	"com.apple.Preview":             true,
	"com.adobe.Reader":              true,
	"net.sourceforge.skim-app.skim": true,
	"virtual.youtube":               true,
	"virtual.netflix":               true,
	"virtual.twitch":                true,
	"virtual.primevideo":            true,
	"virtual.disneyplus":            true,
}

var documentSuffixes = []string{".pdf", ".epub", ".djvu"}

// Config holds merger configuration
type Config struct {
	FlushInterval time.Duration
	Clock         clock.Clock
}

// Merger is the state machine for a single session. It must not be driven
// from more than one goroutine at a time; Pool provides that guarantee.
type Merger struct {
	session       string
	store         Store
	classifier    Classifier
	flushInterval time.Duration
	clock         clock.Clock
	logger        zerolog.Logger

	current     *store.ActivityRecord
	currentID   int64
	accumulated int64
	lastFlush   time.Time

	// Closed records whose last write failed, retried on every Flush.
	unsaved []unsavedRecord
}

type unsavedRecord struct {
	rec store.ActivityRecord
	id  int64
}

// New creates a merger for session. classifier may be nil, in which case
// new records are left unassigned.
func New(session string, s Store, classifier Classifier, cfg Config, logger zerolog.Logger) *Merger {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &Merger{
		session:       session,
		store:         s,
		classifier:    classifier,
		flushInterval: cfg.FlushInterval,
		clock:         cfg.Clock,
		logger:        logger.With().Str("component", "merger").Str("session", session).Logger(),
	}
}

// Process folds one heartbeat into the open record, or closes it and opens a
// new one when the heartbeat belongs to a different activity.
func (m *Merger) Process(hb Heartbeat, intervalSeconds int64) {
	if intervalSeconds < 0 {
		intervalSeconds = 0
	}
	metrics.HeartbeatsTotal.WithLabelValues(SessionKind(m.session)).Inc()

	if m.current != nil && m.sameActivity(hb) {
		m.accumulated += intervalSeconds
		if hb.WindowTitle != m.current.WindowTitle {
			m.retitle(hb)
		}
		if m.clock.Now().Sub(m.lastFlush) >= m.flushInterval {
			m.persist()
			m.lastFlush = m.clock.Now()
		}
		return
	}

	m.Flush()
	m.closeCurrent()
	m.open(hb, intervalSeconds)
}

func (m *Merger) sameActivity(hb Heartbeat) bool {
	if hb.BundleID != m.current.BundleID || hb.AppName != m.current.AppName {
		return false
	}
	return mergesByApp(hb.BundleID) || hb.WindowTitle == m.current.WindowTitle
}

func mergesByApp(bundleID string) bool {
	return mergeByAppOnly[bundleID] || strings.HasPrefix(bundleID, virtualBundlePrefix)
}

func (m *Merger) retitle(hb Heartbeat) {
	m.current.WindowTitle = hb.WindowTitle
	m.current.URL = hb.URL
	m.current.ExtraInfo = hb.ExtraInfo
	if m.currentID == 0 {
		return
	}
	if err := m.store.UpdateWindowTitle(m.currentID, hb.WindowTitle, hb.URL, hb.ExtraInfo); err != nil {
		metrics.WriteFailures.WithLabelValues("update_title").Inc()
		m.logWriteError(err, "Failed to update window title")
	}
}

func (m *Merger) open(hb Heartbeat, intervalSeconds int64) {
	now := m.clock.Now()
	rec := &store.ActivityRecord{
		Timestamp:       now,
		AppName:         hb.AppName,
		BundleID:        hb.BundleID,
		WindowTitle:     hb.WindowTitle,
		URL:             hb.URL,
		ExtraInfo:       hb.ExtraInfo,
		DurationSeconds: intervalSeconds,
		Date:            now.Format("2006-01-02"),
	}
	if m.classifier != nil {
		if pid, ok := m.classifier.Match(hb.fields()); ok {
			src := store.SourceAutoRule
			rec.ProjectID = &pid
			rec.ProjectSource = &src
		}
	}

	m.current = rec
	m.currentID = 0
	m.accumulated = intervalSeconds
	m.lastFlush = now

	metrics.RecordsOpened.WithLabelValues(SessionKind(m.session), classifiedLabel(rec)).Inc()
	m.insert()
}

func (m *Merger) insert() {
	m.current.DurationSeconds = m.accumulated
	id, err := m.store.InsertActivity(*m.current, m.current.ProjectID, m.current.ProjectSource)
	if err != nil {
		// Kept in memory without an id; the next flush retries the insert.
		metrics.WriteFailures.WithLabelValues("insert").Inc()
		m.logger.Error().Err(err).Str("app", m.current.AppName).Msg("Failed to insert activity record")
		return
	}
	m.currentID = id
	m.current.ID = id
	m.logger.Debug().
		Int64("record_id", id).
		Str("app", m.current.AppName).
		Str("title", m.current.WindowTitle).
		Msg("Opened activity record")
}

// Flush retries closed records that failed to persist, then persists the
// accumulated duration of the open record. The latter is a no-op when nothing
// is open or nothing has accumulated.
func (m *Merger) Flush() {
	m.retryUnsaved()
	if m.current == nil || m.accumulated == 0 {
		return
	}
	m.persist()
	m.lastFlush = m.clock.Now()
}

func (m *Merger) persist() {
	if m.currentID == 0 {
		m.insert()
		if m.currentID == 0 {
			metrics.FlushesTotal.WithLabelValues("error").Inc()
			return
		}
		metrics.FlushesTotal.WithLabelValues("ok").Inc()
		return
	}
	if err := m.store.UpdateDuration(m.currentID, m.accumulated); err != nil {
		metrics.FlushesTotal.WithLabelValues("error").Inc()
		metrics.WriteFailures.WithLabelValues("update_duration").Inc()
		m.logWriteError(err, "Failed to persist duration")
		return
	}
	m.current.DurationSeconds = m.accumulated
	metrics.FlushesTotal.WithLabelValues("ok").Inc()
}

func (m *Merger) logWriteError(err error, msg string) {
	ev := m.logger.Error()
	if errors.Is(err, store.ErrNotFound) {
		ev = m.logger.Warn()
	}
	ev.Err(err).Int64("record_id", m.currentID).Int64("accumulated_seconds", m.accumulated).Msg(msg)
}

// End flushes and closes the open record so the next heartbeat starts a new
// one. Used on pause, suspend and shutdown. A record that could not be
// written stays queued until a later Flush succeeds; it is lost only if the
// process exits first.
func (m *Merger) End() {
	m.Flush()
	m.closeCurrent()
}

// Unsaved reports how many closed records are waiting for a retry.
func (m *Merger) Unsaved() int {
	return len(m.unsaved)
}

func (m *Merger) closeCurrent() {
	if m.current != nil && (m.currentID == 0 || m.current.DurationSeconds != m.accumulated) {
		rec := *m.current
		rec.DurationSeconds = m.accumulated
		if len(m.unsaved) == maxUnsaved {
			dropped := m.unsaved[0]
			m.logger.Warn().
				Str("app", dropped.rec.AppName).
				Int64("accumulated_seconds", dropped.rec.DurationSeconds).
				Msg("Dropping unsaved record, retry queue full")
			m.unsaved = m.unsaved[1:]
		}
		m.unsaved = append(m.unsaved, unsavedRecord{rec: rec, id: m.currentID})
		m.logger.Warn().
			Int64("record_id", m.currentID).
			Int64("accumulated_seconds", m.accumulated).
			Msg("Closed record not persisted, queued for retry")
	}
	m.current = nil
	m.currentID = 0
	m.accumulated = 0
}

func (m *Merger) retryUnsaved() {
	if len(m.unsaved) == 0 {
		return
	}
	kept := m.unsaved[:0]
	for _, u := range m.unsaved {
		var err error
		if u.id == 0 {
			_, err = m.store.InsertActivity(u.rec, u.rec.ProjectID, u.rec.ProjectSource)
		} else {
			err = m.store.UpdateDuration(u.id, u.rec.DurationSeconds)
		}
		switch {
		case err == nil:
			metrics.FlushesTotal.WithLabelValues("ok").Inc()
		case errors.Is(err, store.ErrNotFound):
			// Deleted through the API meanwhile.
		default:
			metrics.FlushesTotal.WithLabelValues("error").Inc()
			kept = append(kept, u)
		}
	}
	for i := len(kept); i < len(m.unsaved); i++ {
		m.unsaved[i] = unsavedRecord{}
	}
	m.unsaved = kept
}

// Current returns a copy of the open record, or nil.
func (m *Merger) Current() *store.ActivityRecord {
	if m.current == nil {
		return nil
	}
	rec := *m.current
	rec.DurationSeconds = m.accumulated
	return &rec
}

// IsCurrentPassiveMedia reports whether the open record is video, music or
// reading, which idle detection must not interrupt.
func (m *Merger) IsCurrentPassiveMedia() bool {
	if m.current == nil {
		return false
	}
	if passiveMediaBundles[m.current.BundleID] {
		return true
	}
	title := strings.ToLower(strings.TrimSpace(m.current.WindowTitle))
	for _, suffix := range documentSuffixes {
		if strings.HasSuffix(title, suffix) {
			return true
		}
	}
	return false
}

func classifiedLabel(rec *store.ActivityRecord) string {
	if rec.ProjectID != nil {
		return "true"
	}
	return "false"
}
