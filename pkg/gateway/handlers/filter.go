package handlers

import (
	"strings"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/metrics"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails/audit"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/protocol"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/session"
)

// guardrailFilter screens one session's event stream before it reaches
// the client. Assistant transcripts run through the compliance engine;
// when a check blocks or rewrites, the spoken text is replaced and the
// matching audio is suppressed until the content block ends.
type guardrailFilter struct {
	engine  *guardrails.Engine
	audit   *audit.Log
	metrics *metrics.Metrics
	sess    *session.Session
	locale  string
	role    string

	suppressing bool
}

func newGuardrailFilter(engine *guardrails.Engine, log *audit.Log, m *metrics.Metrics, sess *session.Session, locale, role string) *guardrailFilter {
	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" {
		role = protocol.RoleAssistant
	}
	return &guardrailFilter{
		engine:  engine,
		audit:   log,
		metrics: m,
		sess:    sess,
		locale:  locale,
		role:    role,
	}
}

// Apply returns the event to forward, or false to drop it.
func (f *guardrailFilter) Apply(ev session.Event) (session.Event, bool) {
	switch ev.Type {
	case session.EventAudio:
		if f.sess.ConsumeSuppressAudio() {
			f.suppressing = true
		}
		if f.suppressing {
			return ev, false
		}
		if f.metrics != nil {
			f.metrics.AudioChunk()
		}
		return ev, true

	case session.EventContentStart, session.EventContentEnd:
		f.suppressing = false
		return ev, true

	case session.EventTranscript:
		if f.engine == nil || ev.Role != f.role || ev.Content == "" {
			return ev, true
		}
		res := f.engine.Check(ev.Content, f.locale, ev.Role)
		if f.audit != nil {
			f.audit.LogCheck(f.sess.ID, ev.Role, ev.Content, res, f.locale)
		}
		if f.metrics != nil {
			f.metrics.GuardrailCheck(audit.ActionFor(res))
		}
		if res.ShouldBlock() || res.ShouldRewrite() {
			ev.Content = res.ActionMessage()
			f.sess.SetSuppressAudio(true)
			f.suppressing = true
		}
		return ev, true

	default:
		return ev, true
	}
}
