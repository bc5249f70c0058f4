package audittrail

import (
	"strconv"
	"strings"
	"time"
)

// DefaultSystemLabel is shown when an entry carries no actor at all.
const DefaultSystemLabel = "System"

// Tone classifies an action for badge styling.
type Tone string

const (
	ToneSuccess Tone = "success"
	ToneInfo    Tone = "info"
	ToneDanger  Tone = "danger"
	ToneWarning Tone = "warning"
	ToneNeutral Tone = "neutral"
)

// ActionTone maps an action tag to its badge tone.
func ActionTone(action string) Tone {
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case ActionCreate:
		return ToneSuccess
	case ActionUpdate:
		return ToneInfo
	case ActionDelete:
		return ToneDanger
	case ActionInventoryDecrement:
		return ToneWarning
	default:
		return ToneNeutral
	}
}

// ActorDisplay picks actorName, then actor.fullName, then #<actorId>, then the
// system label.
func ActorDisplay(e Entry, systemLabel string) string {
	if name := strings.TrimSpace(e.ActorName); name != "" {
		return name
	}
	if e.Actor != nil {
		if name := strings.TrimSpace(e.Actor.FullName); name != "" {
			return name
		}
	}
	if e.ActorID != nil && *e.ActorID != 0 {
		return "#" + strconv.FormatInt(*e.ActorID, 10)
	}
	if systemLabel == "" {
		return DefaultSystemLabel
	}
	return systemLabel
}

// RenderedChange is a change ready for display.
type RenderedChange struct {
	Field  string `json:"field"`
	Label  string `json:"label"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// RenderedEntry is an audit entry ready for display.
type RenderedEntry struct {
	ID        int64            `json:"id"`
	Entity    string           `json:"entity"`
	EntityID  int64            `json:"entityId"`
	Action    string           `json:"action"`
	Tone      Tone             `json:"tone"`
	Actor     string           `json:"actor"`
	CreatedAt time.Time        `json:"createdAt"`
	HasDetail bool             `json:"hasDetail"`
	Changes   []RenderedChange `json:"changes"`
	Note      string           `json:"note,omitempty"`
}

// Renderer turns normalized entries into display rows.
type Renderer struct {
	formatter   *Formatter
	labels      FieldLabels
	systemLabel string
}

// NewRenderer builds a renderer. Nil labels fall back to the defaults.
func NewRenderer(formatter *Formatter, labels FieldLabels, systemLabel string) *Renderer {
	if labels == nil {
		labels = DefaultFieldLabels()
	}
	if systemLabel == "" {
		systemLabel = DefaultSystemLabel
	}
	return &Renderer{formatter: formatter, labels: labels, systemLabel: systemLabel}
}

// Render renders one normalized entry.
func (r *Renderer) Render(e Entry) RenderedEntry {
	out := RenderedEntry{
		ID:        e.ID,
		Entity:    e.Entity,
		EntityID:  e.EntityID,
		Action:    e.Action,
		Tone:      ActionTone(e.Action),
		Actor:     ActorDisplay(e, r.systemLabel),
		CreatedAt: e.CreatedAt,
		HasDetail: e.Payload.HasDetail(),
		Changes:   make([]RenderedChange, 0),
	}
	if e.Payload.Kind == PayloadRaw {
		out.Note = e.Payload.Raw
	}
	for _, c := range VisibleChanges(e.ChangeList) {
		out.Changes = append(out.Changes, RenderedChange{
			Field:  c.Field,
			Label:  r.labels.Label(e.Entity, c.Field),
			Before: r.formatter.Format(c.Before, c.Field),
			After:  r.formatter.Format(c.After, c.Field),
		})
	}
	return out
}

// RenderAll renders entries in order.
func (r *Renderer) RenderAll(entries []Entry) []RenderedEntry {
	out := make([]RenderedEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, r.Render(e))
	}
	return out
}
