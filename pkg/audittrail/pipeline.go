package audittrail

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pipeline normalizes raw audit entries into render-ready copies.
type Pipeline struct {
	differ *Differ
}

// NewPipeline builds a pipeline. A nil differ uses the default ignore list.
func NewPipeline(differ *Differ) *Pipeline {
	if differ == nil {
		differ = NewDiffer()
	}
	return &Pipeline{differ: differ}
}

// Normalize normalizes every entry. The input slice and its entries are left
// untouched.
func (p *Pipeline) Normalize(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i := range entries {
		out[i] = p.NormalizeEntry(entries[i])
	}
	return out
}

// NormalizeConcurrent is Normalize spread over at most workers goroutines.
// Entries carry no shared state, so output order matches input order.
func (p *Pipeline) NormalizeConcurrent(ctx context.Context, entries []Entry, workers int) ([]Entry, error) {
	if workers <= 1 || len(entries) < 2 {
		return p.Normalize(entries), nil
	}
	out := make([]Entry, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range entries {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = p.NormalizeEntry(entries[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// NormalizeEntry returns a derived copy of e.
//
// A non-empty change list is authoritative and kept as is. Otherwise the raw
// payload is parsed; a before/after object pair is diffed into a change list,
// anything else is kept as the parsed payload with no change list.
func (p *Pipeline) NormalizeEntry(e Entry) Entry {
	out := e
	if len(e.ChangeList) > 0 {
		out.ChangeList = append([]Change(nil), e.ChangeList...)
		out.Payload = Payload{Kind: PayloadChangeList, Changes: out.ChangeList}
		return out
	}

	parsed := Parse(e.Changes)
	out.Changes = parsed
	out.ChangeList = nil

	if before, after, ok := beforeAfter(parsed); ok {
		out.ChangeList = p.differ.Diff(before, after)
		out.Payload = Payload{Kind: PayloadChangeList, Changes: out.ChangeList}
		return out
	}
	out.Payload = classify(parsed)
	return out
}

// VisibleChanges drops envelope markers. Every consumer of a change list runs
// it through here before display, whatever produced the list.
func VisibleChanges(changes []Change) []Change {
	visible := make([]Change, 0, len(changes))
	for _, c := range changes {
		if c.Field == EnvelopeBefore || c.Field == EnvelopeAfter {
			continue
		}
		visible = append(visible, c)
	}
	return visible
}
