// File: internal/formfill/filler.go
package formfill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/wafidbot/wafidbot/internal/observability"
)

// ErrNoFieldsFilled indicates the page yielded no input the candidate has a
// value for. The form either failed to render or changed shape.
var ErrNoFieldsFilled = errors.New("formfill: no fields filled")

// Page is the slice of a browser session the filler needs.
type Page interface {
	Context() context.Context
}

// Filler types candidate data into the booking form over CDP.
type Filler struct {
	candidate *Candidate
	logger    *zap.Logger
	events    *observability.EventLog

	navTimeout time.Duration

	// run is chromedp.Run, swappable in tests that have no live browser.
	run func(ctx context.Context, actions ...chromedp.Action) error
}

// NewFiller builds a filler for one candidate.
func NewFiller(logger *zap.Logger, events *observability.EventLog, candidate *Candidate, navTimeout time.Duration) (*Filler, error) {
	if candidate == nil {
		return nil, errors.New("formfill: candidate is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if navTimeout <= 0 {
		navTimeout = 90 * time.Second
	}
	return &Filler{
		candidate:  candidate,
		logger:     logger.Named("formfill"),
		events:     events,
		navTimeout: navTimeout,
		run:        chromedp.Run,
	}, nil
}

// Fill navigates the session to the booking form, classifies every input it
// finds, and types the candidate values in. Unrecognized fields are skipped
// and noted; a field that fails to accept input fails the whole pass so the
// attempt can be retried cleanly.
func (f *Filler) Fill(ctx context.Context, page Page, bookingURL string) error {
	sessionCtx := page.Context()
	if sessionCtx == nil {
		return errors.New("formfill: session has no live context")
	}

	navCtx, cancel := context.WithTimeout(sessionCtx, f.navTimeout)
	defer cancel()

	if err := f.run(navCtx,
		chromedp.Navigate(bookingURL),
		chromedp.WaitVisible("form", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate to booking form: %w", err)
	}

	var nodes []*cdp.Node
	if err := f.run(navCtx,
		chromedp.Nodes("form input, form select, form textarea", &nodes, chromedp.ByQueryAll),
	); err != nil {
		return fmt.Errorf("enumerate form fields: %w", err)
	}

	filled := 0
	for _, node := range nodes {
		purpose := classifyNode(node)
		if purpose == PurposeUnknown {
			f.logger.Debug("skipping unrecognized field",
				zap.String("id", node.AttributeValue("id")),
				zap.String("name", node.AttributeValue("name")))
			continue
		}
		value, ok := f.candidate.Value(purpose)
		if !ok {
			continue
		}
		if err := f.fillNode(navCtx, node, value); err != nil {
			return fmt.Errorf("fill %s: %w", purpose, err)
		}
		filled++
	}

	if filled == 0 {
		return ErrNoFieldsFilled
	}
	if f.events != nil {
		f.events.Infof("filled %d of %d form fields", filled, len(nodes))
	}

	if err := f.run(navCtx, chromedp.Click(`form [type="submit"]`, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("submit form: %w", err)
	}
	return nil
}

// fillNode writes one value, using the control's own mechanism: selects get
// their value set, everything else gets keystrokes.
func (f *Filler) fillNode(ctx context.Context, node *cdp.Node, value string) error {
	sel := nodeSelector(node)
	if sel == "" {
		return errors.New("field has neither id nor name")
	}
	if strings.EqualFold(node.NodeName, "select") {
		return f.run(ctx, chromedp.SetValue(sel, value, chromedp.ByQuery))
	}
	return f.run(ctx,
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
}

func classifyNode(node *cdp.Node) FieldPurpose {
	label := node.AttributeValue("aria-label")
	if label == "" {
		label = node.AttributeValue("title")
	}
	return Classify(
		node.AttributeValue("id"),
		node.AttributeValue("name"),
		node.AttributeValue("placeholder"),
		label,
		node.AttributeValue("type"),
	)
}

func nodeSelector(node *cdp.Node) string {
	if id := node.AttributeValue("id"); id != "" {
		return "#" + id
	}
	if name := node.AttributeValue("name"); name != "" {
		return fmt.Sprintf(`[name=%q]`, name)
	}
	return ""
}
