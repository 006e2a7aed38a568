// File: internal/formfill/filler_test.go
package formfill

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPage struct{ ctx context.Context }

func (p stubPage) Context() context.Context { return p.ctx }

func testCandidate(t *testing.T) *Candidate {
	t.Helper()
	c, err := ReadCandidate(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	return c
}

func TestNewFillerRequiresCandidate(t *testing.T) {
	_, err := NewFiller(zap.NewNop(), nil, nil, time.Second)
	assert.Error(t, err)
}

func TestFillRejectsDeadSession(t *testing.T) {
	f, err := NewFiller(zap.NewNop(), nil, testCandidate(t), time.Second)
	require.NoError(t, err)

	err = f.Fill(context.Background(), stubPage{ctx: nil}, "https://wafid.com/book-appointment")
	assert.Error(t, err)
}

func TestFillPropagatesNavigationFailure(t *testing.T) {
	f, err := NewFiller(zap.NewNop(), nil, testCandidate(t), time.Second)
	require.NoError(t, err)
	f.run = func(ctx context.Context, actions ...chromedp.Action) error {
		return assert.AnError
	}

	err = f.Fill(context.Background(), stubPage{ctx: context.Background()}, "https://wafid.com/book-appointment")
	assert.ErrorContains(t, err, "navigate")
}

func TestFillFailsWhenNothingFillable(t *testing.T) {
	f, err := NewFiller(zap.NewNop(), nil, testCandidate(t), time.Second)
	require.NoError(t, err)
	// Every chromedp call "succeeds" but the page yields no nodes.
	f.run = func(ctx context.Context, actions ...chromedp.Action) error { return nil }

	err = f.Fill(context.Background(), stubPage{ctx: context.Background()}, "https://wafid.com/book-appointment")
	assert.ErrorIs(t, err, ErrNoFieldsFilled)
}

func TestClassifyNodeReadsAttributes(t *testing.T) {
	node := &cdp.Node{
		NodeName:   "INPUT",
		Attributes: []string{"id", "passport_expiry_date", "name", "passport_expiry_date", "type", "date"},
	}
	assert.Equal(t, PurposePassportExpiryDate, classifyNode(node))

	unlabeled := &cdp.Node{
		NodeName:   "INPUT",
		Attributes: []string{"name", "contact", "type", "email"},
	}
	assert.Equal(t, PurposeEmail, classifyNode(unlabeled))
}

func TestNodeSelectorPrefersID(t *testing.T) {
	withID := &cdp.Node{Attributes: []string{"id", "first_name", "name", "fname"}}
	assert.Equal(t, "#first_name", nodeSelector(withID))

	nameOnly := &cdp.Node{Attributes: []string{"name", "fname"}}
	assert.Equal(t, `[name="fname"]`, nodeSelector(nameOnly))

	bare := &cdp.Node{}
	assert.Empty(t, nodeSelector(bare))
}
