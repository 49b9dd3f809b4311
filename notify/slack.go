package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bcdannyboy/rangeaccrual/report"
	"github.com/slack-go/slack"
)

// Slack posts run summaries to a channel. A run first posts a placeholder
// with Start and replaces it with the result in Finish.
type Slack struct {
	client  *slack.Client
	channel string
}

func NewSlack(token, channel string, opts ...slack.Option) (*Slack, error) {
	if token == "" || channel == "" {
		return nil, errors.New("slack notifier needs a bot token and a channel")
	}
	return &Slack{client: slack.New(token, opts...), channel: channel}, nil
}

// Start returns the timestamp of the placeholder message.
func (s *Slack) Start(ctx context.Context, text string) (string, error) {
	_, ts, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return "", fmt.Errorf("failed to post slack message: %w", err)
	}
	return ts, nil
}

// Finish replaces the message at ts with the report summary, or posts a new
// one when ts is empty.
func (s *Slack) Finish(ctx context.Context, ts string, rep report.Report) error {
	summary := Summary(rep)
	opts := []slack.MsgOption{
		slack.MsgOptionText(summary, false),
		slack.MsgOptionBlocks(
			slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "Range accrual", false, false)),
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, summary, false, false), nil, nil),
		),
	}

	var err error
	if ts == "" {
		_, _, err = s.client.PostMessageContext(ctx, s.channel, opts...)
	} else {
		_, _, _, err = s.client.UpdateMessageContext(ctx, s.channel, ts, opts...)
	}
	if err != nil {
		return fmt.Errorf("failed to send slack summary: %w", err)
	}
	return nil
}

// Summary renders the headline figures of a report as Slack markdown.
func Summary(rep report.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Price* %s  [%s, %s] at %.0f%%\n", rep.Price.Value, rep.Price.Low, rep.Price.High, 100*rep.Price.ConfidenceLevel)
	fmt.Fprintf(&b, "*Range* [%g, %g] on %s over %gy, %d paths x %d steps\n",
		rep.Contract.RangeLower, rep.Contract.RangeUpper, rep.Contract.Notional, rep.Contract.Horizon,
		rep.Contract.NumSimulations, rep.Contract.NumSteps)
	fmt.Fprintf(&b, "*Model* %s", rep.Model)
	if rep.Calibration != nil {
		fmt.Fprintf(&b, " (%s, %d iterations, residual %.2e)", rep.Calibration.Method, rep.Calibration.Iterations, rep.Calibration.ResidualNorm)
	}
	if rep.Sensitivity != nil {
		fmt.Fprintf(&b, "\n*dP/dr0* %s  *d2P/dr0^2* %s", rep.Sensitivity.FirstOrder, rep.Sensitivity.SecondOrder)
	}
	for _, w := range rep.Warnings {
		fmt.Fprintf(&b, "\n:warning: %s", w)
	}
	return b.String()
}
