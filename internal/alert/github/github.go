// Package github implements an alert Notifier that opens a GitHub issue for
// every quality alert, so breaches land in the team's issue tracker.
package github

import (
	"context"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v68/github"
	"github.com/zulandar/qualitygate/internal/alert"
	"golang.org/x/oauth2"
)

// issuesService abstracts the go-github issue methods we use.
type issuesService interface {
	Create(ctx context.Context, owner, repo string, issue *gh.IssueRequest) (*gh.Issue, *gh.Response, error)
}

// Notifier opens issues in one repository.
type Notifier struct {
	issues issuesService
	owner  string
	repo   string
	labels []string
	kinds  map[alert.Kind]bool
}

// Opts holds parameters for creating a GitHub Notifier.
type Opts struct {
	Token  string
	Owner  string
	Repo   string
	Labels []string
	// Kinds limits which events open issues. Empty means critical-defect and
	// defect-rate alerts; digests never open issues unless listed.
	Kinds []alert.Kind
	// For testing: inject a mock issues service.
	Issues issuesService
}

// New creates a GitHub Notifier authenticated with a static token.
func New(ctx context.Context, opts Opts) (*Notifier, error) {
	if opts.Issues == nil && opts.Token == "" {
		return nil, fmt.Errorf("github: token is required")
	}
	if opts.Owner == "" || opts.Repo == "" {
		return nil, fmt.Errorf("github: owner and repo are required")
	}
	n := &Notifier{issues: opts.Issues, owner: opts.Owner, repo: opts.Repo, labels: opts.Labels, kinds: map[alert.Kind]bool{}}
	if n.issues == nil {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		n.issues = gh.NewClient(oauth2.NewClient(ctx, ts)).Issues
	}
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = []alert.Kind{alert.KindCriticalDefect, alert.KindDefectRate}
	}
	for _, k := range kinds {
		n.kinds[k] = true
	}
	return n, nil
}

// Name implements alert.Notifier.
func (n *Notifier) Name() string { return "github" }

// Notify implements alert.Notifier. Events of kinds not selected are skipped.
func (n *Notifier) Notify(ctx context.Context, evt alert.Event) error {
	if !n.kinds[evt.Kind] {
		return nil
	}
	req := &gh.IssueRequest{
		Title: gh.Ptr(evt.Title),
		Body:  gh.Ptr(issueBody(evt)),
	}
	labels := append([]string{string(evt.Kind)}, n.labels...)
	req.Labels = &labels

	if _, _, err := n.issues.Create(ctx, n.owner, n.repo, req); err != nil {
		return fmt.Errorf("github: create issue in %s/%s: %w", n.owner, n.repo, err)
	}
	return nil
}

// issueBody renders evt as Markdown with a field table.
func issueBody(evt alert.Event) string {
	var b strings.Builder
	b.WriteString(evt.Body)
	if len(evt.Fields) > 0 {
		b.WriteString("\n\n| Field | Value |\n|---|---|\n")
		for _, f := range evt.Fields {
			fmt.Fprintf(&b, "| %s | %s |\n", f.Name, strings.ReplaceAll(f.Value, "|", `\|`))
		}
	}
	return b.String()
}
