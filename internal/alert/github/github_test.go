package github

import (
	"context"
	"errors"
	"strings"
	"testing"

	gh "github.com/google/go-github/v68/github"
	"github.com/zulandar/qualitygate/internal/alert"
)

type mockIssues struct {
	owner, repo string
	created     []*gh.IssueRequest
	err         error
}

func (m *mockIssues) Create(_ context.Context, owner, repo string, issue *gh.IssueRequest) (*gh.Issue, *gh.Response, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	m.owner, m.repo = owner, repo
	m.created = append(m.created, issue)
	return &gh.Issue{Number: gh.Ptr(len(m.created))}, nil, nil
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Opts{Owner: "acme", Repo: "qc"}); err == nil || !strings.Contains(err.Error(), "token") {
		t.Errorf("error = %v, want token error", err)
	}
	if _, err := New(ctx, Opts{Token: "t", Owner: "acme"}); err == nil || !strings.Contains(err.Error(), "owner and repo") {
		t.Errorf("error = %v, want owner and repo error", err)
	}
}

func TestNew_RealClient(t *testing.T) {
	n, err := New(context.Background(), Opts{Token: "t", Owner: "acme", Repo: "qc"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n.issues == nil || n.Name() != "github" {
		t.Errorf("notifier = %+v", n)
	}
}

func TestNotify_CreatesIssue(t *testing.T) {
	m := &mockIssues{}
	n, err := New(context.Background(), Opts{Owner: "acme", Repo: "qc", Labels: []string{"quality"}, Issues: m})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	evt := alert.Event{Kind: alert.KindCriticalDefect, Title: "Critical defect dfc-1: crack", Body: "deep crack",
		Fields: []alert.Field{{Name: "Batch", Value: "B|1"}}}
	if err := n.Notify(context.Background(), evt); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(m.created) != 1 || m.owner != "acme" || m.repo != "qc" {
		t.Fatalf("created = %d in %s/%s", len(m.created), m.owner, m.repo)
	}
	req := m.created[0]
	if req.GetTitle() != evt.Title {
		t.Errorf("Title = %q", req.GetTitle())
	}
	if !strings.Contains(req.GetBody(), `| Batch | B\|1 |`) {
		t.Errorf("Body = %q", req.GetBody())
	}
	labels := *req.Labels
	if len(labels) != 2 || labels[0] != "critical_defect" || labels[1] != "quality" {
		t.Errorf("Labels = %v", labels)
	}
}

func TestNotify_SkipsDigest(t *testing.T) {
	m := &mockIssues{}
	n, _ := New(context.Background(), Opts{Owner: "acme", Repo: "qc", Issues: m})
	if err := n.Notify(context.Background(), alert.Event{Kind: alert.KindDigest, Title: "Daily digest"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(m.created) != 0 {
		t.Error("digest should not open an issue")
	}
}

func TestNotify_ExplicitKinds(t *testing.T) {
	m := &mockIssues{}
	n, _ := New(context.Background(), Opts{Owner: "acme", Repo: "qc", Issues: m, Kinds: []alert.Kind{alert.KindDefectRate}})
	n.Notify(context.Background(), alert.Event{Kind: alert.KindCriticalDefect})
	n.Notify(context.Background(), alert.Event{Kind: alert.KindDefectRate})
	if len(m.created) != 1 {
		t.Errorf("created %d issues, want 1", len(m.created))
	}
}

func TestNotify_Error(t *testing.T) {
	m := &mockIssues{err: errors.New("401 Bad credentials")}
	n, _ := New(context.Background(), Opts{Owner: "acme", Repo: "qc", Issues: m})
	err := n.Notify(context.Background(), alert.Event{Kind: alert.KindDefectRate})
	if err == nil || !strings.Contains(err.Error(), "acme/qc") {
		t.Errorf("error = %v", err)
	}
}
