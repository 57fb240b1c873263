package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daydemir/ralph-agent/internal/agent"
	"github.com/daydemir/ralph-agent/internal/config"
	"github.com/daydemir/ralph-agent/internal/issue"
)

func testConfig() *config.Config {
	return &config.Config{
		Models: config.ModelsConfig{
			CoderDefault:   "coder-default",
			CoderHard:      "coder-hard",
			PlannerDefault: "planner-default",
			PlannerHard:    "planner-hard",
			Vision:         "vision",
			Reviewer:       "reviewer",
			Fixer:          "fixer",
		},
		Retries: config.RetriesConfig{
			MaxCodingAttempts:   3,
			MaxReviewIterations: 3,
			MaxHealAttempts:     3,
		},
		Timeouts: config.TimeoutsConfig{
			CodingSeconds:     600,
			ReviewSeconds:     300,
			FixSeconds:        300,
			ScreenshotSeconds: 120,
			TestSeconds:       120,
		},
		Project: config.DefaultProject(),
	}
}

func testIssue(t *testing.T, labels string) *issue.Issue {
	t.Helper()
	iss, err := issue.Parse("42", "Fix login bug", "Login fails with valid credentials", labels)
	require.NoError(t, err)
	return iss
}

type fakeRepo struct {
	requestedBranch string
	commits         []string
	commitErr       error
	diffs           []string
	diffCalls       int
	changed         []string
	workingDiff     string
	frontendDiff    string
	branchErr       error
}

func (r *fakeRepo) CreateBranch(_ context.Context, name string) (string, error) {
	r.requestedBranch = name
	if r.branchErr != nil {
		return "", r.branchErr
	}
	return name, nil
}

func (r *fakeRepo) CommitAndPush(_ context.Context, message, _ string) error {
	r.commits = append(r.commits, message)
	return r.commitErr
}

// Diff returns diffs in order, repeating the last one
func (r *fakeRepo) Diff(context.Context, string) (string, error) {
	r.diffCalls++
	if len(r.diffs) == 0 {
		return "", nil
	}
	i := min(r.diffCalls, len(r.diffs)) - 1
	return r.diffs[i], nil
}

func (r *fakeRepo) ChangedFiles(context.Context, string) ([]string, error) { return r.changed, nil }
func (r *fakeRepo) WorkingDiff(context.Context) string                     { return r.workingDiff }
func (r *fakeRepo) FrontendDiff(context.Context, string) string            { return r.frontendDiff }

type fakeHub struct {
	issueComments []string
	prComments    []string
	labels        []string
	prTitle       string
	prBody        string
	prURL         string
	commentErr    error
}

func (h *fakeHub) CreatePR(_ context.Context, title, body, _, _ string) (string, error) {
	h.prTitle, h.prBody = title, body
	return h.prURL, nil
}

func (h *fakeHub) CommentIssue(_ context.Context, _ int, body string) error {
	h.issueComments = append(h.issueComments, body)
	return h.commentErr
}

func (h *fakeHub) CommentPR(_ context.Context, _, body string) error {
	h.prComments = append(h.prComments, body)
	return h.commentErr
}

func (h *fakeHub) LabelPR(_ context.Context, _, label string) error {
	h.labels = append(h.labels, label)
	return nil
}

func (h *fakeHub) RepoName(context.Context) (string, error) { return "user/repo", nil }

type agentCall struct {
	spec RunnerSpec
	req  agent.Request
}

// fakeAgents hands out runners that answer through respond
type fakeAgents struct {
	mu      sync.Mutex
	specs   []RunnerSpec
	calls   []agentCall
	newErr  error
	respond func(spec RunnerSpec, req agent.Request) (*agent.Result, error)
}

func (a *fakeAgents) New(spec RunnerSpec) (agent.Runner, error) {
	if a.newErr != nil {
		return nil, a.newErr
	}
	a.mu.Lock()
	a.specs = append(a.specs, spec)
	a.mu.Unlock()
	return &fakeRunner{agents: a, spec: spec}, nil
}

func (a *fakeAgents) callsFor(stateDirPrefix string) []agentCall {
	var out []agentCall
	for _, c := range a.calls {
		if strings.HasPrefix(c.spec.StateDir, stateDirPrefix) {
			out = append(out, c)
		}
	}
	return out
}

type fakeRunner struct {
	agents *fakeAgents
	spec   RunnerSpec
}

func (r *fakeRunner) Run(_ context.Context, req agent.Request) (*agent.Result, error) {
	r.agents.mu.Lock()
	r.agents.calls = append(r.agents.calls, agentCall{spec: r.spec, req: req})
	r.agents.mu.Unlock()
	if r.agents.respond == nil {
		return &agent.Result{}, nil
	}
	return r.agents.respond(r.spec, req)
}

// fakeTests returns results in order, repeating the last one
type fakeTests struct {
	results []bool
	output  string
	calls   int
}

func (t *fakeTests) Run(context.Context) (bool, string) {
	t.calls++
	if len(t.results) == 0 {
		return true, t.output
	}
	i := min(t.calls, len(t.results)) - 1
	return t.results[i], t.output
}

type fakeServer struct {
	starts, stops, restarts int
	startErr                error
}

func (s *fakeServer) Start(context.Context) error { s.starts++; return s.startErr }
func (s *fakeServer) Stop()                       { s.stops++ }
func (s *fakeServer) Restart(context.Context) error {
	s.restarts++
	return nil
}

type fakeShooter struct {
	takes   []string
	before  string
	after   []string
	verdict string
	reviews int
}

func (s *fakeShooter) Take(_ context.Context, path, label string, _ *issue.Issue) string {
	s.takes = append(s.takes, label+":"+path)
	return s.before
}

func (s *fakeShooter) TakeAfterWithReview(context.Context, string, *issue.Issue, string) ([]string, string) {
	s.reviews++
	return s.after, s.verdict
}

type fakeUsage struct {
	values []float64
	calls  int
}

func (u *fakeUsage) Usage(context.Context) (float64, bool) {
	if len(u.values) == 0 {
		return 0, false
	}
	i := min(u.calls, len(u.values)-1)
	u.calls++
	return u.values[i], true
}

var errBoom = errors.New("boom")
