package template

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/template"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/postgres"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrMissingVariable  = errors.New("missing template variable")
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

var renderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "template_render_failures_total",
	Help: "Template renders that failed, by channel and reason.",
}, []string{"channel", "reason"})

type Rendered struct {
	Subject string
	Body    string
	HTML    string
	// Version is the template's UpdatedAt at render time.
	Version time.Time
}

type Renderer struct {
	repo template.Repo
}

func NewRenderer(repo template.Repo) *Renderer { return &Renderer{repo: repo} }

// Render fills the active template for (t, ch) with vars. It never leaves a
// {{token}} in its output: unresolved tokens are reported as ErrMissingVariable.
func (r *Renderer) Render(ctx context.Context, t notification.Type, ch notification.Channel, vars map[string]string) (*Rendered, error) {
	tpl, err := r.repo.Get(ctx, t, ch)
	if errors.Is(err, postgres.ErrNotFound) || (err == nil && !tpl.Active) {
		renderFailures.WithLabelValues(string(ch), "not_found").Inc()
		return nil, fmt.Errorf("%w: %s/%s", ErrTemplateNotFound, t, ch)
	}
	if err != nil {
		return nil, fmt.Errorf("load template %s/%s: %w", t, ch, err)
	}

	out, err := Apply(tpl, vars)
	if err != nil {
		renderFailures.WithLabelValues(string(ch), "missing_variable").Inc()
		return nil, err
	}
	return out, nil
}

// Apply renders tpl without touching storage.
func Apply(tpl *template.Template, vars map[string]string) (*Rendered, error) {
	var missing []string
	for _, name := range tpl.Variables {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}

	subject, m1 := substitute(tpl.Subject, vars, false)
	body, m2 := substitute(tpl.Body, vars, false)
	htmlOut, m3 := substitute(tpl.HTML, vars, true)
	missing = append(missing, m1...)
	missing = append(missing, m2...)
	missing = append(missing, m3...)

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingVariable, strings.Join(dedupe(missing), ", "))
	}
	return &Rendered{Subject: subject, Body: body, HTML: htmlOut, Version: tpl.UpdatedAt}, nil
}

func substitute(s string, vars map[string]string, escape bool) (string, []string) {
	if s == "" {
		return "", nil
	}
	var missing []string
	out := placeholder.ReplaceAllStringFunc(s, func(tok string) string {
		name := placeholder.FindStringSubmatch(tok)[1]
		v, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			return tok
		}
		if escape {
			return html.EscapeString(v)
		}
		return v
	})
	return out, missing
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
