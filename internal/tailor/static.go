package tailor

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/dealseek/ma-pilot/internal/posting"
	"github.com/dealseek/ma-pilot/internal/scoring"
)

const defaultCoverLetter = `Dear Hiring Manager,

I am writing to apply for the {{.Title}} position at {{.Company}}. My
background in financial modeling, due diligence, and transaction execution
maps directly onto the responsibilities described in the posting, and I would
welcome the chance to contribute to your team.

I would be happy to provide any additional information or schedule a
conversation at your convenience. Thank you for your consideration.

Best regards`

// Static renders documents from a fixed template without calling a language
// model. Used when no Gemini key is configured and as the degraded-coverage
// fallback when the generation service is down.
type Static struct {
	tmpl *template.Template
}

func NewStatic() *Static {
	return &Static{tmpl: template.Must(template.New("cover").Parse(defaultCoverLetter))}
}

func (s *Static) Tailor(_ context.Context, p *posting.Posting, _ *scoring.Profile) (*DocumentSet, error) {
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, map[string]string{
		"Title":   p.Title,
		"Company": p.Company,
	}); err != nil {
		return nil, fmt.Errorf("render cover letter template: %w", err)
	}

	return &DocumentSet{
		CoverLetter: buf.String(),
		Ref:         fmt.Sprintf("static:%s", p.ID()),
	}, nil
}
