package tailor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/dealseek/ma-pilot/internal/logger"
	"github.com/dealseek/ma-pilot/internal/posting"
	"github.com/dealseek/ma-pilot/internal/scoring"
)

const (
	defaultModel      = "gemini-2.5-flash"
	previewLogLength  = 200
	coverLetterPrompt = `You are helping a candidate apply for a finance role.
Given the job posting and the candidate's target keywords below, write a JSON
object with two fields:
  "resume_summary": a 3-4 sentence professional summary tuned to the posting
  "cover_letter": a concise cover letter (under 250 words) for the posting

Do not invent employers or credentials. Respond with JSON only.

Posting:
{{POSTING_JSON}}

Candidate keywords: {{KEYWORDS}}

JSON response:`
)

// Gemini generates tailored documents with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGemini creates a Gemini-backed tailor. Model defaults when empty.
func NewGemini(ctx context.Context, apiKey, model string, log *zap.Logger) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	return &Gemini{client: client, model: model, logger: log}, nil
}

func (g *Gemini) Tailor(ctx context.Context, p *posting.Posting, profile *scoring.Profile) (*DocumentSet, error) {
	postingJSON, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal posting payload: %w", err)
	}

	keywords := make([]string, 0, len(profile.Keywords))
	for _, kw := range profile.Keywords {
		keywords = append(keywords, kw.Text)
	}

	prompt := strings.NewReplacer(
		"{{POSTING_JSON}}", string(postingJSON),
		"{{KEYWORDS}}", strings.Join(keywords, ", "),
	).Replace(coverLetterPrompt)

	g.logger.Debug("gemini tailor request",
		zap.String("posting", p.ID()),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
	)

	raw, err := g.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("gemini tailor response",
		zap.String("posting", p.ID()),
		zap.String("response_preview", logger.TruncateForLog(raw, previewLogLength)),
	)

	docs, err := parseDocuments(raw)
	if err != nil {
		return nil, err
	}
	docs.Ref = fmt.Sprintf("gemini:%s:%s", g.model, p.ID())
	return docs, nil
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if text := strings.TrimSpace(part.Text); text != "" {
				if builder.Len() > 0 {
					builder.WriteString("\n")
				}
				builder.WriteString(text)
			}
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}
	return output, nil
}

func parseDocuments(raw string) (*DocumentSet, error) {
	cleaned := extractJSON(raw)

	var payload struct {
		ResumeSummary string `json:"resume_summary"`
		CoverLetter   string `json:"cover_letter"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}
	if strings.TrimSpace(payload.CoverLetter) == "" {
		return nil, errors.New("gemini response is missing a cover letter")
	}

	return &DocumentSet{
		ResumeSummary: strings.TrimSpace(payload.ResumeSummary),
		CoverLetter:   strings.TrimSpace(payload.CoverLetter),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(strings.Trim(raw, "`"))
}
