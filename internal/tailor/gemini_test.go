package tailor

import (
	"strings"
	"testing"

	"github.com/dealseek/ma-pilot/internal/posting"
)

func testPosting() *posting.Posting {
	return &posting.Posting{
		Source:     "adzuna",
		ExternalID: "1",
		Title:      "M&A Analyst",
		Company:    "Evercore",
	}
}

func TestParseDocuments(t *testing.T) {
	raw := `{"resume_summary": "Analyst with deal experience.", "cover_letter": "Dear team, ..."}`

	docs, err := parseDocuments(raw)
	if err != nil {
		t.Fatalf("parseDocuments: %v", err)
	}
	if docs.ResumeSummary != "Analyst with deal experience." {
		t.Fatalf("resume summary = %q", docs.ResumeSummary)
	}
	if docs.CoverLetter != "Dear team, ..." {
		t.Fatalf("cover letter = %q", docs.CoverLetter)
	}
}

func TestParseDocumentsStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"resume_summary\": \"Summary.\", \"cover_letter\": \"Letter.\"}\n```"

	docs, err := parseDocuments(raw)
	if err != nil {
		t.Fatalf("parseDocuments with fence: %v", err)
	}
	if docs.CoverLetter != "Letter." {
		t.Fatalf("cover letter = %q", docs.CoverLetter)
	}
}

func TestParseDocumentsRejectsMissingCoverLetter(t *testing.T) {
	if _, err := parseDocuments(`{"resume_summary": "only this"}`); err == nil {
		t.Fatal("expected error for missing cover letter")
	}
	if _, err := parseDocuments("not json at all"); err == nil {
		t.Fatal("expected error for non-JSON response")
	}
}

func TestStaticTailorFillsTemplate(t *testing.T) {
	s := NewStatic()

	docs, err := s.Tailor(t.Context(), testPosting(), nil)
	if err != nil {
		t.Fatalf("Tailor: %v", err)
	}
	if !strings.Contains(docs.CoverLetter, "M&A Analyst") || !strings.Contains(docs.CoverLetter, "Evercore") {
		t.Fatalf("cover letter missing posting fields:\n%s", docs.CoverLetter)
	}
	if docs.Ref == "" {
		t.Fatal("documents ref must identify the set")
	}
}
