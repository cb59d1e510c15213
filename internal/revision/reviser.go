package revision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"soulbench/internal/dataset"
	"soulbench/internal/evaluation"
	"soulbench/internal/inference"
)

const (
	DefaultMaxFailures = 30
	DefaultMaxDocChars = 40000
)

// Completer sends one inference request.
type Completer interface {
	Complete(ctx context.Context, req inference.Request) (inference.Response, error)
}

// Failure joins an incorrect result with its record.
type Failure struct {
	Record dataset.Record
	Result evaluation.Result
}

// Settings configures a Reviser.
type Settings struct {
	Model              string
	PersonaName        string
	PersonaDescription string
	MaxFailures        int
	MaxDocChars        int
}

// Reviser asks a revision model for improved persona documents.
type Reviser struct {
	client   Completer
	settings Settings
}

// New builds a Reviser.
func New(client Completer, settings Settings) (*Reviser, error) {
	if strings.TrimSpace(settings.Model) == "" {
		return nil, fmt.Errorf("revision model is required")
	}
	if settings.MaxFailures <= 0 {
		settings.MaxFailures = DefaultMaxFailures
	}
	if settings.MaxDocChars <= 0 {
		settings.MaxDocChars = DefaultMaxDocChars
	}
	return &Reviser{client: client, settings: settings}, nil
}

// Revise produces the document that follows doc, using the failures of the
// round that evaluated it.
func (r *Reviser) Revise(ctx context.Context, doc Document, summary evaluation.Summary, failures []Failure) (Document, error) {
	prompt := r.RevisionPrompt(doc, summary, failures)
	content, err := r.request(ctx, prompt)
	if err != nil {
		return Document{}, err
	}
	return doc.Next(content), nil
}

// Generate writes a seed document from reference question and answer pairs.
func (r *Reviser) Generate(ctx context.Context, refs []dataset.Reference) (Document, error) {
	prompt := r.GenerationPrompt(refs)
	content, err := r.request(ctx, prompt)
	if err != nil {
		return Document{}, err
	}
	return Seed(content, SeedGenerated, r.settings.Model), nil
}

// GenerationPrompt renders the seed generation request.
func (r *Reviser) GenerationPrompt(refs []dataset.Reference) string {
	return fill(generationTemplate, map[string]string{
		"persona_name":        r.settings.PersonaName,
		"persona_description": r.settings.PersonaDescription,
		"question_answer":     dataset.FormatReferences(refs),
	})
}

// RevisionPrompt renders the critique-and-rewrite request.
func (r *Reviser) RevisionPrompt(doc Document, summary evaluation.Summary, failures []Failure) string {
	sample := SelectFailures(failures, r.settings.MaxFailures)
	return fill(revisionTemplate, map[string]string{
		"current_soul_doc":    doc.Content,
		"accuracy":            formatAccuracy(summary),
		"correct":             strconv.Itoa(summary.CorrectCount),
		"total":               strconv.Itoa(summary.GradableCount),
		"n_wrong":             strconv.Itoa(len(sample)),
		"wrong_examples_text": FormatFailures(sample),
		"persona_name":        r.settings.PersonaName,
	})
}

// request asks for a JSON object and falls back to a plain request when the
// provider rejects the response format.
func (r *Reviser) request(ctx context.Context, prompt string) (string, error) {
	req := inference.Request{
		UserMessage:  prompt,
		Model:        r.settings.Model,
		JSONResponse: true,
	}
	resp, err := r.client.Complete(ctx, req)
	if err != nil && inference.KindOf(err) == inference.KindBadRequest {
		req.JSONResponse = false
		resp, err = r.client.Complete(ctx, req)
	}
	if err != nil {
		return "", err
	}
	return ExtractDocument(resp.Text, r.settings.MaxDocChars)
}

// IsValidation reports whether err came from response validation rather
// than from transport.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// SelectFailures sorts failures by record id and keeps the first limit.
func SelectFailures(failures []Failure, limit int) []Failure {
	sorted := make([]Failure, len(failures))
	copy(sorted, failures)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Record.ID < sorted[j].Record.ID
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// FormatFailures renders the numbered failure examples.
func FormatFailures(failures []Failure) string {
	parts := make([]string, 0, len(failures))
	for i, failure := range failures {
		var entry strings.Builder
		fmt.Fprintf(&entry, "Example %d:\n", i+1)
		fmt.Fprintf(&entry, "  Question: %s\n", failure.Record.Question)
		if failure.Record.Claim != "" {
			fmt.Fprintf(&entry, "  Claim: %s\n", failure.Record.Claim)
		}
		if failure.Record.HasChoices() {
			for index, choice := range failure.Record.Choices {
				fmt.Fprintf(&entry, "  (%s) %s\n", dataset.OptionLetter(index), choice)
			}
		}
		fmt.Fprintf(&entry, "  Model predicted: %s\n", predictedLabel(failure.Result))
		fmt.Fprintf(&entry, "  Correct answer: %s", failure.Record.GroundTruth)
		if reasoning := strings.TrimSpace(failure.Result.Reasoning); reasoning != "" {
			fmt.Fprintf(&entry, "\n  Model's reasoning: %s", reasoning)
		}
		parts = append(parts, entry.String())
	}
	return strings.Join(parts, "\n\n")
}

// JoinFailures pairs failing results with their records, in result order.
func JoinFailures(records []dataset.Record, results []evaluation.Result) []Failure {
	index := make(map[string]dataset.Record, len(records))
	for _, record := range records {
		index[record.ID] = record
	}
	var failures []Failure
	for _, result := range results {
		if result.Correct {
			continue
		}
		record, ok := index[result.RecordID]
		if !ok {
			continue
		}
		failures = append(failures, Failure{Record: record, Result: result})
	}
	return failures
}

func predictedLabel(result evaluation.Result) string {
	if result.Predicted != nil {
		return result.Predicted.String()
	}
	if result.Error != "" {
		return "no answer (" + result.Error + ")"
	}
	return "no answer"
}

func formatAccuracy(summary evaluation.Summary) string {
	accuracy, ok := summary.AccuracyValue()
	if !ok {
		return "n/a"
	}
	return strconv.FormatFloat(accuracy*100, 'f', 1, 64) + "%"
}
