package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/phrazzld/platewise-api/internal/analysis"
	"github.com/phrazzld/platewise-api/internal/config"
	"google.golang.org/genai"
)

// contentGenerator is the subset of genai.Models used by the analyzer
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Analyzer implements analysis.Analyzer using the Gemini API.
type Analyzer struct {
	logger    *slog.Logger
	models    contentGenerator
	model     string
	mealTmpl  *template.Template
	weekTmpl  *template.Template
	genConfig *genai.GenerateContentConfig
}

var _ analysis.Analyzer = (*Analyzer)(nil)

// NewAnalyzer creates a Gemini-backed analyzer from the LLM configuration.
func NewAnalyzer(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Analyzer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", analysis.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", analysis.ErrInvalidConfig, err)
	}

	return newAnalyzer(client.Models, cfg.ModelName, logger)
}

// newAnalyzer wires an analyzer around any content generator
func newAnalyzer(models contentGenerator, model string, logger *slog.Logger) (*Analyzer, error) {
	if model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", analysis.ErrInvalidConfig)
	}

	mealTmpl, err := template.New("meal").Parse(mealPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse meal prompt template: %v", analysis.ErrInvalidConfig, err)
	}
	weekTmpl, err := template.New("week").Parse(weekPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse weekly prompt template: %v", analysis.ErrInvalidConfig, err)
	}

	return &Analyzer{
		logger:   logger.With("component", "gemini_analyzer", "model", model),
		models:   models,
		model:    model,
		mealTmpl: mealTmpl,
		weekTmpl: weekTmpl,
		genConfig: &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		},
	}, nil
}

// AnalyzeMeal sends the meal photo and prompt to Gemini and converts the
// JSON answer into MealFeedback.
func (a *Analyzer) AnalyzeMeal(ctx context.Context, photo analysis.MealPhoto) (*analysis.MealFeedback, error) {
	if err := photo.Validate(); err != nil {
		return nil, err
	}

	prompt, err := render(a.mealTmpl, mealPromptData{Description: photo.Description})
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{FileData: &genai.FileData{FileURI: photo.PhotoURI, MIMEType: photo.MIMEType}},
			{Text: prompt},
		},
	}}

	a.logger.DebugContext(ctx, "requesting meal analysis",
		"meal_id", photo.MealID,
		"prompt_length", len(prompt))

	var schema mealResponseSchema
	if err := a.generateJSON(ctx, contents, &schema); err != nil {
		return nil, err
	}

	feedback, err := toMealFeedback(photo, schema)
	if err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "meal analysis completed",
		"meal_id", photo.MealID,
		"item_count", len(feedback.Items),
		"score", feedback.Score)
	return feedback, nil
}

// SummarizeWeek asks Gemini for highlights and recommendations over a week
// of meal feedback.
func (a *Analyzer) SummarizeWeek(ctx context.Context, req analysis.WeekRequest) (*analysis.WeeklyInsight, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	prompt, err := render(a.weekTmpl, weekPromptData{
		WeekStart:    req.WeekStart.Format("2006-01-02"),
		AverageScore: req.AverageScore(),
		Meals:        req.Meals,
	})
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}

	var schema weekResponseSchema
	if err := a.generateJSON(ctx, contents, &schema); err != nil {
		return nil, err
	}
	if len(schema.Highlights) == 0 && len(schema.Recommendations) == 0 {
		return nil, fmt.Errorf("%w: no highlights or recommendations", analysis.ErrInvalidResponse)
	}

	a.logger.InfoContext(ctx, "weekly insight completed",
		"user_id", req.UserID,
		"meal_count", len(req.Meals))

	return &analysis.WeeklyInsight{
		UserID:          req.UserID,
		WeekStart:       req.WeekStart,
		MealCount:       len(req.Meals),
		AverageScore:    req.AverageScore(),
		Highlights:      schema.Highlights,
		Recommendations: schema.Recommendations,
	}, nil
}

// generateJSON makes one model call and decodes the text of the first
// candidate into out.
func (a *Analyzer) generateJSON(ctx context.Context, contents []*genai.Content, out any) error {
	resp, err := a.models.GenerateContent(ctx, a.model, contents, a.genConfig)
	if err != nil {
		a.logger.ErrorContext(ctx, "Gemini API call error", "error", err)
		return fmt.Errorf("gemini API call failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return fmt.Errorf("%w: no content generated", analysis.ErrInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return fmt.Errorf("%w: finish reason %s", analysis.ErrContentBlocked, candidate.FinishReason)
	}
	if candidate.Content == nil {
		return fmt.Errorf("%w: empty content in response", analysis.ErrInvalidResponse)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	if err := json.Unmarshal([]byte(stripCodeFence(text.String())), out); err != nil {
		return fmt.Errorf("%w: failed to parse JSON response: %v", analysis.ErrInvalidResponse, err)
	}
	return nil
}

// toMealFeedback validates the decoded schema and converts it
func toMealFeedback(photo analysis.MealPhoto, schema mealResponseSchema) (*analysis.MealFeedback, error) {
	if len(schema.Items) == 0 {
		return nil, fmt.Errorf("%w: no food items recognised", analysis.ErrInvalidResponse)
	}
	if schema.Score < 0 || schema.Score > 100 {
		return nil, fmt.Errorf("%w: score %d out of range", analysis.ErrInvalidResponse, schema.Score)
	}

	feedback := &analysis.MealFeedback{
		MealID: photo.MealID,
		Items:  make([]analysis.FoodItem, 0, len(schema.Items)),
		Macros: analysis.Macros{
			ProteinGrams: schema.ProteinGrams,
			CarbsGrams:   schema.CarbsGrams,
			FatGrams:     schema.FatGrams,
		},
		Score:       schema.Score,
		Suggestions: schema.Suggestions,
	}

	for i, item := range schema.Items {
		if item.Name == "" {
			return nil, fmt.Errorf("%w: item %d missing name", analysis.ErrInvalidResponse, i)
		}
		if item.Calories < 0 || item.PortionGrams < 0 {
			return nil, fmt.Errorf("%w: item %d has negative quantities", analysis.ErrInvalidResponse, i)
		}
		feedback.Items = append(feedback.Items, analysis.FoodItem{
			Name:         item.Name,
			PortionGrams: item.PortionGrams,
			Calories:     item.Calories,
		})
		feedback.TotalCalories += item.Calories
	}

	return feedback, nil
}

// render executes a prompt template
func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s prompt template: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// stripCodeFence removes a markdown code fence the model sometimes wraps JSON in
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
