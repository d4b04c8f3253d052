package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"rainbow-register/internal/extraction"
	"rainbow-register/internal/models"
)

// Extractor is the external gateway that guesses fields from free text
type Extractor interface {
	Extract(ctx context.Context, req extraction.Request) (*extraction.Result, error)
}

// ReviewOutcome is the decision of one AI-assisted review
type ReviewOutcome string

const (
	OutcomePass   ReviewOutcome = "pass"
	OutcomeReject ReviewOutcome = "reject"
	OutcomeError  ReviewOutcome = "error"
	OutcomeSkip   ReviewOutcome = "skip"
)

// ExpectationField is the key of the composite expectation block
const ExpectationField = "expectation"

// RequiredField describes one field the review insists on
type RequiredField struct {
	Key         string
	Description string
	Example     string
	get         func(*models.Profile) string
	set         func(*models.Profile, string)
}

var RequiredFields = []RequiredField{
	{
		Key:         "marital_status",
		Description: "感情状态（如：单身、离异、丧偶等）",
		Example:     "感情状态：单身",
		get:         func(p *models.Profile) string { return p.MaritalStatus },
		set:         func(p *models.Profile, v string) { p.MaritalStatus = v },
	},
	{
		Key:         "health_condition",
		Description: "健康状况（如：健康、HIV阴性等）",
		Example:     "健康状况：健康",
		get:         func(p *models.Profile) string { return p.HealthCondition },
		set:         func(p *models.Profile, v string) { p.HealthCondition = v },
	},
	{
		Key:         "housing_status",
		Description: "住房情况（如：租房、自有住房、和家人同住等）",
		Example:     "住房情况：租房",
		get:         func(p *models.Profile) string { return p.HousingStatus },
		set:         func(p *models.Profile, v string) { p.HousingStatus = v },
	},
	{
		Key:         "dating_purpose",
		Description: "交友目的（如：寻找长期伴侣、交朋友、开放关系等）",
		Example:     "交友目的：寻找长期伴侣",
		get:         func(p *models.Profile) string { return p.DatingPurpose },
		set:         func(p *models.Profile, v string) { p.DatingPurpose = v },
	},
	{
		Key:         "want_children",
		Description: "是否想要孩子（如：想要、不想要、可以考虑等）",
		Example:     "是否想要孩子：可以考虑（或填「不想回答」）",
		get:         func(p *models.Profile) string { return p.WantChildren },
		set:         func(p *models.Profile, v string) { p.WantChildren = v },
	},
	{
		Key:         "coming_out_status",
		Description: "出柜状态（如：已出柜、半出柜、未出柜等）",
		Example:     "出柜状态：半出柜（或填「不想回答」）",
		get:         func(p *models.Profile) string { return p.ComingOutStatus },
		set:         func(p *models.Profile, v string) { p.ComingOutStatus = v },
	},
}

var expectationRequirement = RequiredField{
	Key:         ExpectationField,
	Description: "对另一半的期待（年龄范围、性格、关系类型、地区偏好等）",
	Example:     "期待对象：希望对方25-35岁，性格温和，最好在同城（或填「暂无特别要求」）",
}

// Analysis is the result of inspecting one profile
type Analysis struct {
	Outcome ReviewOutcome `json:"action"`
	// Missing holds the field keys still missing when Outcome is reject
	Missing []string `json:"missing,omitempty"`
	Message string   `json:"message,omitempty"`
	// Updates are the column values the merge filled in (pass only)
	Updates          map[string]interface{} `json:"-"`
	MergedFields     map[string]string      `json:"merged_fields,omitempty"`
	ExtractionCalled bool                   `json:"extraction_called"`
	Err              error                  `json:"-"`
}

// CompletionAnalyzer decides whether a profile has every required field,
// asking the extraction gateway to fill gaps from the free-text notes.
type CompletionAnalyzer struct {
	extractor Extractor
	logger    *zap.Logger
}

// NewCompletionAnalyzer builds an analyzer. A nil extractor makes every
// extraction attempt an error outcome.
func NewCompletionAnalyzer(extractor Extractor, logger *zap.Logger) *CompletionAnalyzer {
	return &CompletionAnalyzer{extractor: extractor, logger: logger}
}

// MissingFields lists the required fields that are blank on p, in display order
func MissingFields(p *models.Profile) []RequiredField {
	var missing []RequiredField
	for _, f := range RequiredFields {
		if isBlank(f.get(p)) {
			missing = append(missing, f)
		}
	}
	if !p.ExpectationData().HasCore() {
		missing = append(missing, expectationRequirement)
	}
	return missing
}

// Corpus joins the holder's free-text notes with section labels
func Corpus(p *models.Profile) string {
	var parts []string
	if s := strings.TrimSpace(p.Lifestyle); s != "" {
		parts = append(parts, "【自我描述】\n"+s)
	}
	if s := strings.TrimSpace(p.ActivityExpectation); s != "" {
		parts = append(parts, "【对活动的期望】\n"+s)
	}
	if s := strings.TrimSpace(p.SpecialRequirements); s != "" {
		parts = append(parts, "【备注】\n"+s)
	}
	return strings.Join(parts, "\n\n")
}

// Analyze runs the completeness check. It never writes to the store; the
// caller applies Updates when the outcome is pass.
func (a *CompletionAnalyzer) Analyze(ctx context.Context, p *models.Profile) *Analysis {
	missing := MissingFields(p)
	if len(missing) == 0 {
		a.logger.Info("Profile complete, AI review passed", zap.Uint("profile_id", p.ID))
		return &Analysis{Outcome: OutcomePass}
	}

	corpus := Corpus(p)
	if corpus == "" {
		a.logger.Info("Fields missing and no free text, rejecting",
			zap.Uint("profile_id", p.ID), zap.Int("missing", len(missing)))
		return rejectAnalysis(missing, false)
	}

	if a.extractor == nil {
		return &Analysis{
			Outcome: OutcomeError,
			Err:     fmt.Errorf("%w: %v", ErrExternalService, extraction.ErrNotConfigured),
		}
	}

	req := extraction.Request{
		Name:    p.Name,
		Gender:  p.Gender,
		Age:     p.Age,
		Corpus:  corpus,
		Missing: make([]extraction.Field, 0, len(missing)),
	}
	for _, f := range missing {
		req.Missing = append(req.Missing, extraction.Field{Key: f.Key, Description: f.Description})
	}

	a.logger.Info("Extracting missing fields from free text",
		zap.Uint("profile_id", p.ID), zap.Int("missing", len(missing)))
	result, err := a.extractor.Extract(ctx, req)
	if err != nil || result == nil {
		if err == nil {
			err = extraction.ErrUnparsable
		}
		a.logger.Warn("Extraction failed, leaving profile for manual review",
			zap.Uint("profile_id", p.ID), zap.Error(err))
		return &Analysis{
			Outcome:          OutcomeError,
			ExtractionCalled: true,
			Err:              fmt.Errorf("%w: %v", ErrExternalService, err),
		}
	}

	merged, updates, mergedFields := Merge(p, missing, result)
	still := MissingFields(merged)
	if len(still) > 0 {
		a.logger.Info("Fields still missing after extraction, rejecting",
			zap.Uint("profile_id", p.ID), zap.Int("missing", len(still)))
		return rejectAnalysis(still, true)
	}

	a.logger.Info("Extraction filled every missing field", zap.Uint("profile_id", p.ID))
	return &Analysis{
		Outcome:          OutcomePass,
		Updates:          updates,
		MergedFields:     mergedFields,
		ExtractionCalled: true,
	}
}

// Merge applies an extraction result to a copy of p without overwriting any
// value the holder already supplied. It returns the merged copy, the column
// updates to persist and a flat view of what was filled.
func Merge(p *models.Profile, missing []RequiredField, result *extraction.Result) (*models.Profile, map[string]interface{}, map[string]string) {
	merged := *p
	updates := map[string]interface{}{}
	filled := map[string]string{}

	for _, f := range missing {
		if f.Key == ExpectationField {
			continue
		}
		value := result.Value(f.Key)
		if value == "" || !isBlank(f.get(&merged)) {
			continue
		}
		f.set(&merged, value)
		updates[f.Key] = value
		filled[f.Key] = value
	}

	if len(result.Expectation) > 0 {
		exp := merged.ExpectationData()
		changed := false
		for _, key := range models.ExpectationSlots {
			v := result.Expectation[key]
			if v == nil {
				continue
			}
			value := strings.TrimSpace(*v)
			if value == "" || !isBlank(exp.Get(key)) {
				continue
			}
			_ = exp.Set(key, value)
			filled[ExpectationField+"."+key] = value
			changed = true
		}
		if changed {
			merged.Expectation = datatypes.NewJSONType(exp)
			updates[ExpectationField] = merged.Expectation
		}
	}

	return &merged, updates, filled
}

// RejectionMessage builds the copyable explanation sent to the holder
func RejectionMessage(missing []RequiredField) string {
	lines := []string{
		"您好！感谢您提交报名信息。",
		"",
		"为了更好地为您匹配，我们还需要以下信息，请将这些内容补充到「备注」栏中，然后重新提交：",
		"",
	}
	for i, f := range missing {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, f.Description))
	}
	lines = append(lines,
		"",
		"💡 如果某项信息您不方便透露，可以填写「未知」「不想回答」或「保密」，我们完全理解。",
		"",
		"【参考格式（可直接复制后修改）】",
		"---",
	)
	for _, f := range missing {
		lines = append(lines, f.Example)
	}
	lines = append(lines,
		"---",
		"",
		"请修改信息后重新提交，感谢您的配合！",
	)
	return strings.Join(lines, "\n")
}

func rejectAnalysis(missing []RequiredField, called bool) *Analysis {
	keys := make([]string, 0, len(missing))
	for _, f := range missing {
		keys = append(keys, f.Key)
	}
	return &Analysis{
		Outcome:          OutcomeReject,
		Missing:          keys,
		Message:          RejectionMessage(missing),
		ExtractionCalled: called,
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
