package pipeline

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/stratumhealth/carepipe/internal/guard"
	"github.com/stratumhealth/carepipe/pkg/models"
)

// Raw intake text bounds, in runes, after trimming.
const (
	MinInputRunes = 10
	MaxInputRunes = 5000
)

// ConsentRequiredMessage is the exact rejection text for the consent gate.
const ConsentRequiredMessage = "PHI detected but patient consent has not been granted."

// ProcessIntake validates and normalizes a raw submission into a
// HealthInput. All failures are intake validation errors; nothing past this
// point sees unvalidated input.
//
// The PHI heuristic is intentionally broad: any mention of personal
// identifiers marks the input, and a marked input without consent is
// rejected before any processing or storage happens.
func ProcessIntake(req models.RunRequest) (*models.HealthInput, *models.StageError) {
	text := strings.TrimSpace(req.Text)
	if n := utf8.RuneCountInString(text); n < MinInputRunes {
		return nil, intakeError(fmt.Sprintf("input text must be at least %d characters", MinInputRunes))
	} else if n > MaxInputRunes {
		return nil, intakeError(fmt.Sprintf("input text must be at most %d characters", MaxInputRunes))
	}

	source := req.Source
	if source == "" {
		source = models.SourceAPI
	}
	if !models.ValidSource(source) {
		return nil, intakeError(fmt.Sprintf("unknown source %q", source))
	}

	inputType := req.InputType
	if inputType == "" {
		inputType = models.TypeChat
	}
	if !models.ValidInputType(inputType) {
		return nil, intakeError(fmt.Sprintf("unknown input type %q", inputType))
	}

	containsPHI := guard.ContainsPHIIndicators(text)
	if containsPHI && !req.ConsentGranted {
		return nil, intakeError(ConsentRequiredMessage)
	}

	userID := req.UserID
	if userID == "" {
		userID = "anonymous"
	}

	return &models.HealthInput{
		ID:             uuid.NewString(),
		UserID:         userID,
		RawText:        text,
		Source:         source,
		InputType:      inputType,
		ContainsPHI:    containsPHI,
		ConsentGranted: req.ConsentGranted,
		Timestamp:      time.Now().UTC(),
	}, nil
}

func intakeError(msg string) *models.StageError {
	return &models.StageError{
		Kind:    models.ErrKindIntakeValidation,
		Stage:   models.StageIntake,
		Message: msg,
	}
}
