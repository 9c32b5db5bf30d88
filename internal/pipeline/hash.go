package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/stratumhealth/carepipe/pkg/models"
)

// InputHash derives the idempotency key for a normalized intake: the SHA-256
// of the RFC 8785 canonical JSON of the content-bearing fields. User ID and
// timestamp are deliberately excluded so the same text submitted twice
// collapses to one record.
func InputHash(input *models.HealthInput) (string, error) {
	payload, err := json.Marshal(struct {
		RawText   string `json:"raw_text"`
		Source    string `json:"source"`
		InputType string `json:"input_type"`
	}{
		RawText:   input.RawText,
		Source:    string(input.Source),
		InputType: string(input.InputType),
	})
	if err != nil {
		return "", fmt.Errorf("marshal hash payload: %w", err)
	}
	canonical, err := jcs.Transform(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize hash payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
