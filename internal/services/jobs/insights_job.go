package jobs

import (
	"context"

	"github.com/tradewatch/tradewatch/internal/models"
)

// runGenerateInsights advances the insight batch cursor by one batch.
// force bypasses the digest cache so every combination regenerates.
func (s *Service) runGenerateInsights(ctx context.Context, runID string, params *models.JobParams) (string, error) {
	result, err := s.generator.GenerateBatch(ctx, JobGenerateInsights, runID, params.Force)
	if err != nil {
		return "", err
	}
	return result.Message(), nil
}
