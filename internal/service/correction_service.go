package service

import (
	"context"

	"offer-parser/internal/logger"
	"offer-parser/internal/model"
	"offer-parser/internal/schema"
)

type correctionService struct {
	records RecordService
	logger  *logger.Logger
}

func NewCorrectionService(records RecordService, logger *logger.Logger) CorrectionService {
	return &correctionService{
		records: records,
		logger:  logger,
	}
}

// SaveCorrection stores a reviewer document over the machine extraction. It
// never calls the extractor and leaves parsed_data alone.
func (s *correctionService) SaveCorrection(ctx context.Context, id string, doc model.Document, correctedBy string) (*model.Email, error) {
	normalized, err := model.NormalizeDocument(doc)
	if err != nil {
		return nil, &schema.ValidationError{Path: "corrected_data", Reason: err.Error()}
	}
	if len(normalized) == 0 {
		return nil, &schema.ValidationError{Path: "corrected_data", Reason: "must be a non-empty object"}
	}

	email, err := s.records.ApplyCorrection(ctx, id, normalized, correctedBy)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("email_id", id).Infof("Correction saved with %d changed fields", len(email.CorrectionDiff))
	return email, nil
}
