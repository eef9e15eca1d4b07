package service

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"arbor/internal/config"
	"arbor/internal/domain"
	"arbor/internal/domain/models"
	"arbor/internal/domain/services"
)

// Search performs case-insensitive substring search over page titles and
// block plain text. Matching itself lives in the repository; this layer
// validates the request and maps it onto search options.
func (s *pageService) Search(ctx context.Context, req *services.SearchPagesRequest) (*models.SearchResults, error) {
	req.Query = strings.TrimSpace(req.Query)
	if err := s.validateSearchRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	opts := &models.SearchOptions{
		Query:  req.Query,
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	for _, f := range req.Fields {
		opts.Fields = append(opts.Fields, models.SearchField(f))
	}

	return s.pageRepo.Search(ctx, opts)
}

// validateSearchRequest validates a substring search request
func (s *pageService) validateSearchRequest(req *services.SearchPagesRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Query,
			validation.Required,
			validation.Length(1, config.MaxSearchTermLength),
		),
		validation.Field(&req.Fields,
			validation.Each(validation.In("title", "content")),
		),
		validation.Field(&req.Limit, validation.Min(0), validation.Max(models.MaxSearchLimit)),
		validation.Field(&req.Offset, validation.Min(0)),
	)
}
