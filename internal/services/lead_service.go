package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/caching"
	"github.com/Mateo9804/gastoclaro/internal/models"
)

const (
	leadRateLimit  = 5
	leadRateWindow = time.Hour
)

// LeadService records sales leads from the public pricing page. Leads only
// go to the log sink.
type LeadService interface {
	Submit(ctx context.Context, clientIP string, req models.PricingRequest) error
}

type leadService struct {
	cacheSvc caching.CacheService
	logger   *zap.Logger
}

func NewLeadService(cacheSvc caching.CacheService, logger *zap.Logger) LeadService {
	return &leadService{cacheSvc: cacheSvc, logger: logger.Named("leads")}
}

func (s *leadService) Submit(ctx context.Context, clientIP string, req models.PricingRequest) error {
	limited, err := s.cacheSvc.IsRateLimited(ctx, "pricing:"+clientIP, leadRateLimit, leadRateWindow)
	if err != nil {
		s.logger.Warn("pricing request throttle unavailable", zap.Error(err))
	} else if limited {
		return apperrors.ErrTooManyAttempts
	}

	s.logger.Info("pricing request received",
		zap.String("name", strings.TrimSpace(req.Name)),
		zap.String("email", normalizeEmail(req.Email)),
		zap.String("company", strings.TrimSpace(req.Company)),
		zap.String("plan", string(req.Plan)),
		zap.String("message", req.Message),
		zap.String("client_ip", clientIP))
	return nil
}
