package service

import (
	"context"
	"strings"
	"time"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
)

// BounceRepository reads recorded email bounces
type BounceRepository interface {
	FindRecentHardBounces(ctx context.Context, email string, since time.Time) ([]*domain.EmailBounce, error)
}

// BounceChecker checks if emails have bounced
type BounceChecker struct {
	repo   BounceRepository
	window time.Duration
}

// NewBounceChecker creates a bounce checker looking back over window
func NewBounceChecker(repo BounceRepository, window time.Duration) *BounceChecker {
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	return &BounceChecker{repo: repo, window: window}
}

// IsBounced reports whether email hard bounced within the window
func (bc *BounceChecker) IsBounced(ctx context.Context, email string) (bool, error) {
	bounces, err := bc.repo.FindRecentHardBounces(ctx, strings.ToLower(email), time.Now().Add(-bc.window))
	if err != nil {
		return false, err
	}
	return len(bounces) > 0, nil
}
