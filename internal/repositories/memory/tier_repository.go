package memory

import (
	"context"
	"sort"
	"sync"

	domain "github.com/cellforge/api/internal/domain"
)

// VolumeTierRepository keeps the quantity-threshold tiers in memory.
type VolumeTierRepository struct {
	mu    sync.RWMutex
	tiers []domain.VolumeDiscountTier
}

func NewVolumeTierRepository() *VolumeTierRepository {
	return &VolumeTierRepository{}
}

// Seed replaces the stored tier set.
func (r *VolumeTierRepository) Seed(tiers ...domain.VolumeDiscountTier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers = append([]domain.VolumeDiscountTier(nil), tiers...)
}

func (r *VolumeTierRepository) ListActive(_ context.Context) ([]domain.VolumeDiscountTier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.VolumeDiscountTier, 0, len(r.tiers))
	for _, tier := range r.tiers {
		if tier.Active {
			out = append(out, tier)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinQuantity < out[j].MinQuantity })
	return out, nil
}
