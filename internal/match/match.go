// Package match computes which artisans may see and accept an intervention.
package match

import (
	"sort"

	"github.com/JeremyGnt/serenio-sub002/internal/geo"
	"github.com/JeremyGnt/serenio-sub002/internal/models"
)

type Candidate struct {
	ArtisanID  string  `json:"artisan_id"`
	DistanceKm float64 `json:"distance_km"`
}

type Input struct {
	Latitude  *float64
	Longitude *float64
	Artisans  []models.Artisan
	Declined  map[string]bool
	// RadiusFactor widens every artisan's service radius; values <= 0 mean 1.
	RadiusFactor float64
}

// Rank returns the eligible artisans nearest first, ties broken by artisan id.
// The result is recomputed on every call; availability is read at call time by
// the caller, never cached here.
func Rank(in Input) []Candidate {
	if in.Latitude == nil || in.Longitude == nil {
		return nil
	}
	factor := in.RadiusFactor
	if factor <= 0 {
		factor = 1
	}

	var candidates []Candidate
	for _, artisan := range in.Artisans {
		if !eligible(artisan) {
			continue
		}
		if in.Declined[artisan.ArtisanID] {
			continue
		}
		distance := geo.DistanceKm(*in.Latitude, *in.Longitude, *artisan.BaseLatitude, *artisan.BaseLongitude)
		if distance > artisan.RadiusKm*factor {
			continue
		}
		candidates = append(candidates, Candidate{ArtisanID: artisan.ArtisanID, DistanceKm: distance})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].DistanceKm != candidates[j].DistanceKm {
			return candidates[i].DistanceKm < candidates[j].DistanceKm
		}
		return candidates[i].ArtisanID < candidates[j].ArtisanID
	})
	return candidates
}

// Candidates is the sequence form of Rank. The sequence is finite and can be
// restarted; each range re-walks the ranked snapshot.
func Candidates(in Input) func(yield func(Candidate) bool) {
	ranked := Rank(in)
	return func(yield func(Candidate) bool) {
		for _, candidate := range ranked {
			if !yield(candidate) {
				return
			}
		}
	}
}

func eligible(artisan models.Artisan) bool {
	if artisan.ApprovalStatus != models.ApprovalApproved {
		return false
	}
	if !artisan.Available {
		return false
	}
	if artisan.ActiveInterventionID != nil {
		return false
	}
	// An artisan without a base location is never matched rather than erroring.
	if artisan.BaseLatitude == nil || artisan.BaseLongitude == nil {
		return false
	}
	return true
}

// IDs projects the candidate list to artisan ids, preserving order.
func IDs(candidates []Candidate) []string {
	ids := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		ids = append(ids, candidate.ArtisanID)
	}
	return ids
}
