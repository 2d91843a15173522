package match

import (
	"testing"

	"github.com/JeremyGnt/serenio-sub002/internal/geo"
	"github.com/JeremyGnt/serenio-sub002/internal/models"
)

func ptr(v float64) *float64 { return &v }

func approvedArtisan(id string, lat, lon, radius float64) models.Artisan {
	return models.Artisan{
		ArtisanID:      id,
		ApprovalStatus: models.ApprovalApproved,
		Available:      true,
		BaseLatitude:   ptr(lat),
		BaseLongitude:  ptr(lon),
		RadiusKm:       radius,
	}
}

func TestRankNearestFirstWithinRadius(t *testing.T) {
	// Request at Lyon city center; artisan A roughly 2 km away, artisan B
	// roughly 15 km away with a 10 km radius.
	near := approvedArtisan("artisan-a", 45.768, 4.85, 10)
	far := approvedArtisan("artisan-b", 45.885, 4.85, 10)

	ranked := Rank(Input{
		Latitude:  ptr(45.75),
		Longitude: ptr(4.85),
		Artisans:  []models.Artisan{far, near},
	})

	if len(ranked) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(ranked))
	}
	if ranked[0].ArtisanID != "artisan-a" {
		t.Fatalf("expected artisan-a first, got %s", ranked[0].ArtisanID)
	}
	if ranked[0].DistanceKm > 2.5 {
		t.Fatalf("unexpected distance %f", ranked[0].DistanceKm)
	}
}

func TestRankIncludesRadiusBoundary(t *testing.T) {
	// A radius equal to the exact distance keeps the artisan eligible
	// (inclusive comparison); anything short of it excludes.
	exact := geo.DistanceKm(45.75, 4.85, 46.75, 4.85)

	at := Rank(Input{
		Latitude:  ptr(45.75),
		Longitude: ptr(4.85),
		Artisans:  []models.Artisan{approvedArtisan("artisan-a", 46.75, 4.85, exact)},
	})
	if len(at) != 1 {
		t.Fatalf("distance exactly at radius must be eligible")
	}

	under := Rank(Input{
		Latitude:  ptr(45.75),
		Longitude: ptr(4.85),
		Artisans:  []models.Artisan{approvedArtisan("artisan-a", 46.75, 4.85, exact-0.001)},
	})
	if len(under) != 0 {
		t.Fatalf("distance beyond radius must be excluded")
	}
}

func TestRankExcludesIneligibleArtisans(t *testing.T) {
	request := Input{Latitude: ptr(45.75), Longitude: ptr(4.85)}
	missionID := "intervention-1"

	cases := []struct {
		name    string
		artisan models.Artisan
	}{
		{"not approved", func() models.Artisan {
			a := approvedArtisan("a", 45.75, 4.85, 10)
			a.ApprovalStatus = models.ApprovalPending
			return a
		}()},
		{"suspended", func() models.Artisan {
			a := approvedArtisan("a", 45.75, 4.85, 10)
			a.ApprovalStatus = models.ApprovalSuspended
			return a
		}()},
		{"unavailable", func() models.Artisan {
			a := approvedArtisan("a", 45.75, 4.85, 10)
			a.Available = false
			return a
		}()},
		{"holding active mission", func() models.Artisan {
			a := approvedArtisan("a", 45.75, 4.85, 10)
			a.ActiveInterventionID = &missionID
			return a
		}()},
		{"missing base location", func() models.Artisan {
			a := approvedArtisan("a", 45.75, 4.85, 10)
			a.BaseLatitude = nil
			return a
		}()},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			in := request
			in.Artisans = []models.Artisan{tt.artisan}
			if got := Rank(in); len(got) != 0 {
				t.Fatalf("expected no candidates, got %d", len(got))
			}
		})
	}
}

func TestRankMissingRequestCoordinates(t *testing.T) {
	artisans := []models.Artisan{approvedArtisan("a", 45.75, 4.85, 10)}
	if got := Rank(Input{Longitude: ptr(4.85), Artisans: artisans}); got != nil {
		t.Fatalf("missing latitude must yield no candidates")
	}
	if got := Rank(Input{Latitude: ptr(45.75), Artisans: artisans}); got != nil {
		t.Fatalf("missing longitude must yield no candidates")
	}
}

func TestRankTieBreaksByArtisanID(t *testing.T) {
	b := approvedArtisan("artisan-b", 45.75, 4.85, 10)
	a := approvedArtisan("artisan-a", 45.75, 4.85, 10)

	ranked := Rank(Input{
		Latitude:  ptr(45.75),
		Longitude: ptr(4.85),
		Artisans:  []models.Artisan{b, a},
	})
	if len(ranked) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(ranked))
	}
	if ranked[0].ArtisanID != "artisan-a" || ranked[1].ArtisanID != "artisan-b" {
		t.Fatalf("tie must break by id: %v", IDs(ranked))
	}
}

func TestRankExcludesDeclined(t *testing.T) {
	ranked := Rank(Input{
		Latitude:  ptr(45.75),
		Longitude: ptr(4.85),
		Artisans:  []models.Artisan{approvedArtisan("artisan-a", 45.76, 4.85, 10)},
		Declined:  map[string]bool{"artisan-a": true},
	})
	if len(ranked) != 0 {
		t.Fatalf("declined artisan must not be matched again")
	}
}

func TestRankRadiusFactorWidensSearch(t *testing.T) {
	// ~15 km away with a 10 km radius: out on the first pass, in at 1.6x.
	artisan := approvedArtisan("artisan-a", 45.885, 4.85, 10)
	base := Input{Latitude: ptr(45.75), Longitude: ptr(4.85), Artisans: []models.Artisan{artisan}}

	if got := Rank(base); len(got) != 0 {
		t.Fatalf("expected exclusion at normal radius")
	}
	widened := base
	widened.RadiusFactor = 1.6
	if got := Rank(widened); len(got) != 1 {
		t.Fatalf("expected inclusion with widened radius")
	}
}

func TestCandidatesSequenceRestartable(t *testing.T) {
	in := Input{
		Latitude:  ptr(45.75),
		Longitude: ptr(4.85),
		Artisans: []models.Artisan{
			approvedArtisan("artisan-a", 45.76, 4.85, 10),
			approvedArtisan("artisan-b", 45.77, 4.85, 10),
		},
	}
	seq := Candidates(in)

	var first []string
	seq(func(candidate Candidate) bool {
		first = append(first, candidate.ArtisanID)
		return false
	})
	var second []string
	seq(func(candidate Candidate) bool {
		second = append(second, candidate.ArtisanID)
		return true
	})
	if len(first) != 1 || first[0] != "artisan-a" {
		t.Fatalf("unexpected first pass: %v", first)
	}
	if len(second) != 2 {
		t.Fatalf("sequence must restart from the beginning, got %v", second)
	}
}
