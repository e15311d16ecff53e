package main

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sedirimou/Gameva-sub003/pkg/slug"
)

// seedIDBase keeps generated ids clear of catalog rows so re-runs can
// delete exactly what they inserted.
const seedIDBase int64 = 1_000_000

// seedProduct is one generated catalog row.
type seedProduct struct {
	ID          int64
	Name        string
	Slug        string
	Platform    string
	Price       float64
	SalePrice   *float64
	Genres      []string
	Description string
	CoverURL    string
	Thumbnail   string
	Type        string
	AgeRating   string
	ReleaseDate time.Time
	Active      bool
	CreatedAt   time.Time
}

var (
	titlePrefixes = []string{"Cyber", "Shadow", "Star", "Iron", "Neon", "Hollow", "Crimson", "Eternal", "Frost", "Solar"}
	titleNouns    = []string{"Legends", "Odyssey", "Tactics", "Frontier", "Knight", "Dynasty", "Protocol", "Horizon", "Siege", "Rift"}
	titleSuffixes = []string{"", " II", " III", ": Remastered", ": Origins", " Deluxe Edition"}
	platforms     = []string{"Steam", "PlayStation", "Xbox", "Nintendo", "Epic Games", "GOG"}
	genres        = []string{"Action", "Adventure", "RPG", "Strategy", "Shooter", "Puzzle", "Racing", "Simulation", "Indie", "Horror"}
	productTypes  = []string{"game", "dlc", "bundle", "gift card"}
	ageRatings    = []string{"PEGI 3", "PEGI 7", "PEGI 12", "PEGI 16", "PEGI 18"}
	blurbs        = []string{
		"An open world of %s awaits in this %s adventure.",
		"Lead your squad through %s battles in a %s campaign.",
		"Master %s combat and uncover the secrets of a %s realm.",
	}
	blurbWords = []string{"futuristic", "ancient", "procedural", "hand-crafted", "story-driven", "competitive"}
)

// generateCatalog builds n products deterministically from rng.
func generateCatalog(rng *rand.Rand, n int, now time.Time) []seedProduct {
	products := make([]seedProduct, 0, n)
	for i := 0; i < n; i++ {
		name := titlePrefixes[rng.Intn(len(titlePrefixes))] + " " +
			titleNouns[rng.Intn(len(titleNouns))] +
			titleSuffixes[rng.Intn(len(titleSuffixes))]
		id := seedIDBase + int64(i)

		price := roundCents(4.99 + rng.Float64()*65)
		var sale *float64
		if rng.Intn(4) == 0 {
			s := roundCents(price * (0.5 + rng.Float64()*0.4))
			sale = &s
		}

		picked := pickGenres(rng)
		desc := fmt.Sprintf(blurbs[rng.Intn(len(blurbs))],
			blurbWords[rng.Intn(len(blurbWords))], picked[0])
		s := fmt.Sprintf("%s-%d", slug.Generate(name), id)

		products = append(products, seedProduct{
			ID:          id,
			Name:        name,
			Slug:        s,
			Platform:    platforms[rng.Intn(len(platforms))],
			Price:       price,
			SalePrice:   sale,
			Genres:      picked,
			Description: desc,
			CoverURL:    fmt.Sprintf("https://cdn.example.com/covers/%s.jpg", s),
			Thumbnail:   fmt.Sprintf("https://cdn.example.com/covers/%s_thumb.jpg", s),
			Type:        productTypes[rng.Intn(len(productTypes))],
			AgeRating:   ageRatings[rng.Intn(len(ageRatings))],
			ReleaseDate: now.AddDate(0, 0, -rng.Intn(365*8)).Truncate(24 * time.Hour),
			// Roughly one in twenty is delisted so the index skips it.
			Active:    rng.Intn(20) != 0,
			CreatedAt: now.Add(-time.Duration(n-i) * time.Minute),
		})
	}
	return products
}

func pickGenres(rng *rand.Rand) []string {
	count := 1 + rng.Intn(3)
	perm := rng.Perm(len(genres))
	out := make([]string, count)
	for i := range out {
		out[i] = genres[perm[i]]
	}
	return out
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
