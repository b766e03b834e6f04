// Package testkit builds deterministic synthetic datasets and in-memory
// port implementations for tests and for demo runs without a warehouse.
package testkit

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"offerctr/domain/table"
)

// OfferGeneratorConfig configures the synthetic offer interaction generator
type OfferGeneratorConfig struct {
	UserCount             int       `json:"user_count"`
	OfferCount            int       `json:"offer_count"`
	AvgImpressionsPerUser float64   `json:"avg_impressions_per_user"`
	BaseClickRate         float64   `json:"base_click_rate"`
	PurchaseRate          float64   `json:"purchase_rate"`
	StartDate             time.Time `json:"start_date"`
	EndDate               time.Time `json:"end_date"`
	Seed                  int64     `json:"seed"`
}

// DefaultOfferConfig returns sensible defaults for synthetic generation
func DefaultOfferConfig() OfferGeneratorConfig {
	return OfferGeneratorConfig{
		UserCount:             400,
		OfferCount:            40,
		AvgImpressionsPerUser: 12,
		BaseClickRate:         0.12,
		PurchaseRate:          0.35,
		StartDate:             time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:               time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC),
		Seed:                  42,
	}
}

// Dataset holds the three generated tables in source-ready batches. The
// interactions batch is sorted by event time, matching the ordering the
// loader requests from a warehouse.
type Dataset struct {
	Interactions *table.Batch
	Offers       *table.Batch
	Transactions *table.Batch
}

// OfferDataGenerator generates offer catalogs, impression streams and
// purchase histories with planted click drivers: engaged users click more,
// high-reward offers get clicked more, and push beats email.
type OfferDataGenerator struct {
	config OfferGeneratorConfig
	rng    *rand.Rand
}

// NewOfferDataGenerator creates a seeded generator
func NewOfferDataGenerator(config OfferGeneratorConfig) *OfferDataGenerator {
	return &OfferDataGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

type offerProfile struct {
	id         string
	offerType  string
	reward     float64
	difficulty float64
	duration   int64
	appeal     float64
}

type impression struct {
	at       time.Time
	userIdx  int
	offerIdx int
	channel  string
	clicked  bool
}

// Generate builds the full dataset
func (g *OfferDataGenerator) Generate() (*Dataset, error) {
	if g.config.UserCount < 1 || g.config.OfferCount < 1 {
		return nil, fmt.Errorf("generator needs at least one user and one offer")
	}

	offers := g.generateOffers()
	engagement := g.generateEngagement()
	impressions := g.generateImpressions(offers, engagement)

	offersBatch, err := g.offersBatch(offers)
	if err != nil {
		return nil, err
	}
	interactionsBatch, err := g.interactionsBatch(impressions)
	if err != nil {
		return nil, err
	}
	transactionsBatch, err := g.transactionsBatch(impressions, offers)
	if err != nil {
		return nil, err
	}

	return &Dataset{
		Interactions: interactionsBatch,
		Offers:       offersBatch,
		Transactions: transactionsBatch,
	}, nil
}

func (g *OfferDataGenerator) generateOffers() []offerProfile {
	offers := make([]offerProfile, g.config.OfferCount)
	for i := range offers {
		offerType := g.randomOfferType()
		reward := 0.0
		if offerType != "informational" {
			reward = 1 + math.Floor(g.rng.Float64()*10)
		}
		// Planted driver: reward lifts appeal, difficulty drags it.
		difficulty := math.Floor(g.rng.Float64() * 20)
		appeal := 0.6 + reward*0.12 - difficulty*0.015
		if appeal < 0.2 {
			appeal = 0.2
		}
		offers[i] = offerProfile{
			id:         fmt.Sprintf("offer_%04d", i+1),
			offerType:  offerType,
			reward:     reward,
			difficulty: difficulty,
			duration:   int64(3 + g.rng.Intn(12)),
			appeal:     appeal,
		}
	}
	return offers
}

// generateEngagement assigns each user a latent click propensity. A small
// engaged cohort drives most of the clicks, which gives the per-user
// statistics real signal to find.
func (g *OfferDataGenerator) generateEngagement() []float64 {
	engagement := make([]float64, g.config.UserCount)
	for i := range engagement {
		base := 0.4 + g.rng.NormFloat64()*0.25
		if g.rng.Float64() < 0.15 {
			base += 1.2
		}
		if base < 0.1 {
			base = 0.1
		}
		engagement[i] = base
	}
	return engagement
}

func (g *OfferDataGenerator) generateImpressions(offers []offerProfile, engagement []float64) []impression {
	var impressions []impression
	for userIdx := 0; userIdx < g.config.UserCount; userIdx++ {
		count := int(math.Round(g.config.AvgImpressionsPerUser + g.rng.NormFloat64()*3))
		if count < 1 {
			count = 1
		}
		for i := 0; i < count; i++ {
			offerIdx := g.rng.Intn(len(offers))
			channel := g.randomChannel()
			at := g.randomTimeInRange(g.config.StartDate, g.config.EndDate)

			p := g.config.BaseClickRate * engagement[userIdx] * offers[offerIdx].appeal * channelLift(channel)
			if p > 0.9 {
				p = 0.9
			}
			impressions = append(impressions, impression{
				at:       at,
				userIdx:  userIdx,
				offerIdx: offerIdx,
				channel:  channel,
				clicked:  g.rng.Float64() < p,
			})
		}
	}
	sort.Slice(impressions, func(a, b int) bool {
		return impressions[a].at.Before(impressions[b].at)
	})
	return impressions
}

func channelLift(channel string) float64 {
	switch channel {
	case "push":
		return 1.4
	case "web":
		return 1.0
	default: // email
		return 0.7
	}
}

func (g *OfferDataGenerator) offersBatch(offers []offerProfile) (*table.Batch, error) {
	n := len(offers)
	ids := make([]string, n)
	types := make([]string, n)
	rewards := make([]float64, n)
	difficulties := make([]float64, n)
	durations := make([]int64, n)
	for i, o := range offers {
		ids[i] = o.id
		types[i] = o.offerType
		rewards[i] = o.reward
		difficulties[i] = o.difficulty
		durations[i] = o.duration
	}
	return table.NewBatch(
		table.NewStringColumn("offer_id", ids),
		table.NewStringColumn("offer_type", types),
		table.NewFloatColumn("reward", rewards),
		table.NewFloatColumn("difficulty", difficulties),
		table.NewIntColumn("duration_days", durations),
	)
}

func (g *OfferDataGenerator) interactionsBatch(impressions []impression) (*table.Batch, error) {
	n := len(impressions)
	ids := make([]string, n)
	ats := make([]time.Time, n)
	users := make([]string, n)
	offers := make([]string, n)
	channels := make([]string, n)
	clicks := make([]bool, n)
	for i, imp := range impressions {
		ids[i] = fmt.Sprintf("imp_%06d", i+1)
		ats[i] = imp.at
		users[i] = fmt.Sprintf("user_%04d", imp.userIdx+1)
		offers[i] = fmt.Sprintf("offer_%04d", imp.offerIdx+1)
		channels[i] = imp.channel
		clicks[i] = imp.clicked
	}
	return table.NewBatch(
		table.NewStringColumn("interaction_id", ids),
		table.NewTimestampColumn("event_at", ats),
		table.NewStringColumn("user_id", users),
		table.NewStringColumn("offer_id", offers),
		table.NewStringColumn("channel", channels),
		table.NewBoolColumn("clicked", clicks),
	)
}

// transactionsBatch derives purchases from clicked impressions: a click
// converts with PurchaseRate some hours later, spending roughly the
// offer's reward scaled up.
func (g *OfferDataGenerator) transactionsBatch(impressions []impression, offers []offerProfile) (*table.Batch, error) {
	var users []string
	var ats []time.Time
	var amounts []float64
	for _, imp := range impressions {
		if !imp.clicked || g.rng.Float64() >= g.config.PurchaseRate {
			continue
		}
		delay := time.Duration(1+g.rng.Intn(72)) * time.Hour
		amount := 5 + offers[imp.offerIdx].reward*3 + g.rng.Float64()*20
		users = append(users, fmt.Sprintf("user_%04d", imp.userIdx+1))
		ats = append(ats, imp.at.Add(delay))
		amounts = append(amounts, math.Round(amount*100)/100)
	}

	indices := make([]int, len(users))
	for i := range indices {
		indices[i] = i
	}
	sort.Slice(indices, func(a, b int) bool {
		return ats[indices[a]].Before(ats[indices[b]])
	})
	sortedUsers := make([]string, len(users))
	sortedAts := make([]time.Time, len(users))
	sortedAmounts := make([]float64, len(users))
	for i, idx := range indices {
		sortedUsers[i] = users[idx]
		sortedAts[i] = ats[idx]
		sortedAmounts[i] = amounts[idx]
	}

	return table.NewBatch(
		table.NewStringColumn("user_id", sortedUsers),
		table.NewTimestampColumn("occurred_at", sortedAts),
		table.NewFloatColumn("amount", sortedAmounts),
	)
}

// Helper methods for random value generation

func (g *OfferDataGenerator) randomTimeInRange(start, end time.Time) time.Time {
	duration := end.Sub(start)
	if duration <= 0 {
		return start
	}
	return start.Add(time.Duration(g.rng.Int63n(int64(duration))))
}

func (g *OfferDataGenerator) randomOfferType() string {
	types := []string{"discount", "bogo", "informational"}
	weights := []float64{0.5, 0.3, 0.2}

	r := g.rng.Float64()
	cumulative := 0.0
	for i, weight := range weights {
		cumulative += weight
		if r <= cumulative {
			return types[i]
		}
	}
	return types[0]
}

func (g *OfferDataGenerator) randomChannel() string {
	channels := []string{"email", "push", "web"}
	weights := []float64{0.45, 0.35, 0.2}

	r := g.rng.Float64()
	cumulative := 0.0
	for i, weight := range weights {
		cumulative += weight
		if r <= cumulative {
			return channels[i]
		}
	}
	return channels[0]
}
