// Package dispatch holds the pure side of auto-assignment: building a technician's
// eligibility pool and choosing one ticket from it. Nothing here touches a store.
package dispatch

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/geo"
)

// DefaultRadiusKm is the proximity threshold around the technician's last completed job.
const DefaultRadiusKm = 2.0

// Reason names the rule that decided a selection.
type Reason string

const (
	ReasonOverdue        Reason = "overdue"
	ReasonFirstJob       Reason = "first_job"
	ReasonProximity      Reason = "proximity"
	ReasonPriority       Reason = "priority"
	ReasonRandomTieBreak Reason = "random_tiebreak"
)

// Candidate is a pool ticket with its resolved position, nil when unresolvable.
type Candidate struct {
	Ticket   domain.Ticket
	Location *geo.Point
}

// Context is what the selector knows about the technician asking for work.
type Context struct {
	Now time.Time
	// HasHistory is true once the technician completed a ticket today.
	HasHistory bool
	// Anchor is the position of the most recently completed ticket today, if resolvable.
	Anchor   *geo.Point
	RadiusKm float64
	// Intn returns a uniform int in [0,n); defaults to math/rand.
	Intn func(n int) int
}

// Selection is the chosen ticket and why it won.
type Selection struct {
	Ticket     domain.Ticket
	Reason     Reason
	DistanceKm float64
}

// Select picks exactly one ticket from pool, or reports false when pool is empty.
func Select(pool []Candidate, sc Context) (Selection, bool) {
	if len(pool) == 0 {
		return Selection{}, false
	}

	var overdue []Candidate
	for _, c := range pool {
		if c.Ticket.IsOverdue(sc.Now) {
			overdue = append(overdue, c)
		}
	}
	if len(overdue) > 0 {
		sort.SliceStable(overdue, func(i, j int) bool {
			a, b := overdue[i].Ticket, overdue[j].Ticket
			if !a.SLADeadline.Equal(b.SLADeadline) {
				return a.SLADeadline.Before(b.SLADeadline)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		})
		return Selection{Ticket: overdue[0].Ticket, Reason: ReasonOverdue}, true
	}

	if !sc.HasHistory {
		return Selection{Ticket: oldest(pool).Ticket, Reason: ReasonFirstJob}, true
	}

	if sc.Anchor != nil {
		radius := sc.RadiusKm
		if radius <= 0 {
			radius = DefaultRadiusKm
		}
		var near []Candidate
		distances := make(map[string]float64)
		for _, c := range pool {
			d := distanceFrom(*sc.Anchor, c.Location)
			if d <= radius {
				near = append(near, c)
				distances[c.Ticket.ID] = d
			}
		}
		if len(near) > 0 {
			winner := oldest(near).Ticket
			return Selection{Ticket: winner, Reason: ReasonProximity, DistanceKm: distances[winner.ID]}, true
		}
	}

	best := math.MaxInt
	for _, c := range pool {
		if r := c.Ticket.Priority.Rank(); r < best {
			best = r
		}
	}
	var group []Candidate
	for _, c := range pool {
		if c.Ticket.Priority.Rank() == best {
			group = append(group, c)
		}
	}
	first := oldest(group)
	var tied []Candidate
	for _, c := range group {
		if c.Ticket.CreatedAt.Equal(first.Ticket.CreatedAt) {
			tied = append(tied, c)
		}
	}
	if len(tied) == 1 {
		return Selection{Ticket: first.Ticket, Reason: ReasonPriority}, true
	}
	intn := sc.Intn
	if intn == nil {
		intn = rand.Intn
	}
	return Selection{Ticket: tied[intn(len(tied))].Ticket, Reason: ReasonRandomTieBreak}, true
}

// distanceFrom treats an unresolvable location as infinitely far away.
func distanceFrom(anchor geo.Point, p *geo.Point) float64 {
	if p == nil {
		return math.Inf(1)
	}
	return geo.DistanceKm(anchor, *p)
}

func oldest(cs []Candidate) Candidate {
	winner := cs[0]
	for _, c := range cs[1:] {
		if c.Ticket.CreatedAt.Before(winner.Ticket.CreatedAt) {
			winner = c
		}
	}
	return winner
}
