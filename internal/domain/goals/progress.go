package goals

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var milestonePercents = []int{25, 50, 75, 100}

// Progress is the computed state of a goal at a point in time
type Progress struct {
	Goal               Goal            `json:"goal"`
	Ratio              float64         `json:"ratio"` // current/target clamped to [0,1]
	Remaining          decimal.Decimal `json:"remaining"`
	DaysRemaining      int             `json:"days_remaining"`
	AmountNeededPerDay decimal.Decimal `json:"amount_needed_per_day"`
	PacePercent        float64         `json:"pace_percent"` // 100 = on track
	IsBehindPace       bool            `json:"is_behind_pace"`
	PaceMessage        string          `json:"pace_message"`
	Milestones         []Milestone     `json:"milestones"`
}

// Milestone is a progress checkpoint
type Milestone struct {
	Percent    int        `json:"percent"`
	Reached    bool       `json:"reached"`
	ExpectedBy *time.Time `json:"expected_by,omitempty"`
}

// MilestoneReached describes a checkpoint crossed by a contribution
type MilestoneReached struct {
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// Ratio returns current/target clamped to [0,1]
func Ratio(g Goal) float64 {
	if !g.Target.IsPositive() {
		return 0
	}
	r, _ := g.Current.Div(g.Target).Float64()
	return math.Max(0, math.Min(1, r))
}

// ComputeProgress evaluates a goal against now. Pace compares actual progress
// with the linear progress expected between creation and the target date.
func ComputeProgress(g Goal, now time.Time) Progress {
	p := Progress{
		Goal:        g,
		Ratio:       Ratio(g),
		Remaining:   decimal.Max(decimal.Zero, g.Target.Sub(g.Current)),
		PacePercent: 100,
	}

	if g.TargetDate != nil {
		end := *g.TargetDate
		if now.Before(end) {
			p.DaysRemaining = int(end.Sub(now).Hours() / 24)
		}

		totalDays := end.Sub(g.CreatedAt).Hours() / 24
		elapsedDays := math.Max(0, math.Min(totalDays, now.Sub(g.CreatedAt).Hours()/24))
		if totalDays > 0 && elapsedDays > 0 {
			expected := elapsedDays / totalDays
			p.PacePercent = p.Ratio / expected * 100
		}
		if p.DaysRemaining > 0 {
			p.AmountNeededPerDay = p.Remaining.Div(decimal.NewFromInt(int64(p.DaysRemaining))).Round(2)
		}
	}
	p.IsBehindPace = p.PacePercent < 100
	p.PaceMessage = paceMessage(p)
	p.Milestones = milestones(g)
	return p
}

func paceMessage(p Progress) string {
	if p.Ratio >= 1 {
		return "Goal reached!"
	}
	if p.Goal.TargetDate == nil {
		return fmt.Sprintf("%.0f%% saved", p.Ratio*100)
	}
	if p.DaysRemaining <= 0 {
		return fmt.Sprintf("Deadline passed (%.0f%% complete)", p.Ratio*100)
	}
	if p.PacePercent >= 100 {
		if ahead := p.PacePercent - 100; ahead > 10 {
			return fmt.Sprintf("Ahead of schedule by %.0f%%", ahead)
		}
		return "On track"
	}
	if behind := 100 - p.PacePercent; behind > 25 {
		return fmt.Sprintf("Behind by %.0f%% (%d weeks left)", behind, p.DaysRemaining/7)
	}
	return fmt.Sprintf("Slightly behind (%.0f%% of expected)", p.PacePercent)
}

func milestones(g Goal) []Milestone {
	out := make([]Milestone, 0, len(milestonePercents))
	for _, pct := range milestonePercents {
		m := Milestone{
			Percent: pct,
			Reached: g.Target.IsPositive() && g.Current.GreaterThanOrEqual(threshold(g.Target, pct)),
		}
		if g.TargetDate != nil {
			span := g.TargetDate.Sub(g.CreatedAt)
			by := g.CreatedAt.Add(span * time.Duration(pct) / 100)
			m.ExpectedBy = &by
		}
		out = append(out, m)
	}
	return out
}

func crossedMilestone(target, before, after decimal.Decimal) *MilestoneReached {
	if !target.IsPositive() {
		return nil
	}
	var reached *MilestoneReached
	for _, pct := range milestonePercents {
		t := threshold(target, pct)
		if before.LessThan(t) && after.GreaterThanOrEqual(t) {
			reached = &MilestoneReached{Percent: pct, Message: milestoneMessage(pct)}
		}
	}
	return reached
}

func threshold(target decimal.Decimal, pct int) decimal.Decimal {
	return target.Mul(decimal.NewFromInt(int64(pct))).Div(decimal.NewFromInt(100))
}

func milestoneMessage(percent int) string {
	switch percent {
	case 25:
		return "Great start! You're 25% of the way there!"
	case 50:
		return "Halfway there! Keep up the momentum!"
	case 75:
		return "Amazing progress! Just 25% left to go!"
	case 100:
		return "Congratulations! You've reached your goal!"
	default:
		return fmt.Sprintf("You've reached %d%% of your goal!", percent)
	}
}
