package game

import "time"

// AwardContext is what a ScorePolicy may look at when pricing a guess
type AwardContext struct {
	Elapsed       time.Duration
	RoundDuration time.Duration
	// Rank is 1 for the first correct guesser of the round, 2 for the next...
	Rank int
}

// ScorePolicy prices a correct guess. Results below 1 are raised to 1.
type ScorePolicy func(AwardContext) int64

// DecayPolicy starts at maxPoints, falls linearly to minPoints as the round
// runs out, then subtracts rankPenalty for every earlier guesser. The result
// never drops below minPoints.
func DecayPolicy(maxPoints, minPoints, rankPenalty int64) ScorePolicy {
	if minPoints < 1 {
		minPoints = 1
	}
	if maxPoints < minPoints {
		maxPoints = minPoints
	}
	return func(c AwardContext) int64 {
		points := maxPoints
		if c.RoundDuration > 0 {
			remaining := c.RoundDuration - c.Elapsed
			if remaining < 0 {
				remaining = 0
			}
			points = minPoints + (maxPoints-minPoints)*int64(remaining)/int64(c.RoundDuration)
		}
		if c.Rank > 1 {
			points -= int64(c.Rank-1) * rankPenalty
		}
		if points < minPoints {
			points = minPoints
		}
		return points
	}
}

// ScoreEngine turns a guess into the guesser's award and the drawer's share
type ScoreEngine struct {
	policy        ScorePolicy
	drawerDivisor int64
}

func NewScoreEngine(policy ScorePolicy, drawerDivisor int64) ScoreEngine {
	if drawerDivisor < 1 {
		drawerDivisor = 1
	}
	return ScoreEngine{policy: policy, drawerDivisor: drawerDivisor}
}

// Calculate returns the guesser's points and the drawer's share of them.
// The share is guesser/divisor rounded down, so a 93 point guess with the
// default divisor of 5 earns the drawer 18.
func (e ScoreEngine) Calculate(c AwardContext) (guesser, drawer int64) {
	guesser = e.policy(c)
	if guesser < 1 {
		guesser = 1
	}
	return guesser, guesser / e.drawerDivisor
}
