/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package duel

import (
	"errors"
	"fmt"
)

// Linear congruential constants shared with every client. Changing any of
// these breaks obstacle agreement between peers running older clients.
const (
	LCGMultiplier int64 = 9301
	LCGIncrement  int64 = 49297
	LCGModulus    int64 = 233280
)

// Sequence is a deterministic stream of values in [0, 1), seeded by an integer.
//
// The recurrence is seed' = (seed*LCGMultiplier + LCGIncrement) mod LCGModulus,
// and each value is seed'/LCGModulus. Two sequences built from the same seed
// produce the same values on any peer.
type Sequence struct {
	state int64
}

func NewSequence(seed int64) *Sequence {
	return &Sequence{state: seed}
}

// Next advances the sequence and returns its next value.
func (s *Sequence) Next() float64 {
	s.state = (s.state*LCGMultiplier + LCGIncrement) % LCGModulus

	return float64(s.state) / float64(LCGModulus)
}

// Layout describes the playfield dimensions used to place obstacle gaps.
type Layout struct {
	ScreenHeight float64 `json:"screenHeight"`
	GapSize      float64 `json:"gapSize"`
	MinMargin    float64 `json:"minMargin"`
}

var DefaultLayout = Layout{
	ScreenHeight: 600,
	GapSize:      150,
	MinMargin:    50,
}

func (l Layout) Validate() error {
	if l.ScreenHeight <= 0 || l.GapSize <= 0 || l.MinMargin < 0 {
		return errors.New("layout dimensions must be positive")
	}

	if l.span() < 0 {
		return fmt.Errorf("gap of %v with margin %v does not fit a screen height of %v", l.GapSize, l.MinMargin, l.ScreenHeight)
	}

	return nil
}

func (l Layout) span() float64 {
	return l.ScreenHeight - l.GapSize - 2*l.MinMargin
}

// GapPosition returns the top edge of obstacle index's gap for a match seeded
// with baseSeed. Every obstacle reseeds a fresh Sequence with baseSeed+index,
// so a peer can place obstacle i without having generated the ones before it.
// The result lies in [MinMargin, ScreenHeight-GapSize-MinMargin].
func (l Layout) GapPosition(baseSeed int64, index int) float64 {
	return NewSequence(baseSeed+int64(index)).Next()*l.span() + l.MinMargin
}

// Gaps returns count consecutive gap positions starting at obstacle from.
func (l Layout) Gaps(baseSeed int64, from, count int) []float64 {
	if count <= 0 {
		return []float64{}
	}

	gaps := make([]float64, count)
	for i := range gaps {
		gaps[i] = l.GapPosition(baseSeed, from+i)
	}

	return gaps
}
