// Package perfstats measures how long pipeline stages take.
package perfstats

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// TimeAccumulator sums samples of how long something took
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}

// Stages records named durations, in the order that each stage first ran.
// A stage that runs more than once accumulates.
// It is safe to use from multiple goroutines.
type Stages struct {
	lock   sync.Mutex
	order  []string
	stages map[string]*TimeAccumulator
}

func NewStages() *Stages {
	return &Stages{
		stages: map[string]*TimeAccumulator{},
	}
}

// Add records one sample of a stage
func (s *Stages) Add(name string, d time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	acc := s.stages[name]
	if acc == nil {
		acc = &TimeAccumulator{}
		s.stages[name] = acc
		s.order = append(s.order, name)
	}
	acc.AddSample(d)
}

// Time starts a stage. Call the returned function when the stage is done.
//
//	defer stages.Time("median")()
func (s *Stages) Time(name string) func() {
	start := time.Now()
	return func() {
		s.Add(name, time.Since(start))
	}
}

// Get returns a copy of the accumulator for a stage
func (s *Stages) Get(name string) TimeAccumulator {
	s.lock.Lock()
	defer s.lock.Unlock()
	if acc := s.stages[name]; acc != nil {
		return *acc
	}
	return TimeAccumulator{}
}

// Totals returns the total time of every stage, in milliseconds, keyed by stage name
func (s *Stages) Totals() map[string]float64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := map[string]float64{}
	for name, acc := range s.stages {
		out[name] = float64(acc.Total.Microseconds()) / 1000
	}
	return out
}

// String formats the stages as "name: total (n x avg)", one per line
func (s *Stages) String() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	b := strings.Builder{}
	for _, name := range s.order {
		acc := s.stages[name]
		if acc.Samples == 1 {
			fmt.Fprintf(&b, "%v: %v\n", name, acc.Total.Round(time.Millisecond))
		} else {
			fmt.Fprintf(&b, "%v: %v (%v x %v)\n", name, acc.Total.Round(time.Millisecond), acc.Samples, acc.Average().Round(time.Microsecond))
		}
	}
	return b.String()
}
