// Package stm implements the short-term memory tier: a fixed-capacity FIFO
// buffer of the most recent conversational turns. It is purely in-memory and
// has no failure modes; the oldest turn is evicted when capacity is exceeded.
package stm

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mnemolabs/mnemo/pkg/types"
)

// DefaultCapacity is the buffer capacity used when none is configured.
const DefaultCapacity = 50

// Config tunes the recency buffer.
type Config struct {
	// Capacity is the maximum number of retained interactions (default: 50).
	Capacity int
}

// Stats describes the current buffer occupancy.
type Stats struct {
	CurrentSize int       `json:"current_size"`
	MaxSize     int       `json:"max_size"`
	Utilization float64   `json:"utilization_pct"` // CurrentSize/MaxSize*100
	Oldest      time.Time `json:"oldest,omitempty"`
	Newest      time.Time `json:"newest,omitempty"`
}

// Buffer is a strict-FIFO recency buffer. The size invariant
// 0 <= len <= capacity holds after every operation. All methods are safe for
// concurrent use so a buffer may be shared between orchestrator instances.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	items    []types.Interaction
}

// NewBuffer creates a recency buffer. Non-positive capacities fall back to
// DefaultCapacity.
func NewBuffer(cfg Config) *Buffer {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		items:    make([]types.Interaction, 0, capacity),
	}
}

// Append records a new turn at the tail, evicting the head when the buffer is
// full. It returns a copy of the stored interaction.
func (b *Buffer) Append(input, output string, context map[string]interface{}) types.Interaction {
	interaction := types.Interaction{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Input:     input,
		Output:    output,
		Context:   context,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, interaction.Clone())
	if len(b.items) > b.capacity {
		b.items = b.items[1:]
	}

	return interaction
}

// Recent returns the last count interactions in append order (most recent
// last). A count <= 0 or beyond the current size returns everything retained.
func (b *Buffer) Recent(count int) []types.Interaction {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if count <= 0 || count > len(b.items) {
		count = len(b.items)
	}
	return cloneSlice(b.items[len(b.items)-count:])
}

// Search returns interactions whose input or output contains the given
// substring, case-insensitively, in append order. No ranking is applied.
func (b *Buffer) Search(substring string) []types.Interaction {
	needle := strings.ToLower(substring)

	b.mu.RLock()
	defer b.mu.RUnlock()

	var matches []types.Interaction
	for _, item := range b.items {
		if strings.Contains(strings.ToLower(item.Input), needle) ||
			strings.Contains(strings.ToLower(item.Output), needle) {
			matches = append(matches, item.Clone())
		}
	}
	return matches
}

// InRange returns interactions with start <= timestamp <= end, in append order.
func (b *Buffer) InRange(start, end time.Time) []types.Interaction {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matches []types.Interaction
	for _, item := range b.items {
		if !item.Timestamp.Before(start) && !item.Timestamp.After(end) {
			matches = append(matches, item.Clone())
		}
	}
	return matches
}

// Size returns the number of retained interactions.
func (b *Buffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Stats reports current occupancy. Utilization is zero for an impossible
// zero capacity rather than dividing by zero.
func (b *Buffer) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Stats{
		CurrentSize: len(b.items),
		MaxSize:     b.capacity,
	}
	if b.capacity > 0 {
		s.Utilization = float64(len(b.items)) / float64(b.capacity) * 100
	}
	if len(b.items) > 0 {
		s.Oldest = b.items[0].Timestamp
		s.Newest = b.items[len(b.items)-1].Timestamp
	}
	return s
}

func cloneSlice(items []types.Interaction) []types.Interaction {
	out := make([]types.Interaction, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}
