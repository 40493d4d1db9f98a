// Package idgen generates process-unique order and trade IDs.
package idgen

import (
	"fmt"
	"time"

	"github.com/sony/sonyflake"
)

// Generator wraps a Sonyflake node. IDs are time-ordered, which keeps the
// Pebble trade keys naturally sorted by creation.
type Generator struct {
	sf *sonyflake.Sonyflake
}

// New creates a generator for the given machine ID.
func New(machineID uint16) (*Generator, error) {
	sf := sonyflake.NewSonyflake(sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MachineID: func() (uint16, error) { return machineID, nil },
	})
	if sf == nil {
		return nil, fmt.Errorf("sonyflake init failed for machine %d", machineID)
	}
	return &Generator{sf: sf}, nil
}

// Next returns the next ID. Sonyflake only errors when the clock runs far
// ahead of its sequence space; a brief retry rides that out.
func (g *Generator) Next() uint64 {
	for {
		id, err := g.sf.NextID()
		if err == nil {
			return id
		}
		time.Sleep(time.Millisecond)
	}
}
