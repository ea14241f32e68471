package workflow

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
	"github.com/songzhibin97/gkit/generator"
)

// IDEpoch is the start time of connection id timestamps. It must not change
// once ids are stored.
var IDEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewIDGenerator returns the snowflake generator for connection ids.
// Processes sharing a store need distinct node ids; node 0 draws a random one.
func NewIDGenerator(node uint16) generator.Generator {
	for node == 0 {
		id := uuid.New()
		node = binary.BigEndian.Uint16(id[:2])
	}
	return generator.NewSnowflake(IDEpoch, node)
}
