package network

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	MessageHello      MessageType = "hello"
	MessageFrameStats MessageType = "frameStats"
	MessageChunkDelta MessageType = "chunkDelta"
	MessageDebris     MessageType = "debris"
	MessageReverb     MessageType = "reverb"
	MessageEdit       MessageType = "edit"
)

type Envelope struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Seq       uint64          `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
}

type Hello struct {
	Frame     uint64 `json:"frame"`
	ChunkSize int    `json:"chunkSize"`
	Chunks    int    `json:"chunks"`
}

// Layer names the field a delta applies to.
type Layer string

const (
	LayerDensity Layer = "density"
	LayerWater   Layer = "water"
)

// ChangeReasonCode encodes change reasons into a compact numeric value.
type ChangeReasonCode uint8

const (
	ChangeReasonUnknown ChangeReasonCode = iota
	ChangeReasonFlow
	ChangeReasonEdit
	ChangeReasonCollapse
)

type ChunkDelta struct {
	Layer     Layer        `json:"layer"`
	ChunkX    int          `json:"chunkX"`
	ChunkY    int          `json:"chunkY"`
	ChunkZ    int          `json:"chunkZ"`
	Seq       uint64       `json:"seq"`
	Timestamp time.Time    `json:"timestamp"`
	Cells     []CellChange `json:"cells"`
}

type CellChange struct {
	X      int              `json:"x"`
	Y      int              `json:"y"`
	Z      int              `json:"z"`
	Before float32          `json:"before"`
	After  float32          `json:"after"`
	Reason ChangeReasonCode `json:"reason"`
}

type Debris struct {
	X       int     `json:"x"`
	Y       int     `json:"y"`
	Z       int     `json:"z"`
	Density float32 `json:"density"`
	Removed bool    `json:"removed"`
}

type Reverb struct {
	Volume      int     `json:"volume"`
	SurfaceArea int     `json:"surfaceArea"`
	Openness    float32 `json:"openness"`
	Complete    bool    `json:"complete"`
	DecayTime   float32 `json:"decayTime"`
	Damping     float32 `json:"damping"`
	WetMix      float32 `json:"wetMix"`
}

// Edit asks the host to overwrite one density cell at the next frame.
type Edit struct {
	X       int     `json:"x"`
	Y       int     `json:"y"`
	Z       int     `json:"z"`
	Density float32 `json:"density"`
}

func Encode(msg Envelope) ([]byte, error) {
	return json.Marshal(msg)
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}
