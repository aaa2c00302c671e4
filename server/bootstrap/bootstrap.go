package bootstrap

import (
	"math"

	"github.com/Mmx233/limbo/protocol"
	"github.com/Mmx233/limbo/registry"
)

const (
	DimensionTypeRegistry = "minecraft:dimension_type"
	Overworld             = "minecraft:overworld"
	BrandChannel          = "minecraft:brand"

	EntityID           = 1
	ViewDistance       = 8
	SimulationDistance = 8
	SeaLevel           = 63
	TimeOfDay          = 6000
	TeleportID         = 1
)

// Position is a spawn location.
type Position struct {
	X, Y, Z    float64
	Yaw, Pitch float32
}

// Settings are the values that vary the play sequence.
type Settings struct {
	Hardcore  bool
	Spawn     Position
	Dimension string
	Brand     string
}

// Sequencer holds the fixed packet scripts sent after login. Frames are
// encoded once and shared read-only by every connection.
type Sequencer struct {
	configuration [][]byte
	play          [][]byte
}

func New(settings Settings, tables *registry.Tables) *Sequencer {
	if settings.Dimension == "" {
		settings.Dimension = Overworld
	}
	if tables == nil {
		tables = registry.Empty()
	}
	dimensionType, _ := tables.IndexOf(DimensionTypeRegistry, settings.Dimension)

	return &Sequencer{
		configuration: configurationFrames(tables),
		play:          playFrames(settings, int32(dimensionType)),
	}
}

// Configuration returns the frames sent on entering the configuration state.
// Callers must not modify them.
func (s *Sequencer) Configuration() [][]byte { return s.configuration }

// Play returns the frames sent on entering the play state. Callers must not
// modify them.
func (s *Sequencer) Play() [][]byte { return s.play }

func configurationFrames(tables *registry.Tables) [][]byte {
	frames := make([][]byte, 0, len(tables.Registries)+4)

	frames = append(frames, protocol.Encode(protocol.ConfigFeatureFlags, func(w *protocol.Writer) {
		w.WriteVarInt(0)
	}))
	frames = append(frames, protocol.Encode(protocol.ConfigSelectKnownPack, func(w *protocol.Writer) {
		w.WriteVarInt(0)
	}))

	for _, reg := range tables.Registries {
		frames = append(frames, protocol.Encode(protocol.ConfigRegistryData, func(w *protocol.Writer) {
			w.WriteString(reg.ID)
			w.WriteVarInt(int32(len(reg.Entries)))
			for _, e := range reg.Entries {
				w.WriteString(e.Key)
				w.WriteBool(e.Data != nil)
				if e.Data != nil {
					_, _ = w.Write(e.Data)
				}
			}
		}))
	}

	frames = append(frames, protocol.Encode(protocol.ConfigUpdateTags, func(w *protocol.Writer) {
		w.WriteVarInt(int32(len(tables.Tags)))
		for _, tr := range tables.Tags {
			w.WriteString(tr.ID)
			w.WriteVarInt(int32(len(tr.Tags)))
			for _, tag := range tr.Tags {
				w.WriteString(tag.ID)
				w.WriteVarInt(int32(len(tag.Entries)))
				for _, id := range tag.Entries {
					w.WriteVarInt(id)
				}
			}
		}
	}))

	return append(frames, protocol.Encode(protocol.ConfigFinish, nil))
}

func playFrames(s Settings, dimensionType int32) [][]byte {
	spawn := s.Spawn
	frames := make([][]byte, 0, 16)

	frames = append(frames, protocol.Encode(protocol.PlayLogin, func(w *protocol.Writer) {
		w.WriteInt32(EntityID)
		w.WriteBool(s.Hardcore)
		w.WriteVarInt(1)
		w.WriteString(s.Dimension)
		w.WriteVarInt(1) // max players
		w.WriteVarInt(ViewDistance)
		w.WriteVarInt(SimulationDistance)
		w.WriteBool(false) // reduced debug info
		w.WriteBool(true)  // respawn screen
		w.WriteBool(false) // limited crafting
		w.WriteVarInt(dimensionType)
		w.WriteString(s.Dimension)
		w.WriteInt64(0)       // hashed seed
		_ = w.WriteByte(0)    // survival
		_ = w.WriteByte(0xFF) // no previous game mode
		w.WriteBool(false)    // debug world
		w.WriteBool(true)     // flat world
		w.WriteBool(false)    // death location
		w.WriteVarInt(0)      // portal cooldown
		w.WriteVarInt(SeaLevel)
		w.WriteBool(false) // enforces secure chat
	}))

	frames = append(frames, protocol.Encode(protocol.PlayPlayerAbilities, func(w *protocol.Writer) {
		_ = w.WriteByte(0)
		w.WriteFloat32(0.05)
		w.WriteFloat32(0.1)
	}))

	frames = append(frames, protocol.Encode(protocol.PlaySetHeldItem, func(w *protocol.Writer) {
		w.WriteVarInt(0)
	}))

	frames = append(frames, protocol.Encode(protocol.PlaySetHealth, func(w *protocol.Writer) {
		w.WriteFloat32(20)
		w.WriteVarInt(20)
		w.WriteFloat32(5)
	}))

	frames = append(frames, protocol.Encode(protocol.PlaySetExperience, func(w *protocol.Writer) {
		w.WriteFloat32(0)
		w.WriteVarInt(0)
		w.WriteVarInt(0)
	}))

	frames = append(frames, protocol.Encode(protocol.PlaySetTime, func(w *protocol.Writer) {
		w.WriteInt64(0)
		w.WriteInt64(TimeOfDay)
		w.WriteBool(true)
	}))

	frames = append(frames, protocol.Encode(protocol.PlayCustomPayload, func(w *protocol.Writer) {
		w.WriteString(BrandChannel)
		w.WriteString(s.Brand)
	}))

	frames = append(frames, protocol.Encode(protocol.PlayViewDistance, func(w *protocol.Writer) {
		w.WriteVarInt(ViewDistance)
	}))

	frames = append(frames, protocol.Encode(protocol.PlayViewPosition, func(w *protocol.Writer) {
		w.WriteVarInt(0)
		w.WriteVarInt(0)
	}))

	frames = append(frames, protocol.Encode(protocol.PlaySpawnPosition, func(w *protocol.Writer) {
		w.WriteString(s.Dimension)
		w.WritePosition(floor(spawn.X), floor(spawn.Y), floor(spawn.Z))
		w.WriteFloat32(spawn.Yaw)
		w.WriteFloat32(spawn.Pitch)
	}))

	frames = append(frames, protocol.Encode(protocol.PlayGameEvent, func(w *protocol.Writer) {
		_ = w.WriteByte(protocol.GameEventWaitForChunks)
		w.WriteFloat32(0)
	}))

	frames = append(frames, protocol.Encode(protocol.PlayPosition, func(w *protocol.Writer) {
		w.WriteVarInt(TeleportID)
		w.WriteFloat64(spawn.X)
		w.WriteFloat64(spawn.Y)
		w.WriteFloat64(spawn.Z)
		w.WriteFloat64(0)
		w.WriteFloat64(0)
		w.WriteFloat64(0)
		w.WriteFloat32(spawn.Yaw)
		w.WriteFloat32(spawn.Pitch)
		w.WriteInt32(0) // absolute, no relative flags
	}))

	// Empty batch: terrain streaming is not implemented.
	frames = append(frames, protocol.Encode(protocol.PlayChunkBatchStart, nil))
	frames = append(frames, protocol.Encode(protocol.PlayChunkBatchFinished, func(w *protocol.Writer) {
		w.WriteVarInt(0)
	}))

	return frames
}

func floor(v float64) int32 {
	return int32(math.Floor(v))
}
