package protocol

// Protocol version advertised in the status response.
const (
	ProtocolVersion = 774
	VersionName     = "1.21.11"
)

// Serverbound packet ids, grouped by connection state.
const (
	HandshakeIntention = 0x00

	StatusRequest = 0x00
	StatusPing    = 0x01

	LoginStart          = 0x00
	LoginPluginResponse = 0x02
	LoginAcknowledged   = 0x03

	ConfigFinishAcknowledged = 0x03
)

// Clientbound packet ids, grouped by connection state.
const (
	StatusResponse = 0x00
	StatusPong     = 0x01

	LoginSuccess       = 0x02
	LoginPluginRequest = 0x04

	ConfigFinish          = 0x03
	ConfigRegistryData    = 0x07
	ConfigFeatureFlags    = 0x0C
	ConfigUpdateTags      = 0x0D
	ConfigSelectKnownPack = 0x0E

	PlayChunkBatchFinished = 0x0B
	PlayChunkBatchStart    = 0x0C
	PlayCustomPayload      = 0x18
	PlayGameEvent          = 0x26
	PlayKeepAlive          = 0x2B
	PlayMapChunk           = 0x2C // never sent, terrain streaming is not implemented
	PlayLogin              = 0x30
	PlayPlayerAbilities    = 0x3E
	PlayPosition           = 0x46
	PlayViewPosition       = 0x5C
	PlayViewDistance       = 0x5D
	PlaySpawnPosition      = 0x5F
	PlaySetExperience      = 0x65
	PlaySetHealth          = 0x66
	PlaySetHeldItem        = 0x67
	PlaySetTime            = 0x6F
)

// Intent values carried by the handshake packet.
const (
	IntentStatus   = 1
	IntentLogin    = 2
	IntentTransfer = 3
)

// GameEventWaitForChunks tells the client to start waiting for level chunks.
const GameEventWaitForChunks = 13
