package battle

// Outbound packet names without an inbound counterpart.
const (
	PacketConnected = "Connected"
	PacketError     = "Error"
)

// Packet is the outbound envelope. Seq is assigned by the engine on
// publication and is zero for packets built outside it.
type Packet struct {
	Seq     uint64 `json:"seq"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type ConnectedPayload struct {
	Version string `json:"version"`
}

type ErrorPayload struct {
	Msg string `json:"msg"`
}

type TurnEndPayload struct {
	TurnInfo TurnInfo `json:"turn_info"`
}

// BattleEndPayload is the terminal snapshot for clients that missed
// intermediate packets.
type BattleEndPayload struct {
	Avatars     []Avatar   `json:"avatars"`
	TurnHistory []TurnInfo `json:"turn_history"`
	AVHistory   []TurnInfo `json:"av_history"`
	TurnCount   int        `json:"turn_count"`
	TotalDamage float64    `json:"total_damage"`
	ActionValue float64    `json:"action_value"`
	Cycle       uint32     `json:"cycle"`
	Wave        uint32     `json:"wave"`
	StageID     uint32     `json:"stage_id"`
}

// ConnectedPacket greets a new subscriber.
func ConnectedPacket(version string) Packet {
	return Packet{Type: PacketConnected, Payload: ConnectedPayload{Version: version}}
}

func ErrorPacket(err error) Packet {
	return Packet{Type: PacketError, Payload: ErrorPayload{Msg: err.Error()}}
}
