package can

// SocketCAN flag bits for can_id (same values as <linux/can.h>).
// DBC files use the same convention: extended ids carry the EFF bit.
const (
	CAN_EFF_FLAG = 0x80000000
	CAN_RTR_FLAG = 0x40000000
	CAN_ERR_FLAG = 0x20000000
	CAN_SFF_MASK = 0x7FF
	CAN_EFF_MASK = 0x1FFFFFFF
)

// Frame is the CAN/CAN FD frame holder shared by the capture backends,
// the converter and the log writer.
// CANID contains EFF/RTR/ERR flags in its upper bits like SocketCAN.
// Len is payload length (0..8 for classic, up to 64 for FD); only the
// first Len bytes of Data are valid.
type Frame struct {
	CANID uint32
	Len   uint8
	Data  [64]byte
}

// ID returns the arbitration id with the flag bits stripped.
func (f Frame) ID() uint32 {
	if f.CANID&CAN_EFF_FLAG != 0 {
		return f.CANID & CAN_EFF_MASK
	}
	return f.CANID & CAN_SFF_MASK
}

// IsExtended reports whether the frame uses a 29-bit identifier.
func (f Frame) IsExtended() bool { return f.CANID&CAN_EFF_FLAG != 0 }

// IsRemote reports whether the frame is a remote transmission request.
func (f Frame) IsRemote() bool { return f.CANID&CAN_RTR_FLAG != 0 }

// Payload returns the valid prefix of Data.
func (f Frame) Payload() []byte { return f.Data[:f.Len] }
