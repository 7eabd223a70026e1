// Package dbc models a CAN signal database: messages keyed by arbitration id,
// each carrying an insertion-ordered set of bit-field signals, built from the
// Vector DBC text grammar by the parser in this package.
package dbc

import (
	"errors"
	"fmt"
)

// ByteOrder selects the bit-numbering convention of a signal.
// The values match the digit used in the signal grammar.
type ByteOrder uint8

const (
	Motorola ByteOrder = 0 // big-endian, '@0'
	Intel    ByteOrder = 1 // little-endian, '@1'
)

func (o ByteOrder) String() string {
	if o == Intel {
		return "intel"
	}
	return "motorola"
}

// ErrZeroScale is returned when a signal declares a zero scale factor.
var ErrZeroScale = errors.New("dbc: zero scale")

// ErrSignalLength is returned when a signal length is outside 1..64 bits.
var ErrSignalLength = errors.New("dbc: signal length out of range")

// ErrBitSpan is returned when a signal's bit span exceeds the message payload.
var ErrBitSpan = errors.New("dbc: bit span exceeds payload")

// ErrDLCRange is returned when a message declares a payload longer than 64 bytes.
var ErrDLCRange = errors.New("dbc: dlc out of range")

// ValueLabel is one enumeration entry of a value table, in declaration order.
// Raw holds the unsigned bit pattern as written in the table.
type ValueLabel struct {
	Raw   uint64
	Label string
}

// Signal is one named bit field within a message payload.
// StartBit is the absolute bit offset for Intel signals and the position of
// the most significant bit (bit 7 of byte 0 first) for Motorola signals.
type Signal struct {
	Name     string
	StartBit uint16
	Length   uint8
	Order    ByteOrder
	Signed   bool
	Scale    float64
	Offset   float64
	Min      float64
	Max      float64
	Unit     string
	Receiver string
	Values   []ValueLabel
}

// Validate reports the configuration errors that make the signal unusable for
// encoding or decoding against a payload of dlc bytes. Structural problems in
// the source text never reach here; these are semantic faults of an accepted
// signal and must surface to the caller.
func (s *Signal) Validate(dlc uint8) error {
	if s.Length == 0 || s.Length > 64 {
		return fmt.Errorf("signal %s: length %d: %w", s.Name, s.Length, ErrSignalLength)
	}
	if s.Scale == 0 {
		return fmt.Errorf("signal %s: %w", s.Name, ErrZeroScale)
	}
	if end := s.endBit(); end > uint(dlc)*8 {
		return fmt.Errorf("signal %s: bit span ends at %d, payload is %d bits: %w",
			s.Name, end, uint(dlc)*8, ErrBitSpan)
	}
	return nil
}

// endBit returns the exclusive upper bound of the signal's span in linear bit
// order (byte index ascending, bits within a byte counted once each).
func (s *Signal) endBit() uint {
	if s.Order == Intel {
		return uint(s.StartBit) + uint(s.Length)
	}
	// Motorola start bit names the MSB; bits descend within the byte and
	// continue at bit 7 of the next byte, so the linear index of the MSB is
	// its mirror within the byte.
	msb := 8*(uint(s.StartBit)/8) + 7 - uint(s.StartBit)%8
	return msb + uint(s.Length)
}

// LabelFor returns the value-table label for a raw value, matching on the
// unsigned bit pattern of the signal's width.
func (s *Signal) LabelFor(raw int64) (string, bool) {
	if len(s.Values) == 0 {
		return "", false
	}
	pattern := uint64(raw)
	if s.Length < 64 {
		pattern &= 1<<s.Length - 1
	}
	for _, v := range s.Values {
		if v.Raw == pattern {
			return v.Label, true
		}
	}
	return "", false
}

// Message is one CAN frame layout: payload length and the signals packed into it.
type Message struct {
	CANID  uint32
	Name   string
	DLC    uint8
	Sender string

	sigs   []*Signal
	byName map[string]*Signal
}

// NewMessage returns an empty message definition.
func NewMessage(canID uint32, name string, dlc uint8, sender string) *Message {
	return &Message{
		CANID:  canID,
		Name:   name,
		DLC:    dlc,
		Sender: sender,
		byName: make(map[string]*Signal),
	}
}

// AddSignal attaches s to the message. A signal with the same name replaces
// the earlier one in place, keeping its position in declaration order.
func (m *Message) AddSignal(s *Signal) {
	if old, ok := m.byName[s.Name]; ok {
		for i, existing := range m.sigs {
			if existing == old {
				m.sigs[i] = s
				break
			}
		}
		m.byName[s.Name] = s
		return
	}
	m.sigs = append(m.sigs, s)
	m.byName[s.Name] = s
}

// Signal returns the named signal, if defined.
func (m *Message) Signal(name string) (*Signal, bool) {
	s, ok := m.byName[name]
	return s, ok
}

// Signals returns the message's signals in declaration order.
func (m *Message) Signals() []*Signal { return m.sigs }

// Database is a set of messages keyed by arbitration id, with a derived
// signal-name index for reverse lookup.
type Database struct {
	msgs    map[uint32]*Message
	order   []uint32
	sigIdx  map[string]uint32
	sigSeen []string
}

// NewDatabase returns an empty database.
func NewDatabase() *Database {
	return &Database{
		msgs:   make(map[uint32]*Message),
		sigIdx: make(map[string]uint32),
	}
}

// AddMessage stores m, replacing any prior message with the same id entirely
// (signals included). A replaced id keeps its position in declaration order.
// Signal-index entries pointing at the replaced message are not removed, so a
// reverse lookup may return a message that no longer defines the signal;
// callers recheck with Message.Signal.
func (db *Database) AddMessage(m *Message) {
	if _, ok := db.msgs[m.CANID]; !ok {
		db.order = append(db.order, m.CANID)
	}
	db.msgs[m.CANID] = m
}

// indexSignal records name as belonging to id, last writer wins.
func (db *Database) indexSignal(name string, id uint32) {
	if _, ok := db.sigIdx[name]; !ok {
		db.sigSeen = append(db.sigSeen, name)
	}
	db.sigIdx[name] = id
}

// Message returns the message with the given arbitration id.
func (db *Database) Message(id uint32) (*Message, bool) {
	m, ok := db.msgs[id]
	return m, ok
}

// Messages returns all messages in declaration order.
func (db *Database) Messages() []*Message {
	out := make([]*Message, 0, len(db.order))
	for _, id := range db.order {
		out = append(out, db.msgs[id])
	}
	return out
}

// MessageForSignal returns the message a signal name was last declared in.
// If a signal name appears in several messages the most recently parsed one
// wins; the ambiguity is accepted, not an error.
func (db *Database) MessageForSignal(name string) (*Message, bool) {
	id, ok := db.sigIdx[name]
	if !ok {
		return nil, false
	}
	m, ok := db.msgs[id]
	return m, ok
}

// SignalNames returns every indexed signal name in first-seen order.
func (db *Database) SignalNames() []string {
	out := make([]string, len(db.sigSeen))
	copy(out, db.sigSeen)
	return out
}

// Validate checks every message and signal for configuration errors and
// returns them joined, nil when the database is clean.
func (db *Database) Validate() error {
	var errs []error
	for _, m := range db.Messages() {
		if m.DLC > 64 {
			errs = append(errs, fmt.Errorf("message %s (id 0x%X): dlc %d: %w", m.Name, m.CANID, m.DLC, ErrDLCRange))
		}
		for _, s := range m.Signals() {
			if err := s.Validate(m.DLC); err != nil {
				errs = append(errs, fmt.Errorf("message %s (id 0x%X): %w", m.Name, m.CANID, err))
			}
		}
	}
	return errors.Join(errs...)
}
