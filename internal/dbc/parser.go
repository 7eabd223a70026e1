package dbc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Line grammars. Identifiers are word characters; numeric fields are decimal.
var (
	msgScopeRe = regexp.MustCompile(`^BO_\s+(\d+)`)
	msgRe      = regexp.MustCompile(`^BO_\s+(\d+)\s+(\w+)\s*:\s*(\d+)\s+(\w+)`)
	sigRe      = regexp.MustCompile(`^SG_\s+(\w+)\s*:\s*(\d+)\|(\d+)@([01])([+-])\s*\(([^,]+),([^)]+)\)\s*\[([^|]+)\|([^\]]+)\]\s*"([^"]*)"\s*(\w+)`)
	valRe      = regexp.MustCompile(`^VAL_\s+(\d+)\s+(\w+)\s+(.*);`)
	valPairRe  = regexp.MustCompile(`(\d+)\s+"([^"]+)"`)
)

// scanBufSize bounds a single database line.
const scanBufSize = 1 << 20

// Stats is the per-line coverage of one parse. Every non-blank line lands in
// exactly one bucket; blank lines count toward Lines only.
type Stats struct {
	Lines       int // lines scanned
	Messages    int // accepted message definitions
	Signals     int // signals attached to a message
	ValueTables int // value tables attached to a signal
	Orphans     int // well-formed signal lines seen outside any message scope
	Ignored     int // non-blank lines matching no grammar
}

// Accepted returns the number of lines that produced or amended an entity.
func (st Stats) Accepted() int { return st.Messages + st.Signals + st.ValueTables }

// Parse reads database text from r into a new Database. Lines that match no
// grammar are skipped and counted, never fatal; only a failing read aborts.
// Input is decoded permissively, invalid byte sequences are replaced.
func Parse(r io.Reader) (*Database, Stats, error) {
	db := NewDatabase()
	var st Stats

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), scanBufSize)

	// Scope state: nil until a well-formed message line is seen, reset by
	// the next message line.
	var cur *Message
	for sc.Scan() {
		st.Lines++
		line := strings.TrimSpace(strings.ToValidUTF8(sc.Text(), "�"))
		if line == "" {
			continue
		}
		if msgScopeRe.MatchString(line) {
			cur = parseMessage(db, line, &st)
			continue
		}
		if m := sigRe.FindStringSubmatch(line); m != nil {
			sig, ok := buildSignal(m)
			switch {
			case !ok:
				st.Ignored++
			case cur == nil:
				st.Orphans++
			default:
				cur.AddSignal(sig)
				db.indexSignal(sig.Name, cur.CANID)
				st.Signals++
			}
			continue
		}
		if m := valRe.FindStringSubmatch(line); m != nil {
			if attachValueTable(db, m) {
				st.ValueTables++
			} else {
				st.Ignored++
			}
			continue
		}
		st.Ignored++
	}
	if err := sc.Err(); err != nil {
		return nil, st, fmt.Errorf("dbc: read: %w", err)
	}
	return db, st, nil
}

// ParseFile opens and parses a single database file.
func ParseFile(path string) (*Database, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("dbc: open: %w", err)
	}
	defer f.Close()
	db, st, err := Parse(f)
	if err != nil {
		return nil, st, fmt.Errorf("dbc: parse %s: %w", path, err)
	}
	return db, st, nil
}

// parseMessage handles a line that opens a message scope. A line that names an
// id but fails the full grammar closes the current scope without opening a new
// one, so following signals cannot attach to an unrelated message.
func parseMessage(db *Database, line string, st *Stats) *Message {
	m := msgRe.FindStringSubmatch(line)
	if m == nil {
		st.Ignored++
		return nil
	}
	id, err1 := strconv.ParseUint(m[1], 10, 32)
	dlc, err2 := strconv.ParseUint(m[3], 10, 8)
	if err1 != nil || err2 != nil {
		st.Ignored++
		return nil
	}
	msg := NewMessage(uint32(id), m[2], uint8(dlc), m[4])
	db.AddMessage(msg)
	st.Messages++
	return msg
}

func buildSignal(m []string) (*Signal, bool) {
	start, err1 := strconv.ParseUint(m[2], 10, 16)
	length, err2 := strconv.ParseUint(m[3], 10, 8)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	scale, err1 := parseFloat(m[6])
	offset, err2 := parseFloat(m[7])
	minV, err3 := parseFloat(m[8])
	maxV, err4 := parseFloat(m[9])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return nil, false
	}
	order := Motorola
	if m[4] == "1" {
		order = Intel
	}
	return &Signal{
		Name:     m[1],
		StartBit: uint16(start),
		Length:   uint8(length),
		Order:    order,
		Signed:   m[5] == "-",
		Scale:    scale,
		Offset:   offset,
		Min:      minV,
		Max:      maxV,
		Unit:     m[10],
		Receiver: m[11],
	}, true
}

// parseFloat trims the slack the loose bracket groups allow before converting.
func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// attachValueTable stores the enumeration labels of a value-table line on the
// signal it names. Reports false when the id or signal is unknown.
func attachValueTable(db *Database, m []string) bool {
	id, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return false
	}
	msg, ok := db.Message(uint32(id))
	if !ok {
		return false
	}
	sig, ok := msg.Signal(m[2])
	if !ok {
		return false
	}
	pairs := valPairRe.FindAllStringSubmatch(m[3], -1)
	labels := make([]ValueLabel, 0, len(pairs))
	for _, p := range pairs {
		raw, err := strconv.ParseUint(p[1], 10, 64)
		if err != nil {
			continue
		}
		labels = append(labels, ValueLabel{Raw: raw, Label: p[2]})
	}
	sig.Values = labels
	return true
}
