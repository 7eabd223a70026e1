package sif

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

const (
	// Boundary heuristic: the binary region starts at the first window
	// holding a majority of NUL bytes.
	boundaryWindow = 1024
	boundaryStride = 256
	boundaryScan   = 4096

	// defaultMasterRate is assumed when the header omits MasterSampleRate.
	defaultMasterRate = 100000
)

const floatPat = `[-+]?\d*\.?\d+(?:[eE][-+]?\d+)?`

var (
	hardItemRe  = regexp.MustCompile(`\[HardItem_\d+\]`)
	chanItemRe  = regexp.MustCompile(`\[ChanItem_\d+\]`)
	hardBreakRe = regexp.MustCompile(`\[(?:HardItem|ChanItem)_`)
	chanBreakRe = regexp.MustCompile(`\[(?:ChanItem|DataItem)_`)

	ifaceIDRe  = regexp.MustCompile(`ID=(\w+)`)
	baudRe     = regexp.MustCompile(`BaudRate_1=(\d+)`)
	databaseRe = regexp.MustCompile(`DataBase_\d+_\d+=(\w+)`)
	nodeNameRe = regexp.MustCompile(`NodeName=([\d.]+)`)
	passiveRe  = regexp.MustCompile(`PassiveMode_1=(\d)`)

	chanIDRe    = regexp.MustCompile(`ID_1=(\w+)`)
	chanTypeRe  = regexp.MustCompile(`Type_1=(\w+)`)
	unitsRe     = regexp.MustCompile(`Units_1=([^\n]+)`)
	rateRe      = regexp.MustCompile(`SampleRate=(\d+)`)
	fsMinRe     = regexp.MustCompile(`FS_Min_1=(` + floatPat + `)`)
	fsMaxRe     = regexp.MustCompile(`FS_Max_1=(` + floatPat + `)`)
	slopeRe     = regexp.MustCompile(`CalSlope=(` + floatPat + `)`)
	interceptRe = regexp.MustCompile(`CalIntercept=(` + floatPat + `)`)
	connectorRe = regexp.MustCompile(`Connector=([^\n]+)`)
	prefixRe    = regexp.MustCompile(`Prefix=([^\n]+)`)
)

var metaKeys = []struct {
	key string
	re  *regexp.Regexp
}{
	{"TCEVersion", regexp.MustCompile(`TCEVersion=(.+)`)},
	{"FileVersion", regexp.MustCompile(`FileVersion=(.+)`)},
	{"MasterSampleRate", regexp.MustCompile(`MasterSampleRate=(\d+)`)},
	{"NumChanItems", regexp.MustCompile(`NumChanItems=(\d+)`)},
	{"NumHardItems", regexp.MustCompile(`NumHardItems=(\d+)`)},
}

// ParseFile reads and parses one measurement file.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sif: read: %w", err)
	}
	return Parse(data), nil
}

// Parse decodes the text region of data and returns the metadata together
// with the untouched binary tail. Parsing is permissive: absent or
// undecodable fields fall back to their defaults, never to an error.
func Parse(data []byte) *File {
	end := findTextEnd(data)
	text := strings.ToValidUTF8(string(data[:end]), "�")

	f := &File{
		Version:          "unknown",
		FileVersion:      "unknown",
		MasterSampleRate: defaultMasterRate,
		Metadata:         make(map[string]string),
		DataOffset:       end,
		Binary:           data[end:],
	}
	for _, mk := range metaKeys {
		if m := mk.re.FindStringSubmatch(text); m != nil {
			f.Metadata[mk.key] = strings.TrimSpace(m[1])
		}
	}
	if v, ok := f.Metadata["TCEVersion"]; ok {
		f.Version = v
	}
	if v, ok := f.Metadata["FileVersion"]; ok {
		f.FileVersion = v
	}
	if v, ok := f.Metadata["MasterSampleRate"]; ok {
		f.MasterSampleRate = atoiOr(v, defaultMasterRate)
	}
	f.Interfaces = parseInterfaces(text)
	f.Channels = parseChannels(text)
	return f
}

// findTextEnd locates the text/binary boundary. It walks fixed-size windows
// until one is more than half NUL bytes, then backs up to the nearest blank
// line at or before that window. Without a NUL-dense window the first 80%
// of the file counts as text.
func findTextEnd(data []byte) int {
	for i := 0; i < len(data)-boundaryWindow; i += boundaryStride {
		nulls := bytes.Count(data[i:i+boundaryWindow], []byte{0})
		if 2*nulls <= boundaryWindow {
			continue
		}
		lo := i - boundaryScan
		if lo < 0 {
			lo = 0
		}
		for j := i; j > lo; j-- {
			if data[j] == '\n' && data[j+1] == '\n' {
				return j + 2
			}
		}
		return i
	}
	return len(data) * 4 / 5
}

// sections returns each block opened by headRe, running through the text
// until the next header matched by breakRe or the end of the region.
func sections(text string, headRe, breakRe *regexp.Regexp) []string {
	var out []string
	for _, loc := range headRe.FindAllStringIndex(text, -1) {
		rest := text[loc[1]:]
		end := len(rest)
		if m := breakRe.FindStringIndex(rest); m != nil {
			end = m[0]
		}
		out = append(out, text[loc[0]:loc[1]+end])
	}
	return out
}

func parseInterfaces(text string) []CANInterface {
	var out []CANInterface
	for _, sec := range sections(text, hardItemRe, hardBreakRe) {
		if !strings.Contains(sec, "VBM_HardInterface=CAN") &&
			!strings.Contains(sec, "HardInterface_1=CAN") {
			continue
		}
		id := ifaceIDRe.FindStringSubmatch(sec)
		baud := baudRe.FindStringSubmatch(sec)
		if id == nil || baud == nil {
			continue
		}
		iface := CANInterface{
			Name:     id[1],
			BaudRate: atoiOr(baud[1], 0),
			NodeName: "unknown",
			Passive:  true,
		}
		for _, m := range databaseRe.FindAllStringSubmatch(sec, -1) {
			iface.Databases = append(iface.Databases, m[1])
		}
		if m := nodeNameRe.FindStringSubmatch(sec); m != nil {
			iface.NodeName = m[1]
		}
		if m := passiveRe.FindStringSubmatch(sec); m != nil {
			iface.Passive = m[1] != "0"
		}
		out = append(out, iface)
	}
	return out
}

func parseChannels(text string) []Channel {
	var out []Channel
	for _, sec := range sections(text, chanItemRe, chanBreakRe) {
		id := chanIDRe.FindStringSubmatch(sec)
		if id == nil {
			continue
		}
		ch := Channel{
			Name:       id[1],
			Type:       "Unknown",
			SampleRate: 1,
			FSMax:      1,
			CalSlope:   1,
		}
		if m := chanTypeRe.FindStringSubmatch(sec); m != nil {
			ch.Type = m[1]
		}
		if m := unitsRe.FindStringSubmatch(sec); m != nil {
			ch.Units = strings.TrimSpace(m[1])
		}
		if m := rateRe.FindStringSubmatch(sec); m != nil {
			ch.SampleRate = atoiOr(m[1], 1)
		}
		if m := fsMinRe.FindStringSubmatch(sec); m != nil {
			ch.FSMin = floatOr(m[1], 0)
		}
		if m := fsMaxRe.FindStringSubmatch(sec); m != nil {
			ch.FSMax = floatOr(m[1], 1)
		}
		if m := slopeRe.FindStringSubmatch(sec); m != nil {
			ch.CalSlope = floatOr(m[1], 1)
		}
		if m := interceptRe.FindStringSubmatch(sec); m != nil {
			ch.CalIntercept = floatOr(m[1], 0)
		}
		if m := connectorRe.FindStringSubmatch(sec); m != nil {
			ch.Connector = strings.TrimSpace(m[1])
		}
		if m := prefixRe.FindStringSubmatch(sec); m != nil {
			ch.Prefix = strings.TrimSpace(m[1])
		}
		out = append(out, ch)
	}
	return out
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func floatOr(s string, def float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}
