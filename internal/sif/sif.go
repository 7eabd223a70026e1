// Package sif reads the metadata of Somat eDAQ measurement files.
//
// A measurement file opens with an INI-like text region listing the
// hardware items and recorded channels, followed by a proprietary binary
// sample region. No marker separates the two; the boundary is located
// heuristically by scanning for the first NUL-dense window. The binary
// region is exposed as-is, undecoded.
package sif

// CANInterface is one [HardItem_N] block configured as a CAN port.
type CANInterface struct {
	Name      string
	BaudRate  int
	Databases []string
	NodeName  string
	Passive   bool
}

// Channel is one [ChanItem_N] sensor channel block.
type Channel struct {
	Name         string
	Type         string
	Units        string
	SampleRate   int
	FSMin        float64
	FSMax        float64
	CalSlope     float64
	CalIntercept float64
	Connector    string
	Prefix       string
}

// File is the decoded metadata of a measurement file plus its binary tail.
// Fields that the text region does not state hold their documented defaults.
type File struct {
	Version          string
	FileVersion      string
	MasterSampleRate int
	Interfaces       []CANInterface
	Channels         []Channel
	Metadata         map[string]string

	// DataOffset is where the binary region starts; Binary aliases the
	// input from that offset on.
	DataOffset int
	Binary     []byte
}

// MaxSampleRate returns the highest channel sample rate, at least 1.
func (f *File) MaxSampleRate() int {
	rate := 1
	for _, ch := range f.Channels {
		if ch.SampleRate > rate {
			rate = ch.SampleRate
		}
	}
	return rate
}

// QualifiedName returns the channel name with its prefix applied.
func (c *Channel) QualifiedName() string {
	if c.Prefix == "" {
		return c.Name
	}
	return c.Prefix + "." + c.Name
}
