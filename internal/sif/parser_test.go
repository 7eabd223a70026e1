package sif

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const happyMeta = `TCEVersion=3.21.1
FileVersion=2.0
MasterSampleRate=100000
NumHardItems=4
NumChanItems=3
[HardItem_1]
ID=MPB
VBM_HardInterface=Processor
[HardItem_2]
ID=CAN_1
VBM_HardInterface=CAN
BaudRate_1=500000
DataBase_1_1=Powertrain
DataBase_1_2=Chassis
NodeName=10.0.0.5
PassiveMode_1=1
[HardItem_3]
ID=CAN_2
HardInterface_1=CAN
BaudRate_1=250000
DataBase_2_1=Body
PassiveMode_1=0
[HardItem_4]
ID=CAN_3
HardInterface_1=CAN
[ChanItem_1]
ID_1=EngineRPM
Type_1=Velocity
Units_1=rpm
SampleRate=1000
FS_Min_1=0
FS_Max_1=8000
CalSlope=1.0
CalIntercept=0.0
Connector=J1
Prefix=eng
[ChanItem_2]
ID_1=OilTemp
Type_1=Temperature
Units_1=deg C
SampleRate=100
FS_Min_1=-40.0
FS_Max_1=215.0
CalSlope=0.5
CalIntercept=10
Connector=J2
[ChanItem_3]
ID_1=Bare
[DataItem_1]
Fmt=bin
`

// buildHappy lays the fixture out so the text region ends on a blank line at
// byte 2048, followed by 1 KiB of NUL-free junk and then the NUL-dense
// region. The first majority-NUL window then back-scans onto the blank line.
func buildHappy(t *testing.T) []byte {
	t.Helper()
	if len(happyMeta) > 2046 {
		t.Fatalf("fixture grew to %d bytes", len(happyMeta))
	}
	text := happyMeta + strings.Repeat("#", 2046-len(happyMeta)) + "\n\n"
	data := append([]byte(text), bytes.Repeat([]byte{0xAA}, 1024)...)
	return append(data, make([]byte, 2048)...)
}

func TestParse_Boundary(t *testing.T) {
	f := Parse(buildHappy(t))
	if f.DataOffset != 2048 {
		t.Fatalf("DataOffset = %d, want 2048", f.DataOffset)
	}
	if len(f.Binary) != 1024+2048 || f.Binary[0] != 0xAA {
		t.Fatalf("binary region %d bytes, first % X", len(f.Binary), f.Binary[0])
	}
}

func TestParse_Metadata(t *testing.T) {
	f := Parse(buildHappy(t))
	if f.Version != "3.21.1" || f.FileVersion != "2.0" {
		t.Fatalf("versions = %q / %q", f.Version, f.FileVersion)
	}
	if f.MasterSampleRate != 100000 {
		t.Fatalf("MasterSampleRate = %d", f.MasterSampleRate)
	}
	if f.Metadata["NumHardItems"] != "4" || f.Metadata["NumChanItems"] != "3" {
		t.Fatalf("item counts = %v", f.Metadata)
	}
}

func TestParse_CANInterfaces(t *testing.T) {
	f := Parse(buildHappy(t))
	// MPB is not a CAN item, CAN_3 lacks a baud rate.
	if len(f.Interfaces) != 2 {
		t.Fatalf("interfaces = %+v", f.Interfaces)
	}
	one := f.Interfaces[0]
	if one.Name != "CAN_1" || one.BaudRate != 500000 {
		t.Fatalf("iface 0 = %+v", one)
	}
	if len(one.Databases) != 2 || one.Databases[0] != "Powertrain" || one.Databases[1] != "Chassis" {
		t.Fatalf("iface 0 databases = %v", one.Databases)
	}
	if one.NodeName != "10.0.0.5" || !one.Passive {
		t.Fatalf("iface 0 = %+v", one)
	}
	two := f.Interfaces[1]
	if two.Name != "CAN_2" || two.BaudRate != 250000 || two.Passive {
		t.Fatalf("iface 1 = %+v", two)
	}
	if len(two.Databases) != 1 || two.Databases[0] != "Body" || two.NodeName != "unknown" {
		t.Fatalf("iface 1 = %+v", two)
	}
}

func TestParse_Channels(t *testing.T) {
	f := Parse(buildHappy(t))
	if len(f.Channels) != 3 {
		t.Fatalf("channels = %+v", f.Channels)
	}
	rpm := f.Channels[0]
	if rpm.Name != "EngineRPM" || rpm.Type != "Velocity" || rpm.Units != "rpm" {
		t.Fatalf("rpm = %+v", rpm)
	}
	if rpm.SampleRate != 1000 || rpm.FSMin != 0 || rpm.FSMax != 8000 {
		t.Fatalf("rpm = %+v", rpm)
	}
	if rpm.CalSlope != 1 || rpm.CalIntercept != 0 || rpm.Connector != "J1" {
		t.Fatalf("rpm = %+v", rpm)
	}
	if rpm.Prefix != "eng" || rpm.QualifiedName() != "eng.EngineRPM" {
		t.Fatalf("rpm prefix = %q", rpm.Prefix)
	}
	temp := f.Channels[1]
	if temp.Units != "deg C" || temp.SampleRate != 100 || temp.FSMin != -40 || temp.FSMax != 215 {
		t.Fatalf("temp = %+v", temp)
	}
	if temp.CalSlope != 0.5 || temp.CalIntercept != 10 || temp.QualifiedName() != "OilTemp" {
		t.Fatalf("temp = %+v", temp)
	}
	bare := f.Channels[2]
	if bare.Name != "Bare" || bare.Type != "Unknown" || bare.Units != "" {
		t.Fatalf("bare = %+v", bare)
	}
	if bare.SampleRate != 1 || bare.FSMin != 0 || bare.FSMax != 1 || bare.CalSlope != 1 || bare.CalIntercept != 0 {
		t.Fatalf("bare defaults = %+v", bare)
	}
	if f.MaxSampleRate() != 1000 {
		t.Fatalf("MaxSampleRate = %d", f.MaxSampleRate())
	}
}

func TestFindTextEnd_BackScanStopsAtEarlierBlank(t *testing.T) {
	// Text runs straight into NULs: the trigger window starts before the
	// text ends, so the back-scan settles on the internal blank line.
	head := strings.Repeat("x", 300) + "\n\n"
	tail := strings.Repeat("y", 700)
	data := append([]byte(head+tail), make([]byte, 3000)...)
	f := Parse(data)
	if f.DataOffset != 302 {
		t.Fatalf("DataOffset = %d, want 302", f.DataOffset)
	}
}

func TestFindTextEnd_NoBlankFallsToWindow(t *testing.T) {
	data := append([]byte(strings.Repeat("z", 1000)), make([]byte, 3000)...)
	if got := findTextEnd(data); got != 512 {
		t.Fatalf("offset = %d, want window start 512", got)
	}
}

func TestFindTextEnd_AllTextFallback(t *testing.T) {
	if got := findTextEnd([]byte(strings.Repeat("m", 2000))); got != 1600 {
		t.Fatalf("offset = %d, want 1600", got)
	}
}

func TestParse_Empty(t *testing.T) {
	f := Parse(nil)
	if f.DataOffset != 0 || len(f.Binary) != 0 {
		t.Fatalf("empty parse = %+v", f)
	}
	if f.Version != "unknown" || f.MasterSampleRate != 100000 {
		t.Fatalf("empty defaults = %+v", f)
	}
	if len(f.Channels) != 0 || len(f.Interfaces) != 0 {
		t.Fatalf("empty parse found items: %+v", f)
	}
	if f.MaxSampleRate() != 1 {
		t.Fatalf("MaxSampleRate = %d", f.MaxSampleRate())
	}
}

func TestParse_InvalidUTF8Replaced(t *testing.T) {
	text := "TCEVersion=3.\xffbeta\n" + strings.Repeat("q", 1000)
	data := append([]byte(text), make([]byte, 3000)...)
	f := Parse(data)
	if f.Version != "3.�beta" {
		t.Fatalf("Version = %q", f.Version)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run1.sif")
	if err := os.WriteFile(path, buildHappy(t), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	f, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if f.DataOffset != 2048 || len(f.Channels) != 3 {
		t.Fatalf("parsed = %+v", f)
	}
	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.sif")); err == nil {
		t.Fatal("missing file did not error")
	}
}
