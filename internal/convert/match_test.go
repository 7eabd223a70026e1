package convert

import (
	"strings"
	"testing"

	"github.com/edaq-tools/sif2blf/internal/sif"
)

func TestNameVariants(t *testing.T) {
	got := nameVariants("Oil_Temp")
	want := [4]string{"Oil_Temp", "OilTemp", "OIL_TEMP", "oil_temp"}
	if got != want {
		t.Fatalf("variants = %v", got)
	}
}

func TestResolveChannel_DatabaseOrderBeatsExactness(t *testing.T) {
	// The first database matches only through a case variant; a later one
	// holds the exact name. Load order still decides.
	lower := parseDBC(t, "BO_ 1 A: 8 X\n SG_ enginerpm : 0|8@1+ (1,0) [0|0] \"\" X\n")
	exact := parseDBC(t, "BO_ 2 B: 8 X\n SG_ EngineRPM : 0|8@1+ (1,0) [0|0] \"\" X\n")
	dbs := []Database{{Name: "first", DB: lower}, {Name: "second", DB: exact}}

	m, msg, ok := resolveChannel("EngineRPM", dbs)
	if !ok || m.Database != "first" || m.Signal != "enginerpm" || msg.CANID != 1 {
		t.Fatalf("mapping = %+v", m)
	}
}

func TestResolveChannel_ExactBeforeVariantsInOneDatabase(t *testing.T) {
	db := parseDBC(t, strings.Join([]string{
		"BO_ 1 A: 8 X",
		" SG_ ENGINERPM : 0|8@1+ (1,0) [0|0] \"\" X",
		"BO_ 2 B: 8 X",
		" SG_ EngineRPM : 0|8@1+ (1,0) [0|0] \"\" X",
		"",
	}, "\n"))
	m, _, ok := resolveChannel("EngineRPM", []Database{{Name: "db", DB: db}})
	if !ok || m.Signal != "EngineRPM" || m.CANID != 2 {
		t.Fatalf("mapping = %+v", m)
	}
}

func TestBlfChannel(t *testing.T) {
	ifaces := []sif.CANInterface{
		{Name: "CAN_1", Databases: []string{"Chassis"}},
		{Name: "CAN_2", Databases: []string{"Body", "Powertrain"}},
	}
	if got := blfChannel("Powertrain", ifaces, nil); got != 2 {
		t.Fatalf("Powertrain = %d", got)
	}
	if got := blfChannel("Chassis", ifaces, nil); got != 1 {
		t.Fatalf("Chassis = %d", got)
	}
	if got := blfChannel("Unlisted", ifaces, nil); got != 1 {
		t.Fatalf("fallback = %d", got)
	}
	if got := blfChannel("Chassis", ifaces, map[string]uint16{"Chassis": 9}); got != 9 {
		t.Fatalf("pinned = %d", got)
	}
}

func TestBuildBindings_Unmatched(t *testing.T) {
	file := testFile(nil)
	bindings, unmatched, err := buildBindings(file, []Database{{Name: "PT", DB: parseDBC(t, testDBC)}}, nil)
	if err != nil {
		t.Fatalf("buildBindings: %v", err)
	}
	if len(bindings) != 4 || bindings[3] != nil {
		t.Fatalf("bindings = %+v", bindings)
	}
	if bindings[0] == nil || bindings[0].mapping.Signal != "EngineRPM" {
		t.Fatalf("binding 0 = %+v", bindings[0])
	}
	if bindings[1] == nil || bindings[1].mapping.Signal != "OilTemp" {
		t.Fatalf("binding 1 = %+v", bindings[1])
	}
	if bindings[2] == nil || bindings[2].mapping.Signal != "DOORSTATE" {
		t.Fatalf("binding 2 = %+v", bindings[2])
	}
	if len(unmatched) != 1 || unmatched[0] != "WheelSpeed" {
		t.Fatalf("unmatched = %v", unmatched)
	}
}
