package emv

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"
)

func TestBuildReadRecordLayouts(t *testing.T) {
	tests := []struct {
		name        string
		command     string
		wantTags    []string
		missingTags []string
	}{
		{
			name:     "Record 1 carries full cardholder data",
			command:  "00B2010C00",
			wantTags: []string{"5A", "5F24", "5F20", "5F30", "57"},
		},
		{
			name:        "Record 2 is track 2 only",
			command:     "00B2020C00",
			wantTags:    []string{"57"},
			missingTags: []string{"5A", "5F20"},
		},
		{
			name:     "Record 3 is issuer data",
			command:  "00B2030C00",
			wantTags: []string{"5F28", "9F42", "9F08"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := BuildReadRecord(tt.command, nil)
			if !result.IsSuccess() {
				t.Fatalf("READ RECORD failed with %s", result.SW.Hex())
			}

			packets := decodeResponse(t, result.Body)
			if len(packets) != 1 || !strings.EqualFold(packets[0].Tag, "70") {
				t.Fatalf("expected a single record (70) template, got %+v", packets)
			}

			for _, tag := range tt.wantTags {
				if _, ok := findTag(packets, tag); !ok {
					t.Errorf("record is missing tag %s", tag)
				}
			}
			for _, tag := range tt.missingTags {
				if _, ok := findTag(packets, tag); ok {
					t.Errorf("record unexpectedly contains tag %s", tag)
				}
			}
		})
	}
}

func TestBuildReadRecordProfileData(t *testing.T) {
	profile := &CardProfile{
		PAN:        "5500005555555559",
		Expiry:     time.Date(2027, time.March, 31, 0, 0, 0, 0, time.UTC),
		HolderName: "Jane Q Cardholder",
	}

	result := BuildReadRecord("00B2010C00", profile)
	if !result.IsSuccess() {
		t.Fatalf("READ RECORD failed with %s", result.SW.Hex())
	}
	packets := decodeResponse(t, result.Body)

	pan, ok := findTag(packets, "5A")
	if !ok {
		t.Fatal("record 1 missing PAN")
	}
	if got := strings.ToUpper(hex.EncodeToString(pan.Value)); got != "5500005555555559" {
		t.Errorf("PAN = %s, want 5500005555555559", got)
	}

	name, ok := findTag(packets, "5F20")
	if !ok {
		t.Fatal("record 1 missing holder name")
	}
	decoded := string(name.Value)
	if len(decoded) != 26 {
		t.Errorf("holder name field is %d chars, want 26", len(decoded))
	}
	if !strings.HasPrefix(decoded, "JANE Q CARDHOLDER") {
		t.Errorf("holder name = %q, want uppercased original", decoded)
	}

	track2, ok := findTag(packets, "57")
	if !ok {
		t.Fatal("record 1 missing track 2")
	}
	if got := strings.ToUpper(hex.EncodeToString(track2.Value)); !strings.Contains(got, "D2703") {
		t.Errorf("track 2 %s does not carry the YYMM expiry after the separator", got)
	}
}

func TestBuildReadRecordFailures(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    StatusWord
	}{
		{"Too short", "00B201", SWWrongLength},
		{"Record zero", "00B2000C00", SWFileNotFound},
		{"Record out of range", "00B2040C00", SWFileNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := BuildReadRecord(tt.command, nil)
			if result.SW != tt.want {
				t.Errorf("BuildReadRecord(%q) SW = %s, want %s", tt.command, result.SW.Hex(), tt.want.Hex())
			}
		})
	}
}
