package security

import (
	"strconv"
	"testing"
)

func TestParseSnowflake(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid id", "175928847299117063", false},
		{"small id", "1", false},
		{"empty", "", true},
		{"zero", "0", true},
		{"letters", "12a34", true},
		{"negative", "-123", true},
		{"overflow", "99999999999999999999999", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSnowflake(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSnowflake(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestSnowflake_NodeRange(t *testing.T) {
	if _, err := NewSnowflake(-1); err == nil {
		t.Error("expected error for negative node")
	}
	if _, err := NewSnowflake(1024); err == nil {
		t.Error("expected error for node > 1023")
	}
	if _, err := NewSnowflake(0); err != nil {
		t.Errorf("unexpected error for node 0: %v", err)
	}
}

func TestSnowflake_UniqueAndOrdered(t *testing.T) {
	gen, err := NewSnowflake(3)
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool, 5000)
	var prev int64
	for i := 0; i < 5000; i++ {
		id := gen.Next()
		if seen[id] {
			t.Fatalf("duplicate id %s at iteration %d", id, i)
		}
		seen[id] = true

		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			t.Fatalf("id %s is not a valid int64: %v", id, err)
		}
		if n <= prev {
			t.Fatalf("ids not monotonically increasing: %d after %d", n, prev)
		}
		prev = n

		// parses with our own validator
		if _, err := ParseSnowflake(id); err != nil {
			t.Fatalf("generated id %s rejected by ParseSnowflake: %v", id, err)
		}
	}
}

func TestSnowflake_EncodesNode(t *testing.T) {
	gen, _ := NewSnowflake(42)
	id, _ := strconv.ParseInt(gen.Next(), 10, 64)
	if node := (id >> 12) & 0x3FF; node != 42 {
		t.Errorf("expected node 42 in id, got %d", node)
	}
}
