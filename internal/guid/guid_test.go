package guid

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestDeriveGolden(t *testing.T) {
	// These values are stored in project files; changing them breaks every
	// existing reference.
	tests := []struct {
		container string
		sub       int64
		want      string
	}{
		{"00000000000000000000000000000000", 0, "[143505B6644B4324]"},
		{"5f2d1c3e8a4b4c6d9e0f1a2b3c4d5e6f", 0, "[1B6A075DEE3A0393]"},
		{"5f2d1c3e8a4b4c6d9e0f1a2b3c4d5e6f", 1, "[34B213AC03528EF4]"},
		{"5f2d1c3e8a4b4c6d9e0f1a2b3c4d5e6f", -1, "[21F7653CEFF8D792]"},
		{"a1b2c3d4e5f60718293a4b5c6d7e8f90", 114350, "[1212386559895FE2]"},
	}
	for _, tc := range tests {
		c := uuid.MustParse(tc.container)
		if got := Format(Derive(c, tc.sub)); got != tc.want {
			t.Errorf("Derive(%s, %d) = %s, want %s", tc.container, tc.sub, got, tc.want)
		}
	}
}

func TestDeriveProperties(t *testing.T) {
	seen := make(map[AssetGuid]string)
	for i := 0; i < 200; i++ {
		c := uuid.New()
		for _, sub := range []int64{PrimarySubID, 1, 2, 1 << 40, -7} {
			id := Derive(c, sub)
			if id != Derive(c, sub) {
				t.Fatalf("Derive(%s, %d) not stable", c, sub)
			}
			if !id.IsCatalogID() {
				t.Fatalf("Derive(%s, %d) = %s carries reserved bits or is invalid", c, sub, id)
			}
			key := c.String()
			if prev, ok := seen[id]; ok {
				t.Fatalf("collision between %s and %s/%d", prev, key, sub)
			}
			seen[id] = key
		}
	}
}

func TestDerivePrimaryDiffersFromNested(t *testing.T) {
	c := uuid.MustParse("5f2d1c3e8a4b4c6d9e0f1a2b3c4d5e6f")
	if Derive(c, 0) == Derive(c, 1) {
		t.Fatal("primary and first nested object share an id")
	}
}

func TestForRuntime(t *testing.T) {
	id := ForRuntime("Bullet", "EntityPrototype")
	if got, want := Format(id), "[62CD585A7A7A866C]"; got != want {
		t.Errorf("ForRuntime = %s, want %s", got, want)
	}
	if !id.IsDynamic() {
		t.Error("runtime id should carry FlagDynamic")
	}
	if id.IsCatalogID() {
		t.Error("runtime id must not be a catalog id")
	}
	if ForRuntime("Bullet", "EntityPrototype") != id {
		t.Error("ForRuntime not stable")
	}
	if ForRuntime("Bullet", "Other") == id {
		t.Error("kind should contribute to runtime id")
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	ids := []AssetGuid{1, 0x0123456789ABCDEF, 0x3FFFFFFFFFFFFFFF, FlagDynamic | 5}
	for i := 0; i < 100; i++ {
		ids = append(ids, Derive(uuid.New(), int64(i)))
	}
	for _, id := range ids {
		got, err := Parse(Format(id))
		if err != nil {
			t.Fatalf("Parse(Format(%d)) error: %v", uint64(id), err)
		}
		if got != id {
			t.Fatalf("round trip %d -> %d", uint64(id), uint64(got))
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    AssetGuid
		wantErr bool
	}{
		{"[0123456789ABCDEF]", 0x0123456789ABCDEF, false},
		{"  [0123456789abcdef]\n", 0x0123456789ABCDEF, false},
		{"0123456789abcdef", 0x0123456789ABCDEF, false},
		{"0x1F", 0x1F, false},
		{"[0]", 0, false},
		{"", 0, true},
		{"[]", 0, true},
		{"[", 0, true},
		{"]", 0, true},
		{"[12", 0, true},
		{"[0123456789ABCDEF0]", 0, true},
		{"[XYZ]", 0, true},
		{"[-1]", 0, true},
		{"[12 34]", 0, true},
		{"garbage \x00\xff", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Parse(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %s, want error", tc.in, got)
				}
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("error %v does not wrap ErrMalformed", err)
				}
				var pe *ParseError
				if !errors.As(err, &pe) || pe.Input != tc.in {
					t.Errorf("expected *ParseError carrying input, got %#v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("Parse(%q) = %d, want %d", tc.in, uint64(got), uint64(tc.want))
			}
		})
	}
}

func FuzzParse(f *testing.F) {
	f.Add("[0123456789ABCDEF]")
	f.Add("]]][[[")
	f.Add("0x")
	f.Fuzz(func(t *testing.T, s string) {
		id, err := Parse(s)
		if err != nil {
			return
		}
		if back, err := Parse(Format(id)); err != nil || back != id {
			t.Fatalf("reparse of %q failed: %v", s, err)
		}
	})
}

func TestContainerID(t *testing.T) {
	c, err := ParseContainerID("5f2d1c3e8a4b4c6d9e0f1a2b3c4d5e6f")
	if err != nil {
		t.Fatalf("ParseContainerID: %v", err)
	}
	if got := FormatContainerID(c); got != "5f2d1c3e8a4b4c6d9e0f1a2b3c4d5e6f" {
		t.Errorf("FormatContainerID = %s", got)
	}
	dashed, err := ParseContainerID("5f2d1c3e-8a4b-4c6d-9e0f-1a2b3c4d5e6f")
	if err != nil || dashed != c {
		t.Errorf("dashed form: %v %v", dashed, err)
	}
	if _, err := ParseContainerID("nope"); err == nil {
		t.Error("expected error for bad container id")
	}
}

func TestTextMarshaling(t *testing.T) {
	id := AssetGuid(0xABC)
	b, err := id.MarshalText()
	if err != nil || string(b) != "[0000000000000ABC]" {
		t.Fatalf("MarshalText = %q, %v", b, err)
	}
	var back AssetGuid
	if err := back.UnmarshalText(b); err != nil || back != id {
		t.Fatalf("UnmarshalText = %v, %v", back, err)
	}
	if err := back.UnmarshalText([]byte("nope")); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
