package addr

import "testing"

func TestMacParseAndString(t *testing.T) {
	m, err := ParseMac("aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.String(); got != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("String() = %q", got)
	}
	if !Broadcast.IsBroadcast() {
		t.Fatal("Broadcast.IsBroadcast() = false")
	}
	if m.IsBroadcast() {
		t.Fatal("unicast mac reported broadcast")
	}
}

func TestMacLessOrdering(t *testing.T) {
	a, _ := ParseMac("00:00:00:00:00:01")
	b, _ := ParseMac("00:00:00:00:00:02")
	if !a.Less(b) {
		t.Fatal("expected a < b")
	}
	if b.Less(a) {
		t.Fatal("expected b >= a")
	}
}

func TestParseMacInvalid(t *testing.T) {
	if _, err := ParseMac("not-a-mac"); err == nil {
		t.Fatal("expected error for malformed mac")
	}
}

func TestIpSameNetwork(t *testing.T) {
	mask, err := MaskFromCidr(24)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, _ := ParseIp("192.168.10.10")
	b, _ := ParseIp("192.168.10.20")
	c, _ := ParseIp("192.168.20.20")

	if !a.SameNetwork(mask, b) {
		t.Fatal("expected a and b to share a /24")
	}
	if a.SameNetwork(mask, c) {
		t.Fatal("expected a and c to be on different /24s")
	}
}

func TestMaskCidrRoundTrip(t *testing.T) {
	for _, cidr := range []int{0, 1, 8, 16, 24, 30, 32} {
		m, err := MaskFromCidr(cidr)
		if err != nil {
			t.Fatalf("MaskFromCidr(%d): %v", cidr, err)
		}
		if got := m.Cidr(); got != cidr {
			t.Fatalf("Cidr() = %d, want %d", got, cidr)
		}
	}
}

func TestMaskFromCidrInvalid(t *testing.T) {
	if _, err := MaskFromCidr(33); err == nil {
		t.Fatal("expected error for cidr > 32")
	}
}
