package printer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thereceipt/order-printer/internal/execx"
	"github.com/thereceipt/order-printer/internal/logging"
)

const lpstatP = `printer EPSON_TM_T20 is idle.  enabled since Thu 16 Oct 2026 10:00:00 AM -03
printer HP_Office disabled since Thu 16 Oct 2026 09:00:00 AM -03 -
	Paused
printer Kitchen is idle.  enabled since Thu 16 Oct 2026 10:00:00 AM -03
`

const lpstatPPortuguese = `impressora Balcao está inativa.  ativada desde qui 16 out 2026 10:00:00
impressora Cozinha desativada desde qui 16 out 2026 09:00:00 -
`

func newTestDiscoverer(f *execx.Fake, usb []Device) *Discoverer {
	d := NewDiscoverer(f, DiscoveryOptions{}, logging.Discard())
	d.usbScan = func() []Device { return usb }
	return d
}

func TestParsePrinterStatus_English(t *testing.T) {
	entries := parsePrinterStatus(lpstatP)
	if len(entries) != 3 {
		t.Fatalf("Expected 3 printers, got %d: %+v", len(entries), entries)
	}
	if entries[0].name != "EPSON_TM_T20" || entries[0].disabled {
		t.Errorf("Unexpected first entry: %+v", entries[0])
	}
	if entries[1].name != "HP_Office" || !entries[1].disabled {
		t.Errorf("Expected HP_Office disabled, got %+v", entries[1])
	}
}

func TestParsePrinterStatus_PortugueseIdleIsNotDisabled(t *testing.T) {
	entries := parsePrinterStatus(lpstatPPortuguese)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 printers, got %d", len(entries))
	}
	if entries[0].name != "Balcao" || entries[0].disabled {
		t.Errorf("Expected idle Balcao to be enabled, got %+v", entries[0])
	}
	if entries[1].name != "Cozinha" || !entries[1].disabled {
		t.Errorf("Expected Cozinha disabled, got %+v", entries[1])
	}
}

func TestParseDefaultDestination(t *testing.T) {
	cases := map[string]string{
		"system default destination: EPSON_TM_T20\n": "EPSON_TM_T20",
		"destino padrão do sistema: Cozinha\n":        "Cozinha",
		"no system default destination\n":             "",
	}
	for in, want := range cases {
		if got := parseDefaultDestination(in); got != want {
			t.Errorf("parseDefaultDestination(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectAllPrinters_SystemAndUSB(t *testing.T) {
	f := execx.NewFake().
		Handle("lpstat", func(args []string) ([]byte, error) {
			switch args[0] {
			case "-p":
				return []byte(lpstatP), nil
			case "-d":
				return []byte("system default destination: Kitchen\n"), nil
			case "-a":
				return []byte("EPSON_TM_T20 accepting requests since Thu\nKitchen not accepting requests since Thu -\n"), nil
			}
			return nil, errors.New("unexpected")
		})
	usb := []Device{{ID: "usb_lp0", DisplayName: "lp0", Kind: KindUSB, Status: StatusOnline, DevicePath: "/dev/usb/lp0"}}

	devices := newTestDiscoverer(f, usb).DetectAllPrinters(context.Background())
	if len(devices) != 4 {
		t.Fatalf("Expected 4 devices, got %d: %+v", len(devices), devices)
	}

	byID := map[string]Device{}
	for _, d := range devices {
		byID[d.ID] = d
	}

	hp := byID["system_HP_Office"]
	if hp.Status != StatusInactive || !hp.CanActivate {
		t.Errorf("Expected HP_Office inactive and activatable, got %+v", hp)
	}
	kitchen := byID["system_Kitchen"]
	if !kitchen.IsDefault || kitchen.Status != StatusOffline || kitchen.CanActivate {
		t.Errorf("Expected Kitchen default/offline, got %+v", kitchen)
	}
	if byID["system_EPSON_TM_T20"].Status != StatusOnline {
		t.Errorf("Expected EPSON online")
	}
	if devices[3].ID != "usb_lp0" {
		t.Errorf("Expected USB device after system printers, got %s", devices[3].ID)
	}
}

func TestDetectAllPrinters_ScanFailureDegrades(t *testing.T) {
	f := execx.NewFake().Fail("lpstat", errors.New("lpstat: command not found"))
	usb := []Device{{ID: "usb_lp0", DisplayName: "lp0", Kind: KindUSB, Status: StatusError}}

	devices := newTestDiscoverer(f, usb).DetectAllPrinters(context.Background())
	if len(devices) != 1 || devices[0].ID != "usb_lp0" {
		t.Fatalf("Expected only the USB device, got %+v", devices)
	}

	empty := newTestDiscoverer(f, nil).DetectAllPrinters(context.Background())
	if len(empty) != 0 {
		t.Fatalf("Expected empty catalog, got %+v", empty)
	}
}

func TestDetectAllPrinters_Idempotent(t *testing.T) {
	f := execx.NewFake().Handle("lpstat", func(args []string) ([]byte, error) {
		if args[0] == "-p" {
			return []byte(lpstatP), nil
		}
		return nil, nil
	})
	d := newTestDiscoverer(f, []Device{{ID: "usb_lp0", DisplayName: "lp0", Kind: KindUSB}})

	first := d.DetectAllPrinters(context.Background())
	second := d.DetectAllPrinters(context.Background())
	if len(first) != len(second) {
		t.Fatalf("Expected same size, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("Mismatch at %d: %s != %s", i, first[i].ID, second[i].ID)
		}
	}
	for _, c := range f.Calls() {
		if c.Name != "lpstat" {
			t.Errorf("Discovery must only query, got %s", c.Line())
		}
	}
}

func TestDedupe_OneEntryPerNameAndKind(t *testing.T) {
	in := []Device{
		{ID: "system_EPSON", DisplayName: "EPSON", Kind: KindSystem, Status: StatusOnline},
		{ID: "usb_EPSON", DisplayName: "EPSON", Kind: KindUSB},
		{ID: "system_EPSON_dup", DisplayName: "EPSON", Kind: KindSystem, Status: StatusError},
		{ID: "system_epson", DisplayName: "epson", Kind: KindSystem},
	}
	out := Dedupe(in)
	if len(out) != 3 {
		t.Fatalf("Expected 3 entries, got %d: %+v", len(out), out)
	}
	if out[0].Status != StatusOnline {
		t.Errorf("Expected first-seen entry to win, got %+v", out[0])
	}
}

func TestDiscoverer_ChangeCallbacks(t *testing.T) {
	f := execx.NewFake().Fail("lpstat", errors.New("none"))
	usb := []Device{{ID: "usb_lp0", DisplayName: "lp0", Kind: KindUSB}}
	d := newTestDiscoverer(f, usb)

	var added, removed []string
	d.OnPrinterAdded(func(p Device) { added = append(added, p.ID) })
	d.OnPrinterRemoved(func(p Device) { removed = append(removed, p.ID) })

	d.DetectAllPrinters(context.Background())
	d.usbScan = func() []Device { return nil }
	d.DetectAllPrinters(context.Background())

	if len(added) != 1 || added[0] != "usb_lp0" {
		t.Errorf("Expected usb_lp0 added, got %v", added)
	}
	if len(removed) != 1 || removed[0] != "usb_lp0" {
		t.Errorf("Expected usb_lp0 removed, got %v", removed)
	}
}

func TestSystemName(t *testing.T) {
	name, err := SystemName("system_Kitchen Printer")
	if err != nil || name != "Kitchen Printer" {
		t.Errorf("Unexpected result %q, %v", name, err)
	}
	if _, err := SystemName("usb_lp0"); !errors.Is(err, ErrNotSystemPrinter) {
		t.Errorf("Expected ErrNotSystemPrinter, got %v", err)
	}
	if _, err := SystemName("system_"); !errors.Is(err, ErrNotSystemPrinter) {
		t.Errorf("Expected ErrNotSystemPrinter for empty name, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Device{
		{ID: "system_A", DisplayName: "A", Status: StatusOnline, IsDefault: true},
		{ID: "system_B", DisplayName: "B", Status: StatusInactive},
		{ID: "usb_lp0", DisplayName: "lp0", Status: StatusError},
	})
	if s.TotalPrinters != 3 || s.ActivePrinters != 1 {
		t.Errorf("Unexpected counts %+v", s)
	}
	if s.DefaultPrinter == nil || *s.DefaultPrinter != "A" {
		t.Errorf("Expected default A, got %v", s.DefaultPrinter)
	}
	if len(s.Inactive) != 1 || s.Inactive[0] != "system_B" {
		t.Errorf("Unexpected inactive list %v", s.Inactive)
	}
}

type countingCatalog struct {
	calls chan struct{}
}

func (c countingCatalog) DetectAllPrinters(context.Context) []Device {
	select {
	case c.calls <- struct{}{}:
	default:
	}
	return nil
}

func TestWatcher_PollsUntilStopped(t *testing.T) {
	c := countingCatalog{calls: make(chan struct{}, 8)}
	w := NewWatcher(c, 5*time.Millisecond, logging.Discard())
	w.Start(context.Background())

	for i := 0; i < 3; i++ {
		select {
		case <-c.calls:
		case <-time.After(time.Second):
			t.Fatalf("Expected discovery call %d", i+1)
		}
	}
	w.Stop()

	for len(c.calls) > 0 {
		<-c.calls
	}
	time.Sleep(20 * time.Millisecond)
	if len(c.calls) != 0 {
		t.Error("Expected no discovery after Stop")
	}
}
