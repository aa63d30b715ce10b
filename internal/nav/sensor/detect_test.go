package sensor

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/ecoship/internal/serialport"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"ydlidar", KindYDLidar, false},
		{" SIM ", KindSim, false},
		{"http", KindHTTP, false},
		{"auto", KindAuto, false},
		{"sonar", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func listing(ports ...string) func() ([]string, error) {
	return func() ([]string, error) { return ports, nil }
}

func TestDetect(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "ttyUSB9")

	tests := []struct {
		name        string
		opts        Options
		wantKind    Kind
		unavailable bool
	}{
		{"sim", Options{Kind: KindSim}, KindSim, false},
		{"http with url", Options{Kind: KindHTTP, URL: "http://pi.local:8080/lidar/latest"}, KindHTTP, false},
		{"http without url", Options{Kind: KindHTTP}, "", true},
		{"serial listed", Options{Kind: KindYDLidar, Device: "/dev/ttyUSB0", ListPorts: listing("/dev/ttyUSB0")}, KindYDLidar, false},
		{"serial missing", Options{Kind: KindYDLidar, Device: missing, ListPorts: listing("/dev/ttyS0")}, "", true},
		{"serial unconfigured", Options{Kind: KindYDLidar, ListPorts: listing()}, "", true},
		{"auto falls back", Options{Kind: KindAuto, Device: missing, ListPorts: listing()}, KindSim, false},
		{"auto prefers serial", Options{Kind: KindAuto, Device: "/dev/ttyUSB0", ListPorts: listing("/dev/ttyUSB0")}, KindYDLidar, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capa, err := Detect(tt.opts)
			if tt.unavailable {
				if !errors.Is(err, ErrUnavailable) {
					t.Fatalf("expected ErrUnavailable, got %v", err)
				}
				var ue *UnavailableError
				if !errors.As(err, &ue) {
					t.Fatalf("expected *UnavailableError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if capa.Kind != tt.wantKind {
				t.Errorf("expected kind %q, got %q", tt.wantKind, capa.Kind)
			}
		})
	}
}

func TestDetectListError(t *testing.T) {
	boom := errors.New("no sysfs")
	_, err := Detect(Options{
		Kind:      KindYDLidar,
		Device:    "/dev/ttyUSB0",
		ListPorts: func() ([]string, error) { return nil, boom },
	})
	if !errors.Is(err, boom) || !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected error wrapping both the cause and ErrUnavailable, got %v", err)
	}
}

func TestOpenSerialLocksDevice(t *testing.T) {
	lockDir := t.TempDir()
	opened := 0
	opts := Options{
		Kind:      KindYDLidar,
		Device:    "/dev/ttyUSB0",
		LockDir:   lockDir,
		ListPorts: listing("/dev/ttyUSB0"),
		OpenPort: func(name string, po serialport.PortOptions) (serialport.Port, error) {
			opened++
			return serialport.NewTestablePort(nil), nil
		},
	}

	d, capa, err := Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if capa.Kind != KindYDLidar {
		t.Errorf("expected ydlidar, got %q", capa.Kind)
	}

	_, _, err = Open(opts)
	if !errors.Is(err, ErrUnavailable) || !strings.Contains(err.Error(), "in use") {
		t.Errorf("expected device in use, got %v", err)
	}
	if opened != 1 {
		t.Errorf("expected the port to be opened once, got %d", opened)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	d2, _, err := Open(opts)
	if err != nil {
		t.Fatalf("Open after release: %v", err)
	}
	d2.Close()
}

func TestOpenPortFailureReleasesLock(t *testing.T) {
	lockDir := t.TempDir()
	opts := Options{
		Kind:      KindYDLidar,
		Device:    "/dev/ttyUSB0",
		LockDir:   lockDir,
		ListPorts: listing("/dev/ttyUSB0"),
		OpenPort: func(string, serialport.PortOptions) (serialport.Port, error) {
			return nil, errors.New("permission denied")
		},
	}
	if _, _, err := Open(opts); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	lock, err := LockDevice(lockDir, "/dev/ttyUSB0")
	if err != nil {
		t.Fatalf("lock should be free after a failed open: %v", err)
	}
	lock.Release()
}

func TestOpenSim(t *testing.T) {
	d, capa, err := Open(Options{Kind: KindSim})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()
	if capa.Kind != KindSim {
		t.Errorf("expected sim, got %q", capa.Kind)
	}
	if _, ok := d.(*SimDriver); !ok {
		t.Errorf("expected *SimDriver, got %T", d)
	}
}

func TestLockDevice(t *testing.T) {
	dir := t.TempDir()
	first, err := LockDevice(dir, "/dev/serial/by-id/ydlidar")
	if err != nil {
		t.Fatalf("LockDevice: %v", err)
	}
	if want := filepath.Join(dir, "dev_serial_by-id_ydlidar.lock"); first.Path() != want {
		t.Errorf("expected lock path %s, got %s", want, first.Path())
	}
	if _, err := LockDevice(dir, "/dev/serial/by-id/ydlidar"); err == nil {
		t.Fatal("expected second lock to fail")
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	again, err := LockDevice(dir, "/dev/serial/by-id/ydlidar")
	if err != nil {
		t.Fatalf("LockDevice after release: %v", err)
	}
	again.Release()

	var nilLock *DeviceLock
	if err := nilLock.Release(); err != nil {
		t.Errorf("nil Release should be a no-op, got %v", err)
	}
}
