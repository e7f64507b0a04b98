package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/satloc/internal/celestrak"
	"github.com/signalsfoundry/satloc/internal/config"
	"github.com/signalsfoundry/satloc/internal/render"
	"github.com/signalsfoundry/satloc/timectrl"
)

const issTLE = "ISS (ZARYA)\n" +
	"1 25544U 98067A   25138.37048074  .00007749  00000+0  14567-3 0  9994\n" +
	"2 25544  51.6369  94.7823 0002558 120.7586  15.7840 15.49587957510533\n"

func writeTLE(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "iss.tle")
	if err := os.WriteFile(path, []byte(issTLE), 0o644); err != nil {
		t.Fatalf("write tle: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestTrackFromLocalFileWritesCSV(t *testing.T) {
	tle := writeTLE(t)
	out := filepath.Join(t.TempDir(), "iss.csv")

	stdout, _, err := execute(t, "25544",
		"--tle-file", tle,
		"-d", "20250518T090000",
		"-o", out,
		"--samples", "10",
		"--step", "1m",
	)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := "ISS (ZARYA): 10 samples from 2025-05-18 09:00:00 UTC"
	if !strings.HasPrefix(stdout, want) || !strings.HasSuffix(strings.TrimSpace(stdout), out) {
		t.Fatalf("stdout = %q, want prefix %q and output path", stdout, want)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 11 {
		t.Fatalf("rows = %d, want header + 10", len(records))
	}
	if records[1][0] != "2025-05-18T09:00:00Z" {
		t.Fatalf("first sample time = %q", records[1][0])
	}
}

func TestTrackWritesHTMLWithTitle(t *testing.T) {
	tle := writeTLE(t)
	out := filepath.Join(t.TempDir(), "track.html")

	if _, _, err := execute(t, "25544", "--tle-file", tle, "-d", "2025-05-18T09:00:00Z", "-o", out, "-t", "Station"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	page, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(page), "<title>Station</title>") {
		t.Fatalf("html output missing title")
	}
}

func TestTrackErrors(t *testing.T) {
	tle := writeTLE(t)
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"invalid catalog number", []string{"ISS", "--tle-file", tle}, celestrak.ErrInvalidCatalogNumber},
		{"unknown extension", []string{"25544", "--tle-file", tle, "-o", filepath.Join(dir, "map.png")}, render.ErrUnknownFormat},
		{"bad date", []string{"25544", "--tle-file", tle, "-d", "tomorrow"}, config.ErrInvalidStart},
		{"not in file", []string{"33591", "--tle-file", tle, "-o", filepath.Join(dir, "x.csv")}, celestrak.ErrNotFound},
		{"bad samples", []string{"25544", "--tle-file", tle, "--samples", "0"}, config.ErrInvalid},
		{"bad gravity", []string{"25544", "--tle-file", tle, "--gravity", "wgs66"}, config.ErrInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := execute(t, tc.args...)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestTrackRequiresOneArgument(t *testing.T) {
	if _, _, err := execute(t); err == nil {
		t.Fatalf("expected an error without a catalog number")
	}
}

func TestWatchAccelerated(t *testing.T) {
	tle := writeTLE(t)
	stdout, _, err := execute(t, "watch", "25544",
		"--tle-file", tle,
		"-d", "20250518T090000",
		"--mode", "accelerated",
		"--tick", "1m",
		"--duration", "3m",
	)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want header + 4 positions:\n%s", len(lines), stdout)
	}
	if lines[0] != "# ISS (ZARYA) (NORAD 25544)" {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "2025-05-18 09:00:00 UTC") || !strings.HasPrefix(lines[4], "2025-05-18 09:03:00 UTC") {
		t.Fatalf("unexpected times:\n%s", stdout)
	}
}

func TestWatchAcceleratedNeedsDuration(t *testing.T) {
	tle := writeTLE(t)
	_, _, err := execute(t, "watch", "25544", "--tle-file", tle, "--mode", "accelerated")
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("err = %v, want config.ErrInvalid", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    timectrl.Mode
		wantErr bool
	}{
		{"realtime", timectrl.RealTime, false},
		{" Accelerated ", timectrl.Accelerated, false},
		{"slow-motion", 0, true},
	}
	for _, tc := range tests {
		got, err := parseMode(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("parseMode(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if err == nil && got != tc.want {
			t.Fatalf("parseMode(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(stdout, "satloc ") {
		t.Fatalf("stdout = %q", stdout)
	}
}
