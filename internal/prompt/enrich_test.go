package prompt

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jrwhip/ComfyUI/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

func fakeCLI(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-cli")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		ch   config.Character
		want string
	}{
		{
			name: "without ethnicity",
			ch: config.Character{
				Age: "teen", Hair: "red hair", Eyes: "amber eyes",
				Vibe: "melancholic", Footwear: "barefoot",
			},
			want: "teen, red hair, amber eyes, melancholic, barefoot",
		},
		{
			name: "ethnicity leads",
			ch: config.Character{
				Age: "23 year old", Hair: "long straight black hair", Eyes: "dark brown eyes",
				Ethnicity: "Filipino", Vibe: "happy", Footwear: "wearing flip flops",
			},
			want: "Filipino, 23 year old, long straight black hair, dark brown eyes, happy, wearing flip flops",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summary(tt.ch); got != tt.want {
				t.Errorf("Summary = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFilterBanner(t *testing.T) {
	out := "Credentials loaded from environment\n" +
		"A rain-slick alley hums with neon.\n" +
		"Ready to assist with your next request\n" +
		"She waits under a flickering sign."
	got := FilterBanner(out)
	want := "A rain-slick alley hums with neon.\nShe waits under a flickering sign."
	if got != want {
		t.Errorf("FilterBanner = %q, want %q", got, want)
	}
}

func TestFilterBannerAllNoise(t *testing.T) {
	if got := FilterBanner("model loaded\nready to assist\n"); got != "" {
		t.Errorf("FilterBanner = %q, want empty", got)
	}
}

func TestCompose(t *testing.T) {
	got := Compose("PREFIX ", "@artist", "city at night")
	if got != "PREFIX @artist, city at night" {
		t.Errorf("Compose = %q", got)
	}
}

func TestPickers(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	tags := []string{"@a", "@b", "@c"}
	chars := []config.Character{{Name: "one"}, {Name: "two"}}

	seenTags := map[string]bool{}
	seenChars := map[string]bool{}
	for i := 0; i < 100; i++ {
		seenTags[PickArtist(rng, tags)] = true
		seenChars[PickCharacter(rng, chars).Name] = true
	}
	if len(seenTags) != len(tags) {
		t.Errorf("PickArtist only reached %d of %d tags", len(seenTags), len(tags))
	}
	if len(seenChars) != len(chars) {
		t.Errorf("PickCharacter only reached %d of %d characters", len(seenChars), len(chars))
	}
}

func TestSceneFor(t *testing.T) {
	cli := fakeCLI(t, `echo "Credentials loaded"
echo "Neon rain over empty crosswalks."`)
	e := NewEnricher(cli, 5*time.Second, t.TempDir(), testLogger())

	scene, err := e.SceneFor(context.Background(), config.Character{Name: "Test"})
	if err != nil {
		t.Fatalf("SceneFor: %v", err)
	}
	if scene != "Neon rain over empty crosswalks." {
		t.Errorf("scene = %q", scene)
	}
}

func TestSceneForPassesRequest(t *testing.T) {
	cli := fakeCLI(t, `echo "$2"`)
	e := NewEnricher(cli, 5*time.Second, t.TempDir(), testLogger())

	ch := config.Character{Age: "teen", Hair: "red hair", Eyes: "amber eyes", Vibe: "melancholic", Footwear: "barefoot"}
	scene, err := e.SceneFor(context.Background(), ch)
	if err != nil {
		t.Fatalf("SceneFor: %v", err)
	}
	if !strings.Contains(scene, "teen, red hair, amber eyes, melancholic, barefoot") {
		t.Errorf("CLI did not receive the character summary: %q", scene)
	}
	if !strings.Contains(scene, "noir anime city wallpaper scene") {
		t.Errorf("CLI did not receive the scene instruction: %q", scene)
	}
}

func TestSceneForNonZeroExit(t *testing.T) {
	cli := fakeCLI(t, `echo "boom" >&2
exit 3`)
	e := NewEnricher(cli, 5*time.Second, t.TempDir(), testLogger())

	if _, err := e.SceneFor(context.Background(), config.Character{}); err == nil {
		t.Fatal("Expected error on non-zero exit")
	}
}

func TestSceneForTimeout(t *testing.T) {
	cli := fakeCLI(t, "sleep 30")
	e := NewEnricher(cli, 200*time.Millisecond, t.TempDir(), testLogger())

	start := time.Now()
	_, err := e.SceneFor(context.Background(), config.Character{})
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("SceneFor took %v, timeout should be bounded", elapsed)
	}
}

func TestSceneForMissingCLI(t *testing.T) {
	e := NewEnricher(filepath.Join(t.TempDir(), "nope"), time.Second, t.TempDir(), testLogger())
	if _, err := e.SceneFor(context.Background(), config.Character{}); err == nil {
		t.Fatal("Expected error when CLI is missing")
	}
}

func TestSceneForEmptyOutput(t *testing.T) {
	cli := fakeCLI(t, "true")
	e := NewEnricher(cli, time.Second, t.TempDir(), testLogger())
	if _, err := e.SceneFor(context.Background(), config.Character{}); err == nil {
		t.Fatal("Expected error for empty CLI output")
	}
}
