// Package prompt builds the text prompt for a generation run: it picks a
// character preset and an artist tag at random, asks an external
// text-generation CLI for a fresh scene description, and composes the final
// prompt string. Every step is best-effort; a failed enrichment leaves the
// workflow template's default prompt in place.
package prompt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os/exec"
	"strings"
	"time"

	"github.com/jrwhip/ComfyUI/pkg/config"
)

// bannerMarkers flag CLI status lines that leak into stdout and must not end
// up inside an image prompt.
var bannerMarkers = []string{
	"loaded",
	"credentials",
	"ready to assist",
	"what can i do",
}

// Enricher shells out to a text-generation CLI for scene descriptions.
type Enricher struct {
	CLIPath string
	Timeout time.Duration
	// WorkDir is deliberately outside the project tree: some CLIs detect a
	// workspace from the current directory and change behavior.
	WorkDir string
	Logger  *slog.Logger
}

func NewEnricher(cliPath string, timeout time.Duration, workDir string, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Enricher{CLIPath: cliPath, Timeout: timeout, WorkDir: workDir, Logger: logger}
}

// PickCharacter selects a random character preset.
func PickCharacter(rng *rand.Rand, chars []config.Character) config.Character {
	return chars[rng.Intn(len(chars))]
}

// PickArtist selects a random artist tag.
func PickArtist(rng *rand.Rand, tags []string) string {
	return tags[rng.Intn(len(tags))]
}

// Summary renders a character as the compact comma-separated description the
// scene request embeds. Long requests make the CLI time out, so this stays
// terse.
func Summary(ch config.Character) string {
	parts := []string{ch.Age, ch.Hair, ch.Eyes, ch.Vibe, ch.Footwear}
	if ch.Ethnicity != "" {
		parts = append([]string{ch.Ethnicity}, parts...)
	}
	return strings.Join(parts, ", ")
}

// sceneRequest is the instruction sent to the CLI.
func sceneRequest(ch config.Character) string {
	return fmt.Sprintf("Describe a noir anime city wallpaper scene (1280x720). Character: %s. "+
		"Vary location, weather, lighting, pose. Cool blue/gray tones with neon accents. "+
		"Show footwear. 100-120 words.", Summary(ch))
}

// SceneFor asks the CLI for a scene description for the character. The call
// is bounded by the enricher's timeout on top of the caller's context.
func (e *Enricher) SceneFor(ctx context.Context, ch config.Character) (string, error) {
	e.Logger.Info("generating scene variation", "character", ch.Name, "cli", e.CLIPath)

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.CLIPath, "-p", sceneRequest(ch))
	cmd.Dir = e.WorkDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("scene generation timed out after %s: %w", e.Timeout, ctx.Err())
		}
		return "", fmt.Errorf("scene generation failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	scene := FilterBanner(stdout.String())
	if scene == "" {
		return "", fmt.Errorf("scene generation produced no usable output")
	}
	e.Logger.Info("generated scene", "preview", preview(scene, 80))
	return scene, nil
}

// FilterBanner drops known CLI banner/status lines by substring match and
// trims the remainder.
func FilterBanner(out string) string {
	var kept []string
	for _, line := range strings.Split(out, "\n") {
		lower := strings.ToLower(line)
		skip := false
		for _, marker := range bannerMarkers {
			if strings.Contains(lower, marker) {
				skip = true
				break
			}
		}
		if !skip {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// Compose assembles the final prompt: instructional prefix, artist tag, then
// the scene description.
func Compose(prefix, artistTag, scene string) string {
	return prefix + artistTag + ", " + scene
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
