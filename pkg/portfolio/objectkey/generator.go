package objectkey

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generator defines the interface for object key generation strategies.
// Every call must return a key that has never been returned before, so an
// upload can never overwrite an object that a record still references.
type Generator interface {
	GenerateKey(fileName string) string
}

// TimestampGenerator produces flat, time-qualified keys:
// 1792059300123-3f2a9c1e_profile.png
type TimestampGenerator struct {
	Now func() time.Time
}

func NewTimestampGenerator() *TimestampGenerator {
	return &TimestampGenerator{Now: time.Now}
}

func (g *TimestampGenerator) GenerateKey(fileName string) string {
	return flatName(g.now(), fileName)
}

func (g *TimestampGenerator) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

// ShardedGenerator spreads keys over date directories:
// 2026/10/15/1792059300123-3f2a9c1e_profile.png
type ShardedGenerator struct {
	Now func() time.Time
}

func NewShardedGenerator() *ShardedGenerator {
	return &ShardedGenerator{Now: time.Now}
}

func (g *ShardedGenerator) GenerateKey(fileName string) string {
	now := time.Now()
	if g.Now != nil {
		now = g.Now()
	}
	now = now.UTC()
	return path.Join(now.Format("2006/01/02"), flatName(now, fileName))
}

// CustomFuncGenerator allows callers to provide their own key function
type CustomFuncGenerator struct {
	GenerateFunc func(fileName string) string
}

func NewCustomFuncGenerator(fn func(fileName string) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{GenerateFunc: fn}
}

func (g *CustomFuncGenerator) GenerateKey(fileName string) string {
	return g.GenerateFunc(fileName)
}

func flatName(now time.Time, fileName string) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	name := fmt.Sprintf("%d-%s", now.UnixMilli(), id)
	if clean := sanitizeFilename(path.Base(fileName)); clean != "" && clean != "." && clean != "_" {
		name = fmt.Sprintf("%s_%s", name, clean)
	}
	return name
}

// Helper functions for path sanitization
func sanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
		"#", "_",
		"%", "_",
	)
	return replacer.Replace(filename)
}
