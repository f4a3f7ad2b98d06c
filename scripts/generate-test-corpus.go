//go:build ignore

// Package main generates a synthetic drive for benchmarking reindex and
// search. Files land in <output>/<owner>/... the way a storage root is laid
// out.
// Usage: go run scripts/generate-test-corpus.go -owners 5 -files 1000 -output testdata/drive
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
)

var (
	numOwners = flag.Int("owners", 5, "Number of owners")
	numFiles  = flag.Int("files", 1000, "Number of files per owner")
	outputDir = flag.String("output", "testdata/drive", "Storage root to fill")
	seed      = flag.Uint64("seed", 42, "Random seed for reproducibility")
)

// Media files only need enough magic bytes for content sniffing.
var (
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	pngHeader  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
	mp3Header  = []byte{'I', 'D', '3', 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	mp4Header  = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2', 0x00, 0x00, 0x00, 0x00, 'm', 'p', '4', '2', 'i', 's', 'o', 'm'}
)

var noteTemplate = `# %s %s

Notes from the %s review on %s.

- Owner: %s
- Status: %s
- Follow up on the %s %s before the next meeting.

%s
`

var csvTemplate = `date,item,amount
2024-%02d-01,%s,%d
2024-%02d-15,%s,%d
`

// Word pools for generating realistic names
var (
	topics = []string{
		"budget", "roadmap", "invoice", "contract", "proposal",
		"meeting", "travel", "recipe", "workout", "reading",
		"project", "release", "hiring", "onboarding", "migration",
		"kubernetes", "database", "backup", "network", "security",
	}
	adjectives = []string{
		"annual", "quarterly", "weekly", "draft", "final",
		"shared", "personal", "archived", "updated", "old",
	}
	statuses = []string{"open", "blocked", "done", "in review"}
	months   = []string{"January", "March", "June", "September", "December"}
	places   = []string{"beach", "mountain", "city", "garden", "museum", "lake"}
	cjkNames = []string{"季度报告", "会议纪要", "旅行计划", "読書メモ", "회의록"}
	folders  = []string{"Documents", "Documents/Work", "Documents/Personal", "Photos", "Music", "Videos", "Projects"}
	sentence = []string{
		"The numbers look better than last quarter.",
		"Remember to attach the signed copy.",
		"Everything else stays as agreed.",
		"Send the summary to the whole team.",
	}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewPCG(*seed, *seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generating %d owners with %d files each in %s...\n", *numOwners, *numFiles, *outputDir)

	generated := 0
	for o := 0; o < *numOwners; o++ {
		owner := fmt.Sprintf("user%03d", o+1)
		for _, dir := range folders {
			if err := os.MkdirAll(filepath.Join(*outputDir, owner, filepath.FromSlash(dir)), 0o755); err != nil {
				fmt.Fprintf(os.Stderr, "Error creating folder %s: %v\n", dir, err)
				os.Exit(1)
			}
		}
		for i := 0; i < *numFiles; i++ {
			if err := generateFile(rng, owner, i); err != nil {
				fmt.Fprintf(os.Stderr, "Error generating file %d for %s: %v\n", i, owner, err)
				continue
			}
			generated++
		}
	}

	fmt.Printf("Generated %d files successfully.\n", generated)
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.IntN(len(pool))]
}

// generateFile writes one file. The mix is roughly 40% notes, 15%
// spreadsheets, 25% photos, 10% music, 5% videos and 5% CJK-named notes.
func generateFile(rng *rand.Rand, owner string, index int) error {
	topic := pick(rng, topics)
	adj := pick(rng, adjectives)
	base := filepath.Join(*outputDir, owner)

	var name string
	var content []byte
	switch n := rng.IntN(100); {
	case n < 40:
		name = filepath.Join("Documents", pick(rng, []string{"Work", "Personal"}),
			fmt.Sprintf("%s-%s-%d.md", adj, topic, index))
		content = []byte(note(rng, owner, topic, adj))
	case n < 55:
		month := rng.IntN(12) + 1
		name = filepath.Join("Documents", fmt.Sprintf("%s-%s-%d.csv", topic, adj, index))
		content = []byte(fmt.Sprintf(csvTemplate, month, topic, rng.IntN(5000), month, adj, rng.IntN(5000)))
	case n < 80:
		header := jpegHeader
		ext := "jpg"
		if rng.IntN(3) == 0 {
			header, ext = pngHeader, "png"
		}
		name = filepath.Join("Photos", fmt.Sprintf("%s_%s_%04d.%s", pick(rng, places), strings.ToLower(pick(rng, months)), index, ext))
		content = header
	case n < 90:
		name = filepath.Join("Music", fmt.Sprintf("track_%04d.mp3", index))
		content = mp3Header
	case n < 95:
		name = filepath.Join("Videos", fmt.Sprintf("%s_%04d.mp4", pick(rng, places), index))
		content = mp4Header
	default:
		name = filepath.Join("Documents", fmt.Sprintf("%s%d.txt", pick(rng, cjkNames), index))
		content = []byte(note(rng, owner, topic, adj))
	}
	return os.WriteFile(filepath.Join(base, name), content, 0o644)
}

func note(rng *rand.Rand, owner, topic, adj string) string {
	return fmt.Sprintf(noteTemplate,
		strings.ToUpper(adj[:1])+adj[1:], topic,
		topic, pick(rng, months),
		owner,
		pick(rng, statuses),
		adj, pick(rng, topics),
		pick(rng, sentence),
	)
}
