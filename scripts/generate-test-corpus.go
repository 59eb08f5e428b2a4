//go:build ignore

// Generates a synthetic folder of notes for trying out watch --once and
// search by hand.
// Usage: go run scripts/generate-test-corpus.go -files 500 -output testdata/corpus
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numFiles  = flag.Int("files", 500, "Number of documents to generate")
	outputDir = flag.String("output", "testdata/corpus", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
	noise     = flag.Bool("noise", true, "Also write empty, unsupported and ignored files")
)

// topic groups vocabulary so that documents about one subject embed close
// to each other.
type topic struct {
	name     string
	subjects []string
	verbs    []string
	details  []string
}

var topics = []topic{
	{
		name:     "finance",
		subjects: []string{"the quarterly budget", "the expense report", "the annual forecast", "vendor invoices", "the payroll run"},
		verbs:    []string{"was reviewed", "needs approval", "came in over plan", "was reconciled", "is due Friday"},
		details:  []string{"by the finance team", "after the audit", "for the board meeting", "with updated exchange rates", "in the shared ledger"},
	},
	{
		name:     "cooking",
		subjects: []string{"the tomato soup", "sourdough bread", "the risotto", "a lemon tart", "roasted vegetables"},
		verbs:    []string{"simmers for an hour", "needs more salt", "rises overnight", "bakes at 200 degrees", "is served warm"},
		details:  []string{"with fresh basil", "using a cast iron pan", "for six people", "with homemade stock", "after resting ten minutes"},
	},
	{
		name:     "travel",
		subjects: []string{"the flight to Lisbon", "our hotel booking", "the train pass", "the hiking route", "the museum tickets"},
		verbs:    []string{"was confirmed", "leaves at dawn", "includes breakfast", "was rescheduled", "covers three days"},
		details:  []string{"near the old town", "along the coast", "with a layover in Madrid", "for the spring holiday", "booked through the agency"},
	},
	{
		name:     "infrastructure",
		subjects: []string{"the database cluster", "the nightly backup", "the load balancer", "the staging deploy", "disk usage on the build host"},
		verbs:    []string{"failed over cleanly", "ran out of space", "was upgraded", "is paged on errors", "needs a new certificate"},
		details:  []string{"during the maintenance window", "after the kernel patch", "across both regions", "according to the runbook", "with zero downtime"},
	},
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	for _, t := range topics {
		if err := os.MkdirAll(filepath.Join(*outputDir, t.name), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generating %d documents in %s...\n", *numFiles, *outputDir)

	generated := 0
	for i := 0; i < *numFiles; i++ {
		t := topics[i%len(topics)]
		var err error
		if i%3 == 0 {
			err = writeMarkdown(rng, t, i)
		} else {
			err = writeText(rng, t, i)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating file %d: %v\n", i, err)
			continue
		}
		generated++
	}

	if *noise {
		if err := writeNoise(); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing noise files: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generated %d documents successfully.\n", generated)
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

func sentence(rng *rand.Rand, t topic) string {
	s := pick(rng, t.subjects) + " " + pick(rng, t.verbs) + " " + pick(rng, t.details) + "."
	return strings.ToUpper(s[:1]) + s[1:]
}

func paragraph(rng *rand.Rand, t topic, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = sentence(rng, t)
	}
	return strings.Join(parts, " ")
}

func writeText(rng *rand.Rand, t topic, index int) error {
	content := paragraph(rng, t, 3+rng.Intn(5)) + "\n"
	name := filepath.Join(*outputDir, t.name, fmt.Sprintf("note_%04d.txt", index))
	return os.WriteFile(name, []byte(content), 0o644)
}

func writeMarkdown(rng *rand.Rand, t topic, index int) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s notes %d\n\n", strings.ToUpper(t.name[:1])+t.name[1:], index)
	fmt.Fprintf(&b, "%s\n\n## Follow-up\n\n", paragraph(rng, t, 2+rng.Intn(3)))
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&b, "- %s\n", sentence(rng, t))
	}
	name := filepath.Join(*outputDir, t.name, fmt.Sprintf("doc_%04d.md", index))
	return os.WriteFile(name, []byte(b.String()), 0o644)
}

// writeNoise adds files every run should leave out of the index.
func writeNoise() error {
	files := map[string]string{
		"empty.txt":          "",
		"whitespace.md":      "  \n\t\n",
		"photo.png":          "\x89PNG\r\n\x1a\n",
		"drafts/ignored.md":  "# Draft\n\nThis file is matched by .gitignore.\n",
		".gitignore":         "drafts/\n",
		".hidden/secret.txt": "hidden directories are never scanned\n",
	}
	for name, content := range files {
		path := filepath.Join(*outputDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}
