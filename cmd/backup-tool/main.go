// backup-tool validates campaign backup files and prints what's inside,
// without touching a server or a live session.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joelmale/nexus/internal/backup"
)

func main() {
	file := flag.String("file", "", "path to a campaign backup file")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: backup-tool -file campaign.json")
		os.Exit(2)
	}

	f, err := os.Open(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backup-tool: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	doc, err := backup.Parse(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backup-tool: invalid backup: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("version:  %s\n", doc.Version)
	if doc.Campaign.Name != "" {
		fmt.Printf("campaign: %s\n", doc.Campaign.Name)
	}
	fmt.Printf("scenes:   %d\n", len(doc.Scenes))
	for _, sc := range doc.Scenes {
		marker := " "
		if doc.ActiveSceneID != nil && sc.ID == *doc.ActiveSceneID {
			marker = "*"
		}
		fmt.Printf("  %s %-24s tokens=%-3d drawings=%d\n", marker, sc.Name, len(sc.Tokens), len(sc.Drawings))
	}
}
