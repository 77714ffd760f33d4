package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/viewmem/viewmem"
	"github.com/viewmem/viewmem/resource"
)

// Loads every file in a directory through the viewmem core, the way a
// viewer would when the user opens a folder.
func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s <dir>", os.Args[0])
	}
	dir := os.Args[1]

	core, err := viewmem.New(
		viewmem.WithLogger(viewmem.NewTextLogger(slog.LevelDebug)),
		viewmem.WithCacheCapacity(16),
		viewmem.WithResourceLimits(resource.Config{
			BufferBudgetBytes: 128 << 20,
			MaxInflightReads:  4,
		}),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer core.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Fatal(err)
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}

	ctx := context.Background()
	if err := core.Prefetch(ctx, paths...); err != nil {
		log.Printf("prefetch: %v", err)
	}

	for _, p := range paths {
		h, err := core.Open(ctx, p)
		if err != nil {
			log.Printf("open %s: %v", p, err)
			continue
		}
		res, _ := core.Resource(h)
		fmt.Printf("%s: %d bytes (%s)\n", res.Path, len(res.Data), h)
	}

	fmt.Println(core.Stats())
}
