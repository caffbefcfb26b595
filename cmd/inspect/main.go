package main

import (
	"flag"
	"fmt"
	"os"

	"parley/pkg/logger"
	"parley/pkg/store"
)

// Dumps raw store keys (and optionally values) for offline debugging.
// Point it at the store directory under the DB path, not the DB root.
func main() {
	var path string
	var prefix string
	var values bool
	flag.StringVar(&path, "path", "", "pebble store path (e.g. ./.database/store)")
	flag.StringVar(&prefix, "prefix", "", "key prefix filter")
	flag.BoolVar(&values, "values", false, "print values alongside keys")
	flag.Parse()
	if path == "" {
		fmt.Fprintln(os.Stderr, "--path required")
		os.Exit(2)
	}
	logger.Init()
	if err := store.Open(path); err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	keys, err := store.ListKeys(prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list keys: %v\n", err)
		os.Exit(1)
	}
	for _, k := range keys {
		if !values {
			fmt.Println(k)
			continue
		}
		v, err := store.GetKey(k)
		if err != nil {
			fmt.Printf("%s\t<error: %v>\n", k, err)
			continue
		}
		fmt.Printf("%s\t%s\n", k, v)
	}
	fmt.Fprintf(os.Stderr, "%d keys\n", len(keys))
}
