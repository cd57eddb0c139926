// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command text2cypher extracts a Neo4j schema and turns questions into
// Cypher queries constrained to it.
//
//	text2cypher export-schema --output_dir data/input
//	text2cypher chat --provider groq
//	text2cypher ask "find proteins linked to lung cancer"
//	text2cypher serve --addr :8090
package main

import (
	"os"
)

func main() {
	a := newApp(os.Stdin, os.Stdout, os.Stderr, os.Getenv)
	os.Exit(a.run(os.Args[1:]))
}
