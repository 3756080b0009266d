/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Command adsync runs and controls directory reconciliation.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(GetExitCode(err))
	}
}
