//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Ingest builds the CLI and indexes the documents under corpus/docs.
func Ingest() error {
	mg.Deps(Build)
	return sh.RunV("./"+binDir+"/"+binName, "corpus", "ingest")
}
