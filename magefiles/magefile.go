//go:build mage

// Package main provides build targets for liftsync using Mage.
//
// Usage:
//
//	mage build      Compile the liftsync binary to bin/
//	mage install    Install liftsync to GOPATH/bin
//	mage test:all   Run every test
//	mage test:race  Run every test with the race detector
//	mage test:cover Write coverage to bin/coverage.out
//	mage lint       Run golangci-lint
//	mage vet        Run go vet
//	mage clean      Remove build artifacts
package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "liftsync"
	binaryDir  = "bin"
	cmdDir     = "./cmd/liftsync"
)

// version returns the string stamped into the binary: LIFTSYNC_VERSION
// when set, otherwise git describe, otherwise "dev".
func version() string {
	if v := os.Getenv("LIFTSYNC_VERSION"); v != "" {
		return v
	}
	if out, err := sh.Output("git", "describe", "--tags", "--always", "--dirty"); err == nil && out != "" {
		return strings.TrimSpace(out)
	}
	return "dev"
}

// Build compiles the liftsync binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	ldflags := "-X main.version=" + version()
	return sh.RunV(binGo, "build", "-v", "-ldflags", ldflags, "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}
