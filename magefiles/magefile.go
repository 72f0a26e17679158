//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for the patchcache project using Mage.
//
// Usage:
//
//	mage build          Compile patchcache binary to bin/
//	mage test:all       Run all tests
//	mage test:race      Run all tests with the race detector
//	mage test:cover     Write coverage.out and print a per-function summary
//	mage test:golden    Regenerate the CLI golden files
//	mage lint           Run golangci-lint
//	mage vet            Run go vet
//	mage clean          Remove build artifacts
//	mage install        Install patchcache to GOPATH/bin
//	mage stats          Print Go lines of code per package
package main

const (
	binGo      = "go"
	binaryName = "patchcache"
	binaryDir  = "bin"
	cmdDir     = "./cmd/patchcache"
	modulePath = "github.com/mesh-intelligence/patchcache"
)
