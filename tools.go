//go:build tools
// +build tools

// Package tools tracks tool dependencies invoked via go generate.
package main

import (
	_ "go.uber.org/mock/mockgen"
)
