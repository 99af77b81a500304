//go:build !windows

package main

func captureBackend() string {
	return "screenshot (window tracking requires Windows)"
}
