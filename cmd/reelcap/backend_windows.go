//go:build windows

package main

func captureBackend() string {
	return "DXGI desktop duplication (screenshot fallback)"
}
