//go:build !windows

package capture

func newPlatformSource(cfg Config) Source {
	return newScreenSource(cfg)
}
