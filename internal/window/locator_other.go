//go:build !windows

package window

type stubLocator struct{}

func newPlatformLocator() Locator {
	return &stubLocator{}
}

func (l *stubLocator) Find(pattern string) (*Info, error) {
	return nil, ErrNotSupported
}

func (l *stubLocator) List() ([]Info, error) {
	return nil, ErrNotSupported
}

func platformBounds(handle uintptr) (x, y, w, h int, err error) {
	return 0, 0, 0, 0, ErrNotSupported
}
