//go:build windows

package main

// Windows consoles have no resize signal; the initial size is all ptyd gets.
func watchResize(func()) (stop func()) {
	return func() {}
}
