// Package klog is the kernel's installable log sink. Grounded on the
// teacher's uartPuts/uitoa/uartPutHex64/printHex64/uartPutUint32 family
// in src/mazboot/golang/main/kernel.go and src/go/mazarin/kernel.go:
// those functions write straight to a hardwired UART MMIO address, so
// every caller that wants to log has to know which board it's on.
// klog generalizes the pattern one level: drivers install a Sink once
// the UART is mapped, and formatting helpers work against that Sink
// rather than any particular hardware register.
package klog

import "sync/atomic"

// Sink is anything that can accept raw bytes for the kernel log. A
// UART driver is the expected implementation, but the boundary exists
// so klog itself never needs to know about MMIO registers.
type Sink interface {
	WriteByte(c byte)
	WriteString(s string)
}

var sink atomic.Pointer[Sink]

// Install sets the active sink. Passing nil reverts to the no-op
// behavior callers see before any sink is installed.
func Install(s Sink) {
	if s == nil {
		sink.Store(nil)
		return
	}
	sink.Store(&s)
}

// Installed reports whether a sink is currently active. Matches the
// teacher's own pattern of guarding uartPuts calls behind readiness
// checks throughout pageInit/heapInit, generalized into one predicate
// instead of a scattered boolean per call site.
func Installed() bool {
	return sink.Load() != nil
}

// Puts writes s to the installed sink, or does nothing if none is
// installed.
func Puts(s string) {
	p := sink.Load()
	if p == nil {
		return
	}
	(*p).WriteString(s)
}

// Putc writes a single byte to the installed sink, or does nothing if
// none is installed.
func Putc(c byte) {
	p := sink.Load()
	if p == nil {
		return
	}
	(*p).WriteByte(c)
}

// Hex64 writes val as 16 uppercase hex digits, grounded on
// uartPutHex64/printHex64's fixed-width nibble walk.
func Hex64(val uint64) {
	if !Installed() {
		return
	}
	var buf [16]byte
	for i := range buf {
		nibble := (val >> uint(60-i*4)) & 0xF
		if nibble < 10 {
			buf[i] = byte('0' + nibble)
		} else {
			buf[i] = byte('A' + nibble - 10)
		}
	}
	Puts(string(buf[:]))
}

// Uint writes n as a decimal string, grounded on uitoa/uartPutUint32's
// digit-count-then-write-right-to-left approach.
func Uint(n uint64) {
	if !Installed() {
		return
	}
	if n == 0 {
		Putc('0')
		return
	}

	var buf [20]byte
	digits := 0
	for temp := n; temp > 0; temp /= 10 {
		digits++
	}
	idx := digits
	for n > 0 {
		idx--
		buf[idx] = byte('0' + n%10)
		n /= 10
	}
	Puts(string(buf[:digits]))
}
