package main

// COM1 serial port, grounded on
// original_source/Kernel/arch/x86_common/serial.rs (is_transmit_empty/
// putb's busy-wait-then-send, including the Bochs 0xE9 debug-console
// echo).
const (
	com1          = 0x3F8
	com1LineStatus = com1 + 5
	bochsDebugPort = 0xE9

	lineStatusEmpty = 1 << 5
)

// serialSink implements klog.Sink over the COM1 UART.
type serialSink struct{}

func initSerial() serialSink {
	return serialSink{}
}

func (serialSink) WriteByte(b byte) {
	for inb(com1LineStatus)&lineStatusEmpty == 0 {
	}
	outb(com1, b)
	outb(bochsDebugPort, b)
}

func (s serialSink) WriteString(str string) {
	for i := 0; i < len(str); i++ {
		s.WriteByte(str[i])
	}
}
