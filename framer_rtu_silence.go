package modbus

import "time"

// silenceTimer derives the two timing constants a real RTU serial link is
// paced by: t1 (time to transmit one character at the configured baud
// rate) and t3.5 (the minimum silence a master must observe between two
// ADUs, and the gap a slave waits for before considering a frame done).
type silenceTimer struct {
	t1  time.Duration
	t35 time.Duration
}

// newSilenceTimer computes t1/t3.5 for the given baud rate. For baud
// rates at or above 19200, the Modbus serial line spec fixes t3.5 at
// 1750us regardless of speed; below that, it scales with the character
// time.
func newSilenceTimer(speedBps uint) silenceTimer {
	t1 := serialCharTime(speedBps)

	var t35 time.Duration
	if speedBps >= 19200 {
		t35 = 1750 * time.Microsecond
	} else {
		t35 = (t1 * 35) / 10
	}

	return silenceTimer{t1: t1, t35: t35}
}

// serialCharTime returns how long it takes to send one byte on a serial
// line at the given baud rate: 1 start bit, 8 data bits and 2 stop/parity
// bits, 11 bits total.
func serialCharTime(rateBps uint) (ct time.Duration) {
	ct = 11 * time.Second / time.Duration(rateBps)

	return
}
