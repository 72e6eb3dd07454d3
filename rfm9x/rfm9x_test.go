package rfm9x

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// mockSPI emulates the SX1276 register file including the FIFO address
// pointer semantics, so the driver can be exercised without hardware.
type mockSPI struct {
	regs [0x80]byte
	fifo [256]byte
	// autoTxDone raises the TxDone interrupt as soon as the modem is
	// switched into transmit mode.
	autoTxDone bool
	err        error
	txCalls    int
}

func (m *mockSPI) Tx(w, r []byte) error {
	m.txCalls++
	if m.err != nil {
		return m.err
	}
	addr := w[0] & 0x7F
	write := w[0]&0x80 != 0
	for i, b := range w[1:] {
		switch {
		case write && addr == regFifo:
			m.fifo[m.regs[regFifoAddrPtr]] = b
			m.regs[regFifoAddrPtr]++
		case write && addr == regIrqFlags:
			// Writing ones clears the corresponding flags.
			m.regs[regIrqFlags] &^= b
		case write:
			m.regs[addr+byte(i)] = b
			if addr+byte(i) == regOpMode && b&0x07 == modeTx && m.autoTxDone {
				m.regs[regIrqFlags] |= irqTxDone
			}
		case addr == regFifo:
			r[i+1] = m.fifo[m.regs[regFifoAddrPtr]]
			m.regs[regFifoAddrPtr]++
		default:
			r[i+1] = m.regs[addr+byte(i)]
		}
	}
	return nil
}

type mockPin struct {
	levels []bool
}

func (m *mockPin) Out(high bool) error {
	m.levels = append(m.levels, high)
	return nil
}

func newMockRadio(t *testing.T, opts Options) (*Radio, *mockSPI, *mockPin) {
	t.Helper()
	spi := &mockSPI{}
	spi.regs[regVersion] = versionSX1276
	pin := &mockPin{}
	radio, err := New(spi, pin, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return radio, spi, pin
}

func TestInitConfiguresModem(t *testing.T) {
	_, spi, pin := newMockRadio(t, Options{FrequencyMHz: 915.0, TxPower: 23})

	wantReset := []bool{true, false, true}
	if len(pin.levels) != 3 || pin.levels[0] != wantReset[0] ||
		pin.levels[1] != wantReset[1] || pin.levels[2] != wantReset[2] {
		t.Errorf("reset sequence %v, want %v", pin.levels, wantReset)
	}

	// 915 MHz in 32 MHz / 2^19 steps.
	if spi.regs[regFrfMsb] != 0xE4 || spi.regs[regFrfMid] != 0xC0 || spi.regs[regFrfLsb] != 0x00 {
		t.Errorf("FRF = %02X %02X %02X, want E4 C0 00",
			spi.regs[regFrfMsb], spi.regs[regFrfMid], spi.regs[regFrfLsb])
	}

	// 23 dBm needs the high power DAC and 20 dBm on the PA.
	if spi.regs[regPaDac] != 0x07 {
		t.Errorf("PaDac = 0x%02X, want 0x07", spi.regs[regPaDac])
	}
	if spi.regs[regPaConfig] != 0x8F {
		t.Errorf("PaConfig = 0x%02X, want 0x8F", spi.regs[regPaConfig])
	}

	if spi.regs[regModemConfig1] != 0x72 || spi.regs[regModemConfig2] != 0x70 || spi.regs[regModemConfig3] != 0x00 {
		t.Errorf("modem config = %02X %02X %02X, want 72 70 00",
			spi.regs[regModemConfig1], spi.regs[regModemConfig2], spi.regs[regModemConfig3])
	}
	if spi.regs[regPreambleMsb] != 0x00 || spi.regs[regPreambleLsb] != 0x08 {
		t.Errorf("preamble = %02X %02X, want 00 08", spi.regs[regPreambleMsb], spi.regs[regPreambleLsb])
	}
	if spi.regs[regFifoTxBaseAddr] != 0x00 || spi.regs[regFifoRxBaseAddr] != 0x00 {
		t.Errorf("fifo base addresses not zeroed")
	}
	if spi.regs[regOpMode] != modeLoRa|modeRxCont {
		t.Errorf("op mode = 0x%02X, want 0x%02X", spi.regs[regOpMode], modeLoRa|modeRxCont)
	}
}

func TestInitLowPowerSkipsDac(t *testing.T) {
	_, spi, _ := newMockRadio(t, Options{TxPower: 13})
	if spi.regs[regPaDac] != 0x04 {
		t.Errorf("PaDac = 0x%02X, want 0x04 below 20 dBm", spi.regs[regPaDac])
	}
	if spi.regs[regPaConfig] != 0x80|8 {
		t.Errorf("PaConfig = 0x%02X, want 0x88 for 13 dBm", spi.regs[regPaConfig])
	}
}

func TestInitAlternateFrequency(t *testing.T) {
	_, spi, _ := newMockRadio(t, Options{FrequencyMHz: 868.0})
	if spi.regs[regFrfMsb] != 0xD9 || spi.regs[regFrfMid] != 0x00 || spi.regs[regFrfLsb] != 0x00 {
		t.Errorf("FRF = %02X %02X %02X, want D9 00 00",
			spi.regs[regFrfMsb], spi.regs[regFrfMid], spi.regs[regFrfLsb])
	}
}

func TestNewRejectsWrongVersion(t *testing.T) {
	spi := &mockSPI{}
	spi.regs[regVersion] = 0x22
	if _, err := New(spi, &mockPin{}, Options{}); !errors.Is(err, ErrBadVersion) {
		t.Fatalf("got %v, want ErrBadVersion", err)
	}
}

func TestNewRejectsBadPower(t *testing.T) {
	spi := &mockSPI{}
	spi.regs[regVersion] = versionSX1276
	if _, err := New(spi, &mockPin{}, Options{TxPower: 24}); err == nil {
		t.Fatalf("tx power 24 accepted")
	}
	if _, err := New(spi, &mockPin{}, Options{TxPower: 4}); err == nil {
		t.Fatalf("tx power 4 accepted")
	}
}

func TestReceiveNothingPending(t *testing.T) {
	radio, _, _ := newMockRadio(t, Options{})
	pkt, err := radio.Receive()
	if err != nil || pkt != nil {
		t.Fatalf("idle Receive = %v, %v, want nil, nil", pkt, err)
	}
}

func TestReceivePacket(t *testing.T) {
	radio, spi, _ := newMockRadio(t, Options{})

	payload := []byte("Button A!\r\n")
	start := byte(0x10)
	spi.regs[regIrqFlags] = irqRxDone
	spi.regs[regRxNbBytes] = byte(headerLen + len(payload))
	spi.regs[regFifoRxCurrent] = start
	copy(spi.fifo[start:], append([]byte{broadcastAddr, broadcastAddr, 0x00, 0x00}, payload...))
	spi.regs[regPktRssiValue] = 95

	pkt, err := radio.Receive()
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if pkt == nil {
		t.Fatalf("Receive returned no packet")
	}
	if !bytes.Equal(pkt.Payload, payload) {
		t.Errorf("payload = %q, want %q", pkt.Payload, payload)
	}
	if pkt.RSSI != 95-137 {
		t.Errorf("rssi = %d, want %d", pkt.RSSI, 95-137)
	}
	if spi.regs[regIrqFlags] != 0 {
		t.Errorf("interrupt flags not cleared: 0x%02X", spi.regs[regIrqFlags])
	}

	// The FIFO was drained, the next poll is idle again.
	pkt, err = radio.Receive()
	if err != nil || pkt != nil {
		t.Fatalf("second Receive = %v, %v, want nil, nil", pkt, err)
	}
}

func TestReceiveCrcError(t *testing.T) {
	radio, spi, _ := newMockRadio(t, Options{})
	spi.regs[regIrqFlags] = irqRxDone | irqCrcError

	_, err := radio.Receive()
	if !errors.Is(err, ErrCRC) {
		t.Fatalf("got %v, want ErrCRC", err)
	}
	if spi.regs[regIrqFlags] != 0 {
		t.Errorf("interrupt flags not cleared after crc error: 0x%02X", spi.regs[regIrqFlags])
	}
}

func TestReceiveRuntPacket(t *testing.T) {
	radio, spi, _ := newMockRadio(t, Options{})
	spi.regs[regIrqFlags] = irqRxDone
	spi.regs[regRxNbBytes] = 3

	_, err := radio.Receive()
	if !errors.Is(err, ErrRunt) {
		t.Fatalf("got %v, want ErrRunt", err)
	}
	if spi.regs[regIrqFlags] != 0 {
		t.Errorf("interrupt flags not cleared after runt: 0x%02X", spi.regs[regIrqFlags])
	}
}

func TestSendFramesPayload(t *testing.T) {
	radio, spi, _ := newMockRadio(t, Options{})
	spi.autoTxDone = true

	payload := []byte("Button C!\r\n")
	if err := radio.Send(payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	wantFrame := append([]byte{broadcastAddr, broadcastAddr, 0x00, 0x00}, payload...)
	if !bytes.Equal(spi.fifo[:len(wantFrame)], wantFrame) {
		t.Errorf("fifo = % X, want % X", spi.fifo[:len(wantFrame)], wantFrame)
	}
	if int(spi.regs[regPayloadLength]) != len(wantFrame) {
		t.Errorf("payload length = %d, want %d", spi.regs[regPayloadLength], len(wantFrame))
	}
	if spi.regs[regOpMode] != modeLoRa|modeRxCont {
		t.Errorf("modem not back in rx, op mode 0x%02X", spi.regs[regOpMode])
	}
	if spi.regs[regIrqFlags]&irqTxDone != 0 {
		t.Errorf("TxDone not cleared")
	}
}

func TestSendRejectsOversizedPayload(t *testing.T) {
	radio, spi, _ := newMockRadio(t, Options{})
	calls := spi.txCalls
	err := radio.Send(make([]byte, MaxPayload+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("got %v, want ErrPayloadTooLarge", err)
	}
	if spi.txCalls != calls {
		t.Errorf("oversized payload still touched the bus")
	}
	if err := radio.Send(nil); err == nil {
		t.Errorf("empty payload accepted")
	}
}

func TestSendTimesOut(t *testing.T) {
	radio, spi, _ := newMockRadio(t, Options{TxTimeout: 20 * time.Millisecond})
	// autoTxDone stays false, the transmission never completes.
	err := radio.Send([]byte("x"))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if spi.regs[regOpMode] != modeLoRa|modeRxCont {
		t.Errorf("modem not returned to rx after timeout, op mode 0x%02X", spi.regs[regOpMode])
	}
}

func TestBusErrorsPropagate(t *testing.T) {
	radio, spi, _ := newMockRadio(t, Options{})
	spi.err = errors.New("bus gone")

	if _, err := radio.Receive(); err == nil {
		t.Errorf("Receive swallowed the bus error")
	}
	if err := radio.Send([]byte("x")); err == nil {
		t.Errorf("Send swallowed the bus error")
	}
}

func TestRSSIOffset(t *testing.T) {
	radio, spi, _ := newMockRadio(t, Options{})
	spi.regs[regPktRssiValue] = 137
	rssi, err := radio.RSSI()
	if err != nil {
		t.Fatalf("RSSI failed: %v", err)
	}
	if rssi != 0 {
		t.Errorf("rssi = %d, want 0 for raw 137", rssi)
	}
}
