// Package rfm9x drives the HopeRF RFM95/96/97/98 LoRa modules (Semtech
// SX1276 family) at register level. The driver covers what a packet relay
// needs: bring the modem into LoRa mode, tune frequency and transmit power,
// poll for received packets without blocking and fire single transmissions
// with a bounded wait for completion. Addressing stays in broadcast mode and
// packets carry the common 4-byte to/from/id/flags header, so stock
// firmware on the peer device understands them unchanged.
//
// The driver talks to the module through the two small interfaces SPI and
// Pin. Production code binds them to periph.io via Open, tests inject
// in-memory fakes.
package rfm9x

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// SPI is the minimal bus surface the driver needs. Tx performs one
// full-duplex transfer: w is clocked out while r, of equal length, is
// filled with the bytes clocked in.
type SPI interface {
	Tx(w, r []byte) error
}

// Pin drives the active-low reset line of the module.
type Pin interface {
	Out(high bool) error
}

var (
	// ErrBadVersion means the silicon did not identify as an SX1276.
	// Usually a wiring or chip-select problem rather than a broken chip.
	ErrBadVersion = errors.New("rfm9x: unexpected silicon version")
	// ErrTimeout means a transmission did not complete within TxTimeout.
	ErrTimeout = errors.New("rfm9x: tx timeout")
	// ErrCRC marks a received packet whose payload CRC did not check out.
	ErrCRC = errors.New("rfm9x: payload crc mismatch")
	// ErrRunt marks a received packet too short to carry the packet
	// header.
	ErrRunt = errors.New("rfm9x: runt packet")
	// ErrPayloadTooLarge rejects payloads beyond MaxPayload bytes.
	ErrPayloadTooLarge = errors.New("rfm9x: payload too large")
)

// MaxPayload is the largest payload Send accepts: the 255 byte FIFO minus
// the 4 byte header.
const MaxPayload = 251

// Register addresses of the SX1276 in LoRa mode.
const (
	regFifo           = 0x00
	regOpMode         = 0x01
	regFrfMsb         = 0x06
	regFrfMid         = 0x07
	regFrfLsb         = 0x08
	regPaConfig       = 0x09
	regFifoAddrPtr    = 0x0D
	regFifoTxBaseAddr = 0x0E
	regFifoRxBaseAddr = 0x0F
	regFifoRxCurrent  = 0x10
	regIrqFlags       = 0x12
	regRxNbBytes      = 0x13
	regPktSnrValue    = 0x19
	regPktRssiValue   = 0x1A
	regModemConfig1   = 0x1D
	regModemConfig2   = 0x1E
	regPreambleMsb    = 0x20
	regPreambleLsb    = 0x21
	regPayloadLength  = 0x22
	regModemConfig3   = 0x26
	regVersion        = 0x42
	regPaDac          = 0x4D
)

// Operating modes, always combined with the LoRa long range bit.
const (
	modeLoRa    = 0x80
	modeSleep   = 0x00
	modeStandby = 0x01
	modeTx      = 0x03
	modeRxCont  = 0x05
)

// Interrupt flag bits.
const (
	irqTxDone     = 0x08
	irqCrcError   = 0x20
	irqRxDone     = 0x40
	irqClearAll   = 0xFF
	versionSX1276 = 0x12
)

// Options tunes the modem. The zero value is completed by sensible
// defaults for the 915 MHz band.
type Options struct {
	// FrequencyMHz is the carrier frequency, 915.0 when zero.
	FrequencyMHz float64
	// TxPower is the transmit power in dBm on the PA_BOOST output,
	// valid range 5 to 23, 13 when zero.
	TxPower int
	// PreambleLength is the LoRa preamble length in symbols, 8 when
	// zero.
	PreambleLength uint16
	// TxTimeout bounds the wait for a transmission to finish, 2s when
	// zero.
	TxTimeout time.Duration
}

func (o *Options) fillDefaults() {
	if o.FrequencyMHz == 0 {
		o.FrequencyMHz = 915.0
	}
	if o.TxPower == 0 {
		o.TxPower = 13
	}
	if o.PreambleLength == 0 {
		o.PreambleLength = 8
	}
	if o.TxTimeout == 0 {
		o.TxTimeout = 2 * time.Second
	}
}

// Packet is one received transmission with the header already stripped.
type Packet struct {
	Payload []byte
	// RSSI of the packet in dBm.
	RSSI int
}

// Radio is a handle on one RFM9x module. All methods are safe for
// concurrent use; the SPI transactions of one operation never interleave
// with another's.
type Radio struct {
	mu     sync.Mutex
	spi    SPI
	rst    Pin
	opts   Options
	closer func() error
}

// New resets the module and configures it for LoRa operation: 125 kHz
// bandwidth, coding rate 4/5, spreading factor 7, explicit headers. The
// modem is left in continuous receive. New fails when the chip does not
// answer with the expected version, the usual sign of a miswired bus.
func New(spi SPI, rst Pin, opts Options) (*Radio, error) {
	opts.fillDefaults()
	if opts.TxPower < 5 || opts.TxPower > 23 {
		return nil, fmt.Errorf("rfm9x: tx power %d out of range 5..23", opts.TxPower)
	}
	r := &Radio{spi: spi, rst: rst, opts: opts}
	if err := r.init(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Radio) init() error {
	if err := r.reset(); err != nil {
		return fmt.Errorf("rfm9x: reset: %w", err)
	}

	version, err := r.readReg(regVersion)
	if err != nil {
		return fmt.Errorf("rfm9x: reading version: %w", err)
	}
	if version != versionSX1276 {
		return fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrBadVersion, version, versionSX1276)
	}

	// The LoRa bit can only be flipped while the modem sleeps.
	if err := r.writeReg(regOpMode, modeSleep); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	if err := r.writeReg(regOpMode, modeLoRa|modeSleep); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	mode, err := r.readReg(regOpMode)
	if err != nil {
		return err
	}
	if mode&modeLoRa == 0 {
		return fmt.Errorf("rfm9x: modem refused LoRa mode, op mode 0x%02X", mode)
	}

	// Use the full FIFO for either direction, we never do both at once.
	if err := r.writeReg(regFifoTxBaseAddr, 0x00); err != nil {
		return err
	}
	if err := r.writeReg(regFifoRxBaseAddr, 0x00); err != nil {
		return err
	}
	if err := r.setMode(modeStandby); err != nil {
		return err
	}

	if err := r.setFrequency(r.opts.FrequencyMHz); err != nil {
		return err
	}

	// BW 125 kHz, CR 4/5, explicit header / SF7, CRC off / defaults.
	if err := r.writeReg(regModemConfig1, 0x72); err != nil {
		return err
	}
	if err := r.writeReg(regModemConfig2, 0x70); err != nil {
		return err
	}
	if err := r.writeReg(regModemConfig3, 0x00); err != nil {
		return err
	}

	if err := r.writeReg(regPreambleMsb, byte(r.opts.PreambleLength>>8)); err != nil {
		return err
	}
	if err := r.writeReg(regPreambleLsb, byte(r.opts.PreambleLength)); err != nil {
		return err
	}

	if err := r.setTxPower(r.opts.TxPower); err != nil {
		return err
	}

	return r.setMode(modeRxCont)
}

// reset pulses the active-low reset line.
func (r *Radio) reset() error {
	if err := r.rst.Out(true); err != nil {
		return err
	}
	if err := r.rst.Out(false); err != nil {
		return err
	}
	time.Sleep(100 * time.Microsecond)
	if err := r.rst.Out(true); err != nil {
		return err
	}
	time.Sleep(5 * time.Millisecond)
	return nil
}

// setFrequency programs the carrier. The PLL steps in units of
// 32 MHz / 2^19, just under 61.04 Hz.
func (r *Radio) setFrequency(mhz float64) error {
	hz := uint64(mhz * 1e6)
	frf := (hz << 19) / 32_000_000
	if err := r.writeReg(regFrfMsb, byte(frf>>16)); err != nil {
		return err
	}
	if err := r.writeReg(regFrfMid, byte(frf>>8)); err != nil {
		return err
	}
	return r.writeReg(regFrfLsb, byte(frf))
}

// setTxPower configures the PA_BOOST output. Levels above 20 dBm need the
// high power DAC, which trades 3 dB of its own.
func (r *Radio) setTxPower(dbm int) error {
	dac := byte(0x04)
	if dbm > 20 {
		dac = 0x07
		dbm -= 3
	}
	if err := r.writeReg(regPaDac, dac); err != nil {
		return err
	}
	return r.writeReg(regPaConfig, 0x80|byte(dbm-5))
}

func (r *Radio) setMode(mode byte) error {
	return r.writeReg(regOpMode, modeLoRa|mode)
}

// Receive polls for a pending packet and returns immediately. No packet
// yields (nil, nil). A packet that arrived broken yields ErrCRC or ErrRunt
// with the FIFO already cleaned up, so the next call starts fresh.
func (r *Radio) Receive() (*Packet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	flags, err := r.readReg(regIrqFlags)
	if err != nil {
		return nil, err
	}
	if flags&irqRxDone == 0 {
		return nil, nil
	}
	// Whatever happens below, the interrupt must not stick around.
	defer r.writeReg(regIrqFlags, irqClearAll)

	if flags&irqCrcError != 0 {
		return nil, ErrCRC
	}

	n, err := r.readReg(regRxNbBytes)
	if err != nil {
		return nil, err
	}

	current, err := r.readReg(regFifoRxCurrent)
	if err != nil {
		return nil, err
	}
	if err := r.writeReg(regFifoAddrPtr, current); err != nil {
		return nil, err
	}
	raw, err := r.readBurst(regFifo, int(n))
	if err != nil {
		return nil, err
	}
	_, payload, ok := splitFrame(raw)
	if !ok {
		return nil, ErrRunt
	}

	rssi, err := r.readReg(regPktRssiValue)
	if err != nil {
		return nil, err
	}

	return &Packet{
		Payload: payload,
		RSSI:    int(rssi) - 137,
	}, nil
}

// Send transmits one payload with a broadcast header and waits for the
// modem to finish, bounded by TxTimeout. The modem is back in continuous
// receive when Send returns, whether the transmission succeeded or not.
func (r *Radio) Send(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("rfm9x: empty payload")
	}
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(payload), MaxPayload)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.setMode(modeStandby); err != nil {
		return err
	}
	if err := r.writeReg(regFifoAddrPtr, 0x00); err != nil {
		return err
	}

	frame := buildFrame(header{Dest: broadcastAddr, Src: broadcastAddr}, payload)
	if err := r.writeBurst(regFifo, frame); err != nil {
		return err
	}
	if err := r.writeReg(regPayloadLength, byte(len(frame))); err != nil {
		return err
	}

	if err := r.setMode(modeTx); err != nil {
		return err
	}

	deadline := time.Now().Add(r.opts.TxTimeout)
	for {
		flags, err := r.readReg(regIrqFlags)
		if err != nil {
			r.setMode(modeRxCont)
			return err
		}
		if flags&irqTxDone != 0 {
			break
		}
		if time.Now().After(deadline) {
			r.setMode(modeRxCont)
			return ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}
	if err := r.writeReg(regIrqFlags, irqClearAll); err != nil {
		return err
	}
	return r.setMode(modeRxCont)
}

// RSSI reads the signal strength of the most recent packet in dBm.
func (r *Radio) RSSI() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, err := r.readReg(regPktRssiValue)
	if err != nil {
		return 0, err
	}
	return int(raw) - 137, nil
}

// Sleep puts the modem into its lowest power mode. Receive returns nothing
// until the next Send or a new Radio wakes it up again.
func (r *Radio) Sleep() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setMode(modeSleep)
}

// Close puts the modem to sleep and releases the underlying bus when the
// Radio owns it.
func (r *Radio) Close() error {
	err := r.Sleep()
	if r.closer != nil {
		if cerr := r.closer(); err == nil {
			err = cerr
		}
	}
	return err
}

// The wire format is one address byte, top bit set for writes, followed by
// the data bytes. Reading clocks out dummy bytes while the answer comes in
// on the other line.

func (r *Radio) readReg(addr byte) (byte, error) {
	buf, err := r.readBurst(addr, 1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (r *Radio) readBurst(addr byte, n int) ([]byte, error) {
	w := make([]byte, n+1)
	w[0] = addr & 0x7F
	in := make([]byte, n+1)
	if err := r.spi.Tx(w, in); err != nil {
		return nil, fmt.Errorf("rfm9x: spi read 0x%02X: %w", addr, err)
	}
	return in[1:], nil
}

func (r *Radio) writeReg(addr, value byte) error {
	return r.writeBurst(addr, []byte{value})
}

func (r *Radio) writeBurst(addr byte, data []byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, addr|0x80)
	w = append(w, data...)
	in := make([]byte, len(w))
	if err := r.spi.Tx(w, in); err != nil {
		return fmt.Errorf("rfm9x: spi write 0x%02X: %w", addr, err)
	}
	return nil
}
