package platform

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"holzapfel.net/gorelay/config"
	"holzapfel.net/gorelay/relay"
	"holzapfel.net/gorelay/rfm9x"
)

// RaspberryPiPlatform runs the relay on the real hardware: an RFM9x
// transceiver on SPI, an SSD1306 OLED panel on I2C and three pushbuttons
// on GPIO.
type RaspberryPiPlatform struct {
	*AbstractPlatform
	radio     *rfm9x.Radio
	oled      *oledDisplay
	gpiobtns  *gpioButtons
	readyChan chan bool
}

func NewRaspberryPiPlatform(conf *config.Config) *RaspberryPiPlatform {
	inst := &RaspberryPiPlatform{
		readyChan: make(chan bool),
	}
	inst.AbstractPlatform = newAbstractPlatform(conf)
	return inst
}

func (s *RaspberryPiPlatform) Ready() <-chan bool {
	return s.readyChan
}

func (s *RaspberryPiPlatform) Start() error {
	slog.Info("Initialise GPIO, SPI and I2C...")
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to init periph: %w", err)
	}

	rcfg := s.config.Hardware.Radio
	radio, err := rfm9x.Open(rcfg.SPIDevice, rcfg.SPIHz, rcfg.ResetPin, rfm9x.Options{
		FrequencyMHz: rcfg.FrequencyMHz,
		TxPower:      rcfg.TxPower,
	})
	if err != nil {
		return fmt.Errorf("failed to open radio: %w", err)
	}
	s.radio = radio
	s.trx = &rpiTransceiver{radio: radio}
	slog.Info("Radio up", "frequency", rcfg.FrequencyMHz, "txpower", rcfg.TxPower)

	oled, err := newOLEDDisplay(s.config.Hardware.Display)
	if err != nil {
		return err
	}
	s.oled = oled
	s.disp = oled

	btns, err := newGPIOButtons(s.config.Hardware.Buttons)
	if err != nil {
		return err
	}
	s.gpiobtns = btns
	s.btns = btns

	close(s.readyChan) // For RPi, we are ready immediately.
	return nil
}

func (s *RaspberryPiPlatform) Stop() {
	if s.gpiobtns != nil {
		s.gpiobtns.close()
		s.gpiobtns = nil
	}
	if s.oled != nil {
		s.oled.close()
		s.oled = nil
	}
	if s.radio != nil {
		if err := s.radio.Close(); err != nil {
			slog.Error("Error closing radio", "error", err)
		}
		s.radio = nil
	}
}

// rpiTransceiver adapts the RFM9x driver to the control loop port. Corrupt
// frames are RF noise, not link failures: they are logged and swallowed so
// the loop keeps polling instead of reporting a transport error.
type rpiTransceiver struct {
	radio *rfm9x.Radio
}

func (t *rpiTransceiver) TryReceive() (*relay.Packet, error) {
	pkt, err := t.radio.Receive()
	if err != nil {
		if errors.Is(err, rfm9x.ErrCRC) || errors.Is(err, rfm9x.ErrRunt) {
			slog.Debug("Discarding corrupt frame", "error", err)
			return nil, nil
		}
		return nil, err
	}
	if pkt == nil {
		return nil, nil
	}
	return &relay.Packet{Payload: pkt.Payload, RSSI: pkt.RSSI}, nil
}

func (t *rpiTransceiver) Send(payload []byte) error {
	return t.radio.Send(payload)
}

// oledDisplay drives the SSD1306 panel through an off-screen 1-bit image.
// Text is drawn into the image and pushed to the panel in one I2C burst on
// Flush, so the panel never shows a half drawn frame.
type oledDisplay struct {
	bus    i2c.BusCloser
	dev    *ssd1306.Dev
	img    *image1bit.VerticalLSB
	face   font.Face
	ascent int
}

func newOLEDDisplay(conf config.DisplayConfig) (*oledDisplay, error) {
	if conf.ResetPin >= 0 {
		if err := pulseDisplayReset(conf.ResetPin); err != nil {
			return nil, err
		}
	}

	bus, err := i2creg.Open(conf.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("failed to open i2c bus: %w", err)
	}
	dev, err := ssd1306.NewI2C(bus, &ssd1306.Opts{W: conf.Width, H: conf.Height})
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to init ssd1306: %w", err)
	}

	face := basicfont.Face7x13
	d := &oledDisplay{
		bus:    bus,
		dev:    dev,
		img:    image1bit.NewVerticalLSB(image.Rect(0, 0, conf.Width, conf.Height)),
		face:   face,
		ascent: face.Metrics().Ascent.Ceil(),
	}
	d.Clear()
	if err := d.Flush(); err != nil {
		bus.Close()
		return nil, err
	}
	return d, nil
}

// pulseDisplayReset toggles the panel reset line so the controller comes
// up in a known state even after a warm restart.
func pulseDisplayReset(pin int) error {
	rst := gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	if rst == nil {
		return fmt.Errorf("failed to find display reset pin %d", pin)
	}
	for _, step := range []struct {
		level gpio.Level
		hold  time.Duration
	}{
		{gpio.High, time.Millisecond},
		{gpio.Low, 10 * time.Millisecond},
		{gpio.High, 0},
	} {
		if err := rst.Out(step.level); err != nil {
			return fmt.Errorf("failed to drive display reset pin %d: %w", pin, err)
		}
		time.Sleep(step.hold)
	}
	return nil
}

func (d *oledDisplay) Clear() {
	for i := range d.img.Pix {
		d.img.Pix[i] = 0
	}
}

func (d *oledDisplay) DrawText(text string, x, y int) {
	// The caller positions the glyph's top left corner, the drawer its
	// baseline.
	drawer := font.Drawer{
		Dst:  d.img,
		Src:  &image.Uniform{C: image1bit.On},
		Face: d.face,
		Dot:  fixed.P(x, y+d.ascent),
	}
	drawer.DrawString(text)
}

func (d *oledDisplay) Flush() error {
	if err := d.dev.Draw(d.dev.Bounds(), d.img, image.Point{}); err != nil {
		return fmt.Errorf("failed to push frame to ssd1306: %w", err)
	}
	return nil
}

func (d *oledDisplay) SetContrast(contrast uint8) error {
	return d.dev.SetContrast(contrast)
}

func (d *oledDisplay) close() {
	if err := d.dev.Halt(); err != nil {
		slog.Error("Error halting display", "error", err)
	}
	if err := d.bus.Close(); err != nil {
		slog.Error("Error closing i2c bus", "error", err)
	}
}
