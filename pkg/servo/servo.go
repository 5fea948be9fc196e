// Package servo hands joint angles to whatever moves the servos.
package servo

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
	"gonum.org/v1/gonum/mat"

	"github.com/minipupper/mpct/pkg/calibration"
	"github.com/minipupper/mpct/pkg/config"
)

// Driver moves the servos.
type Driver interface {
	// Apply sets the servos to angles, a Rows×Cols matrix in degrees indexed
	// [joint][leg], using correction as the active calibration.
	Apply(correction calibration.Matrix, angles *mat.Dense) error
	Close() error
}

// New returns the driver configured in c.
func New(c config.Config) (Driver, error) {
	switch c.ServoDriver() {
	case config.ServoDriverNone, "":
		return Nop{}, nil
	case config.ServoDriverSerial:
		return OpenSerial(c.ServoPort(), c.ServoBaud())
	default:
		return nil, pkgerrors.Errorf("unknown servo driver %q", c.ServoDriver())
	}
}

// Angles returns the preview pose for values as a matrix.
func Angles(st *calibration.State, values calibration.PerLeg) *mat.Dense {
	a := calibration.PreviewAngles(st, values)
	m := mat.NewDense(calibration.Rows, calibration.Cols, nil)
	for r := 0; r < calibration.Rows; r++ {
		m.SetRow(r, a[r][:])
	}
	return m
}

func checkDims(angles *mat.Dense) error {
	r, c := angles.Dims()
	if r != calibration.Rows || c != calibration.Cols {
		return pkgerrors.Errorf("angles must be %dx%d, got %dx%d", calibration.Rows, calibration.Cols, r, c)
	}
	return nil
}

// Nop only logs what it would have sent.
type Nop struct{}

func (Nop) Apply(correction calibration.Matrix, angles *mat.Dense) error {
	if err := checkDims(angles); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"correction": correction.String(),
		"angles":     fmt.Sprintf("%v", mat.Formatted(angles, mat.Squeeze())),
	}).Trace("servo apply")
	return nil
}

func (Nop) Close() error { return nil }

var openPort = func(c *serial.Config) (io.ReadWriteCloser, error) {
	return serial.OpenPort(c)
}

// Serial writes one text frame per Apply to a servo bridge on a serial line.
//
// A frame is a single line:
//
//	C <12 correction ints>;A <12 angles in radians>\n
//
// Both halves are in [joint][leg] row-major order.
type Serial struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
	name string
}

// OpenSerial opens the servo bridge at name.
func OpenSerial(name string, baud int) (*Serial, error) {
	p, err := openPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open servo port %s", name)
	}

	logrus.WithFields(logrus.Fields{
		"port": name,
		"baud": baud,
	}).Debug("servo port opened")

	return &Serial{port: p, name: name}, nil
}

func (s *Serial) Apply(correction calibration.Matrix, angles *mat.Dense) error {
	if err := checkDims(angles); err != nil {
		return err
	}

	frame := EncodeFrame(correction, angles)

	s.mu.Lock()
	defer s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"port":  s.name,
		"frame": strings.TrimSpace(frame),
	}).Trace("Trying to write servo frame")

	if _, err := io.WriteString(s.port, frame); err != nil {
		return pkgerrors.Wrapf(err, "failed to write servo frame to %s", s.name)
	}
	return nil
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}

// EncodeFrame renders a serial frame. angles must be in degrees.
func EncodeFrame(correction calibration.Matrix, angles *mat.Dense) string {
	var rad mat.Dense
	rad.Scale(math.Pi/180, angles)

	var b strings.Builder
	b.WriteString("C")
	for r := 0; r < calibration.Rows; r++ {
		for c := 0; c < calibration.Cols; c++ {
			fmt.Fprintf(&b, " %d", correction[r][c])
		}
	}
	b.WriteString(";A")
	for r := 0; r < calibration.Rows; r++ {
		for c := 0; c < calibration.Cols; c++ {
			fmt.Fprintf(&b, " %.4f", rad.At(r, c))
		}
	}
	b.WriteString("\n")
	return b.String()
}
