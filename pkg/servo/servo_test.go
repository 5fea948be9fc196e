package servo

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarm/serial"
	"gonum.org/v1/gonum/mat"

	"github.com/minipupper/mpct/pkg/calibration"
	"github.com/minipupper/mpct/pkg/config"
)

type fakePort struct {
	bytes.Buffer
	closed bool
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestAngles(t *testing.T) {
	st := calibration.NewState(calibration.DefaultMatrix())
	values := calibration.StandardMatrix().PerLeg()

	m := Angles(st, values)
	r, c := m.Dims()
	require.Equal(t, calibration.Rows, r)
	require.Equal(t, calibration.Cols, c)

	// Baseline and reserved are equal right after load, so the preview is
	// the dialed pose itself.
	for r := 0; r < calibration.Rows; r++ {
		for c := 0; c < calibration.Cols; c++ {
			assert.Equal(t, float64(values[c][r]), m.At(r, c))
		}
	}
}

func TestEncodeFrame(t *testing.T) {
	angles := mat.NewDense(3, 4, []float64{
		0, 0, 0, 0,
		90, 90, 90, 90,
		-180, -180, -180, -180,
	})
	frame := EncodeFrame(calibration.DefaultMatrix(), angles)
	assert.Equal(t,
		"C 0 0 0 0 45 45 45 45 -45 -45 -45 -45;"+
			"A 0.0000 0.0000 0.0000 0.0000 1.5708 1.5708 1.5708 1.5708 -3.1416 -3.1416 -3.1416 -3.1416\n",
		frame)
}

func TestSerial(t *testing.T) {
	orig := openPort
	t.Cleanup(func() { openPort = orig })

	port := &fakePort{}
	var got *serial.Config
	openPort = func(c *serial.Config) (io.ReadWriteCloser, error) {
		got = c
		return port, nil
	}

	s, err := OpenSerial("/dev/ttyTEST", 115200)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyTEST", got.Name)
	assert.Equal(t, 115200, got.Baud)

	require.NoError(t, s.Apply(calibration.Matrix{}, mat.NewDense(3, 4, nil)))
	assert.Equal(t, "C 0 0 0 0 0 0 0 0 0 0 0 0;A 0.0000 0.0000 0.0000 0.0000 0.0000 0.0000 0.0000 0.0000 0.0000 0.0000 0.0000 0.0000\n", port.String())

	assert.Error(t, s.Apply(calibration.Matrix{}, mat.NewDense(4, 3, nil)))

	require.NoError(t, s.Close())
	assert.True(t, port.closed)

	openPort = func(*serial.Config) (io.ReadWriteCloser, error) {
		return nil, errors.New("no such device")
	}
	_, err = OpenSerial("/dev/ttyMISSING", 115200)
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	d, err := New(config.NewFileFromConfig(nil, ""))
	require.NoError(t, err)
	assert.IsType(t, Nop{}, d)
	assert.NoError(t, d.Apply(calibration.DefaultMatrix(), mat.NewDense(3, 4, nil)))
	assert.Error(t, d.Apply(calibration.DefaultMatrix(), mat.NewDense(1, 1, nil)))

	bad := "pwm"
	_, err = New(config.NewFileFromConfig(&config.RawFileConfig{ServoDriver: &bad}, ""))
	assert.Error(t, err)
}
