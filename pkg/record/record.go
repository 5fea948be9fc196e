// Package record reads and writes the persisted calibration record.
//
// A record is three text lines, one per joint row, each a bracketed list of
// four numbers:
//
//	[0, 0, 0, 0]
//	[45, 45, 45, 45]
//	[-45, -45, -45, -45]
//
// Anything after the third line is ignored, which lets the same code read a
// fixed-size EEPROM that is padded past the written data.
package record

import (
	"bufio"
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/minipupper/mpct/pkg/calibration"
)

var (
	// ErrMalformedRecord is returned when the record content cannot be parsed.
	ErrMalformedRecord = pkgerrors.New("malformed calibration record")

	// ErrStorageUnavailable is returned when the record cannot be opened or read.
	ErrStorageUnavailable = pkgerrors.New("calibration storage unavailable")
)

// maxLineLength bounds a single record line. Real lines are ~30 bytes.
const maxLineLength = 256

// Load reads the record at path.
func Load(path string) (calibration.Matrix, error) {
	fp, err := os.Open(path)
	if err != nil {
		return calibration.Matrix{}, pkgerrors.Wrapf(ErrStorageUnavailable, "failed to open %s: %v", path, err)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", path)
		}
	}(fp)

	m, err := Parse(fp)
	if err != nil {
		return calibration.Matrix{}, pkgerrors.Wrapf(err, "failed to load %s", path)
	}

	return m, nil
}

// LoadOrDefault is Load that never leaves the caller without a matrix. On any
// failure it returns the factory default together with the cause, which the
// caller should log but not treat as fatal.
func LoadOrDefault(path string) (calibration.Matrix, error) {
	m, err := Load(path)
	if err != nil {
		return calibration.DefaultMatrix(), err
	}
	return m, nil
}

// Parse reads the first three lines of r as matrix rows.
func Parse(r io.Reader) (calibration.Matrix, error) {
	var m calibration.Matrix

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, maxLineLength), maxLineLength)

	for row := 0; row < calibration.Rows; row++ {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				if pkgerrors.Is(err, bufio.ErrTooLong) {
					return m, pkgerrors.Wrapf(ErrMalformedRecord, "line %d too long", row+1)
				}
				return m, pkgerrors.Wrapf(ErrStorageUnavailable, "failed to read line %d: %v", row+1, err)
			}
			return m, pkgerrors.Wrapf(ErrMalformedRecord, "expected %d lines, got %d", calibration.Rows, row)
		}

		values, err := parseRow(sc.Text())
		if err != nil {
			return m, pkgerrors.Wrapf(err, "line %d", row+1)
		}
		m[row] = values
	}

	return m, nil
}

// parseRow accepts "[n0, n1, n2, n3]" with an optional trailing comma.
func parseRow(line string) ([calibration.Cols]int, error) {
	var out [calibration.Cols]int

	line = strings.Trim(line, " \t\r\x00")
	line = strings.TrimSuffix(line, ",")
	line = strings.TrimRight(line, " \t")

	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return out, pkgerrors.Wrapf(ErrMalformedRecord, "%q is not a bracketed list", line)
	}
	body := line[1 : len(line)-1]

	fields := strings.Split(body, ",")
	if len(fields) != calibration.Cols {
		return out, pkgerrors.Wrapf(ErrMalformedRecord, "expected %d values, got %d in %q", calibration.Cols, len(fields), line)
	}

	for i, f := range fields {
		v, err := parseNumber(strings.TrimSpace(f))
		if err != nil {
			return out, err
		}
		out[i] = v
	}

	return out, nil
}

// parseNumber accepts an optionally negative integer or decimal literal and
// rounds decimals half away from zero.
func parseNumber(s string) (int, error) {
	if s == "" {
		return 0, pkgerrors.Wrap(ErrMalformedRecord, "empty value")
	}

	digits, dots := 0, 0
	for i, ch := range s {
		switch {
		case ch >= '0' && ch <= '9':
			digits++
		case ch == '-' && i == 0:
		case ch == '.':
			dots++
		default:
			return 0, pkgerrors.Wrapf(ErrMalformedRecord, "invalid character %q in %q", ch, s)
		}
	}
	if digits == 0 || dots > 1 {
		return 0, pkgerrors.Wrapf(ErrMalformedRecord, "%q is not a number", s)
	}

	if dots == 0 {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, pkgerrors.Wrapf(ErrMalformedRecord, "%q: %v", s, err)
		}
		return v, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, pkgerrors.Wrapf(ErrMalformedRecord, "%q: %v", s, err)
	}
	r := math.Round(f)
	// 2^63 is the first float above the int range.
	if r >= 0x1p63 || r < -0x1p63 {
		return 0, pkgerrors.Wrapf(ErrMalformedRecord, "%q out of range", s)
	}
	return int(r), nil
}

// Format renders m in the exact form Parse reads.
func Format(m calibration.Matrix) []byte {
	var buf bytes.Buffer
	for r := 0; r < calibration.Rows; r++ {
		buf.WriteByte('[')
		for c := 0; c < calibration.Cols; c++ {
			if c > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(strconv.Itoa(m[r][c]))
		}
		buf.WriteString("]\n")
	}
	return buf.Bytes()
}

// Save writes m to path. Regular files are replaced atomically through a
// temporary file in the same directory. Device files such as a sysfs nvmem
// node cannot be renamed over, so they are written in place with one write.
func Save(path string, m calibration.Matrix) error {
	data := Format(m)

	fi, err := os.Stat(path)
	switch {
	case err == nil && !fi.Mode().IsRegular():
		return writeInPlace(path, data)
	case err == nil, os.IsNotExist(err):
		return writeAtomic(path, data)
	default:
		return pkgerrors.Wrapf(err, "failed to stat %s", path)
	}
}

func writeInPlace(path string, data []byte) error {
	logrus.WithField("path", path).Debug("writing calibration record in place")

	fp, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open %s", path)
	}

	_, err = fp.Write(data)
	if err != nil {
		_ = fp.Close()
		return pkgerrors.Wrapf(err, "failed to write %s", path)
	}

	// Not every device supports fsync.
	if err := fp.Sync(); err != nil {
		logrus.WithError(err).Debugf("sync %s", path)
	}

	return pkgerrors.Wrapf(fp.Close(), "failed to close %s", path)
}

func writeAtomic(path string, data []byte) error {
	logrus.WithField("path", path).Debug("writing calibration record atomically")

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create temporary file in %s", dir)
	}
	tmpPath := tmp.Name()
	defer func() {
		// No-op once the rename succeeded.
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return pkgerrors.Wrapf(err, "failed to write %s", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return pkgerrors.Wrapf(err, "failed to sync %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return pkgerrors.Wrapf(err, "failed to close %s", tmpPath)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to chmod %s", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return pkgerrors.Wrapf(err, "failed to replace %s", path)
	}

	return nil
}
