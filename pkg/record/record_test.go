package record

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minipupper/mpct/pkg/calibration"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nv_file")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    calibration.Matrix
		wantErr error
	}{
		{
			name:    "integers",
			content: "[1, 2, 3, 4]\n[5, 6, 7, 8]\n[-9, -10, -11, -12]\n",
			want:    calibration.Matrix{{1, 2, 3, 4}, {5, 6, 7, 8}, {-9, -10, -11, -12}},
		},
		{
			name:    "decimals round half away from zero",
			content: "[0.4, 0.5, -0.5, -1.49]\n[45.0, 44.6, 2., 10]\n[-45, -45.5, .5, -0.0]",
			want:    calibration.Matrix{{0, 1, -1, -1}, {45, 45, 2, 10}, {-45, -46, 1, 0}},
		},
		{
			name:    "trailing commas, padding and extra lines",
			content: "  [0,0,0,0],\r\n[45 ,45, 45,45 ],\n[-45, -45, -45, -45]\n\x00\x00\x00garbage\n",
			want:    calibration.DefaultMatrix(),
		},
		{
			name:    "fewer than three lines",
			content: "[0, 0, 0, 0]\n[45, 45, 45, 45]\n",
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "empty",
			content: "",
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "three values",
			content: "[0, 0, 0]\n[45, 45, 45, 45]\n[-45, -45, -45, -45]\n",
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "five values",
			content: "[0, 0, 0, 0, 0]\n[45, 45, 45, 45]\n[-45, -45, -45, -45]\n",
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "expression",
			content: "[0, 0, 0, 0]\n[45, 45, 45, __import__('os')]\n[-45, -45, -45, -45]\n",
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "arithmetic",
			content: "[0, 0, 0, 1+1]\n[45, 45, 45, 45]\n[-45, -45, -45, -45]\n",
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "exponent",
			content: "[0, 0, 0, 1e3]\n[45, 45, 45, 45]\n[-45, -45, -45, -45]\n",
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "unbracketed legacy blob",
			content: " 0, 0, 0, 0,\n 45, 45, 45, 45,\n -45, -45, -45, -45,\n",
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "empty element",
			content: "[0, , 0, 0]\n[45, 45, 45, 45]\n[-45, -45, -45, -45]\n",
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "two dots",
			content: "[0, 1.2.3, 0, 0]\n[45, 45, 45, 45]\n[-45, -45, -45, -45]\n",
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "decimal rounding past the int range",
			content: "[9223372036854775807.5, 0, 0, 0]\n[45, 45, 45, 45]\n[-45, -45, -45, -45]\n",
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "negative decimal past the int range",
			content: "[-9223372036854777856.0, 0, 0, 0]\n[45, 45, 45, 45]\n[-45, -45, -45, -45]\n",
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "integer past the int range",
			content: "[9223372036854775808, 0, 0, 0]\n[45, 45, 45, 45]\n[-45, -45, -45, -45]\n",
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "line too long",
			content: "[" + strings.Repeat(" ", 1024) + "0, 0, 0, 0]\n[45, 45, 45, 45]\n[-45, -45, -45, -45]\n",
			wantErr: ErrMalformedRecord,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tt.content))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageUnavailable))
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
		want error
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing") },
			want: ErrStorageUnavailable,
		},
		{
			name: "directory",
			path: func(t *testing.T) string { return t.TempDir() },
			want: ErrStorageUnavailable,
		},
		{
			name: "short file",
			path: func(t *testing.T) string { return writeFile(t, "[1, 2, 3, 4]\n") },
			want: ErrMalformedRecord,
		},
		{
			name: "non numeric",
			path: func(t *testing.T) string { return writeFile(t, "[a, b, c, d]\n[1, 2, 3, 4]\n[1, 2, 3, 4]\n") },
			want: ErrMalformedRecord,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := LoadOrDefault(tt.path(t))
			assert.Equal(t, calibration.DefaultMatrix(), m)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestLoadSaveLoadIdempotent(t *testing.T) {
	path := writeFile(t, "[3, -2, 0, 1]\n[40, 41.5, 42, 43]\n[-50, -51, -52, -53]\n")

	first, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, Save(path, first))

	second, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSaveCreatesAndFormats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nv_file")
	m := calibration.Matrix{{90, -90, 0, 1}, {45, 45, 45, 45}, {-45, -45, -45, -45}}

	require.NoError(t, Save(path, m))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[90, -90, 0, 1]\n[45, 45, 45, 45]\n[-45, -45, -45, -45]\n", string(b))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	// No temporary files are left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveOverwritesMalformed(t *testing.T) {
	path := writeFile(t, "garbage that is much longer than the record we are about to write\n\n\n\n")

	require.NoError(t, Save(path, calibration.DefaultMatrix()))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, calibration.DefaultMatrix(), got)
}

func TestSaveUnwritableDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does", "not", "exist", "nv_file")
	err := Save(path, calibration.DefaultMatrix())
	assert.Error(t, err)
}

func TestFormatParseInverse(t *testing.T) {
	m := calibration.Matrix{{-1, 0, 1, 2}, {3, 4, 5, 6}, {-7, -8, -9, -10}}
	got, err := Parse(strings.NewReader(string(Format(m))))
	require.NoError(t, err)
	assert.Equal(t, m, got)
}
