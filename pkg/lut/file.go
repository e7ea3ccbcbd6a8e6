package lut

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// tableFile is the YAML layout of a table file.
type tableFile struct {
	IndexMode string `yaml:"index_mode"`
	Scale     int    `yaml:"scale"`
	Values    []int  `yaml:"values,flow"`
}

// Load reads a table file. Files ending in ".h" are parsed as C headers,
// everything else as YAML.
func Load(filename string) (*Table, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read table file: %w", err)
	}

	if isHeader(filename) {
		return ParseHeader(bytes.NewReader(data))
	}
	return parseYAML(data)
}

// Save writes the table to filename, choosing the format by extension like Load.
func (t *Table) Save(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	defer f.Close()

	if isHeader(filename) {
		err = t.WriteHeader(f)
	} else {
		err = t.WriteYAML(f)
	}
	if err != nil {
		return err
	}

	return f.Close()
}

// WriteYAML encodes the table as YAML.
func (t *Table) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()

	if err := enc.Encode(tableFile{
		IndexMode: t.index.String(),
		Scale:     int(t.scale),
		Values:    t.values,
	}); err != nil {
		return fmt.Errorf("failed to marshal table: %w", err)
	}
	return nil
}

func parseYAML(data []byte) (*Table, error) {
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse table file: %w", err)
	}

	mode := IndexRaw
	if tf.IndexMode != "" {
		m, err := ParseIndexMode(tf.IndexMode)
		if err != nil {
			return nil, err
		}
		mode = m
	}

	scale := Scale(tf.Scale)
	if scale == 0 {
		scale = ScaleWhole
	}

	return New(tf.Values, scale, mode)
}

var (
	defineRe = regexp.MustCompile(`(?m)^\s*#\s*define\s+(LUT_SIZE|LUT_SCALE|LUT_INDEX_IS_MV)\s+(-?\d+)`)
	arrayRe  = regexp.MustCompile(`(?s)lookup_table\s*\[[^\]]*\]\s*=\s*\{(.*?)\}`)
	blockRe  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineRe   = regexp.MustCompile(`//[^\n]*`)
)

// ParseHeader reads a firmware-style C header declaring LUT_SIZE, LUT_SCALE,
// LUT_INDEX_IS_MV and a lookup_table[] initializer.
//
// Missing macros follow preprocessor semantics: without LUT_INDEX_IS_MV the
// table is raw-indexed, and any LUT_SCALE other than 1 (including an absent
// one) means tenths.
func ParseHeader(r io.Reader) (*Table, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	text := lineRe.ReplaceAllString(blockRe.ReplaceAllString(string(src), ""), "")

	defines := map[string]int{}
	for _, m := range defineRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTable, m[1], err)
		}
		defines[m[1]] = n
	}

	body := arrayRe.FindStringSubmatch(text)
	if body == nil {
		return nil, fmt.Errorf("%w: lookup_table initializer not found", ErrInvalidTable)
	}

	var values []int
	for _, field := range strings.Split(body[1], ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidTable, len(values), err)
		}
		values = append(values, n)
	}

	if size, ok := defines["LUT_SIZE"]; ok && size != len(values) {
		return nil, fmt.Errorf("%w: LUT_SIZE is %d but table has %d entries", ErrInvalidTable, size, len(values))
	}

	mode := IndexRaw
	if defines["LUT_INDEX_IS_MV"] == 1 {
		mode = IndexMillivolts
	}
	scale := ScaleTenths
	if defines["LUT_SCALE"] == 1 {
		scale = ScaleWhole
	}

	return New(values, scale, mode)
}

// WriteHeader encodes the table as a C header understood by ParseHeader and
// the firmware build.
func (t *Table) WriteHeader(w io.Writer) error {
	bw := bufio.NewWriter(w)

	indexIsMV := 0
	if t.index == IndexMillivolts {
		indexIsMV = 1
	}

	fmt.Fprintf(bw, "#pragma once\n#include <stdint.h>\n\n")
	fmt.Fprintf(bw, "#define LUT_SIZE %d\n", len(t.values))
	fmt.Fprintf(bw, "#define LUT_SCALE %d\n", int(t.scale))
	fmt.Fprintf(bw, "#define LUT_INDEX_IS_MV %d\n\n", indexIsMV)
	fmt.Fprintf(bw, "static const uint16_t lookup_table[LUT_SIZE] = {\n")

	const perLine = 16
	for i, v := range t.values {
		if i%perLine == 0 {
			bw.WriteString("   ")
		}
		fmt.Fprintf(bw, " %d,", v)
		if i%perLine == perLine-1 || i == len(t.values)-1 {
			bw.WriteByte('\n')
		}
	}
	bw.WriteString("};\n")

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

func isHeader(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".h")
}
