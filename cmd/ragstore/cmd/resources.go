package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ragstore/ragstore/internal/errors"
	"github.com/ragstore/ragstore/internal/store"
)

// loadResources reads resources from a JSON array file or a JSONL file, one
// record per line. "-" reads stdin.
func loadResources(path string) ([]*store.Resource, error) {
	var reader io.Reader
	if path == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("open resources file %s", path), err)
		}
		defer file.Close()
		reader = file
	}
	return parseResources(reader)
}

func parseResources(r io.Reader) ([]*store.Resource, error) {
	buffered := bufio.NewReader(r)

	// A leading '[' means one JSON array; anything else is JSONL.
	first, err := peekNonSpace(buffered)
	if err != nil {
		return nil, errors.ConfigError("resources input is empty", err)
	}

	if first == '[' {
		var resources []*store.Resource
		if err := json.NewDecoder(buffered).Decode(&resources); err != nil {
			return nil, errors.ConfigError("parse resources JSON array", err)
		}
		return resources, nil
	}

	var resources []*store.Resource
	scanner := bufio.NewScanner(buffered)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		resource := &store.Resource{}
		if err := json.Unmarshal([]byte(text), resource); err != nil {
			return nil, errors.ConfigError(
				fmt.Sprintf("parse resources JSONL line %d", line), err)
		}
		resources = append(resources, resource)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.ConfigError("read resources input", err)
	}
	return resources, nil
}

func peekNonSpace(r *bufio.Reader) (byte, error) {
	for {
		b, err := r.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\n', '\r':
			if _, err := r.ReadByte(); err != nil {
				return 0, err
			}
		default:
			return b[0], nil
		}
	}
}
