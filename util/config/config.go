// Copyright 2018 The Chubao Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package config loads crawld's JSON config file: mount path, state
// directory, crawl policy, worker count, poll/writeback intervals and
// the send-workaround flag all come from one flat key/value document.
package config

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io/ioutil"
	"log"
	"strconv"
	"unicode/utf8"
)

const (
	CommentMarker rune = '#'
	QuoteMarker   rune = '"'
)

// Config holds the flat key/value document crawld is configured from.
type Config struct {
	data map[string]interface{}
	Raw  []byte
}

func newConfig() *Config {
	result := new(Config)
	result.data = make(map[string]interface{})
	return result
}

// LoadConfigFile loads config information from a JSON file, tolerating
// shell-style '#' line comments outside of quoted strings.
func LoadConfigFile(filename string) (*Config, error) {
	result := newConfig()
	err := result.parse(filename)
	if err != nil {
		log.Printf("error loading config file %s: %s", filename, err)
	}
	return result, err
}

// LoadConfigString loads config information from a JSON string, used
// by tests that would otherwise need a config file on disk.
func LoadConfigString(s string) *Config {
	result := newConfig()
	err := result.parseBytes([]byte(s))
	if err != nil {
		log.Fatalf("error parsing config string %s: %s", s, err)
	}
	return result
}

func (c *Config) parse(fileName string) error {
	confBytes, err := ioutil.ReadFile(fileName)
	if err != nil {
		return err
	}
	return c.parseBytes(confBytes)
}

func (c *Config) parseBytes(confBytes []byte) error {
	jsonRawBytes := trimComments(confBytes)
	c.Raw = jsonRawBytes
	return json.Unmarshal(jsonRawBytes, &c.data)
}

func trimComments(data []byte) (trimRes []byte) {
	trimRes = make([]byte, 0, len(data))
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lineBytes := scanner.Bytes()
		lineTrimRes := trimLineComments(lineBytes)
		trimRes = append(trimRes, lineTrimRes...)
	}
	return trimRes
}

func trimLineComments(lineBytes []byte) []byte {
	if len(lineBytes) == 0 {
		return lineBytes
	}
	trimRes := make([]byte, 0, len(lineBytes))
	quoteCnt := 0
trimLoop:
	for {
		r, size := utf8.DecodeRune(lineBytes)
		if size == 0 {
			break
		}
		switch r {
		case CommentMarker:
			if quoteCnt%2 == 0 {
				break trimLoop
			}
		case QuoteMarker:
			quoteCnt += 1
		}
		trimRes = append(trimRes, lineBytes[:size]...)
		lineBytes = lineBytes[size:]
	}
	trimRes = append(trimRes, '\n')
	return trimRes
}

// GetString returns a string for the config key, or "" if absent or
// of the wrong type.
func (c *Config) GetString(key string) string {
	x, present := c.data[key]
	if !present {
		return ""
	}
	if result, isString := x.(string); isString {
		return result
	}
	return ""
}

// GetBoolWithDefault returns a bool for the config key, falling back
// to defval when the key is absent (there is no "unset" zero value
// for booleans crawld can trust, e.g. send_workaround).
func (c *Config) GetBoolWithDefault(key string, defval bool) bool {
	_, present := c.data[key]
	if !present {
		return defval
	}
	return c.GetBool(key)
}

// GetBool returns a bool value for the config key.
func (c *Config) GetBool(key string) bool {
	x, present := c.data[key]
	if !present {
		return false
	}
	if result, isBool := x.(bool); isBool {
		return result
	}
	if result, isString := x.(string); isString {
		if result == "true" {
			return true
		}
	}
	return false
}

// GetInt64 returns an int64 value for the config key, used for
// crawld's duration and count settings (worker counts, poll floors
// and writeback intervals in milliseconds).
func (c *Config) GetInt64(key string) int64 {
	x, present := c.data[key]
	if !present {
		return 0
	}
	if result, isInt := x.(int64); isInt {
		return result
	}
	if result, isFloat := x.(float64); isFloat {
		return int64(result)
	}
	if result, isString := x.(string); isString {
		r, err := strconv.ParseInt(result, 10, 64)
		if err == nil {
			return r
		}
	}
	return 0
}
