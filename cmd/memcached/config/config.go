// Package config implements the on-disk/CLI configuration format for the
// memcached command: a JSON file merged with flag overrides, following the
// def/override reflection merge used throughout this project's tooling.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/facebookgo/stackerr"

	"github.com/Konopatkin-OV/afina"
	"github.com/Konopatkin-OV/afina/internal/util"
	"github.com/Konopatkin-OV/afina/log"
)

// Parse resolves a raw Config into memcached.Config, opening the log
// destination and parsing human-readable sizes ("64m", "1024k", ...).
func Parse(conf Config) (mconf memcached.Config, err error) {
	if _, err2 := logDestination(conf.LogDestination); err2 != nil {
		err = stackerr.Newf("Log destination open error: %v", err2)
		return
	}
	mconf.CacheSize, err = parseSize(conf.CacheSize)
	if err != nil {
		err = stackerr.Newf("Cache size parse error: %v", err)
		return
	}
	mconf.MaxItemSize, err = parseSize(conf.MaxItemSize)
	if err != nil {
		err = stackerr.Newf("Max item size parse error: %v", err)
		return
	}
	if _, err2 := log.LevelFromString(conf.LogLevel); err2 != nil {
		err = stackerr.Newf("Log level parse error: %v", err2)
		return
	}
	mconf.LogLevel = conf.LogLevel
	mconf.MaxAcceptors = conf.MaxAcceptors
	mconf.MaxWorkers = conf.MaxWorkers
	mconf.Addr = net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port))
	return
}

func Default() *Config {
	return &Config{
		Port:           11211,
		Host:           "",
		LogDestination: "stderr",
		LogLevel:       "info",
		CacheSize:      "64m",
		MaxItemSize:    "1m",
		MaxAcceptors:   1,
		MaxWorkers:     1024,
	}
}

type Config struct {
	Port           int    `json:"port,omitempty"`
	Host           string `json:"host,omitempty"`
	LogDestination string `json:"log-destination,omitempty"` // Stdout, stderr, or filepath.
	LogLevel       string `json:"log-level,omitempty"`
	// Size values 10g, 128m, 1024k, 1000000b.
	CacheSize    string `json:"cache-size,omitempty"`
	MaxItemSize  string `json:"max-item-size,omitempty"`
	MaxAcceptors int    `json:"max-acceptors,omitempty"`
	MaxWorkers   int    `json:"max-workers,omitempty"`
}

// Merge copies every non-zero field of override into def, replacing whatever
// def held there.
func Merge(def, override *Config) {
	defVal := reflect.ValueOf(def).Elem()
	overrideVal := reflect.ValueOf(override).Elem()
	for i, end := 0, defVal.NumField(); i < end; i++ {
		overrideField := overrideVal.Field(i)
		if !util.IsZeroVal(overrideField) {
			defVal.Field(i).Set(overrideField)
		}
	}
}

func Marshal(conf *Config) []byte {
	data, err := json.Marshal(conf)
	if err != nil {
		panic(err)
	}
	return data
}

func parseSize(s string) (size int64, err error) {
	if len(s) < 2 {
		err = errors.New("invalid size format")
		return
	}
	sep := len(s) - 1
	sizeStr := s[:sep]
	exponentStr := s[sep:]
	var exponent uint32
	switch strings.ToLower(exponentStr) {
	case "b":
		exponent = 0
	case "k":
		exponent = 10
	case "m":
		exponent = 20
	case "g":
		exponent = 30
	default:
		err = errors.New("invalid exponent, only 'b', 'k', 'm', 'g' allowed")
		return
	}
	size, err = strconv.ParseInt(sizeStr, 10, 31)
	if err != nil {
		err = fmt.Errorf("size parse error: %s", err)
		return
	}
	size <<= exponent
	return
}

func logDestination(dest string) (w io.Writer, err error) {
	switch strings.ToLower(dest) {
	case "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		w, err = os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	}
	return
}
