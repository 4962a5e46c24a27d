// Package pipecache persists Vulkan pipeline cache blobs between runs and
// rejects blobs written by a different driver or device.
package pipecache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// HeaderVersionOne is VK_PIPELINE_CACHE_HEADER_VERSION_ONE.
const HeaderVersionOne = 1

// HeaderSize is the length of the version one header in bytes.
const HeaderSize = 16 + len(uuid.UUID{})

// Header is the vendor-independent prefix of every pipeline cache blob:
//
//	offset  size  meaning
//	0       4     header length in bytes
//	4       4     header version
//	8       4     vendor ID
//	12      4     device ID
//	16      16    pipeline cache UUID
type Header struct {
	Length   uint32
	Version  uint32
	VendorID uint32
	DeviceID uint32
	CacheID  uuid.UUID
}

// Device identifies the physical device a cache must match.
type Device struct {
	VendorID uint32
	DeviceID uint32
	CacheID  uuid.UUID
}

func ParseHeader(data []byte) (Header, error) {
	var header Header
	if len(data) < HeaderSize {
		return header, errors.Errorf("pipeline cache is %d bytes, shorter than its %d-byte header", len(data), HeaderSize)
	}

	reader := bytes.NewReader(data)
	for _, field := range []any{&header.Length, &header.Version, &header.VendorID, &header.DeviceID} {
		if err := binary.Read(reader, binary.LittleEndian, field); err != nil {
			return header, errors.Wrap(err, "read pipeline cache header")
		}
	}
	if _, err := reader.Read(header.CacheID[:]); err != nil {
		return header, errors.Wrap(err, "read pipeline cache uuid")
	}
	return header, nil
}

// Mismatches lists every reason the header cannot be fed back to device.
func (h Header) Mismatches(device Device) []string {
	var problems []string
	if h.Length < uint32(HeaderSize) {
		problems = append(problems, fmt.Sprintf("bad header length 0x%x", h.Length))
	}
	if h.Version != HeaderVersionOne {
		problems = append(problems, fmt.Sprintf("unsupported header version 0x%x", h.Version))
	}
	if h.VendorID != device.VendorID {
		problems = append(problems, fmt.Sprintf("vendor ID 0x%x, driver expects 0x%x", h.VendorID, device.VendorID))
	}
	if h.DeviceID != device.DeviceID {
		problems = append(problems, fmt.Sprintf("device ID 0x%x, driver expects 0x%x", h.DeviceID, device.DeviceID))
	}
	if h.CacheID != device.CacheID {
		problems = append(problems, fmt.Sprintf("uuid %s, driver expects %s", h.CacheID, device.CacheID))
	}
	return problems
}

// Load returns the cache blob at path if it matches device. A missing file
// yields nil. A stale or corrupt file is deleted so the next save repopulates
// it, and nil is returned.
func Load(path string, device Device, logger *slog.Logger) []byte {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		logger.Warn("pipeline cache unreadable", "path", path, "error", err)
		return nil
	}

	header, err := ParseHeader(data)
	var problems []string
	if err != nil {
		problems = []string{err.Error()}
	} else {
		problems = header.Mismatches(device)
	}

	if len(problems) > 0 {
		for _, problem := range problems {
			logger.Warn("pipeline cache rejected", "path", path, "reason", problem)
		}
		// Not important if this fails.
		_ = os.Remove(path)
		return nil
	}

	logger.Debug("pipeline cache loaded", "path", path, "bytes", len(data))
	return data
}

func Save(path string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write pipeline cache %s", path)
	}
	return nil
}
