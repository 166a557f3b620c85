package validate

import (
	"encoding/binary"
	"os"

	"github.com/mediaforge/media-archiver/internal/domain"
)

// Top-level box types accepted at the start of an MP4 container.
var acceptedLeadingBoxes = map[string]bool{
	"ftyp": true,
	"styp": true,
	"moov": true,
	"mdat": true,
	"free": true,
	"skip": true,
	"wide": true,
	"pdin": true,
}

// Validator performs the integrity gate between download and commit:
// cheap structural checks, never decoding. Checks run in order and
// short-circuit on the first failure so the rejection reason is
// specific.
type Validator struct {
	enabled    bool
	minPrimary int64
	minCover   int64
}

// New creates a validator with per-role minimum sizes. When enabled is
// false only the missing-file check runs.
func New(enabled bool, minPrimary, minCover int64) *Validator {
	return &Validator{enabled: enabled, minPrimary: minPrimary, minCover: minCover}
}

// CheckFile validates a downloaded file for the given role.
func (v *Validator) CheckFile(path string, role domain.AssetRole) domain.ValidationResult {
	fi, err := os.Stat(path)
	if err != nil || fi.Size() == 0 {
		return domain.Reject(domain.ReasonMissingFile, 0)
	}
	size := fi.Size()

	if !v.enabled {
		return domain.Pass(size)
	}

	min := v.minCover
	if role == domain.RolePrimary {
		min = v.minPrimary
	}
	if size < min {
		return domain.Reject(domain.ReasonSizeTooSmall, size)
	}

	if role != domain.RolePrimary {
		return domain.Pass(size)
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.Reject(domain.ReasonMissingFile, size)
	}
	defer f.Close()

	if !checkLeadingBox(f) {
		return domain.Reject(domain.ReasonBadMagic, size)
	}
	if !probePlayable(f, size) {
		return domain.Reject(domain.ReasonUnplayable, size)
	}
	return domain.Pass(size)
}

// checkLeadingBox verifies the file starts with a plausible MP4 box
// header: a sane 32-bit size and a known top-level box type.
func checkLeadingBox(f *os.File) bool {
	var header [8]byte
	if _, err := f.ReadAt(header[:], 0); err != nil {
		return false
	}
	boxSize := binary.BigEndian.Uint32(header[:4])
	boxType := string(header[4:8])

	if !acceptedLeadingBoxes[boxType] {
		return false
	}
	// size 0 = box extends to EOF, size 1 = 64-bit largesize follows;
	// anything else below the header length is malformed.
	if boxSize != 0 && boxSize != 1 && boxSize < 8 {
		return false
	}
	return true
}

// probePlayable walks the top-level box structure and requires both a
// moov (movie metadata) and an mdat (media data) box. Best effort: it
// confirms the container is structurally whole, not that every sample
// decodes.
func probePlayable(f *os.File, fileSize int64) bool {
	var offset int64
	var sawMoov, sawMdat bool

	for offset+8 <= fileSize {
		var header [8]byte
		if _, err := f.ReadAt(header[:], offset); err != nil {
			return false
		}
		boxSize := int64(binary.BigEndian.Uint32(header[:4]))
		boxType := string(header[4:8])

		switch boxType {
		case "moov":
			sawMoov = true
		case "mdat":
			sawMdat = true
		}

		switch boxSize {
		case 0:
			// Box extends to end of file; nothing can follow.
			offset = fileSize
		case 1:
			var large [8]byte
			if _, err := f.ReadAt(large[:], offset+8); err != nil {
				return false
			}
			size64 := int64(binary.BigEndian.Uint64(large[:]))
			if size64 < 16 {
				return false
			}
			offset += size64
		default:
			if boxSize < 8 {
				return false
			}
			offset += boxSize
		}

		if offset > fileSize {
			// Truncated: the last box claims bytes past EOF.
			return false
		}
		if sawMoov && sawMdat {
			return true
		}
	}
	return sawMoov && sawMdat
}

// Errorf wraps a failing result for the given role as a domain
// validation error; passing results return nil.
func Errorf(role domain.AssetRole, result domain.ValidationResult) error {
	if result.OK {
		return nil
	}
	return &domain.ValidationError{Role: role, Result: result}
}
