// Package exif rewrites capture metadata into JPEG bytes in memory. It is
// pure: input bytes are never modified, failures degrade to returning the
// original bytes with an advisory error so a fetch never fails on metadata.
package exif

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"math"
	"time"

	goexif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
)

// encodeQuality is the quality used when re-encoding the image container
const encodeQuality = 95

// exifDateFormat is the canonical EXIF date form, naive local time
const exifDateFormat = "2006:01:02 15:04:05"

// Patch is the capture metadata to embed. Nil fields are skipped; GPS is
// only written when both coordinates are present.
type Patch struct {
	CapturedAt *time.Time
	Latitude   *float64
	Longitude  *float64
}

// IsZero reports whether the patch would write nothing
func (p Patch) IsZero() bool {
	return p.CapturedAt == nil && (p.Latitude == nil || p.Longitude == nil)
}

// Rewrite returns new JPEG bytes with the patch embedded, re-encoded at
// quality 95. On any failure it returns the original bytes unchanged along
// with an advisory error; the caller decides whether to surface it.
func Rewrite(raw []byte, patch Patch) (out []byte, err error) {
	if patch.IsZero() {
		return raw, nil
	}

	// The dsoprea libraries report some failures by panicking through
	// go-logging; fold those into the advisory path.
	defer func() {
		if r := recover(); r != nil {
			out = raw
			err = fmt.Errorf("exif write failed: %v", r)
		}
	}()

	img, decErr := jpeg.Decode(bytes.NewReader(raw))
	if decErr != nil {
		return raw, fmt.Errorf("exif write failed: not a decodable JPEG: %w", decErr)
	}

	reencoded := new(bytes.Buffer)
	if err := jpeg.Encode(reencoded, img, &jpeg.Options{Quality: encodeQuality}); err != nil {
		return raw, fmt.Errorf("exif write failed: re-encode: %w", err)
	}

	jmp := jpegstructure.NewJpegMediaParser()
	intfc, parseErr := jmp.ParseBytes(reencoded.Bytes())
	if parseErr != nil {
		return raw, fmt.Errorf("exif write failed: parse: %w", parseErr)
	}
	sl := intfc.(*jpegstructure.SegmentList)

	// The re-encode strips every metadata segment, so the builder has to
	// come from the original bytes for tags already present to survive.
	rootIb := existingExifBuilder(jmp, raw)
	if rootIb == nil {
		// No parseable metadata container; start from an empty one
		im, mapErr := exifcommon.NewIfdMappingWithStandard()
		if mapErr != nil {
			return raw, fmt.Errorf("exif write failed: ifd mapping: %w", mapErr)
		}
		rootIb = goexif.NewIfdBuilder(im, goexif.NewTagIndex(),
			exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)
	}

	if patch.CapturedAt != nil {
		if err := setDateFields(rootIb, patch.CapturedAt.Format(exifDateFormat)); err != nil {
			return raw, fmt.Errorf("exif write failed: %w", err)
		}
	}

	if patch.Latitude != nil && patch.Longitude != nil {
		if err := setGPSFields(rootIb, *patch.Latitude, *patch.Longitude); err != nil {
			return raw, fmt.Errorf("exif write failed: %w", err)
		}
	}

	if err := sl.SetExif(rootIb); err != nil {
		return raw, fmt.Errorf("exif write failed: set segment: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := sl.Write(buf); err != nil {
		return raw, fmt.Errorf("exif write failed: serialize: %w", err)
	}

	return buf.Bytes(), nil
}

// existingExifBuilder extracts the metadata container already present in
// the original bytes, or nil when none is parseable
func existingExifBuilder(jmp *jpegstructure.JpegMediaParser, raw []byte) (ib *goexif.IfdBuilder) {
	defer func() {
		if recover() != nil {
			ib = nil
		}
	}()

	intfc, err := jmp.ParseBytes(raw)
	if err != nil {
		return nil
	}
	sl := intfc.(*jpegstructure.SegmentList)

	rootIb, err := sl.ConstructExifBuilder()
	if err != nil {
		return nil
	}

	return rootIb
}

// setDateFields writes the three canonical date tags
func setDateFields(rootIb *goexif.IfdBuilder, dateStr string) error {
	ifd0Ib, err := goexif.GetOrCreateIbFromRootIb(rootIb, "IFD0")
	if err != nil {
		return fmt.Errorf("IFD0: %w", err)
	}
	if err := ifd0Ib.SetStandardWithName("DateTime", dateStr); err != nil {
		return fmt.Errorf("DateTime: %w", err)
	}

	exifIb, err := goexif.GetOrCreateIbFromRootIb(rootIb, "IFD0/Exif")
	if err != nil {
		return fmt.Errorf("IFD0/Exif: %w", err)
	}
	if err := exifIb.SetStandardWithName("DateTimeOriginal", dateStr); err != nil {
		return fmt.Errorf("DateTimeOriginal: %w", err)
	}
	if err := exifIb.SetStandardWithName("DateTimeDigitized", dateStr); err != nil {
		return fmt.Errorf("DateTimeDigitized: %w", err)
	}

	return nil
}

// setGPSFields writes the coordinate tags as DMS rationals
func setGPSFields(rootIb *goexif.IfdBuilder, lat, lon float64) error {
	gpsIb, err := goexif.GetOrCreateIbFromRootIb(rootIb, "IFD0/GPSInfo")
	if err != nil {
		return fmt.Errorf("IFD0/GPSInfo: %w", err)
	}

	if err := gpsIb.SetStandardWithName("GPSVersionID", []byte{2, 3, 0, 0}); err != nil {
		return fmt.Errorf("GPSVersionID: %w", err)
	}

	latRef, latDMS := DegreesToDMS(lat, "N", "S")
	if err := gpsIb.SetStandardWithName("GPSLatitudeRef", latRef); err != nil {
		return fmt.Errorf("GPSLatitudeRef: %w", err)
	}
	if err := gpsIb.SetStandardWithName("GPSLatitude", latDMS); err != nil {
		return fmt.Errorf("GPSLatitude: %w", err)
	}

	lonRef, lonDMS := DegreesToDMS(lon, "E", "W")
	if err := gpsIb.SetStandardWithName("GPSLongitudeRef", lonRef); err != nil {
		return fmt.Errorf("GPSLongitudeRef: %w", err)
	}
	if err := gpsIb.SetStandardWithName("GPSLongitude", lonDMS); err != nil {
		return fmt.Errorf("GPSLongitude: %w", err)
	}

	return nil
}

// secondsDenominator bounds the seconds rational to 4 decimal digits
const secondsDenominator = 10000

// DegreesToDMS decomposes a signed decimal degree into the EXIF
// degrees/minutes/seconds rationals plus the hemisphere reference letter
func DegreesToDMS(value float64, posRef, negRef string) (string, []exifcommon.Rational) {
	ref := posRef
	if value < 0 {
		ref = negRef
		value = -value
	}

	deg := math.Floor(value)
	minFloat := (value - deg) * 60
	min := math.Floor(minFloat)
	sec := (minFloat - min) * 60

	secNum := uint32(math.Round(sec * secondsDenominator))
	secDen := uint32(secondsDenominator)
	if d := gcd(secNum, secDen); d > 1 {
		secNum /= d
		secDen /= d
	}

	return ref, []exifcommon.Rational{
		{Numerator: uint32(deg), Denominator: 1},
		{Numerator: uint32(min), Denominator: 1},
		{Numerator: secNum, Denominator: secDen},
	}
}

func gcd(a, b uint32) uint32 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
