package xdf

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// chunk tags, see the XDF specification.
const (
	tagFileHeader   = 1
	tagStreamHeader = 2
	tagSamples      = 3
	tagClockOffset  = 4
	tagBoundary     = 5
	tagStreamFooter = 6
)

var xdfMagic = [4]byte{'X', 'D', 'F', ':'}

// maxChunkSize caps the chunk length declared by the file before we
// allocate for it, so a corrupt length cannot abort the process with
// an absurd allocation.
const maxChunkSize = 1 << 30

type streamHeaderXML struct {
	Name          string `xml:"name"`
	Type          string `xml:"type"`
	ChannelCount  int    `xml:"channel_count"`
	NominalSRate  string `xml:"nominal_srate"`
	ChannelFormat string `xml:"channel_format"`
}

// Load reads all streams from the XDF file at the given path.
//
// Streams are returned in the order their headers appear in the file,
// which is the order the selection heuristics in package locator rely
// on. Clock offset measurements (when present) are averaged per stream
// and applied to its timestamps, so all returned timestamps live in
// the recorder's clock domain.
func Load(ctx context.Context, path string) ([]*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open '%s': %w", path, err)
	}
	defer f.Close()

	streams, err := Read(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("unable to read '%s': %w", path, err)
	}
	return streams, nil
}

// Read parses an XDF byte stream. See Load.
func Read(ctx context.Context, rawReader io.Reader) ([]*Stream, error) {
	r := bufio.NewReader(rawReader)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("unable to read the magic bytes: %w", err)
	}
	if magic != xdfMagic {
		return nil, fmt.Errorf("not an XDF file: expected magic %q, got %q", xdfMagic, magic)
	}

	byID := map[uint32]*Stream{}
	var streams []*Stream

	for chunkIdx := 0; ; chunkIdx++ {
		length, err := readVarLenInt(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unable to read the length of chunk %d: %w", chunkIdx, err)
		}
		if length < 2 {
			return nil, fmt.Errorf("chunk %d is too short to contain a tag: %d bytes", chunkIdx, length)
		}
		if length > maxChunkSize {
			return nil, fmt.Errorf("chunk %d declares an implausible length of %d bytes", chunkIdx, length)
		}

		var tag uint16
		if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
			return nil, fmt.Errorf("unable to read the tag of chunk %d: %w", chunkIdx, err)
		}
		content := make([]byte, length-2)
		if _, err := io.ReadFull(r, content); err != nil {
			return nil, fmt.Errorf("unable to read the content of chunk %d (tag %d): %w", chunkIdx, tag, err)
		}
		logger.Tracef(ctx, "chunk %d: tag:%d, length:%d", chunkIdx, tag, length)

		switch tag {
		case tagStreamHeader:
			stream, err := parseStreamHeader(ctx, content)
			if err != nil {
				return nil, fmt.Errorf("unable to parse the header of a stream in chunk %d: %w", chunkIdx, err)
			}
			byID[stream.ID] = stream
			streams = append(streams, stream)
		case tagSamples:
			if err := parseSamples(content, byID); err != nil {
				return nil, fmt.Errorf("unable to parse the samples in chunk %d: %w", chunkIdx, err)
			}
		case tagClockOffset:
			if err := parseClockOffset(content, byID); err != nil {
				return nil, fmt.Errorf("unable to parse the clock offset in chunk %d: %w", chunkIdx, err)
			}
		case tagFileHeader, tagBoundary, tagStreamFooter:
			// Nothing we need from these.
		default:
			logger.Debugf(ctx, "skipping a chunk with an unknown tag %d (%d bytes)", tag, length)
		}
	}

	for _, stream := range streams {
		applyClockOffsets(stream)
		logger.Debugf(ctx, "stream %d: name:'%s', type:'%s', format:%s, frames:%d",
			stream.ID, stream.Name, stream.Type, stream.Format, len(stream.Samples))
	}
	return streams, nil
}

func parseStreamHeader(ctx context.Context, content []byte) (*Stream, error) {
	if len(content) < 4 {
		return nil, fmt.Errorf("the chunk is too short to contain a stream ID: %d bytes", len(content))
	}
	id := binary.LittleEndian.Uint32(content[:4])

	var hdr streamHeaderXML
	if err := xml.Unmarshal(content[4:], &hdr); err != nil {
		return nil, fmt.Errorf("unable to parse the XML header of stream %d: %w", id, err)
	}
	logger.Tracef(ctx, "stream %d header: %s", id, spew.Sdump(hdr))

	var srate float64
	if v := strings.TrimSpace(hdr.NominalSRate); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("unable to parse nominal_srate '%s' of stream %d: %w", hdr.NominalSRate, id, err)
		}
		srate = parsed
	}

	channelCount := hdr.ChannelCount
	if channelCount == 0 {
		channelCount = 1
	}

	return &Stream{
		ID:           id,
		Name:         hdr.Name,
		Type:         hdr.Type,
		ChannelCount: channelCount,
		NominalSRate: srate,
		Format:       ChannelFormat(hdr.ChannelFormat),
	}, nil
}

func parseSamples(content []byte, byID map[uint32]*Stream) error {
	r := newSliceReader(content)

	id, err := r.uint32()
	if err != nil {
		return fmt.Errorf("unable to read the stream ID: %w", err)
	}
	stream := byID[id]
	if stream == nil {
		return fmt.Errorf("a samples chunk references an unknown stream %d", id)
	}

	numSamples, err := readVarLenInt(r)
	if err != nil {
		return fmt.Errorf("unable to read the sample count for stream %d: %w", id, err)
	}

	for i := uint64(0); i < numSamples; i++ {
		tsBytes, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("unable to read the timestamp marker of sample %d of stream %d: %w", i, id, err)
		}
		var ts float64
		switch tsBytes {
		case 8:
			ts, err = r.float64()
			if err != nil {
				return fmt.Errorf("unable to read the timestamp of sample %d of stream %d: %w", i, id, err)
			}
		case 0:
			ts = deducedTimestamp(stream)
		default:
			return fmt.Errorf("sample %d of stream %d declares a timestamp of %d bytes, expected 0 or 8", i, id, tsBytes)
		}

		frame, err := readFrame(r, stream)
		if err != nil {
			return fmt.Errorf("unable to read the values of sample %d of stream %d: %w", i, id, err)
		}
		stream.Samples = append(stream.Samples, frame)
		stream.Timestamps = append(stream.Timestamps, ts)
	}
	return nil
}

// deducedTimestamp extrapolates the timestamp of a sample the file did
// not stamp explicitly: the previous timestamp advanced by one nominal
// sampling interval.
func deducedTimestamp(stream *Stream) float64 {
	if len(stream.Timestamps) == 0 {
		return 0
	}
	last := stream.Timestamps[len(stream.Timestamps)-1]
	if stream.NominalSRate > 0 {
		return last + 1/stream.NominalSRate
	}
	return last
}

func readFrame(r *sliceReader, stream *Stream) ([]float64, error) {
	if stream.Format == ChannelFormatString {
		// Consume, but do not keep: string streams carry markers, not audio.
		for ch := 0; ch < stream.ChannelCount; ch++ {
			n, err := readVarLenInt(r)
			if err != nil {
				return nil, fmt.Errorf("unable to read the length of a string value: %w", err)
			}
			if err := r.skip(n); err != nil {
				return nil, fmt.Errorf("unable to skip a string value of %d bytes: %w", n, err)
			}
		}
		return []float64{}, nil
	}

	frame := make([]float64, stream.ChannelCount)
	for ch := 0; ch < stream.ChannelCount; ch++ {
		v, err := readValue(r, stream.Format)
		if err != nil {
			return nil, err
		}
		frame[ch] = v
	}
	return frame, nil
}

func readValue(r *sliceReader, format ChannelFormat) (float64, error) {
	buf, err := r.bytes(format.Size())
	if err != nil {
		return 0, fmt.Errorf("unable to read a %s value: %w", format, err)
	}
	switch format {
	case ChannelFormatInt8:
		return float64(int8(buf[0])), nil
	case ChannelFormatInt16:
		return float64(int16(binary.LittleEndian.Uint16(buf))), nil
	case ChannelFormatInt32:
		return float64(int32(binary.LittleEndian.Uint32(buf))), nil
	case ChannelFormatInt64:
		return float64(int64(binary.LittleEndian.Uint64(buf))), nil
	case ChannelFormatFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf))), nil
	case ChannelFormatFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
	}
	return 0, fmt.Errorf("unknown channel format: '%s'", format)
}

func parseClockOffset(content []byte, byID map[uint32]*Stream) error {
	r := newSliceReader(content)
	id, err := r.uint32()
	if err != nil {
		return fmt.Errorf("unable to read the stream ID: %w", err)
	}
	stream := byID[id]
	if stream == nil {
		return fmt.Errorf("a clock offset chunk references an unknown stream %d", id)
	}
	collectionTime, err := r.float64()
	if err != nil {
		return fmt.Errorf("unable to read the collection time: %w", err)
	}
	offset, err := r.float64()
	if err != nil {
		return fmt.Errorf("unable to read the offset value: %w", err)
	}
	stream.ClockOffsets = append(stream.ClockOffsets, ClockOffset{
		CollectionTime: collectionTime,
		Offset:         offset,
	})
	return nil
}

// applyClockOffsets shifts the stream's timestamps into the recorder's
// clock domain using the mean of the collected offset measurements.
func applyClockOffsets(stream *Stream) {
	if len(stream.ClockOffsets) == 0 {
		return
	}
	var sum float64
	for _, o := range stream.ClockOffsets {
		sum += o.Offset
	}
	mean := sum / float64(len(stream.ClockOffsets))
	for i := range stream.Timestamps {
		stream.Timestamps[i] += mean
	}
}

// byteScanner is the subset of reading primitives readVarLenInt needs;
// both *bufio.Reader and *sliceReader satisfy it.
type byteScanner interface {
	io.ByteReader
	io.Reader
}

// readVarLenInt reads XDF's variable-length unsigned integer: one byte
// declaring the width (1, 4 or 8 bytes), followed by the little-endian
// value itself.
func readVarLenInt(r byteScanner) (uint64, error) {
	width, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch width {
	case 1:
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		return uint64(b), nil
	case 4:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint32(buf[:])), nil
	case 8:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(buf[:]), nil
	}
	return 0, fmt.Errorf("invalid variable-length integer width: %d", width)
}

// sliceReader walks a byte slice with bounds checking.
type sliceReader struct {
	buf []byte
	pos int
}

var _ byteScanner = (*sliceReader)(nil)

func newSliceReader(buf []byte) *sliceReader {
	return &sliceReader{buf: buf}
}

func (r *sliceReader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.buf) {
		return 0, io.EOF
	}
	n := copy(p, r.buf[r.pos:])
	r.pos += n
	return n, nil
}

// The size checks below compare against the remaining length instead
// of adding to pos, so that a hostile size close to the integer limit
// cannot overflow past the bounds check.
func (r *sliceReader) bytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid read size: %d", n)
	}
	if n > len(r.buf)-r.pos {
		return nil, io.ErrUnexpectedEOF
	}
	buf := r.buf[r.pos : r.pos+n]
	r.pos += n
	return buf, nil
}

func (r *sliceReader) skip(n uint64) error {
	if n > uint64(len(r.buf)-r.pos) {
		return io.ErrUnexpectedEOF
	}
	r.pos += int(n)
	return nil
}

func (r *sliceReader) uint32() (uint32, error) {
	buf, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (r *sliceReader) float64() (float64, error) {
	buf, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
}
