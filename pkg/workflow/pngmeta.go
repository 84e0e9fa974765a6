package workflow

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ComfyUI embeds the originating workflow in the text chunks of every PNG it
// writes, under the "workflow" (UI format) and "prompt" (API format) keys.

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ErrNoWorkflowMetadata indicates the PNG carries no workflow text chunk.
var ErrNoWorkflowMetadata = errors.New("no workflow metadata found")

// ExtractText returns all tEXt/iTXt entries of a PNG stream keyed by keyword.
func ExtractText(r io.Reader) (map[string]string, error) {
	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return nil, fmt.Errorf("read png signature: %w", err)
	}
	if !bytes.Equal(sig, pngSignature) {
		return nil, errors.New("not a PNG file")
	}

	out := map[string]string{}
	var header [8]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return out, nil
			}
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		length := binary.BigEndian.Uint32(header[:4])
		chunkType := string(header[4:8])

		if chunkType == "IEND" {
			return out, nil
		}

		// Skip non-text chunks without buffering them.
		if chunkType != "tEXt" && chunkType != "iTXt" {
			if _, err := io.CopyN(io.Discard, r, int64(length)+4); err != nil {
				return nil, fmt.Errorf("skip %s chunk: %w", chunkType, err)
			}
			continue
		}

		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("read %s chunk: %w", chunkType, err)
		}
		if _, err := io.CopyN(io.Discard, r, 4); err != nil { // CRC
			return nil, fmt.Errorf("skip crc: %w", err)
		}

		switch chunkType {
		case "tEXt":
			key, val, ok := bytes.Cut(data, []byte{0})
			if ok {
				out[string(key)] = string(val)
			}
		case "iTXt":
			key, val, err := decodeITXT(data)
			if err == nil {
				out[key] = val
			}
		}
	}
}

// decodeITXT parses an iTXt chunk: keyword, compression flag and method,
// language tag, translated keyword, then the (possibly deflated) text.
func decodeITXT(data []byte) (string, string, error) {
	key, rest, ok := bytes.Cut(data, []byte{0})
	if !ok || len(rest) < 2 {
		return "", "", errors.New("malformed iTXt chunk")
	}
	compressed := rest[0] == 1
	rest = rest[2:]
	if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok { // language tag
		return "", "", errors.New("malformed iTXt chunk")
	}
	if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok { // translated keyword
		return "", "", errors.New("malformed iTXt chunk")
	}
	if !compressed {
		return string(key), string(rest), nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(rest))
	if err != nil {
		return "", "", err
	}
	defer zr.Close()
	text, err := io.ReadAll(zr)
	if err != nil {
		return "", "", err
	}
	return string(key), string(text), nil
}

// ExtractEmbedded reads the named metadata entry from a ComfyUI-generated
// PNG and re-indents it as JSON.
func ExtractEmbedded(pngPath, key string) ([]byte, error) {
	f, err := os.Open(pngPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := ExtractText(f)
	if err != nil {
		return nil, err
	}
	raw, ok := entries[key]
	if !ok {
		return nil, fmt.Errorf("%w in %s", ErrNoWorkflowMetadata, pngPath)
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("metadata %q is not valid JSON: %w", key, err)
	}
	return json.MarshalIndent(v, "", "  ")
}
