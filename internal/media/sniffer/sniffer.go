package sniffer

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
)

type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeGIF  MediaType = "gif"
	TypeWEBP MediaType = "webp"
	TypeAVIF MediaType = "avif"
	TypeSVG  MediaType = "svg"
	TypeMP3  MediaType = "mp3"
	TypeWAV  MediaType = "wav"
	TypeOGG  MediaType = "ogg"
	TypeM4A  MediaType = "m4a"
	TypeMP4  MediaType = "mp4"
	TypeWEBM MediaType = "webm"
	TypePDF  MediaType = "pdf"
)

// Kind groups media types by how the portfolio uses them.
type Kind string

const (
	KindImage    Kind = "image"
	KindAudio    Kind = "audio"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
)

// HeadSize is how many leading bytes DetectHead needs.
const HeadSize = 512

var (
	ErrUnknownType = errors.New("unknown media type")
	ErrUnknownKind = errors.New("unknown media kind")
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindImage, KindAudio, KindVideo, KindDocument:
		return k, nil
	}
	return "", ErrUnknownKind
}

type Result struct {
	Type MediaType
	Kind Kind
	MIME string
	Ext  string
}

var results = map[MediaType]Result{
	TypeJPEG: {Type: TypeJPEG, Kind: KindImage, MIME: "image/jpeg", Ext: "jpg"},
	TypePNG:  {Type: TypePNG, Kind: KindImage, MIME: "image/png", Ext: "png"},
	TypeGIF:  {Type: TypeGIF, Kind: KindImage, MIME: "image/gif", Ext: "gif"},
	TypeWEBP: {Type: TypeWEBP, Kind: KindImage, MIME: "image/webp", Ext: "webp"},
	TypeAVIF: {Type: TypeAVIF, Kind: KindImage, MIME: "image/avif", Ext: "avif"},
	TypeSVG:  {Type: TypeSVG, Kind: KindImage, MIME: "image/svg+xml", Ext: "svg"},
	TypeMP3:  {Type: TypeMP3, Kind: KindAudio, MIME: "audio/mpeg", Ext: "mp3"},
	TypeWAV:  {Type: TypeWAV, Kind: KindAudio, MIME: "audio/wav", Ext: "wav"},
	TypeOGG:  {Type: TypeOGG, Kind: KindAudio, MIME: "audio/ogg", Ext: "ogg"},
	TypeM4A:  {Type: TypeM4A, Kind: KindAudio, MIME: "audio/mp4", Ext: "m4a"},
	TypeMP4:  {Type: TypeMP4, Kind: KindVideo, MIME: "video/mp4", Ext: "mp4"},
	TypeWEBM: {Type: TypeWEBM, Kind: KindVideo, MIME: "video/webm", Ext: "webm"},
	TypePDF:  {Type: TypePDF, Kind: KindDocument, MIME: "application/pdf", Ext: "pdf"},
}

// aliases are other declared content types browsers send for the same format.
var aliases = map[MediaType][]string{
	TypeJPEG: {"image/jpg", "image/pjpeg"},
	TypeSVG:  {"image/svg"},
	TypeMP3:  {"audio/mp3", "audio/mpeg3", "audio/x-mpeg"},
	TypeWAV:  {"audio/wave", "audio/x-wav", "audio/vnd.wave"},
	TypeOGG:  {"application/ogg", "audio/vorbis", "audio/opus"},
	TypeM4A:  {"audio/x-m4a", "audio/m4a", "audio/aac"},
	TypeMP4:  {"application/mp4"},
	TypeWEBM: {"audio/webm"},
	TypePDF:  {"application/x-pdf"},
}

func Detect(r io.Reader) (Result, []byte, error) {
	head := make([]byte, HeadSize)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Result{}, nil, err
	}
	head = head[:n]

	result, err := DetectHead(head)
	return result, head, err
}

func DetectHead(head []byte) (Result, error) {
	if len(head) == 0 {
		return Result{}, ErrUnknownType
	}

	var t MediaType
	switch {
	case isJPEG(head):
		t = TypeJPEG
	case isPNG(head):
		t = TypePNG
	case isGIF(head):
		t = TypeGIF
	case isRIFF(head, "WEBP"):
		t = TypeWEBP
	case isRIFF(head, "WAVE"):
		t = TypeWAV
	case isPDF(head):
		t = TypePDF
	case bytes.HasPrefix(head, []byte("OggS")):
		t = TypeOGG
	case bytes.HasPrefix(head, []byte{0x1a, 0x45, 0xdf, 0xa3}):
		t = TypeWEBM
	case isMP3(head):
		t = TypeMP3
	case isISOBMFF(head):
		t = isoBrandType(head)
	case isSVG(head):
		t = TypeSVG
	}

	if t == "" {
		return Result{}, ErrUnknownType
	}
	return results[t], nil
}

// Compatible reports whether a client-declared content type agrees with the sniffed one.
// An empty or generic declaration defers to the sniffed type.
func (r Result) Compatible(declared string) bool {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared == "" || declared == "application/octet-stream" || declared == r.MIME {
		return true
	}
	for _, alias := range aliases[r.Type] {
		if declared == alias {
			return true
		}
	}
	return false
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return bytes.HasPrefix(head, pngMagic)
}

func isGIF(head []byte) bool {
	return bytes.HasPrefix(head, []byte("GIF87a")) || bytes.HasPrefix(head, []byte("GIF89a"))
}

func isRIFF(head []byte, form string) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte(form))
}

func isPDF(head []byte) bool {
	return bytes.HasPrefix(head, []byte("%PDF-"))
}

// isMP3 accepts an ID3v2 tag or a bare MPEG audio frame sync.
func isMP3(head []byte) bool {
	if bytes.HasPrefix(head, []byte("ID3")) {
		return true
	}
	return len(head) >= 2 && head[0] == 0xff && head[1]&0xe0 == 0xe0
}

func isISOBMFF(head []byte) bool {
	return len(head) >= 12 && string(head[4:8]) == "ftyp"
}

func isoBrandType(head []byte) MediaType {
	major := string(head[8:12])
	switch major {
	case "avif", "avis":
		return TypeAVIF
	case "M4A ", "M4B ", "M4P ":
		return TypeM4A
	}
	if bytes.Contains(head[12:], []byte("avif")) {
		return TypeAVIF
	}
	switch major {
	case "isom", "iso2", "iso4", "iso5", "iso6", "mp41", "mp42", "avc1", "M4V ", "dash", "qt  ":
		return TypeMP4
	}
	return ""
}

func isSVG(head []byte) bool {
	trimmed := strings.TrimSpace(string(head))
	if strings.HasPrefix(trimmed, "<svg") {
		return true
	}
	lower := strings.ToLower(trimmed)
	return (strings.HasPrefix(lower, "<?xml") || strings.HasPrefix(lower, "<!doctype svg")) &&
		strings.Contains(lower, "<svg")
}

func MimeTypeFromHTTP(header http.Header) string {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		if idx := strings.Index(contentType, ";"); idx >= 0 {
			return strings.TrimSpace(contentType[:idx])
		}
		return strings.TrimSpace(contentType)
	}
	return mediaType
}
