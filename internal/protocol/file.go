package protocol

// MaxFileBytes is the raw size cap for file payloads: 5 MiB.
const MaxFileBytes = 5 * 1024 * 1024

// maxEncodedLen bounds the base64 form of a payload at the cap, with a
// little slack for padding.
const maxEncodedLen = (MaxFileBytes*4)/3 + 8

// FilePayload is an inline file attachment: base64 data plus descriptive
// fields. Name and Mime are capped at 255 characters.
type FilePayload struct {
	Name string `json:"name"`
	Mime string `json:"mime"`
	Size int64  `json:"size"`
	Data string `json:"data"`
}

// SanitizeFilePayload validates and clamps an incoming file payload.
// Payloads over the size cap, or whose encoded data exceeds the encoded
// bound, are rejected outright (nil), never truncated.
func SanitizeFilePayload(f *FilePayload) *FilePayload {
	if f == nil || f.Data == "" {
		return nil
	}
	if f.Size > MaxFileBytes {
		return nil
	}
	if len(f.Data) > maxEncodedLen {
		return nil
	}

	name := f.Name
	if len(name) > 255 {
		name = name[:255]
	}
	mime := f.Mime
	if mime == "" {
		mime = "application/octet-stream"
	}
	if len(mime) > 255 {
		mime = mime[:255]
	}

	return &FilePayload{
		Name: name,
		Mime: mime,
		Size: f.Size,
		Data: f.Data,
	}
}
