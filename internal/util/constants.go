package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// 录音上传相关常量
const (
	MimeAudio       = "audio/"
	MimeOgg         = "application/ogg"
	MimeWebm        = "video/webm"
	MimeMP4         = "video/mp4"
	MimeOctetStream = "application/octet-stream"
)

var (
	AllowedAudioMimeTypes  = []string{MimeAudio, MimeOgg, MimeWebm, MimeMP4}
	AllowedAudioExtensions = []string{".wav", ".mp3", ".m4a", ".ogg", ".webm", ".aac", ".flac"}
)
